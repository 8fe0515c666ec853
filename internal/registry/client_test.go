package registry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"donorsync/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func testClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	svc, err := sheets.NewService(context.Background(), option.WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatal(err)
	}
	cfg, _ := config.Load()
	cfg.SpreadsheetID = "sheet-1"
	cfg.SheetsMaxRetries = 4
	return &Client{cfg: cfg, svc: svc, limiter: NewRateLimiter(1000)}
}

func TestGetValuesRetriesServerError(t *testing.T) {
	attempt := 0
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		if !strings.Contains(r.URL.Path, "/values/COMBINED") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		attempt++
		if attempt == 1 {
			return jsonResponse(http.StatusInternalServerError, `{"error":{"code":500}}`), nil
		}
		return jsonResponse(http.StatusOK, `{"values":[["Donor #","Center"],["P100","DALLAS"]]}`), nil
	})

	rows, err := client.GetValues(context.Background(), "COMBINED")
	if err != nil {
		t.Fatal(err)
	}
	if attempt != 2 {
		t.Fatalf("attempts=%d", attempt)
	}
	if len(rows) != 2 || rows[1][0] != "P100" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestGetValuesQuotaRetry(t *testing.T) {
	attempt := 0
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		attempt++
		if attempt < 3 {
			return jsonResponse(429, `{"error":{"code":429,"message":"quota"}}`), nil
		}
		return jsonResponse(http.StatusOK, `{"values":[]}`), nil
	})

	if _, err := client.GetValues(context.Background(), "COMBINED"); err != nil {
		t.Fatal(err)
	}
	if attempt != 3 {
		t.Fatalf("attempts=%d", attempt)
	}
}

func TestGetValuesDoesNotRetryClientError(t *testing.T) {
	attempt := 0
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		attempt++
		return jsonResponse(http.StatusNotFound, `{"error":{"code":404}}`), nil
	})

	if _, err := client.GetValues(context.Background(), "COMBINED"); err == nil {
		t.Fatal("expected error")
	}
	if attempt != 1 {
		t.Fatalf("attempts=%d", attempt)
	}
}

func TestUpdateSendsRawValues(t *testing.T) {
	var captured string
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method=%s", r.Method)
		}
		if got := r.URL.Query().Get("valueInputOption"); got != "RAW" {
			t.Fatalf("valueInputOption=%q", got)
		}
		blob, _ := io.ReadAll(r.Body)
		captured = string(blob)
		return jsonResponse(http.StatusOK, `{}`), nil
	})

	err := client.Update(context.Background(), "DB!A1", [][]any{{"Donor #", "Center"}, {"P100", "DALLAS"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(captured, `"P100"`) {
		t.Fatalf("body=%s", captured)
	}
}

func TestAppendInsertsRows(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		if !strings.Contains(r.URL.Path, ":append") {
			t.Fatalf("path=%s", r.URL.Path)
		}
		if got := r.URL.Query().Get("insertDataOption"); got != "INSERT_ROWS" {
			t.Fatalf("insertDataOption=%q", got)
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	})

	if err := client.Append(context.Background(), "UPLOAD_PROCESS", [][]any{{"P100"}}); err != nil {
		t.Fatal(err)
	}
}
