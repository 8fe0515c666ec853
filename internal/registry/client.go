package registry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"donorsync/internal/config"
)

// Client wraps the Sheets API for one spreadsheet. Every call takes a turn
// on the rate limiter and retries quota and server errors with backoff, so
// callers never see a transient 429.
type Client struct {
	cfg     config.Config
	svc     *sheets.Service
	limiter *RateLimiter
}

func NewClient(ctx context.Context, cfg config.Config) (*Client, error) {
	if err := cfg.Require("SHEETS_CREDENTIALS_FILE", cfg.SheetsCredentialsFile); err != nil {
		return nil, err
	}
	if err := cfg.Require("SHEET_ID", cfg.SpreadsheetID); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(cfg.SheetsCredentialsFile)
	if err != nil {
		return nil, err
	}
	jwt, err := google.JWTConfigFromJSON(blob, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithTokenSource(jwt.TokenSource(ctx)))
	if err != nil {
		return nil, err
	}

	return &Client{cfg: cfg, svc: svc, limiter: NewRateLimiter(cfg.SheetsRateLimitRPS)}, nil
}

// callContext bounds one logical sheet operation, retries included.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.SheetsTimeoutMs <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(c.cfg.SheetsTimeoutMs)*time.Millisecond)
}

// GetValues reads a range as formatted strings. A bare worksheet title
// reads its whole used range.
func (c *Client) GetValues(ctx context.Context, readRange string) ([][]string, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var resp *sheets.ValueRange
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.cfg.SpreadsheetID, readRange).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, toString(cell))
		}
		out = append(out, cells)
	}
	return out, nil
}

func (c *Client) Clear(ctx context.Context, clearRange string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	return c.withRetry(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Clear(c.cfg.SpreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do()
		return err
	})
}

func (c *Client) Update(ctx context.Context, writeRange string, values [][]any) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	body := &sheets.ValueRange{Values: values}
	return c.withRetry(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Update(c.cfg.SpreadsheetID, writeRange, body).
			ValueInputOption("RAW").Context(ctx).Do()
		return err
	})
}

func (c *Client) Append(ctx context.Context, appendRange string, values [][]any) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	body := &sheets.ValueRange{Values: values}
	return c.withRetry(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Append(c.cfg.SpreadsheetID, appendRange, body).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		return err
	})
}

func (c *Client) withRetry(ctx context.Context, call func() error) error {
	maxAttempts := c.cfg.SheetsMaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return err
		}

		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == maxAttempts {
			return err
		}
		backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
		time.Sleep(backoff)
	}
	return lastErr
}

func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	// Transport failures retry too; cancellation does not.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
