package pipeline

import (
	"testing"

	"donorsync/internal"
)

func TestAuditRowShape(t *testing.T) {
	r := batchRec("P100", "DALLAS")
	r.Account = "ACC-9"
	r.Zip = "75001"
	r.Status = "Active"
	r.Birthdate = "1985-03-15"

	rows := AuditRows(internal.Outcome{New: []internal.DonorRecord{r}})
	if len(rows) != 1 {
		t.Fatalf("rows=%d", len(rows))
	}
	row := rows[0]
	if len(row) != len(auditHeaders) {
		t.Fatalf("width=%d want %d", len(row), len(auditHeaders))
	}
	if row[0] != "P100" || row[9] != "DALLAS" {
		t.Fatalf("row=%v", row)
	}
	for i := 10; i <= 13; i++ {
		if row[i] != "x" {
			t.Fatalf("flag column %d = %q", i, row[i])
		}
	}
	if row[14] != "1985-03-15" {
		t.Fatalf("birthday=%q", row[14])
	}
}

func TestAuditRowsNewThenUpdated(t *testing.T) {
	outcome := internal.Outcome{
		New: []internal.DonorRecord{batchRec("P900", "TUCSON")},
		Updated: []internal.UpdatedDonor{{
			Record:  batchRec("P100", "DALLAS"),
			Changes: internal.FieldChanges{Email: true},
		}},
	}
	rows := AuditRows(outcome)
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}
	if rows[0][0] != "P900" || rows[1][0] != "P100" {
		t.Fatalf("order=%q %q", rows[0][0], rows[1][0])
	}
}

func TestAuditRowEmptyBirthdayKeepsWidth(t *testing.T) {
	rows := AuditRows(internal.Outcome{New: []internal.DonorRecord{batchRec("P100", "DALLAS")}})
	row := rows[0]
	if len(row) != 15 {
		t.Fatalf("width=%d", len(row))
	}
	if row[14] != "" {
		t.Fatalf("birthday=%q", row[14])
	}
}
