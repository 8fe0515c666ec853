package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"donorsync/internal"
	"donorsync/internal/config"
	"donorsync/internal/storage"
)

func seedRegistry(t *testing.T, db *storage.DB) {
	t.Helper()
	master := []internal.MasterRecord{
		{
			DonorNumber: "P100", DonorFirst: "Maria", DonorLast: "Garcia",
			Email: "maria@example.com", Phone: "1(214) 555-0142",
			Address: "500 Main St Apt 4", Zip: "75001", Status: "Active", Center: "DALLAS",
		},
		{
			DonorNumber: "P200", DonorFirst: "Ana", DonorLast: "Lopez",
			Email: "ana@example.com", Phone: "1(972) 555-0199",
			Address: "600 Oak Ave", Zip: "75002", Status: "Active", Center: "DALLAS",
		},
	}
	if err := db.ReplaceMaster(master, internal.RegistrySchema{}, false); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata(storage.MetaLastPullAt, "2026-08-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
}

func batchFixture(t *testing.T) []byte {
	t.Helper()
	return mkXLSX(t, [][]any{
		{
			"Donor #", "Donor Name", "Donor E-mail", "Donor Account #", "Donor Phone",
			"Facility", "Donor Address Line 1", "Donor Address Line 2", "City",
			"Zip Code", "Donor Status", "Last \tDonation Date",
		},
		// Same donor twice; the later visit carries the new email and wins.
		{"P100", "GARCIA, MARIA", "maria.new@example.com", "A1", "(214) 555-0142", "DALLAS", "500 Main St", "Apt 4", "Dallas", "75001", "Active", "2/1/2024"},
		{"P100", "GARCIA, MARIA", "stale@example.com", "A1", "(214) 555-0142", "DALLAS", "500 Main St", "Apt 4", "Dallas", "75001", "Active", "1/1/2024"},
		{"P200", "LOPEZ, ANA", "ANA@EXAMPLE.COM", "A2", "972.555.0199", "DALLAS", "600 Oak Ave", "", "Dallas", "75002", "Active", "2/2/2024"},
		{"P300", "KIM, DANIEL", "daniel@example.com", "A3", "2145550501", "TUCSON", "9 Pine Rd", "", "Tucson", "85701", "New", "2/3/2024"},
		{"P400", "DOE, JANE", "jane@example.com", "A4", "2145550502", "", "1 Elm St", "", "Dallas", "75001", "Active", "2/4/2024"},
	})
}

func TestProcessBatchEndToEnd(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	seedRegistry(t, db)

	path := filepath.Join(tmp, "export.xlsx")
	if err := os.WriteFile(path, batchFixture(t), 0o644); err != nil {
		t.Fatal(err)
	}
	batch, err := db.UpsertBatch("export.xlsx", "hash-1", path, internal.BatchReceived)
	if err != nil {
		t.Fatal(err)
	}

	cfg, _ := config.Load()
	proc := NewProcessingService(db, cfg, zap.NewNop())
	res, err := proc.ProcessBatch(batch)
	if err != nil {
		t.Fatal(err)
	}

	if res.Rows != 5 {
		t.Fatalf("rows=%d", res.Rows)
	}
	if res.New != 1 || res.Updated != 1 || res.Unchanged != 1 {
		t.Fatalf("result=%+v", res)
	}
	if res.Duplicates != 1 || res.Skipped != 1 {
		t.Fatalf("result=%+v", res)
	}
	if res.Leads != 2 {
		t.Fatalf("leads=%d", res.Leads)
	}

	row, err := db.GetBatchByID(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != internal.BatchReconciled {
		t.Fatalf("status=%q", row.Status)
	}

	master, err := db.ListMaster()
	if err != nil {
		t.Fatal(err)
	}
	if len(master) != 3 {
		t.Fatalf("master=%d", len(master))
	}
	// Untouched P200 keeps its position; replaced and new rows follow.
	if master[0].DonorNumber != "P200" || master[1].DonorNumber != "P100" || master[2].DonorNumber != "P300" {
		t.Fatalf("order=%s %s %s", master[0].DonorNumber, master[1].DonorNumber, master[2].DonorNumber)
	}
	if master[1].Email != "maria.new@example.com" {
		t.Fatalf("update lost: %q", master[1].Email)
	}

	dirty, err := db.MasterDirty()
	if err != nil {
		t.Fatal(err)
	}
	if !dirty {
		t.Fatal("snapshot not marked dirty")
	}

	leads, err := db.ListLeads(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(leads) != 2 {
		t.Fatalf("leads=%d", len(leads))
	}

	audit, err := db.ListUnpushedAudit()
	if err != nil {
		t.Fatal(err)
	}
	if len(audit) != 2 {
		t.Fatalf("audit=%d", len(audit))
	}
	if audit[0].Row[0] != "P300" || audit[1].Row[0] != "P100" {
		t.Fatalf("audit order=%q %q", audit[0].Row[0], audit[1].Row[0])
	}

	outcome, err := db.GetOutcome(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome == nil || outcome.Unchanged != 1 {
		t.Fatalf("outcome=%+v", outcome)
	}
}

func TestProcessBatchReprocessIsIdempotent(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	seedRegistry(t, db)

	path := filepath.Join(tmp, "export.xlsx")
	if err := os.WriteFile(path, batchFixture(t), 0o644); err != nil {
		t.Fatal(err)
	}
	batch, err := db.UpsertBatch("export.xlsx", "hash-1", path, internal.BatchReceived)
	if err != nil {
		t.Fatal(err)
	}

	cfg, _ := config.Load()
	proc := NewProcessingService(db, cfg, zap.NewNop())
	if _, err := proc.ProcessBatch(batch); err != nil {
		t.Fatal(err)
	}

	// Second pass runs against the merged snapshot: nothing differs, so
	// the stored rows for the batch collapse to none.
	res, err := proc.ProcessBatch(batch)
	if err != nil {
		t.Fatal(err)
	}
	if res.New != 0 || res.Updated != 0 || res.Unchanged != 3 {
		t.Fatalf("result=%+v", res)
	}
	leads, err := db.ListLeads(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(leads) != 0 {
		t.Fatalf("stale leads kept: %d", len(leads))
	}
	audit, err := db.ListUnpushedAudit()
	if err != nil {
		t.Fatal(err)
	}
	if len(audit) != 0 {
		t.Fatalf("stale audit kept: %d", len(audit))
	}
}

func TestProcessBatchRequiresSnapshot(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	path := filepath.Join(tmp, "export.xlsx")
	if err := os.WriteFile(path, batchFixture(t), 0o644); err != nil {
		t.Fatal(err)
	}
	batch, err := db.UpsertBatch("export.xlsx", "hash-1", path, internal.BatchReceived)
	if err != nil {
		t.Fatal(err)
	}

	cfg, _ := config.Load()
	proc := NewProcessingService(db, cfg, zap.NewNop())
	if _, err := proc.ProcessBatch(batch); err == nil {
		t.Fatal("expected snapshot error")
	}

	row, err := db.GetBatchByID(batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != internal.BatchFailed || !strings.Contains(row.LastError, "registry") {
		t.Fatalf("status=%q lastError=%q", row.Status, row.LastError)
	}
}
