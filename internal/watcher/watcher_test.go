package watcher

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"donorsync/internal"
	"donorsync/internal/config"
	"donorsync/internal/storage"
)

func testEnv(t *testing.T) (*Service, *storage.DB, config.Config) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	cfg, _ := config.Load()
	cfg.InboxDir = filepath.Join(tmp, "inbox")
	cfg.RawDir = filepath.Join(tmp, "raw")
	cfg.OutputDir = filepath.Join(tmp, "out")
	cfg.MappingFile = ""

	return NewService(db, cfg, nil, zap.NewNop()), db, cfg
}

func batchCSV(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{
		{
			"Donor #", "Donor Name", "Donor E-mail", "Donor Account #", "Donor Phone",
			"Facility", "Donor Address Line 1", "Donor Address Line 2", "City",
			"Zip Code", "Donor Status", "Last \tDonation Date",
		},
		{"P300", "KIM, DANIEL", "daniel@example.com", "A3", "2145550501", "TUCSON", "9 Pine Rd", "", "Tucson", "85701", "New", "2/3/2024"},
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func dropFile(t *testing.T, dir, name string, blob []byte) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), blob, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunOnceWithoutSnapshotKeepsBatchesQueued(t *testing.T) {
	svc, db, cfg := testEnv(t)
	dropFile(t, cfg.InboxDir, "export.csv", batchCSV(t))

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	queued, err := db.ListBatchesByStatus(internal.BatchReceived, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 1 {
		t.Fatalf("queued=%d", len(queued))
	}
	failed, err := db.ListBatchesByStatus(internal.BatchFailed, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Fatalf("failed=%d", len(failed))
	}
}

func TestRunOnceProcessesAndExports(t *testing.T) {
	svc, db, cfg := testEnv(t)
	dropFile(t, cfg.InboxDir, "export.csv", batchCSV(t))

	if err := db.ReplaceMaster(nil, internal.RegistrySchema{}, false); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata(storage.MetaLastPullAt, "2026-08-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	done, err := db.ListBatchesByStatus(internal.BatchExported, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 {
		t.Fatalf("exported=%d", len(done))
	}
	batch := done[0]

	master, err := db.ListMaster()
	if err != nil {
		t.Fatal(err)
	}
	if len(master) != 1 || master[0].DonorNumber != "P300" {
		t.Fatalf("master=%v", master)
	}

	stem := exportStem(batch)
	for _, name := range []string{stem + "_leads.csv", stem + "_review.xlsx"} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, name)); err != nil {
			t.Fatalf("missing output %s: %v", name, err)
		}
	}
}

func TestRunOnceSecondCycleIsQuiet(t *testing.T) {
	svc, db, cfg := testEnv(t)
	dropFile(t, cfg.InboxDir, "export.csv", batchCSV(t))

	if err := db.ReplaceMaster(nil, internal.RegistrySchema{}, false); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata(storage.MetaLastPullAt, "2026-08-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	// The file still sits in the inbox; its hash is known, so nothing
	// reprocesses and the exported batch keeps its status.
	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	done, err := db.ListBatchesByStatus(internal.BatchExported, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 {
		t.Fatalf("exported=%d", len(done))
	}
	received, err := db.ListBatchesByStatus(internal.BatchReceived, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(received) != 0 {
		t.Fatalf("received=%d", len(received))
	}
}

func TestExportStemSanitizes(t *testing.T) {
	batch := internal.BatchRow{ID: 7, Filename: "Donor Export: May/2024 *final?.xlsx"}
	if got := exportStem(batch); got != "7_Donor_Export__May_2024__final_" {
		t.Fatalf("stem=%q", got)
	}
}
