package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"donorsync/internal"
)

// Metadata keys tracked alongside the snapshot.
const (
	MetaRegistryHasBirthdate = "registryHasBirthdate"
	MetaMasterDirty          = "masterDirty"
	MetaLastPullAt           = "lastPullAt"
	MetaLastPushAt           = "lastPushAt"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS master (
  pos INTEGER NOT NULL,
  donorNumber TEXT NOT NULL,
  donorFirst TEXT NOT NULL DEFAULT '',
  donorLast TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  account TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  zip TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  center TEXT NOT NULL,
  birthdate TEXT NOT NULL DEFAULT '',
  PRIMARY KEY(donorNumber, center)
);
CREATE INDEX IF NOT EXISTS idx_master_pos ON master(pos);

CREATE TABLE IF NOT EXISTS batches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  filename TEXT NOT NULL,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'received',
  receivedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  rawRef TEXT NOT NULL,
  lastError TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(hash)
);

CREATE TABLE IF NOT EXISTS leads (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  batchId INTEGER NOT NULL,
  kind TEXT NOT NULL,
  donorNumber TEXT NOT NULL,
  donorFirst TEXT NOT NULL DEFAULT '',
  donorLast TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  account TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  zip TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  facility TEXT NOT NULL,
  birthdate TEXT NOT NULL DEFAULT '',
  exportedAt TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(batchId) REFERENCES batches(id)
);
CREATE INDEX IF NOT EXISTS idx_leads_batch ON leads(batchId);

CREATE TABLE IF NOT EXISTS audit_rows (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  batchId INTEGER NOT NULL,
  pos INTEGER NOT NULL,
  rowJson TEXT NOT NULL,
  pushedAt TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(batchId) REFERENCES batches(id)
);
CREATE INDEX IF NOT EXISTS idx_audit_rows_batch ON audit_rows(batchId);

CREATE TABLE IF NOT EXISTS outcomes (
  batchId INTEGER PRIMARY KEY,
  outcomeJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(batchId) REFERENCES batches(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  batchId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(batchId) REFERENCES batches(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// ReplaceMaster swaps in a complete registry snapshot. Row order is kept so
// a later push writes the sheet back in the same order it was computed.
// dirty marks a locally merged snapshot that still awaits a push.
func (d *DB) ReplaceMaster(records []internal.MasterRecord, schema internal.RegistrySchema, dirty bool) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM master`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO master (pos, donorNumber, donorFirst, donorLast, email, account, phone, address, zip, status, center, birthdate)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, m := range records {
		if _, err := stmt.Exec(
			i, m.DonorNumber, m.DonorFirst, m.DonorLast, m.Email, m.Account,
			m.Phone, m.Address, m.Zip, m.Status, m.Center, m.Birthdate,
		); err != nil {
			return fmt.Errorf("master row %s_%s: %w", m.DonorNumber, m.Center, err)
		}
	}

	meta := func(key, value string) error {
		_, err := tx.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
		return err
	}
	if err := meta(MetaRegistryHasBirthdate, boolFlag(schema.HasBirthdate)); err != nil {
		return err
	}
	if err := meta(MetaMasterDirty, boolFlag(dirty)); err != nil {
		return err
	}

	return tx.Commit()
}

func (d *DB) ListMaster() ([]internal.MasterRecord, error) {
	rows, err := d.conn.Query(`
SELECT donorNumber, donorFirst, donorLast, email, account, phone, address, zip, status, center, birthdate
FROM master ORDER BY pos ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MasterRecord
	for rows.Next() {
		var m internal.MasterRecord
		if err := rows.Scan(
			&m.DonorNumber, &m.DonorFirst, &m.DonorLast, &m.Email, &m.Account,
			&m.Phone, &m.Address, &m.Zip, &m.Status, &m.Center, &m.Birthdate,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *DB) RegistrySchema() (internal.RegistrySchema, error) {
	v, err := d.GetMetadata(MetaRegistryHasBirthdate)
	if err != nil {
		return internal.RegistrySchema{}, err
	}
	return internal.RegistrySchema{HasBirthdate: v != nil && *v == "1"}, nil
}

// MasterDirty reports whether the local snapshot has merges the remote
// registry has not seen yet.
func (d *DB) MasterDirty() (bool, error) {
	v, err := d.GetMetadata(MetaMasterDirty)
	if err != nil {
		return false, err
	}
	return v != nil && *v == "1", nil
}

func (d *DB) SetMasterDirty(dirty bool) error {
	return d.SetMetadata(MetaMasterDirty, boolFlag(dirty))
}

func (d *DB) UpsertBatch(filename, hash, rawRef, status string) (internal.BatchRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO batches (filename, hash, status, rawRef)
VALUES (?, ?, ?, ?)
ON CONFLICT(hash) DO UPDATE SET
  filename=excluded.filename,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, filename, hash, status, rawRef)
	if err != nil {
		return internal.BatchRow{}, err
	}

	row, err := d.GetBatchByHash(hash)
	if err != nil {
		return internal.BatchRow{}, err
	}
	if row == nil {
		return internal.BatchRow{}, errors.New("failed to upsert batch")
	}
	return *row, nil
}

func (d *DB) GetBatchByHash(hash string) (*internal.BatchRow, error) {
	var row internal.BatchRow
	err := d.conn.QueryRow(`
SELECT id, filename, hash, status, receivedAt, rawRef, lastError
FROM batches WHERE hash = ?
`, hash).Scan(&row.ID, &row.Filename, &row.Hash, &row.Status, &row.ReceivedAt, &row.RawRef, &row.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetBatchByID(id int) (*internal.BatchRow, error) {
	var row internal.BatchRow
	err := d.conn.QueryRow(`
SELECT id, filename, hash, status, receivedAt, rawRef, lastError
FROM batches WHERE id = ?
`, id).Scan(&row.ID, &row.Filename, &row.Hash, &row.Status, &row.ReceivedAt, &row.RawRef, &row.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustBatchByID(id int) (internal.BatchRow, error) {
	row, err := d.GetBatchByID(id)
	if err != nil {
		return internal.BatchRow{}, err
	}
	if row == nil {
		return internal.BatchRow{}, fmt.Errorf("batch not found: id=%d", id)
	}
	return *row, nil
}

func (d *DB) ListBatchesByStatus(status string, limit int) ([]internal.BatchRow, error) {
	rows, err := d.conn.Query(`
SELECT id, filename, hash, status, receivedAt, rawRef, lastError
FROM batches WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.BatchRow
	for rows.Next() {
		var row internal.BatchRow
		if err := rows.Scan(&row.ID, &row.Filename, &row.Hash, &row.Status, &row.ReceivedAt, &row.RawRef, &row.LastError); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateBatchStatus(batchID int, status string) error {
	_, err := d.conn.Exec(`UPDATE batches SET status = ?, lastError = '', updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, batchID)
	return err
}

func (d *DB) SetBatchError(batchID int, message string) error {
	_, err := d.conn.Exec(`UPDATE batches SET status = ?, lastError = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, internal.BatchFailed, message, batchID)
	return err
}

// ClearBatchProcessing removes derived rows so a batch can be reprocessed
// from its raw file. Run history stays.
func (d *DB) ClearBatchProcessing(batchID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM leads WHERE batchId = ?`, batchID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM audit_rows WHERE batchId = ?`, batchID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM outcomes WHERE batchId = ?`, batchID); err != nil {
		return err
	}

	return tx.Commit()
}

func (d *DB) InsertLeads(batchID int, leads []internal.Lead) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO leads (batchId, kind, donorNumber, donorFirst, donorLast, email, account, phone, address, zip, status, facility, birthdate)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, lead := range leads {
		r := lead.Record
		if _, err := stmt.Exec(
			batchID, string(lead.Kind), r.DonorNumber, r.DonorFirst, r.DonorLast,
			r.Email, r.Account, r.Phone, r.Address, r.Zip, r.Status, r.Facility, r.Birthdate,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListLeads(batchID int) ([]internal.Lead, error) {
	rows, err := d.conn.Query(`
SELECT kind, donorNumber, donorFirst, donorLast, email, account, phone, address, zip, status, facility, birthdate
FROM leads WHERE batchId = ? ORDER BY id ASC
`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Lead
	for rows.Next() {
		var kind string
		var r internal.DonorRecord
		if err := rows.Scan(
			&kind, &r.DonorNumber, &r.DonorFirst, &r.DonorLast, &r.Email, &r.Account,
			&r.Phone, &r.Address, &r.Zip, &r.Status, &r.Facility, &r.Birthdate,
		); err != nil {
			return nil, err
		}
		out = append(out, internal.Lead{Record: r, Kind: internal.LeadKind(kind)})
	}
	return out, rows.Err()
}

func (d *DB) MarkLeadsExported(batchID int) error {
	_, err := d.conn.Exec(`UPDATE leads SET exportedAt = CURRENT_TIMESTAMP WHERE batchId = ? AND exportedAt IS NULL`, batchID)
	return err
}

func (d *DB) InsertAuditRows(batchID int, auditRows [][]string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO audit_rows (batchId, pos, rowJson) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range auditRows {
		rowJSON, _ := json.Marshal(row)
		if _, err := stmt.Exec(batchID, i, string(rowJSON)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// AuditRow is one pending audit line with its storage identity, so a push
// can mark exactly what it appended.
type AuditRow struct {
	ID      int
	BatchID int
	Row     []string
}

func (d *DB) ListUnpushedAudit() ([]AuditRow, error) {
	rows, err := d.conn.Query(`
SELECT id, batchId, rowJson FROM audit_rows WHERE pushedAt IS NULL ORDER BY batchId ASC, pos ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var row AuditRow
		var rowJSON string
		if err := rows.Scan(&row.ID, &row.BatchID, &rowJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rowJSON), &row.Row); err != nil {
			return nil, fmt.Errorf("corrupt audit row %d: %w", row.ID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) MarkAuditPushed(ids []int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE audit_rows SET pushedAt = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) SaveOutcome(batchID int, outcome internal.Outcome) error {
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	_, err = d.conn.Exec(`
INSERT INTO outcomes (batchId, outcomeJson) VALUES (?, ?)
ON CONFLICT(batchId) DO UPDATE SET outcomeJson = excluded.outcomeJson, createdAt = CURRENT_TIMESTAMP
`, batchID, string(outcomeJSON))
	return err
}

func (d *DB) GetOutcome(batchID int) (*internal.Outcome, error) {
	var outcomeJSON string
	err := d.conn.QueryRow(`SELECT outcomeJson FROM outcomes WHERE batchId = ?`, batchID).Scan(&outcomeJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var outcome internal.Outcome
	if err := json.Unmarshal([]byte(outcomeJSON), &outcome); err != nil {
		return nil, fmt.Errorf("corrupt outcome for batch %d: %w", batchID, err)
	}
	return &outcome, nil
}

func (d *DB) InsertRun(traceID string, batchID int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, batchId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, batchID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
