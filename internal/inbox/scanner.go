package inbox

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"donorsync/internal"
	"donorsync/internal/storage"
)

// Scanner picks up donor export files dropped into the inbox directory,
// archives a content-addressed copy and records each file as a batch.
// Files are identified by content hash, so renaming or re-dropping the
// same export never creates a second batch.
type Scanner struct {
	db       *storage.DB
	inboxDir string
	rawDir   string
	log      *zap.Logger
}

type ScanResult struct {
	Found int
	New   int
	Known int
}

func NewScanner(db *storage.DB, inboxDir, rawDir string, log *zap.Logger) *Scanner {
	return &Scanner{db: db, inboxDir: inboxDir, rawDir: rawDir, log: log}
}

// Scan walks the inbox once. It does not recurse and does not delete
// inbox files; the archived copy under rawDir is what processing reads.
func (s *Scanner) Scan() (ScanResult, error) {
	var res ScanResult

	entries, err := os.ReadDir(s.inboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !supportedFile(entry.Name()) {
			continue
		}
		res.Found++

		_, isNew, err := s.Store(filepath.Join(s.inboxDir, entry.Name()))
		if err != nil {
			return res, err
		}
		if isNew {
			res.New++
		} else {
			res.Known++
		}
	}

	return res, nil
}

// Store archives a single export file and records it as a batch. The
// returned bool reports whether the content was new.
func (s *Scanner) Store(path string) (internal.BatchRow, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return internal.BatchRow{}, false, err
	}

	hashBytes := sha256.Sum256(raw)
	hash := hex.EncodeToString(hashBytes[:])

	existing, err := s.db.GetBatchByHash(hash)
	if err != nil {
		return internal.BatchRow{}, false, err
	}
	if existing != nil {
		s.log.Debug("batch already known",
			zap.String("file", filepath.Base(path)),
			zap.Int("batchId", existing.ID))
		return *existing, false, nil
	}

	rawRef, err := s.archive(hash, path, raw)
	if err != nil {
		return internal.BatchRow{}, false, err
	}

	row, err := s.db.UpsertBatch(filepath.Base(path), hash, rawRef, internal.BatchReceived)
	if err != nil {
		return internal.BatchRow{}, false, err
	}
	s.log.Info("batch received",
		zap.Int("batchId", row.ID),
		zap.String("file", row.Filename),
		zap.String("hash", hash[:12]))
	return row, true, nil
}

func (s *Scanner) archive(hash, filename string, raw []byte) (string, error) {
	if err := os.MkdirAll(s.rawDir, 0o755); err != nil {
		return "", err
	}

	rawPath := filepath.Join(s.rawDir, hash+strings.ToLower(filepath.Ext(filename)))
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, raw, 0o644); err != nil {
			return "", err
		}
	}
	return rawPath, nil
}

func supportedFile(name string) bool {
	// Excel drops ~$ lock files next to open workbooks.
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".csv":
		return true
	}
	return false
}
