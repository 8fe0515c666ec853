package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"donorsync/internal"
	"donorsync/internal/config"
	"donorsync/internal/storage"
)

// ProcessingService runs a received batch through the full pipeline:
// extract, map, dedupe, normalize, reconcile against the local master
// snapshot, then persist the merged master, outcome, audit rows and
// leads. The snapshot is marked dirty so the next pull cannot silently
// discard unpushed changes.
type ProcessingService struct {
	db  *storage.DB
	cfg config.Config
	log *zap.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, log *zap.Logger) *ProcessingService {
	return &ProcessingService{db: db, cfg: cfg, log: log}
}

type ProcessResult struct {
	BatchID    int
	Rows       int
	New        int
	Updated    int
	Unchanged  int
	Skipped    int
	Duplicates int
	Leads      int
	Stats      NormStats
}

func (s *ProcessingService) ProcessByID(id int) (ProcessResult, error) {
	batch, err := s.db.MustBatchByID(id)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessBatch(batch)
}

// ProcessPending reconciles up to limit received batches in arrival
// order. A failing batch is marked failed and skipped; it never blocks
// the ones behind it.
func (s *ProcessingService) ProcessPending(limit int) ([]ProcessResult, error) {
	pending, err := s.db.ListBatchesByStatus(internal.BatchReceived, limit)
	if err != nil {
		return nil, err
	}
	results := []ProcessResult{}
	for _, batch := range pending {
		res, err := s.ProcessBatch(batch)
		if err != nil {
			s.log.Warn("batch failed",
				zap.Int("batchId", batch.ID),
				zap.String("file", batch.Filename),
				zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *ProcessingService) ProcessBatch(batch internal.BatchRow) (ProcessResult, error) {
	res, err := s.processBatch(batch)
	if err != nil {
		_ = s.db.SetBatchError(batch.ID, err.Error())
		return res, err
	}
	return res, nil
}

func (s *ProcessingService) processBatch(batch internal.BatchRow) (ProcessResult, error) {
	start := time.Now()

	pulledAt, err := s.db.GetMetadata(storage.MetaLastPullAt)
	if err != nil {
		return ProcessResult{}, err
	}
	if pulledAt == nil {
		return ProcessResult{}, errors.New("no registry snapshot; run registry:pull first")
	}

	table, err := ExtractTable(batch.RawRef)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("extract %s: %w", batch.Filename, err)
	}

	mapper, err := s.mapper()
	if err != nil {
		return ProcessResult{}, err
	}
	mapping, err := mapper.Resolve(table.Columns)
	if err != nil {
		return ProcessResult{}, err
	}

	mapped, badDates := MapRows(table, mapping)
	deduped, dstats := Dedupe(mapped)

	denylist := DefaultEmailDenylist
	if s.cfg.EmailDenylistFile != "" {
		denylist, err = LoadDenylistFile(s.cfg.EmailDenylistFile)
		if err != nil {
			return ProcessResult{}, err
		}
	}
	records, nstats := NewNormalizer(denylist).Normalize(deduped)
	nstats.BadDonationDates = badDates

	master, err := s.db.ListMaster()
	if err != nil {
		return ProcessResult{}, err
	}
	schema, err := s.db.RegistrySchema()
	if err != nil {
		return ProcessResult{}, err
	}

	birthdateCol, ok := mapping[internal.FieldBirthdate]
	batchHasBirthdate := ok && birthdateCol != ""

	outcome := Reconcile(records, master, schema, batchHasBirthdate)
	outcome.Skipped += dstats.Unkeyable

	next := Merge(master, outcome)
	leads := Leads(outcome)

	if err := s.db.ClearBatchProcessing(batch.ID); err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.SaveOutcome(batch.ID, outcome); err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.InsertAuditRows(batch.ID, AuditRows(outcome)); err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.InsertLeads(batch.ID, leads); err != nil {
		return ProcessResult{}, err
	}
	// Master goes last so a failure above leaves the snapshot untouched
	// and the batch safe to reprocess.
	if err := s.db.ReplaceMaster(next, schema, true); err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.UpdateBatchStatus(batch.ID, internal.BatchReconciled); err != nil {
		return ProcessResult{}, err
	}

	res := ProcessResult{
		BatchID:    batch.ID,
		Rows:       len(table.Rows),
		New:        len(outcome.New),
		Updated:    len(outcome.Updated),
		Unchanged:  outcome.Unchanged,
		Skipped:    outcome.Skipped,
		Duplicates: dstats.Duplicates,
		Leads:      len(leads),
		Stats:      nstats,
	}
	_ = s.db.InsertRun(traceID(), batch.ID,
		map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
		map[string]int{
			"rows":       res.Rows,
			"new":        res.New,
			"updated":    res.Updated,
			"unchanged":  res.Unchanged,
			"skipped":    res.Skipped,
			"duplicates": res.Duplicates,
			"leads":      res.Leads,
		})

	s.log.Info("batch reconciled",
		zap.Int("batchId", batch.ID),
		zap.String("file", batch.Filename),
		zap.Int("rows", res.Rows),
		zap.Int("new", res.New),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("skipped", res.Skipped),
		zap.Int("leads", res.Leads))

	return res, nil
}

func (s *ProcessingService) mapper() (SchemaMapper, error) {
	if s.cfg.MappingFile == "" {
		return FixedSchema{}, nil
	}
	mapping, err := LoadMappingFile(s.cfg.MappingFile)
	if err != nil {
		return nil, err
	}
	return AssistedSchema{Mapping: mapping}, nil
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
