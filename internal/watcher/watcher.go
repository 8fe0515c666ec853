package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"donorsync/internal"
	"donorsync/internal/config"
	"donorsync/internal/inbox"
	"donorsync/internal/pipeline"
	"donorsync/internal/registry"
	"donorsync/internal/storage"
)

// Service is the unattended loop: scan the inbox, reconcile received
// batches, push to the registry and write operator outputs. Each step is
// optional per config; a failing cycle is logged and retried on the next
// tick, never fatal.
type Service struct {
	db  *storage.DB
	cfg config.Config
	reg *registry.Service
	log *zap.Logger
}

// NewService wires the watcher. reg may be nil when no spreadsheet is
// configured; pull and push are then skipped.
func NewService(db *storage.DB, cfg config.Config, reg *registry.Service, log *zap.Logger) *Service {
	return &Service{db: db, cfg: cfg, reg: reg, log: log}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			s.log.Warn("watch cycle error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.WatchIntervalSec) * time.Second):
		}
	}
}

// RunOnce executes a single cycle in the foreground.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

func (s *Service) runCycle(ctx context.Context) error {
	if s.reg != nil {
		s.pullIfClean(ctx)
	}

	scanner := inbox.NewScanner(s.db, s.cfg.InboxDir, s.cfg.RawDir, s.log)
	scanRes, err := scanner.Scan()
	if err != nil {
		return err
	}

	pulledAt, err := s.db.GetMetadata(storage.MetaLastPullAt)
	if err != nil {
		return err
	}
	if pulledAt == nil {
		// Without a snapshot every batch would be marked failed; leave
		// them received until a pull succeeds.
		s.log.Warn("no registry snapshot yet; batches stay queued")
		return nil
	}

	processor := pipeline.NewProcessingService(s.db, s.cfg, s.log)
	results, err := processor.ProcessPending(s.cfg.WatchProcessBatch)
	if err != nil {
		return err
	}

	if s.cfg.WatchAutoPush && s.reg != nil && len(results) > 0 {
		if _, err := s.reg.Push(ctx); err != nil {
			s.log.Warn("auto push failed", zap.Error(err))
		}
	}

	exported := 0
	if s.cfg.WatchAutoExport {
		exported, err = s.exportOutputs()
		if err != nil {
			return err
		}
	}

	s.log.Info("watch cycle done",
		zap.Int("found", scanRes.Found),
		zap.Int("received", scanRes.New),
		zap.Int("reconciled", len(results)),
		zap.Int("exported", exported))
	return nil
}

// pullIfClean refreshes the local snapshot between batches. A dirty
// snapshot means unpushed changes, so the pull is skipped rather than
// clobbering them; pull failures are retried next cycle.
func (s *Service) pullIfClean(ctx context.Context) {
	dirty, err := s.db.MasterDirty()
	if err != nil {
		s.log.Warn("dirty check failed", zap.Error(err))
		return
	}
	if dirty {
		return
	}
	if _, err := s.reg.Pull(ctx, false); err != nil {
		s.log.Warn("auto pull failed", zap.Error(err))
	}
}

// exportOutputs writes the leads CSV and review workbook for batches
// that finished reconciling, then marks them exported. Pushed batches
// come first; reconciled ones are included so outputs still land when
// pushing is disabled or down.
func (s *Service) exportOutputs() (int, error) {
	exported := 0
	for _, status := range []string{internal.BatchPushed, internal.BatchReconciled} {
		batches, err := s.db.ListBatchesByStatus(status, 200)
		if err != nil {
			return exported, err
		}
		for _, batch := range batches {
			if err := s.exportBatch(batch); err != nil {
				s.log.Warn("export failed",
					zap.Int("batchId", batch.ID),
					zap.Error(err))
				continue
			}
			exported++
		}
	}
	return exported, nil
}

func (s *Service) exportBatch(batch internal.BatchRow) error {
	outcome, err := s.db.GetOutcome(batch.ID)
	if err != nil {
		return err
	}
	if outcome == nil {
		return fmt.Errorf("batch %d has no stored outcome", batch.ID)
	}
	leads, err := s.db.ListLeads(batch.ID)
	if err != nil {
		return err
	}

	stem := exportStem(batch)
	if len(leads) > 0 {
		path := filepath.Join(s.cfg.OutputDir, stem+"_leads.csv")
		if err := pipeline.ExportLeadsCSV(leads, outcome.BirthdateTracked, path); err != nil {
			return err
		}
		if err := s.db.MarkLeadsExported(batch.ID); err != nil {
			return err
		}
	}
	if len(outcome.New) > 0 || len(outcome.Updated) > 0 {
		path := filepath.Join(s.cfg.OutputDir, stem+"_review.xlsx")
		if err := pipeline.ExportReviewXLSX(*outcome, path); err != nil {
			return err
		}
	}

	return s.db.UpdateBatchStatus(batch.ID, internal.BatchExported)
}

func exportStem(batch internal.BatchRow) string {
	name := strings.TrimSuffix(batch.Filename, filepath.Ext(batch.Filename))
	repl := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_")
	name = repl.Replace(name)
	if len(name) > 80 {
		name = name[:80]
	}
	return fmt.Sprintf("%d_%s", batch.ID, name)
}
