package registry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"donorsync/internal"
	"donorsync/internal/config"
	"donorsync/internal/storage"
)

// Service moves the registry between the spreadsheet and the local
// snapshot. Reconciliation itself never touches the network; pulls and
// pushes are explicit so a failed remote write can be retried without
// recomputing anything.
type Service struct {
	db     *storage.DB
	client *Client
	cfg    config.Config
	log    *zap.Logger
}

func NewService(db *storage.DB, client *Client, cfg config.Config, log *zap.Logger) *Service {
	return &Service{db: db, client: client, cfg: cfg, log: log}
}

// Pull replaces the local snapshot with the remote registry. A dirty
// snapshot blocks the pull unless force is set, because overwriting it
// would silently drop merges that were never pushed.
func (s *Service) Pull(ctx context.Context, force bool) (int, error) {
	if !force {
		dirty, err := s.db.MasterDirty()
		if err != nil {
			return 0, err
		}
		if dirty {
			return 0, fmt.Errorf("local snapshot has unpushed changes; push first or pull with -force")
		}
	}

	values, err := s.client.GetValues(ctx, s.cfg.RegistryWorksheet)
	if err != nil {
		return 0, err
	}
	records, schema, err := ParseMaster(values)
	if err != nil {
		return 0, err
	}
	if err := s.db.ReplaceMaster(records, schema, false); err != nil {
		return 0, err
	}
	_ = s.db.SetMetadata(storage.MetaLastPullAt, time.Now().UTC().Format(time.RFC3339))

	s.log.Info("registry pulled",
		zap.Int("rows", len(records)),
		zap.Bool("birthdateColumn", schema.HasBirthdate))
	return len(records), nil
}

// PushResult reports what one push wrote.
type PushResult struct {
	MasterRows int
	AuditRows  int
	Batches    int
}

// Push rewrites the master worksheet from the local snapshot, then appends
// every audit row not yet on the sheet. The master write is a full clear
// and rewrite and therefore safe to repeat; the audit append is tracked
// per row so a retried push never duplicates lines.
func (s *Service) Push(ctx context.Context) (PushResult, error) {
	master, err := s.db.ListMaster()
	if err != nil {
		return PushResult{}, err
	}
	schema, err := s.db.RegistrySchema()
	if err != nil {
		return PushResult{}, err
	}

	if err := s.client.Clear(ctx, s.cfg.MasterWorksheet); err != nil {
		return PushResult{}, err
	}
	if err := s.client.Update(ctx, s.cfg.MasterWorksheet+"!A1", MasterValues(master, schema)); err != nil {
		return PushResult{}, err
	}

	pending, err := s.db.ListUnpushedAudit()
	if err != nil {
		return PushResult{}, err
	}
	if len(pending) > 0 {
		rows := make([][]string, 0, len(pending))
		ids := make([]int, 0, len(pending))
		for _, row := range pending {
			rows = append(rows, row.Row)
			ids = append(ids, row.ID)
		}
		if err := s.client.Append(ctx, s.cfg.AuditWorksheet, AuditValues(rows)); err != nil {
			return PushResult{}, err
		}
		if err := s.db.MarkAuditPushed(ids); err != nil {
			return PushResult{}, err
		}
	}

	if err := s.db.SetMasterDirty(false); err != nil {
		return PushResult{}, err
	}
	_ = s.db.SetMetadata(storage.MetaLastPushAt, time.Now().UTC().Format(time.RFC3339))

	batches, err := s.db.ListBatchesByStatus(internal.BatchReconciled, 1000)
	if err != nil {
		return PushResult{}, err
	}
	for _, b := range batches {
		if err := s.db.UpdateBatchStatus(b.ID, internal.BatchPushed); err != nil {
			return PushResult{}, err
		}
	}

	s.log.Info("registry pushed",
		zap.Int("masterRows", len(master)),
		zap.Int("auditRows", len(pending)),
		zap.Int("batches", len(batches)))

	return PushResult{MasterRows: len(master), AuditRows: len(pending), Batches: len(batches)}, nil
}
