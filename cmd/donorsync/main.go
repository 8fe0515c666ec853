package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"donorsync/internal"
	"donorsync/internal/config"
	"donorsync/internal/inbox"
	"donorsync/internal/logging"
	"donorsync/internal/pipeline"
	"donorsync/internal/registry"
	"donorsync/internal/storage"
	"donorsync/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "registry:pull":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		force := fs.Bool("force", false, "pull even when local changes are unpushed")
		_ = fs.Parse(os.Args[2:])
		svc, err := newRegistry(context.Background(), db, cfg, log)
		must(err)
		count, err := svc.Pull(context.Background(), *force)
		must(err)
		fmt.Printf("registry pull done rows=%d\n", count)
	case "registry:push":
		svc, err := newRegistry(context.Background(), db, cfg, log)
		must(err)
		res, err := svc.Push(context.Background())
		must(err)
		fmt.Printf("registry push done master=%d audit=%d batches=%d\n", res.MasterRows, res.AuditRows, res.Batches)
	case "batch:scan":
		scanner := inbox.NewScanner(db, cfg.InboxDir, cfg.RawDir, log)
		res, err := scanner.Scan()
		must(err)
		fmt.Printf("inbox scan done found=%d new=%d known=%d\n", res.Found, res.New, res.Known)
	case "batch:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int("id", 0, "batch id")
		file := fs.String("file", "", "process one export file directly")
		batch := fs.Int("batch", 20, "max pending batches")
		_ = fs.Parse(os.Args[2:])
		processor := pipeline.NewProcessingService(db, cfg, log)
		switch {
		case *id != 0:
			res, err := processor.ProcessByID(*id)
			must(err)
			printResult(res)
		case strings.TrimSpace(*file) != "":
			scanner := inbox.NewScanner(db, cfg.InboxDir, cfg.RawDir, log)
			row, _, err := scanner.Store(*file)
			must(err)
			res, err := processor.ProcessBatch(row)
			must(err)
			printResult(res)
		default:
			results, err := processor.ProcessPending(*batch)
			must(err)
			for _, res := range results {
				printResult(res)
			}
			fmt.Printf("processed pending batches=%d\n", len(results))
		}
	case "mapping:suggest":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "export file to inspect")
		synonymsPath := fs.String("synonyms", cfg.SynonymsFile, "synonyms json file")
		out := fs.String("out", "", "write the mapping json here")
		samples := fs.Int("samples", 5, "birthdate sample values to preview")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		table, err := pipeline.ExtractTable(*file)
		must(err)
		synonyms := pipeline.DefaultSynonyms
		if *synonymsPath != "" {
			synonyms, err = pipeline.LoadSynonymsFile(*synonymsPath)
			must(err)
		}
		suggestions := pipeline.SuggestMapping(table.Columns, synonyms)
		for _, s := range suggestions {
			fmt.Printf("%-18s -> %-28q %s\n", s.Field, s.Column, s.Confidence)
			if s.Field == internal.FieldBirthdate {
				for _, v := range pipeline.ColumnSamples(table, s.Column, *samples) {
					fmt.Printf("%-18s    sample %q\n", "", v)
				}
			}
		}
		if strings.TrimSpace(*out) != "" {
			must(writeMapping(pipeline.MappingFromSuggestions(suggestions), *out))
			fmt.Printf("mapping written to %s\n", *out)
		}
	case "leads:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		batchID := fs.Int("batch", 0, "batch id")
		out := fs.String("out", "", "output csv path")
		_ = fs.Parse(os.Args[2:])
		if *batchID == 0 {
			must(fmt.Errorf("--batch is required"))
		}
		outcome, err := mustOutcome(db, *batchID)
		must(err)
		leads, err := db.ListLeads(*batchID)
		must(err)
		if len(leads) == 0 {
			fmt.Printf("no leads for batch %d\n", *batchID)
			return
		}
		path := *out
		if path == "" {
			path = filepath.Join(cfg.OutputDir, fmt.Sprintf("batch_%d_leads.csv", *batchID))
		}
		must(pipeline.ExportLeadsCSV(leads, outcome.BirthdateTracked, path))
		must(db.MarkLeadsExported(*batchID))
		fmt.Printf("exported %d leads to %s\n", len(leads), path)
	case "report:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		batchID := fs.Int("batch", 0, "batch id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *batchID == 0 {
			must(fmt.Errorf("--batch is required"))
		}
		outcome, err := mustOutcome(db, *batchID)
		must(err)
		path := *out
		if path == "" {
			path = filepath.Join(cfg.OutputDir, fmt.Sprintf("batch_%d_review.xlsx", *batchID))
		}
		must(pipeline.ExportReviewXLSX(*outcome, path))
		fmt.Printf("exported review of %d new / %d updated to %s\n", len(outcome.New), len(outcome.Updated), path)
	case "run":
		svc := watcher.NewService(db, cfg, optionalRegistry(db, cfg, log), log)
		must(svc.RunOnce(context.Background()))
	case "watch":
		svc := watcher.NewService(db, cfg, optionalRegistry(db, cfg, log), log)
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		must(svc.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func newRegistry(ctx context.Context, db *storage.DB, cfg config.Config, log *zap.Logger) (*registry.Service, error) {
	client, err := registry.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return registry.NewService(db, client, cfg, log), nil
}

// optionalRegistry returns nil when no spreadsheet is configured, so run
// and watch still work against the local snapshot alone.
func optionalRegistry(db *storage.DB, cfg config.Config, log *zap.Logger) *registry.Service {
	if strings.TrimSpace(cfg.SheetsCredentialsFile) == "" || strings.TrimSpace(cfg.SpreadsheetID) == "" {
		fmt.Println("no spreadsheet configured; pull/push disabled")
		return nil
	}
	svc, err := newRegistry(context.Background(), db, cfg, log)
	if err != nil {
		fmt.Printf("registry unavailable: %v\n", err)
		return nil
	}
	return svc
}

func mustOutcome(db *storage.DB, batchID int) (*internal.Outcome, error) {
	outcome, err := db.GetOutcome(batchID)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, fmt.Errorf("batch %d has not been reconciled", batchID)
	}
	return outcome, nil
}

func writeMapping(mapping internal.FieldMapping, path string) error {
	raw := map[string]string{}
	for field, col := range mapping {
		raw[string(field)] = col
	}
	blob, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(blob, '\n'), 0o644)
}

func printResult(res pipeline.ProcessResult) {
	fmt.Printf("batch %d reconciled rows=%d new=%d updated=%d unchanged=%d skipped=%d duplicates=%d leads=%d\n",
		res.BatchID, res.Rows, res.New, res.Updated, res.Unchanged, res.Skipped, res.Duplicates, res.Leads)
	if res.Stats.PhoneFallbacks > 0 || res.Stats.EmailsBlanked > 0 || res.Stats.BadBirthdates > 0 || res.Stats.BadDonationDates > 0 {
		fmt.Printf("  fallbacks phones=%d emailsBlanked=%d badBirthdates=%d badDonationDates=%d\n",
			res.Stats.PhoneFallbacks, res.Stats.EmailsBlanked, res.Stats.BadBirthdates, res.Stats.BadDonationDates)
	}
}

func usage() {
	fmt.Println("usage: donorsync <command>")
	fmt.Println("commands:")
	fmt.Println("  registry:pull [--force]")
	fmt.Println("  registry:push")
	fmt.Println("  batch:scan")
	fmt.Println("  batch:process [--id=3] [--file=./export.xlsx] [--batch=20]")
	fmt.Println("  mapping:suggest --file=./export.xlsx [--synonyms=...] [--out=./mapping.json] [--samples=5]")
	fmt.Println("  leads:export --batch=3 [--out=./out/leads.csv]")
	fmt.Println("  report:export --batch=3 [--out=./out/review.xlsx]")
	fmt.Println("  run")
	fmt.Println("  watch")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
