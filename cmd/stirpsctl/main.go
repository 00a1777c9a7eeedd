package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"stirps/internal/config"
	"stirps/internal/ctxlog"
	"stirps/internal/model"
	"stirps/internal/pedigree"
	"stirps/internal/storage"
	"stirps/pkg/stirps"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "pedigree":
		return runPedigree(ctx, args[1:])
	case "stats":
		return runStats(ctx, args[1:])
	case "validate":
		return runValidate(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: stirpsctl <init|reset|run|runs|pedigree|stats|validate|export> [flags]", msg)
}

func newClient(ctx context.Context, storeKind, dbPath string) (*stirps.Client, error) {
	return stirps.New(ctx, stirps.Options{StoreKind: storeKind, DBPath: dbPath})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "stirps.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "stirps.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML run configuration")
	seed := fs.Int64("seed", 0, "override the configured random seed")
	generations := fs.Int("generations", 0, "override the configured generation count")
	logPath := fs.String("log", "", "override the configured pedigree log path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("run: -config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *generations > 0 {
		cfg.Generations = *generations
	}
	if *logPath != "" {
		cfg.PedigreeLog = *logPath
	}

	client, err := newClient(ctx, cfg.Store, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Run(ctx, stirps.RequestFromConfig(cfg))
	if err != nil {
		return err
	}

	fmt.Printf("run %s complete: %d generations, %s pedigree records -> %s\n",
		result.RunID,
		result.Generations,
		humanize.Comma(int64(result.RecordCount)),
		cfg.PedigreeLog,
	)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "stirps.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summaries, err := client.RunSummaries(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, summary := range summaries {
		fmt.Printf("%s engine=%s model=%s generations=%d records=%s log=%s\n",
			summary.RunID,
			summary.EngineName,
			summary.Model,
			summary.Generations,
			humanize.Comma(int64(summary.RecordCount)),
			summary.LogPath,
		)
	}
	return nil
}

func runPedigree(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pedigree", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "stirps.db", "sqlite database path")
	runID := fs.String("run", "", "run id to query")
	limit := fs.Int("limit", 0, "print at most this many records (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("pedigree: -run is required")
	}

	client, err := newClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	records, ok, err := client.Pedigree(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no pedigree recorded for run %s", *runID)
	}

	count := len(records)
	if *limit > 0 && *limit < count {
		count = *limit
	}
	fmt.Printf("generation\tstage\tindividual\tage\tparent1\tparent2\n")
	for _, record := range records[:count] {
		fmt.Printf("%d\t%s\t%d\t%d\t%d\t%d\n",
			record.Generation, record.Stage, record.PedigreeID, record.Age, record.Parent1, record.Parent2)
	}
	if count < len(records) {
		fmt.Printf("... %s more records\n", humanize.Comma(int64(len(records)-count)))
	}
	return nil
}

func runStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "stirps.db", "sqlite database path")
	runID := fs.String("run", "", "run id to query")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("stats: -run is required")
	}

	client, err := newClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	stats, ok, err := client.GenerationStats(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no stats recorded for run %s", *runID)
	}

	for _, item := range stats {
		fmt.Printf("generation=%d total=%d offspring=%d mean_age=%.2f\n",
			item.Generation, item.TotalSize, item.NewOffspring, item.MeanAge)
	}
	return nil
}

func runValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	logPath := fs.String("log", "", "pedigree log file to check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *logPath == "" {
		return fmt.Errorf("validate: -log is required")
	}

	records, err := pedigree.ReadFile(*logPath)
	if err != nil {
		return err
	}
	if err := pedigree.Validate(records); err != nil {
		return err
	}

	generations := 0
	if len(records) > 0 {
		generations = records[len(records)-1].Generation
	}
	ctxlog.FromContext(ctx).Info("pedigree log is valid",
		"path", *logPath,
		"records", len(records),
		"generations", generations,
	)
	fmt.Printf("%s: %s records across %d generations, invariants hold\n",
		*logPath, humanize.Comma(int64(len(records))), generations)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "stirps.db", "sqlite database path")
	runID := fs.String("run", "", "run id to export")
	outPath := fs.String("out", "", "destination pedigree log file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("export: -run is required")
	}
	if *outPath == "" {
		return fmt.Errorf("export: -out is required")
	}

	client, err := newClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	records, ok, err := client.Pedigree(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no pedigree recorded for run %s", *runID)
	}

	// Stored records already carry their final ages, sentinel included, so
	// the writer emits them as-is.
	logger, err := pedigree.NewLogger(*outPath, true)
	if err != nil {
		return err
	}
	if err := logger.WriteHeader(); err != nil {
		return err
	}
	for _, record := range records {
		if err := logger.WriteRecord(record.Generation, record.Stage, model.Individual{
			PedigreeID: record.PedigreeID,
			Age:        record.Age,
			Parent1:    record.Parent1,
			Parent2:    record.Parent2,
		}); err != nil {
			_ = logger.Close()
			return err
		}
	}
	if err := logger.Close(); err != nil {
		return err
	}

	fmt.Printf("exported %s pedigree records for run %s -> %s\n",
		humanize.Comma(int64(len(records))), *runID, *outPath)
	return nil
}
