package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"domus-ia/config"
	"domus-ia/ingest"
	"domus-ia/metrics"
	"domus-ia/models"
	"domus-ia/scraper/mubawab"
	"domus-ia/services"
	"domus-ia/storage"
	"domus-ia/utils"
)

const usage = `usage: domus-ia [command] [flags]

commands:
  ingest [-batch N] [-workers N] [-dry-run] [path]   load a JSON export into MongoDB (default)
  combine [-dir DIR] [-out FILE] [-dedup]            merge JSON exports into one array
  stats [-sample N]                                  print a report over stored listings
  scrape                                             scrape Mubawab into a JSON export
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	logger := utils.NewLoggerWithLevel(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "ingest"
	if len(args) > 0 {
		switch args[0] {
		case "ingest", "combine", "stats", "scrape":
			cmd, args = args[0], args[1:]
		case "help", "-h", "-help", "--help":
			fmt.Fprint(os.Stderr, usage)
			return 0
		}
	}

	logger = logger.With("cmd", cmd)

	switch cmd {
	case "combine":
		return runCombine(ctx, cfg, logger, args)
	case "stats":
		return runStats(ctx, cfg, logger, args)
	case "scrape":
		return runScrape(ctx, cfg, logger)
	default:
		return runIngest(ctx, cfg, logger, args)
	}
}

func runIngest(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) int {
	fl := flag.NewFlagSet("ingest", flag.ContinueOnError)
	batch := fl.Int("batch", cfg.BatchSize, "records per bulk write (or INGEST_BATCH_SIZE)")
	workers := fl.Int("workers", cfg.Workers, "concurrent bulk writers (or INGEST_WORKERS)")
	dryRun := fl.Bool("dry-run", false, "write into an in-memory collection instead of MongoDB")
	if err := fl.Parse(args); err != nil {
		return 2
	}
	path := cfg.InputPath
	if fl.NArg() > 0 {
		path = fl.Arg(0)
	}

	logger.Info("=== Domus IA ingestion starting ===")
	logger.Info("Config: input %s | batch %d | workers %d | db %s.%s",
		path, *batch, *workers, cfg.MongoDB, cfg.MongoCollection)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Error("Input file not found: %s", path)
		} else {
			logger.Error("Cannot read input file: %v", err)
		}
		return 1
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr, nil)
		logger.Info("Metrics available at http://%s/metrics", cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var writerOpts []storage.WriterOption
	if cfg.RejectsCSVPath != "" {
		rejects, err := storage.NewRejectWriter(cfg.RejectsCSVPath)
		if err != nil {
			logger.Error("Failed to open rejects file: %v", err)
			return 1
		}
		defer rejects.Close()
		writerOpts = append(writerOpts, storage.WithRejects(rejects))
		logger.Info("Records without a url will be listed in %s", cfg.RejectsCSVPath)
	}

	var coll storage.BulkCollection
	if *dryRun {
		logger.Warn("Dry run: nothing will be written to MongoDB")
		coll = storage.NewMemoryCollection()
	} else {
		store, err := storage.ConnectMongo(ctx, cfg.Mongo())
		if err != nil {
			logger.Error("Failed to connect to MongoDB: %v", err)
			logger.Error("Make sure MongoDB is running: docker compose up -d")
			return 1
		}
		defer store.Close(context.Background())

		// Startup continues without the index; duplicates then show up as write errors.
		_ = storage.EnsureIndexes(ctx, store.Collection().Indexes(), logger)
		coll = store.Collection()
	}

	writer := storage.NewMongoWriter(coll, logger, writerOpts...)
	coordinator := ingest.NewCoordinator(writer, ingest.Options{BatchSize: *batch, Workers: *workers}, logger)

	summary, runErr := coordinator.Run(ctx, path)
	recordRun(cfg, logger, summary)

	var perr *ingest.ParseError
	switch {
	case runErr == nil:
		return 0
	case errors.As(runErr, &perr):
		logger.Error("Input is not a valid JSON array: %v", perr)
	case errors.Is(runErr, context.Canceled):
		logger.Warn("Import interrupted; %d batches were written before stopping", summary.Batches)
	default:
		logger.Error("Import failed: %v", runErr)
	}
	return 1
}

// recordRun stores the run in the ledger when enabled. Failures only warn.
func recordRun(cfg *config.Config, logger *utils.Logger, summary models.RunSummary) {
	if !cfg.RunLedgerEnabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ledger, err := storage.NewPostgresLedger(ctx, cfg.PostgresDSN(), logger)
	if err != nil {
		logger.Warn("[ledger] Run not recorded: %v", err)
		return
	}
	defer ledger.Close()

	if err := ledger.RecordRun(ctx, summary); err != nil {
		logger.Warn("[ledger] Run not recorded: %v", err)
		return
	}
	logger.Info("[ledger] Run recorded with status %s", summary.Status)
}

func runCombine(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) int {
	fl := flag.NewFlagSet("combine", flag.ContinueOnError)
	dir := fl.String("dir", cfg.DataDir, "directory holding the JSON exports (or DATA_DIR)")
	out := fl.String("out", filepath.Join(cfg.DataDir, "combined_data.json"), "combined output file")
	dedup := fl.Bool("dedup", false, "keep only the last record for each url, as ingestion would")
	if err := fl.Parse(args); err != nil {
		return 2
	}

	summary, err := ingest.Combine(ctx, *dir, *out, *dedup, logger)
	if err != nil {
		logger.Error("Combine failed: %v", err)
		return 1
	}
	if summary.Records == 0 {
		logger.Warn("Combined file %s is empty", *out)
	}
	return 0
}

func runStats(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) int {
	fl := flag.NewFlagSet("stats", flag.ContinueOnError)
	sample := fl.Int64("sample", 100, "number of listings to analyse")
	if err := fl.Parse(args); err != nil {
		return 2
	}

	store, err := storage.ConnectMongo(ctx, cfg.Mongo())
	if err != nil {
		logger.Error("Failed to connect to MongoDB: %v", err)
		return 1
	}
	defer store.Close(context.Background())
	logger.Info("Connected to MongoDB at %s:%d", cfg.MongoHost, cfg.MongoPort)

	total, err := store.Count(ctx)
	if err != nil {
		logger.Error("Count failed: %v", err)
		return 1
	}
	records, err := store.Sample(ctx, *sample)
	if err != nil {
		logger.Error("Sample failed: %v", err)
		return 1
	}

	insightSvc := services.NewInsightService(logger)
	insightSvc.Print(insightSvc.Generate(records, total))
	return 0
}

func runScrape(ctx context.Context, cfg *config.Config, logger *utils.Logger) int {
	logger.Info("=== Mubawab scraping starting ===")
	logger.Info("Config: cities %v | pages %d | concurrency %d | rate %dms",
		cfg.ScrapeCities, cfg.PagesToScrape, cfg.MaxConcurrency, cfg.RateLimitMs)

	out, err := storage.NewJSONArrayWriter(cfg.ScrapeOutput)
	if err != nil {
		logger.Error("Failed to create output file: %v", err)
		return 1
	}

	n, scrapeErr := mubawab.New(cfg, out, logger).Scrape(ctx)
	if err := out.Close(); err != nil {
		logger.Error("Failed to finish %s: %v", cfg.ScrapeOutput, err)
		return 1
	}
	if scrapeErr != nil {
		logger.Error("Scrape stopped: %v", scrapeErr)
	}
	if n == 0 {
		logger.Error("No listings were scraped.")
		return 1
	}

	logger.Info("Done. %d listings saved to %s", n, cfg.ScrapeOutput)
	return 0
}
