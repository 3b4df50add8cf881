package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aptos-Scan/aptos-indexer/internal/backfill"
	"github.com/Aptos-Scan/aptos-indexer/internal/config"
	"github.com/Aptos-Scan/aptos-indexer/internal/processor"
	"github.com/Aptos-Scan/aptos-indexer/pkg/db/postgres"
	"github.com/Aptos-Scan/aptos-indexer/pkg/db/postgres/chain"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
	"go.uber.org/zap"
)

func main() {
	// Parse flags
	dryRun := flag.Bool("dry-run", false, "Only report gaps, don't process")
	startVersion := flag.Uint64("start", 0, "Start version (default: 0)")
	endVersion := flag.Uint64("end", 0, "End version (default: current ledger version)")
	batchSize := flag.Uint64("batch", 0, "Versions per range (default: 500)")
	concurrency := flag.Int("concurrency", 0, "Number of concurrent ranges (default: 4)")
	statsOnly := flag.Bool("stats", false, "Only show gap statistics")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load base configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Setup logging
	setupLogging(cfg.LogLevel)

	slog.Info("aptos-indexer backfill starting", "processor", cfg.ProcessorName)

	logger, err := zap.NewProduction()
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Connect to PostgreSQL
	chainDB, err := chain.New(ctx, logger, cfg.PostgresURL, postgres.PoolConfig{
		MinConns:  cfg.DBMinConns,
		MaxConns:  cfg.DBMaxConns,
		Component: "backfill",
	})
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		os.Exit(1)
	}
	defer chainDB.Close()

	node := rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints: []string{cfg.NodeURL},
		RPS:       cfg.RPCRPS,
		Burst:     cfg.RPCBurst,
	})

	// Backfilled ranges are not forwarded downstream
	proc := processor.New(processor.Config{
		Name: cfg.ProcessorName,
		DB:   chainDB,
	})

	// Build backfill config
	backfillCfg := backfill.LoadConfig()

	// Override with flags if provided
	if *dryRun {
		backfillCfg.DryRun = true
	}
	if *startVersion > 0 {
		backfillCfg.StartVersion = *startVersion
	}
	if *endVersion > 0 {
		backfillCfg.EndVersion = *endVersion
	}
	if *batchSize > 0 {
		backfillCfg.BatchSize = *batchSize
	}
	if *concurrency > 0 {
		backfillCfg.Concurrency = *concurrency
	}

	bf := backfill.New(node, backfill.NewSQLGaps(chainDB), proc, backfillCfg)

	// Stats only mode
	if *statsOnly {
		stats, err := bf.CheckHealth(ctx)
		if err != nil {
			slog.Error("failed to check health", "err", err)
			os.Exit(1)
		}

		fmt.Printf("Gap Statistics:\n")
		fmt.Printf("  Total Expected: %d\n", stats.TotalExpected)
		fmt.Printf("  Total Indexed:  %d\n", stats.TotalIndexed)
		fmt.Printf("  Total Missing:  %d\n", stats.TotalMissing)
		if stats.TotalMissing > 0 {
			fmt.Printf("  First Missing:  %d\n", stats.FirstMissing)
			fmt.Printf("  Last Missing:   %d\n", stats.LastMissing)
			completionPct := float64(stats.TotalIndexed) / float64(stats.TotalExpected) * 100
			fmt.Printf("  Completion:     %.2f%%\n", completionPct)
		} else {
			fmt.Printf("  Completion:     100%%\n")
		}
		return
	}

	result, err := bf.Run(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Error("backfill failed", "err", err)
		os.Exit(1)
	}
	if result == nil {
		return
	}

	// Print summary
	fmt.Printf("\nBackfill Summary:\n")
	fmt.Printf("  Total Missing:   %d\n", result.TotalMissing)
	fmt.Printf("  Total Processed: %d\n", result.TotalProcessed)
	fmt.Printf("  Total Succeeded: %d\n", result.TotalSucceeded)
	fmt.Printf("  Total Failed:    %d\n", result.TotalFailed)
	fmt.Printf("  Duration:        %s\n", result.Duration)

	if result.TotalFailed > 0 {
		fmt.Printf("\n  Failed ranges (%d):\n", len(result.Errors))
		for i, err := range result.Errors {
			if i >= 5 {
				fmt.Printf("    ... and %d more\n", len(result.Errors)-5)
				break
			}
			fmt.Printf("    - %v\n", err)
		}
		os.Exit(1)
	}

	slog.Info("backfill complete")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
