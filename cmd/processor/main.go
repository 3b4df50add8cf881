package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aptos-Scan/aptos-indexer/internal/api"
	"github.com/Aptos-Scan/aptos-indexer/internal/api/handler"
	"github.com/Aptos-Scan/aptos-indexer/internal/backfill"
	"github.com/Aptos-Scan/aptos-indexer/internal/config"
	"github.com/Aptos-Scan/aptos-indexer/internal/forwarder"
	"github.com/Aptos-Scan/aptos-indexer/internal/metrics"
	"github.com/Aptos-Scan/aptos-indexer/internal/processor"
	"github.com/Aptos-Scan/aptos-indexer/internal/publisher"
	"github.com/Aptos-Scan/aptos-indexer/internal/scheduler"
	"github.com/Aptos-Scan/aptos-indexer/internal/worker"
	"github.com/Aptos-Scan/aptos-indexer/pkg/db/postgres"
	"github.com/Aptos-Scan/aptos-indexer/pkg/db/postgres/admin"
	"github.com/Aptos-Scan/aptos-indexer/pkg/db/postgres/chain"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Setup logging
	setupLogging(cfg.LogLevel)
	logger, err := newZapLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}
	defer logger.Sync()

	slog.Info("starting aptos-indexer",
		"processor", cfg.ProcessorName,
		"scheduler_enabled", cfg.SchedulerEnabled,
		"batch_size", cfg.BatchSize,
	)

	// Connect to PostgreSQL
	chainDB, err := chain.New(ctx, logger, cfg.PostgresURL, postgres.PoolConfig{
		MinConns:  cfg.DBMinConns,
		MaxConns:  cfg.DBMaxConns,
		Component: cfg.ProcessorName,
	})
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		os.Exit(1)
	}
	defer chainDB.Close()

	adminDB := admin.FromClient(chainDB.Client)
	if err := adminDB.InitializeDB(ctx); err != nil {
		slog.Error("failed to initialize admin tables", "err", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to parse redis url", "err", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	node := rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints: []string{cfg.NodeURL},
		RPS:       cfg.RPCRPS,
		Burst:     cfg.RPCBurst,
	})

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	// Downstream event stream
	sink, err := forwarder.NewRedis(redisClient, cfg.TransactionsTopic)
	if err != nil {
		slog.Error("failed to create forwarder", "err", err)
		os.Exit(1)
	}
	defer sink.Close()

	proc := processor.New(processor.Config{
		Name:           cfg.ProcessorName,
		DB:             chainDB,
		Sink:           sink,
		ForwardTimeout: cfg.ForwardTimeout,
	})

	// Range queue
	pub, err := publisher.New(redisClient, cfg.RangesTopic, cfg.ConsumerGroup, cfg.StreamMaxLen)
	if err != nil {
		slog.Error("failed to create publisher", "err", err)
		os.Exit(1)
	}
	defer pub.Close()

	wrk, err := worker.New(worker.Config{
		RedisClient:   redisClient,
		Fetcher:       node,
		Processor:     proc,
		Progress:      adminDB,
		Topic:         cfg.RangesTopic,
		ConsumerGroup: cfg.ConsumerGroup,
		Concurrency:   cfg.WorkerConcurrency,
	})
	if err != nil {
		slog.Error("failed to create worker", "err", err)
		os.Exit(1)
	}
	defer wrk.Close()

	// Backfilled ranges are not forwarded downstream
	bf := backfill.New(node, backfill.NewSQLGaps(chainDB), proc.WithoutForwarding(), &backfill.Config{
		BatchSize:    cfg.BatchSize,
		StartVersion: cfg.StartVersion,
	})

	server := api.NewServer(&handler.Handler{
		Status:        adminDB,
		Queue:         wrk,
		Gaps:          bf,
		Gatherer:      reg,
		Logger:        logger,
		ProcessorName: cfg.ProcessorName,
		AdminToken:    cfg.AdminToken,
	}, cfg.HTTPAddr)

	// Run all components
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting worker", "concurrency", cfg.WorkerConcurrency)
		return wrk.Run(ctx)
	})

	if cfg.SchedulerEnabled {
		sched := scheduler.New(scheduler.Config{
			ProcessorName:  cfg.ProcessorName,
			StartVersion:   cfg.StartVersion,
			BatchSize:      cfg.BatchSize,
			PollInterval:   cfg.PollInterval,
			MaxQueueLength: cfg.MaxQueueLength,
		}, node, adminDB, pub)
		g.Go(func() error {
			return sched.Run(ctx)
		})
	}

	g.Go(func() error {
		return server.Run(ctx)
	})

	// Optional: Periodic gap health check
	if cfg.GapCheckInterval > 0 {
		g.Go(func() error {
			return runPeriodicHealthCheck(ctx, bf, wrk, cfg.GapCheckInterval)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("processor error", "err", err)
		os.Exit(1)
	}

	slog.Info("shutdown complete")
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

	logHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(logHandler))
}

// newZapLogger builds the logger used by the database and API layers.
func newZapLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

// runPeriodicHealthCheck logs missing versions and queue backlog at an interval.
func runPeriodicHealthCheck(ctx context.Context, bf *backfill.Backfiller, wrk *worker.Worker, interval time.Duration) error {
	slog.Info("starting periodic gap health check", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			wrk.LogQueueStats(ctx)

			stats, err := bf.CheckHealth(ctx)
			if err != nil {
				slog.Warn("gap health check failed", "err", err)
				continue
			}

			if stats.TotalMissing > 0 {
				slog.Warn("gaps detected during health check",
					"missing_versions", stats.TotalMissing,
					"first_missing", stats.FirstMissing,
					"last_missing", stats.LastMissing,
				)
			} else {
				slog.Debug("gap health check passed, no missing versions")
			}
		}
	}
}
