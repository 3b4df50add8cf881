package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aptos-Scan/aptos-indexer/internal/processor"
	adminmodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/admin"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
	"golang.org/x/sync/errgroup"
)

// Node is the part of the RPC client the backfiller needs.
type Node interface {
	LedgerVersion(ctx context.Context) (uint64, error)
	TransactionsRange(ctx context.Context, start, end uint64) ([]rpc.Transaction, error)
}

// RangeProcessor persists one version range.
type RangeProcessor interface {
	Process(ctx context.Context, txs []rpc.Transaction, start, end uint64) (*processor.Result, error)
}

// Result contains the results of a backfill operation.
type Result struct {
	TotalMissing   uint64
	TotalProcessed uint64 // versions
	TotalSucceeded uint64
	TotalFailed    uint64
	Duration       time.Duration
	Errors         []error
}

// Backfiller finds versions missing from storage and processes them.
type Backfiller struct {
	node      Node
	gaps      GapFinder
	processor RangeProcessor
	config    *Config
}

// New creates a new Backfiller.
func New(node Node, gaps GapFinder, proc RangeProcessor, cfg *Config) *Backfiller {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = defaults.ScanLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaults.ProgressInterval
	}
	return &Backfiller{
		node:      node,
		gaps:      gaps,
		processor: proc,
		config:    cfg,
	}
}

func (b *Backfiller) endVersion(ctx context.Context) (uint64, error) {
	if b.config.EndVersion != 0 {
		return b.config.EndVersion, nil
	}
	v, err := b.node.LedgerVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get ledger version: %w", err)
	}
	slog.Info("fetched ledger version from node", "version", v)
	return v, nil
}

// Run executes the backfill operation.
func (b *Backfiller) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	startVersion := b.config.StartVersion
	endVersion, err := b.endVersion(ctx)
	if err != nil {
		return nil, err
	}
	if endVersion < startVersion {
		return nil, fmt.Errorf("end version %d is before start version %d", endVersion, startVersion)
	}

	slog.Info("starting backfill",
		"start_version", startVersion,
		"end_version", endVersion,
		"batch_size", b.config.BatchSize,
		"concurrency", b.config.Concurrency,
		"dry_run", b.config.DryRun,
	)

	// Get initial gap stats
	stats, err := b.gaps.GetGapStats(ctx, startVersion, endVersion)
	if err != nil {
		return nil, fmt.Errorf("get gap stats: %w", err)
	}

	slog.Info("gap analysis complete",
		"total_expected", stats.TotalExpected,
		"total_indexed", stats.TotalIndexed,
		"total_missing", stats.TotalMissing,
		"first_missing", stats.FirstMissing,
		"last_missing", stats.LastMissing,
	)

	result.TotalMissing = stats.TotalMissing

	if stats.TotalMissing == 0 {
		slog.Info("no missing versions found")
		result.Duration = time.Since(start)
		return result, nil
	}

	if b.config.DryRun {
		slog.Info("dry run complete, nothing processed")
		result.Duration = time.Since(start)
		return result, nil
	}

	var errorsMu sync.Mutex
	var processed, succeeded, failed atomic.Uint64

	// Start progress reporter
	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go b.reportProgress(progressCtx, stats.TotalMissing, &processed, &succeeded, &failed)

	current := startVersion
	for current <= endVersion {
		if ctx.Err() != nil {
			break
		}

		versions, err := b.gaps.FindMissingVersions(ctx, current, endVersion, b.config.ScanLimit)
		if err != nil {
			return nil, fmt.Errorf("find missing versions: %w", err)
		}
		if len(versions) == 0 {
			break
		}

		ranges := GroupRanges(versions, b.config.BatchSize)
		slog.Debug("processing scan",
			"first_version", versions[0],
			"last_version", versions[len(versions)-1],
			"ranges", len(ranges),
		)

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(b.config.Concurrency)

		for _, r := range ranges {
			g.Go(func() error {
				processed.Add(r.Len())

				if err := b.processRange(gCtx, r); err != nil {
					failed.Add(r.Len())
					errorsMu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("range [%d, %d]: %w", r.Start, r.End, err))
					errorsMu.Unlock()
					slog.Error("failed to process range",
						"start_version", r.Start,
						"end_version", r.End,
						"err", err,
					)
					// Continue with other ranges, don't fail entire backfill
					return nil
				}

				succeeded.Add(r.Len())
				return nil
			})
		}

		_ = g.Wait()

		last := versions[len(versions)-1]
		if last == endVersion {
			break
		}
		current = last + 1
	}

	result.TotalProcessed = processed.Load()
	result.TotalSucceeded = succeeded.Load()
	result.TotalFailed = failed.Load()
	result.Duration = time.Since(start)

	slog.Info("backfill complete",
		"total_missing", result.TotalMissing,
		"total_processed", result.TotalProcessed,
		"total_succeeded", result.TotalSucceeded,
		"total_failed", result.TotalFailed,
		"duration", result.Duration,
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (b *Backfiller) processRange(ctx context.Context, r adminmodels.VersionRange) error {
	txs, err := b.node.TransactionsRange(ctx, r.Start, r.End)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	_, err = b.processor.Process(ctx, txs, r.Start, r.End)
	return err
}

// reportProgress logs progress at regular intervals.
func (b *Backfiller) reportProgress(ctx context.Context, total uint64, processed, succeeded, failed *atomic.Uint64) {
	ticker := time.NewTicker(b.config.ProgressInterval)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := processed.Load()
			s := succeeded.Load()
			f := failed.Load()

			elapsed := time.Since(startTime)
			rate := float64(p) / elapsed.Seconds()

			var eta time.Duration
			if rate > 0 && p < total {
				remaining := total - p
				eta = time.Duration(float64(remaining)/rate) * time.Second
			}

			progress := float64(p) / float64(total) * 100

			slog.Info("backfill progress",
				"processed", p,
				"total", total,
				"progress_pct", fmt.Sprintf("%.1f%%", progress),
				"succeeded", s,
				"failed", f,
				"rate_per_sec", fmt.Sprintf("%.1f", rate),
				"eta", eta.Round(time.Second),
			)
		}
	}
}

// CheckHealth performs a quick gap check up to the ledger head.
func (b *Backfiller) CheckHealth(ctx context.Context) (*GapStats, error) {
	endVersion, err := b.node.LedgerVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get ledger version: %w", err)
	}
	if endVersion < b.config.StartVersion {
		return &GapStats{}, nil
	}
	return b.gaps.GetGapStats(ctx, b.config.StartVersion, endVersion)
}
