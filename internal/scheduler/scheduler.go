package scheduler

import (
	"context"
	"log/slog"
	"time"

	adminmodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/admin"
)

// LedgerSource reports the latest committed ledger version.
type LedgerSource interface {
	LedgerVersion(ctx context.Context) (uint64, error)
}

// Checkpoints returns the last committed version of a processor.
type Checkpoints interface {
	LastSuccessVersion(ctx context.Context, processor string) (uint64, bool, error)
}

// RangePublisher queues version ranges for the workers.
type RangePublisher interface {
	PublishRange(ctx context.Context, r adminmodels.VersionRange) error
	Backlog(ctx context.Context) (int64, error)
}

// Config configures the scheduler.
type Config struct {
	ProcessorName  string
	StartVersion   uint64
	BatchSize      uint64
	PollInterval   time.Duration
	MaxQueueLength int64 // unacknowledged ranges allowed in the queue; 0 disables the check
}

// Scheduler follows the ledger head and publishes the versions after the
// last scheduled one as fixed-size ranges.
type Scheduler struct {
	cfg         Config
	ledger      LedgerSource
	checkpoints Checkpoints
	pub         RangePublisher
	next        uint64
}

// New creates a Scheduler.
func New(cfg Config, ledger LedgerSource, checkpoints Checkpoints, pub RangePublisher) *Scheduler {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 500
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Scheduler{cfg: cfg, ledger: ledger, checkpoints: checkpoints, pub: pub}
}

// Run resumes from the stored checkpoint and polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.resume(ctx); err != nil {
		return err
	}
	slog.Info("starting scheduler",
		"processor", s.cfg.ProcessorName,
		"next_version", s.next,
		"batch_size", s.cfg.BatchSize,
		"interval", s.cfg.PollInterval,
	)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			slog.Warn("scheduler tick failed", "next_version", s.next, "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) resume(ctx context.Context) error {
	last, ok, err := s.checkpoints.LastSuccessVersion(ctx, s.cfg.ProcessorName)
	if err != nil {
		return err
	}
	s.next = s.cfg.StartVersion
	if ok && last+1 > s.next {
		s.next = last + 1
	}
	return nil
}

// Tick publishes the ranges up to the ledger head, at most as many as the
// queue has room for, and returns how many were published.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	limit := -1
	if s.cfg.MaxQueueLength > 0 {
		n, err := s.pub.Backlog(ctx)
		if err != nil {
			return 0, err
		}
		if n >= s.cfg.MaxQueueLength {
			slog.Debug("scheduler backpressure", "backlog", n)
			return 0, nil
		}
		limit = int(s.cfg.MaxQueueLength - n)
	}

	head, err := s.ledger.LedgerVersion(ctx)
	if err != nil {
		return 0, err
	}

	ranges := SplitN(s.next, head, s.cfg.BatchSize, limit)
	for i, r := range ranges {
		if err := s.pub.PublishRange(ctx, r); err != nil {
			return i, err
		}
		s.next = r.End + 1
	}
	if len(ranges) > 0 {
		slog.Info("scheduled ranges", "count", len(ranges), "head", head, "next_version", s.next)
	}
	return len(ranges), nil
}

// Split cuts [from, to] into consecutive ranges of at most size versions.
func Split(from, to, size uint64) []adminmodels.VersionRange {
	return SplitN(from, to, size, -1)
}

// SplitN is Split returning at most n ranges; n < 0 means no limit.
func SplitN(from, to, size uint64, n int) []adminmodels.VersionRange {
	if from > to || size == 0 || n == 0 {
		return nil
	}
	var out []adminmodels.VersionRange
	for start := from; start <= to; {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		out = append(out, adminmodels.VersionRange{Start: start, End: end})
		if end == to || len(out) == n {
			break
		}
		start = end + 1
	}
	return out
}
