package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aptos-Scan/aptos-indexer/internal/forwarder"
	"github.com/Aptos-Scan/aptos-indexer/internal/metrics"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
	"github.com/Aptos-Scan/aptos-indexer/pkg/transform"
	"golang.org/x/sync/errgroup"
)

const defaultForwardTimeout = 30 * time.Second

// Config configures a Processor.
type Config struct {
	Name           string
	DB             Acquirer
	Sink           forwarder.Sink // optional
	ForwardTimeout time.Duration
}

// Result reports a committed version range.
type Result struct {
	ProcessorName string
	StartVersion  uint64
	EndVersion    uint64
}

// Processor turns one version range of raw transactions into persisted
// entities and forwards the transaction records.
type Processor struct {
	name           string
	writer         *writer
	sink           forwarder.Sink
	forwardTimeout time.Duration
}

// New creates a Processor.
func New(cfg Config) *Processor {
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = defaultForwardTimeout
	}
	return &Processor{
		name:           cfg.Name,
		writer:         &writer{db: cfg.DB, name: cfg.Name},
		sink:           cfg.Sink,
		forwardTimeout: cfg.ForwardTimeout,
	}
}

// WithoutForwarding returns a Processor that shares p's writer but never
// forwards. Backfilled ranges go through it.
func (p *Processor) WithoutForwarding() *Processor {
	cp := *p
	cp.sink = nil
	return &cp
}

// Name returns the processor identity.
func (p *Processor) Name() string {
	return p.name
}

// Process handles txs, which must be exactly the versions [start, end].
//
// A *transform.DecodeError is returned before anything is written or
// forwarded. Forwarding runs alongside the write and its outcome never
// changes the result. A failed write is returned as *CommitError.
func (p *Processor) Process(ctx context.Context, txs []rpc.Transaction, start, end uint64) (*Result, error) {
	began := time.Now()

	decomposed, err := transform.FromTransactions(txs)
	if err != nil {
		metrics.RangesTotal.WithLabelValues(p.name, "decode_error").Inc()
		slog.Error("decode failed",
			"processor", p.name,
			"start_version", start,
			"end_version", end,
			"err", err,
		)
		return nil, err
	}
	batches := newBatches(decomposed)

	var g errgroup.Group
	g.Go(func() error {
		p.forward(ctx, batches, start, end)
		return nil
	})
	g.Go(func() error {
		return p.writer.write(ctx, batches, start, end)
	})

	if err := g.Wait(); err != nil {
		metrics.RangesTotal.WithLabelValues(p.name, "commit_error").Inc()
		slog.Error("range commit failed",
			"processor", p.name,
			"start_version", start,
			"end_version", end,
			"duration_ms", time.Since(began).Milliseconds(),
			"err", err,
		)
		return nil, &CommitError{
			Err:           err,
			StartVersion:  start,
			EndVersion:    end,
			ProcessorName: p.name,
		}
	}

	duration := time.Since(began)
	metrics.RangesTotal.WithLabelValues(p.name, "success").Inc()
	metrics.RangeDuration.WithLabelValues(p.name).Observe(duration.Seconds())
	slog.Info("range processed",
		"processor", p.name,
		"start_version", start,
		"end_version", end,
		"transactions", len(batches.Transactions),
		"rows", batches.Rows(),
		"duration_ms", duration.Milliseconds(),
	)

	return &Result{ProcessorName: p.name, StartVersion: start, EndVersion: end}, nil
}

// forward sends the transaction records under its own timeout. Failures are
// logged and counted only.
func (p *Processor) forward(ctx context.Context, b *Batches, start, end uint64) {
	if p.sink == nil || len(b.Transactions) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.forwardTimeout)
	defer cancel()

	if err := p.sink.Send(ctx, b.Transactions); err != nil {
		metrics.ForwardedTotal.WithLabelValues(p.name, "error").Add(float64(len(b.Transactions)))
		slog.Warn("forward failed",
			"processor", p.name,
			"start_version", start,
			"end_version", end,
			"err", err,
		)
		return
	}
	metrics.ForwardedTotal.WithLabelValues(p.name, "success").Add(float64(len(b.Transactions)))
}
