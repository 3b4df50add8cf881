package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Aptos-Scan/aptos-indexer/internal/metrics"
	"github.com/Aptos-Scan/aptos-indexer/internal/processor"
	"github.com/Aptos-Scan/aptos-indexer/internal/publisher"
	"github.com/Aptos-Scan/aptos-indexer/pkg/rpc"
	"github.com/Aptos-Scan/aptos-indexer/pkg/transform"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

const defaultRetryDelay = 5 * time.Second

// Fetcher loads exactly the transactions of an inclusive version range.
type Fetcher interface {
	TransactionsRange(ctx context.Context, start, end uint64) ([]rpc.Transaction, error)
}

// RangeProcessor persists one version range.
type RangeProcessor interface {
	Process(ctx context.Context, txs []rpc.Transaction, start, end uint64) (*processor.Result, error)
}

// ProgressStore records committed ranges.
type ProgressStore interface {
	RecordSuccess(ctx context.Context, processor string, version uint64) error
}

// Config configures the worker.
type Config struct {
	RedisClient   redis.UniversalClient
	Subscriber    message.Subscriber // optional, replaces the Redis subscribers
	Fetcher       Fetcher
	Processor     RangeProcessor
	Progress      ProgressStore
	Topic         string
	ConsumerGroup string
	Concurrency   int
	RetryDelay    time.Duration
}

// QueueStats holds queue statistics.
type QueueStats struct {
	StreamLength int64 `json:"stream_length"`
	Pending      int64 `json:"pending"`
	Lag          int64 `json:"lag"`
	Consumers    int64 `json:"consumers"`
}

// Worker consumes version ranges from Redis Streams and processes them.
type Worker struct {
	router        *message.Router
	fetcher       Fetcher
	processor     RangeProcessor
	progress      ProgressStore
	redisClient   redis.UniversalClient
	topic         string
	consumerGroup string
	retryDelay    time.Duration
	highest       atomic.Uint64
}

// New creates a new Worker. Each unit of concurrency is a separate consumer
// in the group.
func New(cfg Config) (*Worker, error) {
	logger := watermill.NewSlogLogger(nil)

	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	subs := []message.Subscriber{cfg.Subscriber}
	if cfg.Subscriber == nil {
		subs = subs[:0]
		for i := 0; i < cfg.Concurrency; i++ {
			sub, err := redisstream.NewSubscriber(
				redisstream.SubscriberConfig{
					Client:        cfg.RedisClient,
					ConsumerGroup: cfg.ConsumerGroup,
				},
				logger,
			)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		router:        router,
		fetcher:       cfg.Fetcher,
		processor:     cfg.Processor,
		progress:      cfg.Progress,
		redisClient:   cfg.RedisClient,
		topic:         cfg.Topic,
		consumerGroup: cfg.ConsumerGroup,
		retryDelay:    cfg.RetryDelay,
	}

	for i, sub := range subs {
		router.AddNoPublisherHandler(
			fmt.Sprintf("process-range-%d", i),
			cfg.Topic,
			sub,
			w.handleRange,
		)
	}

	return w, nil
}

// handleRange processes a single version range message.
func (w *Worker) handleRange(msg *message.Message) error {
	start := time.Now()
	msgUUID := msg.UUID

	r, err := publisher.DecodeRange(msg.Payload)
	if err != nil {
		slog.Warn("worker invalid payload",
			"msg_uuid", msgUUID,
			"len", len(msg.Payload),
			"err", err,
		)
		return nil // ack invalid messages to avoid infinite retry
	}

	slog.Debug("worker range start",
		"start_version", r.Start,
		"end_version", r.End,
		"msg_uuid", msgUUID,
	)

	ctx := msg.Context()
	err = w.processRange(ctx, r.Start, r.End)

	var decodeErr *transform.DecodeError
	switch {
	case err == nil:
		slog.Info("worker range done",
			"start_version", r.Start,
			"end_version", r.End,
			"msg_uuid", msgUUID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	case errors.As(err, &decodeErr):
		// Redelivery would decode the same bytes again.
		slog.Error("worker range undecodable, dropping",
			"start_version", r.Start,
			"end_version", r.End,
			"msg_uuid", msgUUID,
			"version", decodeErr.Version,
			"err", err,
		)
		return nil
	default:
		slog.Error("worker range failed",
			"start_version", r.Start,
			"end_version", r.End,
			"msg_uuid", msgUUID,
			"duration_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
		// Delay before retry to avoid hammering on errors
		select {
		case <-time.After(w.retryDelay):
		case <-ctx.Done():
		}
		return err // will be redelivered
	}
}

// processRange fetches, processes and checkpoints one range.
func (w *Worker) processRange(ctx context.Context, startVersion, endVersion uint64) error {
	txs, err := w.fetcher.TransactionsRange(ctx, startVersion, endVersion)
	if err != nil {
		return fmt.Errorf("fetch [%d, %d]: %w", startVersion, endVersion, err)
	}

	res, err := w.processor.Process(ctx, txs, startVersion, endVersion)
	if err != nil {
		return err
	}

	if err := w.progress.RecordSuccess(ctx, res.ProcessorName, res.EndVersion); err != nil {
		return err
	}
	w.observe(res)
	return nil
}

// observe raises the last-success gauge; ranges can finish out of order.
func (w *Worker) observe(res *processor.Result) {
	for {
		cur := w.highest.Load()
		if res.EndVersion <= cur && cur != 0 {
			return
		}
		if w.highest.CompareAndSwap(cur, res.EndVersion) {
			metrics.LastSuccessVersion.WithLabelValues(res.ProcessorName).Set(float64(res.EndVersion))
			return
		}
	}
}

// Run starts the worker. It blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (w *Worker) Running() chan struct{} {
	return w.router.Running()
}

// Close closes the worker.
func (w *Worker) Close() error {
	return w.router.Close()
}

// QueueStats returns current queue statistics.
func (w *Worker) QueueStats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats
	if w.redisClient == nil {
		return stats, nil
	}

	// Get stream length
	length, err := w.redisClient.XLen(ctx, w.topic).Result()
	if err != nil {
		return stats, err
	}
	stats.StreamLength = length

	// Get consumer group info
	groups, err := w.redisClient.XInfoGroups(ctx, w.topic).Result()
	if err != nil {
		// Stream might not exist yet
		return stats, nil
	}

	for _, g := range groups {
		if g.Name == w.consumerGroup {
			stats.Pending = g.Pending
			stats.Lag = g.Lag
			stats.Consumers = g.Consumers
			break
		}
	}

	return stats, nil
}

// LogQueueStats logs current queue statistics.
func (w *Worker) LogQueueStats(ctx context.Context) {
	stats, err := w.QueueStats(ctx)
	if err != nil {
		slog.Warn("worker queue stats error", "err", err)
		return
	}

	slog.Info("worker queue stats",
		"stream_length", stats.StreamLength,
		"pending", stats.Pending,
		"lag", stats.Lag,
		"consumers", stats.Consumers,
	)
}
