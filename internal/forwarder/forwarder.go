package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	indexermodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/indexer"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// VersionMetadataKey carries the transaction version on each forwarded message.
const VersionMetadataKey = "version"

// Sink receives canonical transaction records. It is not part of the storage
// transaction.
type Sink interface {
	Send(ctx context.Context, txs []indexermodels.Transaction) error
}

// StreamSink publishes one watermill message per transaction record.
type StreamSink struct {
	pub   message.Publisher
	topic string
}

// New wraps any watermill publisher.
func New(pub message.Publisher, topic string) *StreamSink {
	return &StreamSink{pub: pub, topic: topic}
}

// NewRedis creates a sink backed by a Redis stream.
func NewRedis(redisClient redis.UniversalClient, topic string) (*StreamSink, error) {
	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		watermill.NewSlogLogger(nil),
	)
	if err != nil {
		return nil, err
	}
	return New(pub, topic), nil
}

// Send publishes txs in order. It returns early with ctx's error if the
// publisher does not finish in time; messages already handed over stay published.
func (s *StreamSink) Send(ctx context.Context, txs []indexermodels.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	start := time.Now()

	msgs := make([]*message.Message, 0, len(txs))
	for i := range txs {
		payload, err := json.Marshal(&txs[i])
		if err != nil {
			return fmt.Errorf("encode transaction %d: %w", txs[i].Version, err)
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(VersionMetadataKey, strconv.FormatUint(txs[i].Version, 10))
		msg.SetContext(ctx)
		msgs = append(msgs, msg)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(s.topic, msgs...)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("publish to %s: %w", s.topic, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", s.topic, ctx.Err())
	}

	slog.Debug("forwarded transactions",
		"topic", s.topic,
		"count", len(txs),
		"first_version", txs[0].Version,
		"last_version", txs[len(txs)-1].Version,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Close closes the publisher.
func (s *StreamSink) Close() error {
	return s.pub.Close()
}
