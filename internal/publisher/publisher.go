package publisher

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aptos-Scan/aptos-indexer/internal/metrics"
	adminmodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/admin"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// PayloadSize is the encoded size of a version range message.
const PayloadSize = 16

// Publisher publishes version ranges to Redis Streams.
type Publisher struct {
	pub         message.Publisher
	redisClient redis.UniversalClient
	topic       string
	group       string
}

// New creates a Publisher backed by a Redis stream. Backlog is measured
// against consumerGroup. A positive maxLen trims acknowledged history so the
// stream does not grow without bound.
func New(redisClient redis.UniversalClient, topic, consumerGroup string, maxLen int64) (*Publisher, error) {
	logger := watermill.NewSlogLogger(nil)

	cfg := redisstream.PublisherConfig{
		Client: redisClient,
	}
	if maxLen > 0 {
		cfg.Maxlens = map[string]int64{topic: maxLen}
	}

	pub, err := redisstream.NewPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		pub:         pub,
		redisClient: redisClient,
		topic:       topic,
		group:       consumerGroup,
	}, nil
}

// NewWithPublisher wraps an arbitrary watermill publisher. Backlog is
// unavailable without a Redis client.
func NewWithPublisher(pub message.Publisher, topic string) *Publisher {
	return &Publisher{pub: pub, topic: topic}
}

// EncodeRange packs start and end as two big-endian uint64s.
func EncodeRange(r adminmodels.VersionRange) []byte {
	payload := make([]byte, PayloadSize)
	binary.BigEndian.PutUint64(payload[0:8], r.Start)
	binary.BigEndian.PutUint64(payload[8:16], r.End)
	return payload
}

// DecodeRange is the inverse of EncodeRange.
func DecodeRange(payload []byte) (adminmodels.VersionRange, error) {
	if len(payload) < PayloadSize {
		return adminmodels.VersionRange{}, fmt.Errorf("range payload too short: %d bytes", len(payload))
	}
	r := adminmodels.VersionRange{
		Start: binary.BigEndian.Uint64(payload[0:8]),
		End:   binary.BigEndian.Uint64(payload[8:16]),
	}
	if r.End < r.Start {
		return adminmodels.VersionRange{}, fmt.Errorf("invalid range [%d, %d]", r.Start, r.End)
	}
	return r, nil
}

// PublishRange publishes an inclusive version range to the queue.
func (p *Publisher) PublishRange(ctx context.Context, r adminmodels.VersionRange) error {
	start := time.Now()

	msgUUID := watermill.NewUUID()
	msg := message.NewMessage(msgUUID, EncodeRange(r))
	msg.SetContext(ctx)

	err := p.pub.Publish(p.topic, msg)
	duration := time.Since(start)

	if err != nil {
		slog.Error("redis publish failed",
			"start_version", r.Start,
			"end_version", r.End,
			"msg_uuid", msgUUID,
			"duration_ms", duration.Milliseconds(),
			"err", err,
		)
		return err
	}

	metrics.RangesPublished.Inc()
	slog.Debug("redis publish ok",
		"start_version", r.Start,
		"end_version", r.End,
		"msg_uuid", msgUUID,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}

// Backlog returns how many ranges the consumer group has not acknowledged:
// entries never delivered plus delivered ones still pending.
func (p *Publisher) Backlog(ctx context.Context) (int64, error) {
	if p.redisClient == nil {
		return 0, nil
	}
	groups, err := p.redisClient.XInfoGroups(ctx, p.topic).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return 0, nil
		}
		return 0, err
	}
	if n, ok := groupBacklog(groups, p.group); ok {
		return n, nil
	}
	// No worker has joined the group yet, so every entry is unread.
	return p.redisClient.XLen(ctx, p.topic).Result()
}

func groupBacklog(groups []redis.XInfoGroup, name string) (int64, bool) {
	for _, g := range groups {
		if g.Name != name {
			continue
		}
		// Redis reports an unknown lag as nil, read as 0.
		return g.Pending + max(g.Lag, 0), true
	}
	return 0, false
}

// Topic returns the Redis stream topic name.
func (p *Publisher) Topic() string {
	return p.topic
}
