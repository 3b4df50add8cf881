package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adminmodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/admin"
)

func TestRangeCodec(t *testing.T) {
	r := adminmodels.VersionRange{Start: 1 << 40, End: 1<<40 + 499}
	payload := EncodeRange(r)
	require.Len(t, payload, PayloadSize)

	got, err := DecodeRange(payload)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestDecodeRange_Rejects(t *testing.T) {
	_, err := DecodeRange([]byte{1, 2, 3})
	require.ErrorContains(t, err, "too short")

	_, err = DecodeRange(EncodeRange(adminmodels.VersionRange{Start: 10, End: 9}))
	require.ErrorContains(t, err, "invalid range")
}

func TestPublisher_PublishRange(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	defer pubSub.Close()

	p := NewWithPublisher(pubSub, "ranges")
	require.NoError(t, p.PublishRange(context.Background(), adminmodels.VersionRange{Start: 0, End: 99}))

	n, err := p.Backlog(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	msgs, err := pubSub.Subscribe(context.Background(), "ranges")
	require.NoError(t, err)
	select {
	case msg := <-msgs:
		r, err := DecodeRange(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, adminmodels.VersionRange{Start: 0, End: 99}, r)
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestGroupBacklog(t *testing.T) {
	groups := []redis.XInfoGroup{
		{Name: "other", Pending: 100, Lag: 100},
		{Name: "processor-workers", Pending: 4, Lag: 6, EntriesRead: 5000},
	}

	n, ok := groupBacklog(groups, "processor-workers")
	require.True(t, ok)
	// acknowledged history does not count, however long the stream is
	assert.Equal(t, int64(10), n)

	_, ok = groupBacklog(groups, "missing")
	assert.False(t, ok)
}
