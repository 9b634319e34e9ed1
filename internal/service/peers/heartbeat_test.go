package peers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	topic string
	key   string
	value interface{}
}

func (c *capturePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	c.topic, c.key, c.value = topic, string(key), value
	return nil
}

func beat(t *testing.T, instance string, at time.Time) []byte {
	t.Helper()
	b, err := json.Marshal(heartbeat{Instance: instance, TS: at.UnixMilli()})
	require.NoError(t, err)
	return b
}

func TestHeartbeatsCountOthersInsideWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	h := NewHeartbeats(&capturePublisher{}, "arbpull.peers", "engine-a", time.Minute, nil)
	h.now = func() time.Time { return now }

	require.NoError(t, h.Handle(ctx, nil, beat(t, "engine-a", now)))
	require.NoError(t, h.Handle(ctx, nil, beat(t, "engine-b", now)))
	require.NoError(t, h.Handle(ctx, nil, beat(t, "engine-c", now)))
	require.NoError(t, h.Handle(ctx, nil, beat(t, "engine-d", now.Add(-2*time.Minute))))
	assert.Equal(t, 2, h.PeerCount(ctx))

	now = now.Add(45 * time.Second)
	require.NoError(t, h.Handle(ctx, nil, beat(t, "engine-b", now)))
	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, h.PeerCount(ctx), "engine-c went quiet")

	assert.Error(t, h.Handle(ctx, nil, []byte("nope")))
}

func TestHeartbeatsBeat(t *testing.T) {
	pub := &capturePublisher{}
	h := NewHeartbeats(pub, "arbpull.peers", "engine-a", 0, nil)
	h.now = func() time.Time { return time.UnixMilli(42) }

	require.NoError(t, h.Beat(context.Background()))
	assert.Equal(t, "arbpull.peers", pub.topic)
	assert.Equal(t, "engine-a", pub.key)
	assert.Equal(t, heartbeat{Instance: "engine-a", TS: 42}, pub.value)
	assert.Equal(t, "arbpull.peers", h.Topic())
}
