package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(t *testing.T, opts ...MemoryOption) (*MemoryCache, *clock) {
	t.Helper()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryClock(clk.now)}, opts...)...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc, clk
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc, _ := newTestCache(t)

	type state struct {
		Balance string `json:"balance"`
		Ticks   int    `json:"ticks"`
	}
	require.NoError(t, mc.Set(ctx, "treasury", state{Balance: "50.25", Ticks: 3}, 0))

	var got state
	require.NoError(t, mc.Get(ctx, "treasury", &got))
	assert.Equal(t, state{Balance: "50.25", Ticks: 3}, got)

	require.NoError(t, mc.Set(ctx, "raw", "plain", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "raw", &s))
	assert.Equal(t, "plain", s)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t)

	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clk.t = clk.t.Add(2 * time.Second)
	ok, _ = mc.Exists(ctx, "k")
	assert.False(t, ok)
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t, WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	clk.t = clk.t.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	clk.t = clk.t.Add(time.Second)

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s)) // a is now newer than b
	clk.t = clk.t.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.NoError(t, mc.Get(ctx, "c", &s))
}

func TestMemoryCacheLease(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t)

	ok, err := mc.AcquireLease(ctx, "tick", "engine-a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.AcquireLease(ctx, "tick", "engine-b", 10*time.Second)
	assert.False(t, ok, "held by another owner")

	ok, _ = mc.AcquireLease(ctx, "tick", "engine-a", 10*time.Second)
	assert.True(t, ok, "owner re-acquires")

	require.NoError(t, mc.ReleaseLease(ctx, "tick", "engine-b"))
	ok, _ = mc.AcquireLease(ctx, "tick", "engine-b", 10*time.Second)
	assert.False(t, ok, "release by a non-owner is ignored")

	clk.t = clk.t.Add(11 * time.Second)
	ok, _ = mc.AcquireLease(ctx, "tick", "engine-b", 10*time.Second)
	assert.True(t, ok, "expired lease is free")

	require.NoError(t, mc.ReleaseLease(ctx, "tick", "engine-b"))
	ok, _ = mc.Exists(ctx, "tick")
	assert.False(t, ok)
}
