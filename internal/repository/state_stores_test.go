package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ArbPull/internal/domain/models"
	domrepo "ArbPull/internal/domain/repository"
	"ArbPull/pkg/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() models.TreasuryState {
	st := models.NewTreasuryState(decimal.NewFromInt(50))
	st.Phase = models.PhaseReplicate
	st.Undisbursed = decimal.RequireFromString("0.31")
	st.Pending["d-9"] = models.Dispatch{DispatchID: "d-9", OpportunityID: "opp", Tick: 4, Amount: decimal.NewFromInt(2)}
	return st
}

func assertSameState(t *testing.T, want, got models.TreasuryState) {
	t.Helper()
	assert.True(t, want.Balance.Equal(got.Balance))
	assert.True(t, want.Undisbursed.Equal(got.Undisbursed))
	assert.Equal(t, want.Phase, got.Phase)
	require.Contains(t, got.Pending, "d-9")
	assert.True(t, got.Pending["d-9"].Amount.Equal(decimal.NewFromInt(2)))
}

func TestCacheStateStore(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	store := NewCacheStateStore(mc, "arbpull:treasury")

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domrepo.ErrStateNotFound)

	require.NoError(t, store.Save(ctx, sampleState()))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assertSameState(t, sampleState(), got)
}

func TestFileStateStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "treasury.json")
	store := NewFileStateStore(path)

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domrepo.ErrStateNotFound)

	require.NoError(t, store.Save(ctx, sampleState()))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := NewFileStateStore(path).Load(ctx)
	require.NoError(t, err)
	assertSameState(t, sampleState(), got)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = store.Load(ctx)
	assert.ErrorContains(t, err, "parse state file")
}

func TestCacheTickLease(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	a := NewCacheTickLease(mc, "arbpull:lease", "engine-a")
	b := NewCacheTickLease(mc, "arbpull:lease", "engine-b")

	ok, err := a.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
