package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery(t *testing.T) {
	assert.Equal(t, "@every 30s", Every(30*time.Second))
}

func TestAddValidates(t *testing.T) {
	s := New(nil)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("tick", Every(time.Second), noop))
	assert.Error(t, s.Add("tick", Every(time.Second), noop))
	assert.Error(t, s.Add("broken", "not a spec", noop))
	assert.Error(t, s.RunNow("missing"))
}

func TestRunNow(t *testing.T) {
	s := New(nil)
	want := errors.New("boom")
	require.NoError(t, s.Add("tick", Every(time.Hour), func(ctx context.Context) error {
		require.NoError(t, ctx.Err())
		return want
	}))
	assert.ErrorIs(t, s.RunNow("tick"), want)
}

func TestScheduledRunsAndStopCancels(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	cancelled := make(chan struct{})
	require.NoError(t, s.Add("tick", Every(time.Second), func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			<-ctx.Done()
			close(cancelled)
		}
		return nil
	}))
	s.Start()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	// the first run blocks, so later firings wait for it
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	select {
	case <-cancelled:
	default:
		t.Fatal("running job was not cancelled")
	}
}

func TestOverrunDelaysNextRun(t *testing.T) {
	s := New(nil)
	var runs, active, overlap atomic.Int32
	release := make(chan struct{})
	require.NoError(t, s.Add("tick", Every(time.Hour), func(ctx context.Context) error {
		if active.Add(1) > 1 {
			overlap.Add(1)
		}
		defer active.Add(-1)
		if runs.Add(1) == 1 {
			<-release
		}
		return nil
	}))

	first := make(chan error, 1)
	go func() { first <- s.RunNow("tick") }()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// both land while the first run is busy and collapse into one delayed run
	require.NoError(t, s.RunNow("tick"))
	require.NoError(t, s.RunNow("tick"))
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, int32(2), runs.Load())
	assert.Zero(t, overlap.Load())

	require.NoError(t, s.RunNow("tick"))
	assert.Equal(t, int32(3), runs.Load())
}

func TestPanickingJobDoesNotWedge(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	require.NoError(t, s.Add("tick", Every(time.Hour), func(context.Context) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}))

	assert.Panics(t, func() { _ = s.RunNow("tick") })
	require.NoError(t, s.RunNow("tick"))
	assert.Equal(t, int32(2), runs.Load())
}
