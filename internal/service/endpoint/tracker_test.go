package endpoint

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"ArbPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(clock *fakeClock, eps ...models.Endpoint) *Tracker {
	return NewTracker(eps,
		WithClock(clock.Now),
		WithFailureThreshold(3),
		WithBackoff(time.Second, 16*time.Second),
	)
}

var (
	epA = models.Endpoint{Chain: "base", URL: "https://a.example"}
	epB = models.Endpoint{Chain: "base", URL: "https://b.example"}
	epC = models.Endpoint{Chain: "base", URL: "https://c.example"}
)

func fail(t *Tracker, ep models.Endpoint) {
	t.Report(models.Report{EndpointID: ep.ID(), Err: errors.New("timeout")})
}

func succeed(t *Tracker, ep models.Endpoint) {
	t.Report(models.Report{EndpointID: ep.ID(), Success: true, Latency: 50 * time.Millisecond})
}

func TestTrackerStateMachine(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock, epA)

	got, _ := tr.Get(epA.ID())
	assert.Equal(t, models.EndpointHealthy, got.State)

	fail(tr, epA)
	fail(tr, epA)
	got, _ = tr.Get(epA.ID())
	assert.Equal(t, models.EndpointDegraded, got.State)
	assert.Zero(t, got.BackoffDelay)
	assert.Len(t, tr.Rank("base"), 1, "degraded endpoints stay eligible")

	fail(tr, epA)
	got, _ = tr.Get(epA.ID())
	assert.Equal(t, models.EndpointBackedOff, got.State)
	assert.Equal(t, time.Second, got.BackoffDelay)
	assert.Empty(t, tr.Rank("base"))

	clock.Advance(2 * time.Second)
	assert.Len(t, tr.Rank("base"), 1, "expired backoff is eligible again")

	succeed(tr, epA)
	got, _ = tr.Get(epA.ID())
	assert.Equal(t, models.EndpointHealthy, got.State)
	assert.Zero(t, got.ConsecutiveFailures)
	assert.Zero(t, got.BackoffDelay)
	assert.True(t, got.BackoffUntil.IsZero())
}

func TestTrackerBackoffDoublesAndCaps(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock, epA)

	want := []time.Duration{0, 0, 1, 2, 4, 8, 16, 16, 16}
	for i, w := range want {
		fail(tr, epA)
		got, _ := tr.Get(epA.ID())
		assert.Equal(t, w*time.Second, got.BackoffDelay, "failure %d", i+1)
	}
}

func TestTrackerBackoffMonotonicAndScoreBounded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock, epA)
	rng := rand.New(rand.NewSource(7))

	var lastDelay time.Duration
	var lastUntil time.Time
	for i := 0; i < 2000; i++ {
		clock.Advance(time.Duration(rng.Intn(3000)) * time.Millisecond)
		success := rng.Float64() < 0.35
		if success {
			succeed(tr, epA)
		} else {
			fail(tr, epA)
		}

		got, _ := tr.Get(epA.ID())
		require.GreaterOrEqual(t, got.Score, 0.0)
		require.LessOrEqual(t, got.Score, 1.0)

		if success {
			require.Zero(t, got.BackoffDelay)
			require.True(t, got.BackoffUntil.IsZero())
		} else {
			require.GreaterOrEqual(t, got.BackoffDelay, lastDelay)
			require.False(t, got.BackoffUntil.Before(lastUntil))
		}
		lastDelay, lastUntil = got.BackoffDelay, got.BackoffUntil
	}
}

func TestTrackerEWMA(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock, epA)

	fail(tr, epA)
	got, _ := tr.Get(epA.ID())
	assert.InDelta(t, 0.7, got.Score, 1e-9)

	succeed(tr, epA)
	got, _ = tr.Get(epA.ID())
	assert.InDelta(t, 0.3+0.7*0.7, got.Score, 1e-9)
	assert.EqualValues(t, 2, got.TotalRequests)
	assert.EqualValues(t, 1, got.TotalErrors)
	assert.Equal(t, "timeout", got.LastError)
}

func TestTrackerLatencyEMA(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock, epA)

	tr.Report(models.Report{EndpointID: epA.ID(), Success: true, Latency: 100 * time.Millisecond})
	tr.Report(models.Report{EndpointID: epA.ID(), Success: true, Latency: 200 * time.Millisecond})
	got, _ := tr.Get(epA.ID())
	assert.InDelta(t, 130.0, got.LatencyMs, 1e-9)
}

func TestTrackerRankOrdering(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	other := models.Endpoint{Chain: "polygon", URL: "https://p.example"}
	tr := newTestTracker(clock, epC, epB, epA, other)

	fail(tr, epC)
	tr.Report(models.Report{EndpointID: epA.ID(), Success: true, Latency: 90 * time.Millisecond})
	tr.Report(models.Report{EndpointID: epB.ID(), Success: true, Latency: 40 * time.Millisecond})

	ranked := tr.Rank("base")
	require.Len(t, ranked, 3)
	assert.Equal(t, epB.URL, ranked[0].URL)
	assert.Equal(t, epA.URL, ranked[1].URL)
	assert.Equal(t, epC.URL, ranked[2].URL)

	healthy, total := tr.Summary()
	assert.Equal(t, 4, healthy)
	assert.Equal(t, 4, total)
	assert.ElementsMatch(t, []models.Chain{"base", "polygon"}, tr.Chains())
}

func TestTrackerIgnoresUnknownEndpoint(t *testing.T) {
	tr := NewTracker([]models.Endpoint{epA})
	tr.Report(models.Report{EndpointID: "nope"})
	assert.Len(t, tr.Snapshot(), 1)
}
