package endpoint

import (
	"sort"
	"sync"
	"time"

	"ArbPull/internal/domain/models"
)

const (
	DefaultAlpha            = 0.3
	DefaultFailureThreshold = 3
	DefaultBaseBackoff      = time.Second
	DefaultMaxBackoff       = 16 * time.Second
)

// TrackerOption configures Tracker.
type TrackerOption func(*Tracker)

// WithAlpha sets the EWMA weight given to the newest sample.
func WithAlpha(alpha float64) TrackerOption {
	return func(t *Tracker) {
		if alpha > 0 && alpha <= 1 {
			t.alpha = alpha
		}
	}
}

// WithFailureThreshold sets consecutive failures before backoff starts.
func WithFailureThreshold(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.threshold = n
		}
	}
}

// WithBackoff sets the first backoff delay and its ceiling.
func WithBackoff(base, ceiling time.Duration) TrackerOption {
	return func(t *Tracker) {
		if base > 0 {
			t.baseBackoff = base
		}
		if ceiling >= t.baseBackoff {
			t.maxBackoff = ceiling
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// Tracker keeps the rolling health of every endpoint. It performs no I/O.
// Writes come from a single reporter per stage; reads may be concurrent.
type Tracker struct {
	mu          sync.RWMutex
	endpoints   map[string]*models.Endpoint
	order       []string
	alpha       float64
	threshold   int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

// NewTracker registers endpoints as healthy with a full score.
func NewTracker(endpoints []models.Endpoint, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		endpoints:   make(map[string]*models.Endpoint, len(endpoints)),
		alpha:       DefaultAlpha,
		threshold:   DefaultFailureThreshold,
		baseBackoff: DefaultBaseBackoff,
		maxBackoff:  DefaultMaxBackoff,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, ep := range endpoints {
		id := ep.ID()
		if _, dup := t.endpoints[id]; dup {
			continue
		}
		e := ep
		e.State = models.EndpointHealthy
		e.Score = 1
		e.ConsecutiveFailures = 0
		e.BackoffDelay = 0
		e.BackoffUntil = time.Time{}
		t.endpoints[id] = &e
		t.order = append(t.order, id)
	}
	return t
}

// Report records one call outcome.
func (t *Tracker) Report(r models.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.endpoints[r.EndpointID]
	if !ok {
		return
	}
	now := t.now()
	e.TotalRequests++

	if r.Latency > 0 {
		ms := float64(r.Latency) / float64(time.Millisecond)
		if e.LatencyMs == 0 {
			e.LatencyMs = ms
		} else {
			e.LatencyMs = (e.LatencyMs*7 + ms*3) / 10
		}
	}

	if r.Success {
		e.Score = clamp(t.alpha + (1-t.alpha)*e.Score)
		e.ConsecutiveFailures = 0
		e.BackoffDelay = 0
		e.BackoffUntil = time.Time{}
		e.LastSuccess = now
		e.State = models.EndpointHealthy
		return
	}

	e.TotalErrors++
	e.Score = clamp((1 - t.alpha) * e.Score)
	e.ConsecutiveFailures++
	if r.Err != nil {
		e.LastError = r.Err.Error()
	}

	if e.ConsecutiveFailures < t.threshold {
		e.State = models.EndpointDegraded
		return
	}

	delay := t.backoffFor(e.ConsecutiveFailures)
	if delay < e.BackoffDelay {
		delay = e.BackoffDelay
	}
	e.BackoffDelay = delay
	if until := now.Add(delay); until.After(e.BackoffUntil) {
		e.BackoffUntil = until
	}
	e.State = models.EndpointBackedOff
}

// backoffFor returns base * 2^(failures-threshold), capped.
func (t *Tracker) backoffFor(failures int) time.Duration {
	delay := t.baseBackoff
	for i := t.threshold; i < failures; i++ {
		delay *= 2
		if delay >= t.maxBackoff {
			return t.maxBackoff
		}
	}
	if delay > t.maxBackoff {
		return t.maxBackoff
	}
	return delay
}

// Rank returns the chain's endpoints outside backoff, best first.
func (t *Tracker) Rank(chain models.Chain) []models.Endpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make([]models.Endpoint, 0, len(t.order))
	for _, id := range t.order {
		e := t.endpoints[id]
		if e.Chain != chain || inBackoff(e, now) {
			continue
		}
		out = append(out, *e)
	}
	sortRanked(out)
	return out
}

// Eligible returns every endpoint outside backoff across all chains.
func (t *Tracker) Eligible() []models.Endpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make([]models.Endpoint, 0, len(t.order))
	for _, id := range t.order {
		if e := t.endpoints[id]; !inBackoff(e, now) {
			out = append(out, *e)
		}
	}
	return out
}

// Get returns a copy of one endpoint.
func (t *Tracker) Get(id string) (models.Endpoint, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.endpoints[id]
	if !ok {
		return models.Endpoint{}, false
	}
	return *e, true
}

// Snapshot returns copies of every endpoint in registration order.
func (t *Tracker) Snapshot() []models.Endpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.Endpoint, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.endpoints[id])
	}
	return out
}

// Summary returns how many endpoints are currently outside backoff.
func (t *Tracker) Summary() (healthy, total int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	for _, id := range t.order {
		if !inBackoff(t.endpoints[id], now) {
			healthy++
		}
	}
	return healthy, len(t.order)
}

// Chains returns the distinct chains with registered endpoints.
func (t *Tracker) Chains() []models.Chain {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[models.Chain]bool)
	var out []models.Chain
	for _, id := range t.order {
		c := t.endpoints[id].Chain
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func inBackoff(e *models.Endpoint, now time.Time) bool {
	return e.State == models.EndpointBackedOff && now.Before(e.BackoffUntil)
}

func sortRanked(eps []models.Endpoint) {
	sort.SliceStable(eps, func(i, j int) bool {
		if eps[i].Score != eps[j].Score {
			return eps[i].Score > eps[j].Score
		}
		if eps[i].LatencyMs != eps[j].LatencyMs {
			return eps[i].LatencyMs < eps[j].LatencyMs
		}
		return eps[i].URL < eps[j].URL
	})
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
