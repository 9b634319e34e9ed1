package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	ticksTotal     *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	opportunities  *prometheus.CounterVec
	dispatches     *prometheus.CounterVec
	endpointHealth *prometheus.GaugeVec
	treasury       *prometheus.GaugeVec
	phase          *prometheus.GaugeVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ticksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbpull_ticks_total",
				Help: "Ticks finalized by status",
			},
			[]string{"status"},
		),
		tickDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbpull_tick_duration_seconds",
				Help:    "Wall-clock duration of a tick",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
		),
		opportunities: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbpull_opportunities_total",
				Help: "Opportunities by evaluation result",
			},
			[]string{"result"},
		),
		dispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbpull_dispatches_total",
				Help: "Dispatches by execution status",
			},
			[]string{"status"},
		),
		endpointHealth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arbpull_endpoint_health_score",
				Help: "EWMA health score per endpoint",
			},
			[]string{"chain", "url"},
		),
		treasury: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arbpull_treasury_usd",
				Help: "Treasury amounts in USD",
			},
			[]string{"kind"},
		),
		phase: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arbpull_phase",
				Help: "1 for the current phase, 0 otherwise",
			},
			[]string{"phase"},
		),
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordTick(status string, seconds float64) {
	r.ticksTotal.WithLabelValues(status).Inc()
	r.tickDuration.Observe(seconds)
}

func (r *Recorder) RecordOpportunities(considered, accepted int) {
	r.opportunities.WithLabelValues("accepted").Add(float64(accepted))
	r.opportunities.WithLabelValues("rejected").Add(float64(considered - accepted))
}

func (r *Recorder) RecordDispatch(status string) {
	r.dispatches.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordEndpointHealth(chain, url string, score float64) {
	r.endpointHealth.WithLabelValues(chain, url).Set(score)
}

func (r *Recorder) RecordTreasury(balance, wired, undisbursed float64) {
	r.treasury.WithLabelValues("balance").Set(balance)
	r.treasury.WithLabelValues("wired").Set(wired)
	r.treasury.WithLabelValues("undisbursed").Set(undisbursed)
}

// RecordPhase flips the phase gauge so exactly one phase reads 1.
func (r *Recorder) RecordPhase(phase string) {
	for _, p := range []string{"bootstrap", "replicate", "mesh"} {
		v := 0.0
		if p == phase {
			v = 1
		}
		r.phase.WithLabelValues(p).Set(v)
	}
}

// Noop discards all metrics.
type Noop struct{}

func (Noop) RecordError(string)                           {}
func (Noop) RecordLatency(string, float64)                {}
func (Noop) RecordTick(string, float64)                   {}
func (Noop) RecordOpportunities(int, int)                 {}
func (Noop) RecordDispatch(string)                        {}
func (Noop) RecordEndpointHealth(string, string, float64) {}
func (Noop) RecordTreasury(float64, float64, float64)     {}
func (Noop) RecordPhase(string)                           {}
