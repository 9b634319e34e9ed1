package models

import "time"

// Chain identifies an EVM network by name (e.g. "base", "arbitrum").
type Chain string

// EndpointState is the per-endpoint reachability state.
type EndpointState string

const (
	EndpointHealthy   EndpointState = "healthy"
	EndpointDegraded  EndpointState = "degraded"
	EndpointBackedOff EndpointState = "backed_off"
)

// Endpoint is a single RPC endpoint and its rolling health.
type Endpoint struct {
	Chain    Chain  `json:"chain"`
	URL      string `json:"url"`
	Provider string `json:"provider,omitempty"`

	State               EndpointState `json:"state"`
	Score               float64       `json:"score"` // EWMA in [0,1]
	LatencyMs           float64       `json:"latency_ms"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	BackoffDelay        time.Duration `json:"backoff_delay"`
	BackoffUntil        time.Time     `json:"backoff_until"`
	LastSuccess         time.Time     `json:"last_success"`
	LastError           string        `json:"last_error,omitempty"`
	TotalRequests       uint64        `json:"total_requests"`
	TotalErrors         uint64        `json:"total_errors"`
}

// ID is the endpoint identity used by the tracker and the rate limiter.
func (e Endpoint) ID() string {
	return string(e.Chain) + "|" + e.URL
}

// Report is a single outcome of a call through an endpoint.
type Report struct {
	EndpointID string
	Success    bool
	Latency    time.Duration
	Err        error
}
