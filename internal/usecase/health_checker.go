package usecase

import (
	"context"
	"sync"
	"time"

	"ArbPull/internal/domain/models"
	drepo "ArbPull/internal/domain/repository"
	"ArbPull/internal/service/endpoint"
	"ArbPull/pkg/logger"
)

// HealthChecker refreshes tracker state before a tick's reads by probing
// every endpoint outside backoff with eth_blockNumber.
type HealthChecker struct {
	tracker     *endpoint.Tracker
	prober      drepo.ChainProber
	timeout     time.Duration
	maxInFlight int
	metrics     drepo.Metrics
	log         *logger.Logger
}

func NewHealthChecker(tracker *endpoint.Tracker, prober drepo.ChainProber, timeout time.Duration, maxInFlight int, metrics drepo.Metrics, log *logger.Logger) *HealthChecker {
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &HealthChecker{
		tracker:     tracker,
		prober:      prober,
		timeout:     timeout,
		maxInFlight: maxInFlight,
		metrics:     metrics,
		log:         log,
	}
}

// Check probes eligible endpoints and returns the number usable per chain.
func (h *HealthChecker) Check(ctx context.Context) map[models.Chain]int {
	start := time.Now()
	eps := h.tracker.Eligible()
	rep := startReporter(h.tracker, len(eps))

	sem := make(chan struct{}, h.maxInFlight)
	var wg sync.WaitGroup
	for _, ep := range eps {
		wg.Add(1)
		go func(ep models.Endpoint) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			t0 := time.Now()
			_, err := h.prober.Ping(callCtx, ep)
			if err != nil && ctx.Err() != nil {
				// tick deadline, not the endpoint's fault
				return
			}
			rep.report(models.Report{EndpointID: ep.ID(), Success: err == nil, Latency: time.Since(t0), Err: err})
			if err != nil {
				h.log.Debug("health probe failed", logger.String("chain", string(ep.Chain)), logger.String("url", ep.URL), logger.Error(err))
			}
		}(ep)
	}
	wg.Wait()
	rep.close()

	out := make(map[models.Chain]int)
	for _, c := range h.tracker.Chains() {
		out[c] = len(h.tracker.Rank(c))
	}
	h.metrics.RecordLatency("health_check", time.Since(start).Seconds())
	return out
}
