package usecase

import (
	"ArbPull/internal/domain/models"
	"ArbPull/internal/service/endpoint"
)

// reporter serializes endpoint reports into the tracker from one goroutine
// while reads run concurrently.
type reporter struct {
	ch   chan models.Report
	done chan struct{}
}

func startReporter(tracker *endpoint.Tracker, buf int) *reporter {
	r := &reporter{ch: make(chan models.Report, buf), done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for rep := range r.ch {
			tracker.Report(rep)
		}
	}()
	return r
}

func (r *reporter) report(rep models.Report) { r.ch <- rep }

// close waits until every report has been applied.
func (r *reporter) close() {
	close(r.ch)
	<-r.done
}
