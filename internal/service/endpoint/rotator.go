package endpoint

import (
	"errors"
	"fmt"

	"ArbPull/internal/domain/models"
)

// ErrNoEndpointAvailable means every endpoint of a chain is backed off. The
// caller skips the chain for the tick.
var ErrNoEndpointAvailable = errors.New("no endpoint available")

// Rotator picks endpoints from the tracker's cached health. It never blocks on I/O.
type Rotator struct {
	tracker *Tracker
}

func NewRotator(tracker *Tracker) *Rotator {
	return &Rotator{tracker: tracker}
}

// Select returns the best endpoint for chain.
func (r *Rotator) Select(chain models.Chain) (models.Endpoint, error) {
	ranked := r.tracker.Rank(chain)
	if len(ranked) == 0 {
		return models.Endpoint{}, fmt.Errorf("%s: %w", chain, ErrNoEndpointAvailable)
	}
	return ranked[0], nil
}

// Ranked returns the chain's usable endpoints best first; the collector uses
// the first two for its call and single retry.
func (r *Rotator) Ranked(chain models.Chain) []models.Endpoint {
	return r.tracker.Rank(chain)
}
