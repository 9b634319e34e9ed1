package phase

import (
	"fmt"

	"ArbPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Policy is the immutable capital-allocation policy of one phase.
type Policy struct {
	Phase   models.Phase                     `json:"phase"`
	Weights map[models.StrategyClass]float64 `json:"weights"`
	Locked  map[models.StrategyClass]bool    `json:"locked,omitempty"`
}

// Weight returns the class weight, or 0 when the class is locked.
func (p Policy) Weight(class models.StrategyClass) float64 {
	if p.Locked[class] {
		return 0
	}
	return p.Weights[class]
}

// Unlocked reports whether the phase allows sizing the class.
func (p Policy) Unlocked(class models.StrategyClass) bool {
	return !p.Locked[class] && p.Weights[class] > 0
}

var policies = map[models.Phase]Policy{
	models.PhaseBootstrap: {
		Phase: models.PhaseBootstrap,
		Weights: map[models.StrategyClass]float64{
			models.ClassConservative:  0.2,
			models.ClassOpportunistic: 0.8,
			models.ClassAdvanced:      0,
		},
		Locked: map[models.StrategyClass]bool{models.ClassAdvanced: true},
	},
	models.PhaseReplicate: {
		Phase: models.PhaseReplicate,
		Weights: map[models.StrategyClass]float64{
			models.ClassConservative:  0.2,
			models.ClassOpportunistic: 0.5,
			models.ClassAdvanced:      0.3,
		},
	},
	models.PhaseMesh: {
		Phase: models.PhaseMesh,
		Weights: map[models.StrategyClass]float64{
			models.ClassConservative:  0.2,
			models.ClassOpportunistic: 0.4,
			models.ClassAdvanced:      0.4,
		},
	},
}

// PolicyFor returns the policy of a phase. Unknown phases get the Bootstrap policy.
func PolicyFor(p models.Phase) Policy {
	if pol, ok := policies[p]; ok {
		return pol
	}
	return policies[models.PhaseBootstrap]
}

// Option configures Machine.
type Option func(*Machine)

// WithUnlockBalance sets the balance that moves Bootstrap to Replicate.
func WithUnlockBalance(usd decimal.Decimal) Option {
	return func(m *Machine) {
		if usd.IsPositive() {
			m.unlock = usd
		}
	}
}

// WithMinPeers sets the peer count that moves Replicate to Mesh.
func WithMinPeers(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.minPeers = n
		}
	}
}

// Machine evaluates phase transitions. It holds no phase itself; the
// current phase lives in TreasuryState.
type Machine struct {
	unlock   decimal.Decimal
	minPeers int
}

func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		unlock:   decimal.NewFromInt(500),
		minPeers: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Next returns the phase after one evaluation and whether it changed.
// At most one step is taken and the result never precedes current.
func (m *Machine) Next(current models.Phase, balance decimal.Decimal, peers int) (models.Phase, bool) {
	switch current {
	case models.PhaseBootstrap, "":
		if balance.GreaterThanOrEqual(m.unlock) {
			return models.PhaseReplicate, true
		}
		return models.PhaseBootstrap, current == ""
	case models.PhaseReplicate:
		if peers >= m.minPeers {
			return models.PhaseMesh, true
		}
	}
	return current, false
}

// UnlockBalance returns the Replicate threshold.
func (m *Machine) UnlockBalance() decimal.Decimal { return m.unlock }

// MinPeers returns the Mesh threshold.
func (m *Machine) MinPeers() int { return m.minPeers }

// Parse validates a persisted phase tag.
func Parse(s string) (models.Phase, error) {
	switch p := models.Phase(s); p {
	case models.PhaseBootstrap, models.PhaseReplicate, models.PhaseMesh:
		return p, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}
