package usecase

import (
	"time"

	"ArbPull/internal/domain/models"
	"ArbPull/internal/service/phase"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionSizer caps each position at kelly * balance * class weight.
// Opportunistic positions are further capped at an absolute amount.
type PositionSizer struct {
	kelly            decimal.Decimal
	opportunisticCap decimal.Decimal
	newID            func() string
	now              func() time.Time
}

func NewPositionSizer(kellyFraction, opportunisticCapUSD float64) *PositionSizer {
	return &PositionSizer{
		kelly:            decimal.NewFromFloat(kellyFraction),
		opportunisticCap: decimal.NewFromFloat(opportunisticCapUSD),
		newID:            uuid.NewString,
		now:              time.Now,
	}
}

// Size returns false for locked classes and amounts that round to zero.
func (s *PositionSizer) Size(opp models.Opportunity, balance decimal.Decimal, policy phase.Policy, tick uint64) (models.SizedPosition, bool) {
	if !policy.Unlocked(opp.Class) || !balance.IsPositive() {
		return models.SizedPosition{}, false
	}
	weight := decimal.NewFromFloat(policy.Weight(opp.Class))
	amount := s.kelly.Mul(balance).Mul(weight).Truncate(6)
	if opp.Class == models.ClassOpportunistic && amount.GreaterThan(s.opportunisticCap) {
		amount = s.opportunisticCap
	}
	if !amount.IsPositive() {
		return models.SizedPosition{}, false
	}
	return models.SizedPosition{
		DispatchID:  s.newID(),
		Opportunity: opp,
		Amount:      amount,
		Class:       opp.Class,
		Tick:        tick,
		SizedAt:     s.now(),
	}, true
}
