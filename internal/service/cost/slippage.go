package cost

import (
	"context"

	"ArbPull/internal/domain/models"
)

// SlippageEstimator approximates constant-product price impact per leg as
// notional / pool liquidity. Legs with unknown depth use a fixed fraction.
type SlippageEstimator struct {
	referenceNotional float64
	fixed             float64
	floor             float64
}

func NewSlippageEstimator(referenceNotionalUSD, fixed, floor float64) *SlippageEstimator {
	if referenceNotionalUSD <= 0 {
		referenceNotionalUSD = 50
	}
	return &SlippageEstimator{referenceNotional: referenceNotionalUSD, fixed: fixed, floor: floor}
}

func (s *SlippageEstimator) Estimate(_ context.Context, opp models.Opportunity, _ models.FeeBook) (float64, error) {
	return s.leg(opp.Buy) + s.leg(opp.Sell), nil
}

func (s *SlippageEstimator) leg(q models.Quote) float64 {
	v := s.fixed
	if q.LiquidityUSD > 0 {
		v = s.referenceNotional / q.LiquidityUSD
	}
	if v < s.floor {
		v = s.floor
	}
	return v
}
