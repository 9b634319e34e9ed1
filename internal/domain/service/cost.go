package service

import (
	"context"

	"ArbPull/internal/domain/models"
)

// CostEstimator estimates one execution cost of an opportunity as a fraction
// of notional. Gas and slippage are both CostEstimators.
type CostEstimator interface {
	Estimate(ctx context.Context, opp models.Opportunity, fees models.FeeBook) (float64, error)
}

// CostEstimatorFunc adapts a function to CostEstimator.
type CostEstimatorFunc func(ctx context.Context, opp models.Opportunity, fees models.FeeBook) (float64, error)

func (f CostEstimatorFunc) Estimate(ctx context.Context, opp models.Opportunity, fees models.FeeBook) (float64, error) {
	return f(ctx, opp, fees)
}
