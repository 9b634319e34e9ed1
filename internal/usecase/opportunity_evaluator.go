package usecase

import (
	"context"
	"errors"
	"fmt"

	"ArbPull/internal/domain/models"
	drepo "ArbPull/internal/domain/repository"
	dsvc "ArbPull/internal/domain/service"
	"ArbPull/pkg/logger"
)

// ErrFeeUnavailable means an opportunity could not be priced. It is always
// rejected.
var ErrFeeUnavailable = errors.New("fee estimate unavailable")

// OpportunityEvaluator subtracts estimated gas and slippage from gross edge
// and accepts what clears the net-edge threshold.
type OpportunityEvaluator struct {
	gas       dsvc.CostEstimator
	slippage  dsvc.CostEstimator
	threshold float64
	metrics   drepo.Metrics
	log       *logger.Logger
}

func NewOpportunityEvaluator(gas, slippage dsvc.CostEstimator, threshold float64, metrics drepo.Metrics, log *logger.Logger) *OpportunityEvaluator {
	return &OpportunityEvaluator{gas: gas, slippage: slippage, threshold: threshold, metrics: metrics, log: log}
}

// Evaluate returns Accept iff net edge >= threshold. A cost estimate failure
// yields Reject together with an error wrapping ErrFeeUnavailable.
func (e *OpportunityEvaluator) Evaluate(ctx context.Context, opp models.Opportunity, fees models.FeeBook) (models.Evaluation, error) {
	gas, err := e.gas.Estimate(ctx, opp, fees)
	if err != nil {
		return e.costUnknown(opp, "gas", err)
	}
	slip, err := e.slippage.Estimate(ctx, opp, fees)
	if err != nil {
		return e.costUnknown(opp, "slippage", err)
	}

	opp.GasCost = nonNegative(gas)
	opp.Slippage = nonNegative(slip)
	opp.NetEdge = opp.GrossEdge - opp.GasCost - opp.Slippage

	if opp.NetEdge >= e.threshold {
		return models.Evaluation{Opportunity: opp, Decision: models.Accept}, nil
	}
	return models.Evaluation{
		Opportunity: opp,
		Decision:    models.Reject,
		Reason:      fmt.Sprintf("net edge %.5f below threshold %.5f", opp.NetEdge, e.threshold),
	}, nil
}

func (e *OpportunityEvaluator) costUnknown(opp models.Opportunity, what string, err error) (models.Evaluation, error) {
	e.metrics.RecordError("cost_unknown")
	e.log.Error("cost estimate unavailable, rejecting",
		logger.String("opportunity", opp.ID),
		logger.String("estimate", what),
		logger.Error(err),
	)
	return models.Evaluation{
		Opportunity: opp,
		Decision:    models.Reject,
		Reason:      string(models.ErrClassCostUnknown) + ": " + what,
	}, fmt.Errorf("%s %s: %w: %v", opp.ID, what, ErrFeeUnavailable, err)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
