package usecase

import (
	"context"
	"errors"
	"testing"

	"ArbPull/internal/domain/models"
	dsvc "ArbPull/internal/domain/service"
	"ArbPull/pkg/logger"
	"ArbPull/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedCost(v float64) dsvc.CostEstimator {
	return dsvc.CostEstimatorFunc(func(context.Context, models.Opportunity, models.FeeBook) (float64, error) {
		return v, nil
	})
}

func TestEvaluateNetEdgeScenario(t *testing.T) {
	e := NewOpportunityEvaluator(fixedCost(0.001), fixedCost(0.0005), 0.003, metrics.Noop{}, logger.Nop())
	ev, err := e.Evaluate(context.Background(), models.Opportunity{ID: "x", GrossEdge: 0.005}, nil)

	require.NoError(t, err)
	assert.True(t, ev.Accepted())
	assert.InDelta(t, 0.0035, ev.Opportunity.NetEdge, 1e-12)
	assert.Equal(t, 0.001, ev.Opportunity.GasCost)
	assert.Equal(t, 0.0005, ev.Opportunity.Slippage)
}

func TestEvaluateThreshold(t *testing.T) {
	e := NewOpportunityEvaluator(fixedCost(0.001), fixedCost(0.001), 0.003, metrics.Noop{}, logger.Nop())

	tests := []struct {
		gross float64
		want  models.Decision
	}{
		{0.0049, models.Reject},
		{0.0051, models.Accept},
		{0.02, models.Accept},
		{0.001, models.Reject},
	}
	for _, tt := range tests {
		ev, err := e.Evaluate(context.Background(), models.Opportunity{GrossEdge: tt.gross}, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ev.Decision, "gross %v", tt.gross)
		assert.Equal(t, ev.Accepted(), ev.Opportunity.NetEdge >= 0.003)
	}
}

func TestEvaluateNegativeCostsClamp(t *testing.T) {
	e := NewOpportunityEvaluator(fixedCost(-0.01), fixedCost(-0.01), 0.003, metrics.Noop{}, logger.Nop())
	ev, err := e.Evaluate(context.Background(), models.Opportunity{GrossEdge: 0.002}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.Reject, ev.Decision)
	assert.Equal(t, 0.002, ev.Opportunity.NetEdge)
}

func TestEvaluateFeeUnavailableRejects(t *testing.T) {
	failing := dsvc.CostEstimatorFunc(func(context.Context, models.Opportunity, models.FeeBook) (float64, error) {
		return 0, errors.New("no fee level")
	})
	e := NewOpportunityEvaluator(failing, fixedCost(0), 0.003, metrics.Noop{}, logger.Nop())

	ev, err := e.Evaluate(context.Background(), models.Opportunity{ID: "x", GrossEdge: 0.5}, nil)
	assert.ErrorIs(t, err, ErrFeeUnavailable)
	assert.Equal(t, models.Reject, ev.Decision)
	assert.Contains(t, ev.Reason, "cost_unknown")
}
