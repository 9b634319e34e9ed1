package usecase

import (
	"math/rand"
	"testing"

	"ArbPull/internal/domain/models"
	"ArbPull/internal/service/phase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeBootstrapScenario(t *testing.T) {
	s := NewPositionSizer(0.01, 50)
	opp := models.Opportunity{ID: "x", Class: models.ClassOpportunistic, NetEdge: 0.0035}

	pos, ok := s.Size(opp, decimal.NewFromInt(50), phase.PolicyFor(models.PhaseBootstrap), 3)
	require.True(t, ok)
	assert.Equal(t, "0.4", pos.Amount.String())
	assert.Equal(t, uint64(3), pos.Tick)
	assert.Equal(t, models.ClassOpportunistic, pos.Class)
	assert.NotEmpty(t, pos.DispatchID)
}

func TestSizeLockedClass(t *testing.T) {
	s := NewPositionSizer(0.01, 50)
	opp := models.Opportunity{Class: models.ClassAdvanced}

	_, ok := s.Size(opp, decimal.NewFromInt(1000), phase.PolicyFor(models.PhaseBootstrap), 1)
	assert.False(t, ok)

	pos, ok := s.Size(opp, decimal.NewFromInt(1000), phase.PolicyFor(models.PhaseReplicate), 1)
	require.True(t, ok)
	assert.Equal(t, "3", pos.Amount.String())
}

func TestSizeOpportunisticCap(t *testing.T) {
	s := NewPositionSizer(0.01, 50)
	opp := models.Opportunity{Class: models.ClassOpportunistic}

	pos, ok := s.Size(opp, decimal.NewFromInt(1_000_000), phase.PolicyFor(models.PhaseBootstrap), 1)
	require.True(t, ok)
	assert.Equal(t, "50", pos.Amount.String())

	cons := models.Opportunity{Class: models.ClassConservative}
	pos, ok = s.Size(cons, decimal.NewFromInt(1_000_000), phase.PolicyFor(models.PhaseBootstrap), 1)
	require.True(t, ok)
	assert.Equal(t, "2000", pos.Amount.String(), "the absolute cap only binds opportunistic trades")
}

func TestSizeZeroBalance(t *testing.T) {
	s := NewPositionSizer(0.01, 50)
	_, ok := s.Size(models.Opportunity{Class: models.ClassOpportunistic}, decimal.Zero, phase.PolicyFor(models.PhaseBootstrap), 1)
	assert.False(t, ok)

	_, ok = s.Size(models.Opportunity{Class: models.ClassOpportunistic}, decimal.RequireFromString("0.00001"), phase.PolicyFor(models.PhaseBootstrap), 1)
	assert.False(t, ok, "amounts truncating to zero are not sized")
}

func TestSizeNeverExceedsBounds(t *testing.T) {
	s := NewPositionSizer(0.01, 50)
	rng := rand.New(rand.NewSource(42))
	kelly := decimal.NewFromFloat(0.01)
	ceiling := decimal.NewFromInt(50)

	for i := 0; i < 1000; i++ {
		balance := decimal.NewFromFloat(rng.Float64() * 1e7).Truncate(2)
		p := []models.Phase{models.PhaseBootstrap, models.PhaseReplicate, models.PhaseMesh}[rng.Intn(3)]
		class := models.StrategyClasses[rng.Intn(3)]
		policy := phase.PolicyFor(p)

		pos, ok := s.Size(models.Opportunity{Class: class}, balance, policy, 1)
		if !ok {
			continue
		}
		bound := kelly.Mul(balance).Mul(decimal.NewFromFloat(policy.Weight(class)))
		require.True(t, pos.Amount.LessThanOrEqual(bound), "%s > %s", pos.Amount, bound)
		if class == models.ClassOpportunistic {
			require.True(t, pos.Amount.LessThanOrEqual(ceiling))
		}
	}
}
