package phase

import (
	"testing"

	"ArbPull/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPolicyTable(t *testing.T) {
	tests := []struct {
		phase                       models.Phase
		conservative, opportunistic float64
		advanced                    float64
		advancedUnlocked            bool
	}{
		{models.PhaseBootstrap, 0.2, 0.8, 0, false},
		{models.PhaseReplicate, 0.2, 0.5, 0.3, true},
		{models.PhaseMesh, 0.2, 0.4, 0.4, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			p := PolicyFor(tt.phase)
			assert.Equal(t, tt.conservative, p.Weight(models.ClassConservative))
			assert.Equal(t, tt.opportunistic, p.Weight(models.ClassOpportunistic))
			assert.Equal(t, tt.advanced, p.Weight(models.ClassAdvanced))
			assert.Equal(t, tt.advancedUnlocked, p.Unlocked(models.ClassAdvanced))
		})
	}
}

func TestMachineNext(t *testing.T) {
	m := NewMachine()
	d := decimal.NewFromInt

	tests := []struct {
		name    string
		current models.Phase
		balance decimal.Decimal
		peers   int
		want    models.Phase
		changed bool
	}{
		{"bootstrap below unlock", models.PhaseBootstrap, d(499), 5, models.PhaseBootstrap, false},
		{"bootstrap at unlock", models.PhaseBootstrap, d(500), 0, models.PhaseReplicate, true},
		{"one step only", models.PhaseBootstrap, d(900), 3, models.PhaseReplicate, true},
		{"replicate waits for peers", models.PhaseReplicate, d(900), 0, models.PhaseReplicate, false},
		{"replicate to mesh", models.PhaseReplicate, d(900), 1, models.PhaseMesh, true},
		{"replicate never goes back", models.PhaseReplicate, d(10), 0, models.PhaseReplicate, false},
		{"mesh is terminal", models.PhaseMesh, d(0), 0, models.PhaseMesh, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := m.Next(tt.current, tt.balance, tt.peers)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestMachineIdempotent(t *testing.T) {
	m := NewMachine()
	p, changed := m.Next(models.PhaseBootstrap, decimal.NewFromInt(500), 0)
	assert.True(t, changed)

	for i := 0; i < 3; i++ {
		p, changed = m.Next(p, decimal.NewFromInt(500), 0)
		assert.Equal(t, models.PhaseReplicate, p)
		assert.False(t, changed)
	}
}

func TestMachineOptions(t *testing.T) {
	m := NewMachine(WithUnlockBalance(decimal.NewFromInt(100)), WithMinPeers(2))
	p, _ := m.Next(models.PhaseBootstrap, decimal.NewFromInt(100), 0)
	assert.Equal(t, models.PhaseReplicate, p)

	p, changed := m.Next(p, decimal.NewFromInt(100), 1)
	assert.Equal(t, models.PhaseReplicate, p)
	assert.False(t, changed)
}

func TestParse(t *testing.T) {
	p, err := Parse("mesh")
	assert.NoError(t, err)
	assert.Equal(t, models.PhaseMesh, p)

	_, err = Parse("blue")
	assert.Error(t, err)
}
