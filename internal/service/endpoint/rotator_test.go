package endpoint

import (
	"errors"
	"testing"
	"time"

	"ArbPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatorSelectsBest(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock, epA, epB)
	fail(tr, epA)

	r := NewRotator(tr)
	got, err := r.Select("base")
	require.NoError(t, err)
	assert.Equal(t, epB.URL, got.URL)
}

func TestRotatorAllBackedOff(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := newTestTracker(clock, epA, epB, epC)
	for _, ep := range []models.Endpoint{epA, epB, epC} {
		for i := 0; i < 3; i++ {
			fail(tr, ep)
		}
	}

	r := NewRotator(tr)
	_, err := r.Select("base")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEndpointAvailable))
	assert.Empty(t, r.Ranked("base"))

	clock.Advance(time.Second)
	_, err = r.Select("base")
	assert.NoError(t, err)
}

func TestRotatorUnknownChain(t *testing.T) {
	r := NewRotator(NewTracker(Defaults()))
	_, err := r.Select("solana")
	assert.ErrorIs(t, err, ErrNoEndpointAvailable)

	ranked := r.Ranked("arbitrum")
	assert.Len(t, ranked, 3)
}
