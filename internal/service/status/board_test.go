package status

import (
	"context"
	"errors"
	"testing"

	"ArbPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, *models.Snapshot) error {
	f.calls++
	return errors.New("broker down")
}

func TestBoard(t *testing.T) {
	b := NewBoard()
	assert.Nil(t, b.Latest())

	snap := &models.Snapshot{TickCount: 7, Phase: models.PhaseReplicate}
	assert.NoError(t, b.Publish(context.Background(), snap))
	assert.Equal(t, uint64(7), b.Latest().TickCount)
}

func TestFanoutPublishesToAll(t *testing.T) {
	b := NewBoard()
	bad := &failingPublisher{}
	f := Fanout{bad, b}

	err := f.Publish(context.Background(), &models.Snapshot{TickCount: 1})
	assert.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.NotNil(t, b.Latest(), "later publishers still run")
}
