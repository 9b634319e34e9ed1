package status

import (
	"context"
	"sync/atomic"

	"ArbPull/internal/domain/models"
)

// Board holds the latest published snapshot for read-only consumers.
// Publish replaces the pointer; readers never see a partially built value.
type Board struct {
	latest atomic.Pointer[models.Snapshot]
}

func NewBoard() *Board { return &Board{} }

func (b *Board) Publish(_ context.Context, snap *models.Snapshot) error {
	b.latest.Store(snap)
	return nil
}

// Latest returns the last snapshot, or nil before the first Settle.
func (b *Board) Latest() *models.Snapshot { return b.latest.Load() }

// Fanout publishes a snapshot to several publishers and returns the first error.
type Fanout []interface {
	Publish(ctx context.Context, snap *models.Snapshot) error
}

func (f Fanout) Publish(ctx context.Context, snap *models.Snapshot) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, snap); err != nil && first == nil {
			first = err
		}
	}
	return first
}
