package repository

import (
	"context"
	"errors"
	"time"

	"ArbPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

var (
	ErrStateNotFound = errors.New("treasury state not found")

	// ErrWireReverted marks a wire that was mined and reverted, so nothing moved.
	ErrWireReverted = errors.New("wire reverted")
)

// ChainProber pings an endpoint (eth_blockNumber).
type ChainProber interface {
	Ping(ctx context.Context, ep models.Endpoint) (uint64, error)
}

// PriceReader reads a venue price through a chosen endpoint.
type PriceReader interface {
	ReadPrice(ctx context.Context, ep models.Endpoint, target models.Target) (models.Quote, error)
}

// FeeReader reads the current fee level of a chain through a chosen endpoint.
type FeeReader interface {
	ReadFeeLevel(ctx context.Context, ep models.Endpoint, chain models.Chain) (models.FeeEstimate, error)
}

// OracleReader reads the USD price of a native asset through a chosen endpoint.
type OracleReader interface {
	OracleChain() models.Chain
	ReadNativeUSD(ctx context.Context, ep models.Endpoint, asset string) (float64, error)
}

// Executor is the external trade executor.
type Executor interface {
	Execute(ctx context.Context, pos models.SizedPosition) (models.ExecutionOutcome, error)
	// Status polls a dispatch that was not confirmed within its wait bound.
	Status(ctx context.Context, dispatchID string) (models.ExecutionOutcome, error)
}

// Disburser is the external treasury disbursement client. Disburse returns
// the hash together with an error when a transaction was broadcast but its
// outcome is unknown; the caller must then check it with WireStatus before
// sending again.
type Disburser interface {
	Disburse(ctx context.Context, amountUSD decimal.Decimal, destination string) (txHash string, err error)
	WireStatus(ctx context.Context, txHash string) (models.WireStatus, error)
	Destination() string
}

// PeerSource supplies the active-peer count of the replication mesh.
type PeerSource interface {
	PeerCount(ctx context.Context) int
}

// TickRecorder persists finalized TickRecords.
type TickRecorder interface {
	Record(ctx context.Context, rec *models.TickRecord) error
	Close() error
}

// TickHistory reads back recorded ticks, newest first.
type TickHistory interface {
	Recent(ctx context.Context, limit int) ([]*models.TickRecord, error)
}

// SnapshotPublisher publishes status snapshots after Settle.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snap *models.Snapshot) error
}

// StateStore persists TreasuryState across restarts, including pending dispatches.
type StateStore interface {
	Load(ctx context.Context) (models.TreasuryState, error)
	Save(ctx context.Context, state models.TreasuryState) error
}

// TickLease guarantees a single ticking engine per treasury.
type TickLease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordTick(status string, seconds float64)
	RecordOpportunities(considered, accepted int)
	RecordDispatch(result string)
	RecordEndpointHealth(chain, url string, score float64)
	RecordTreasury(balance, wired, undisbursed float64)
	RecordPhase(phase string)
}
