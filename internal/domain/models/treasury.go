package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase is the capital-allocation lifecycle stage.
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap"
	PhaseReplicate Phase = "replicate"
	PhaseMesh      Phase = "mesh"
)

// Ordinal returns the phase position in the forward-only lifecycle.
func (p Phase) Ordinal() int {
	switch p {
	case PhaseReplicate:
		return 1
	case PhaseMesh:
		return 2
	default:
		return 0
	}
}

// TreasuryState is the single process-wide capital state. It is a value:
// transitions return a new copy.
type TreasuryState struct {
	Balance                decimal.Decimal     `json:"balance"`
	CumulativeWired        decimal.Decimal     `json:"cumulative_wired"`
	Undisbursed            decimal.Decimal     `json:"undisbursed"`
	Phase                  Phase               `json:"phase"`
	Pending                map[string]Dispatch `json:"pending,omitempty"`
	PendingWire            *PendingWire        `json:"pending_wire,omitempty"`
	LastDisbursementFailed bool                `json:"last_disbursement_failed"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

// PendingWire is a disbursement transaction that was broadcast but whose
// outcome is not known yet. No other wire is sent while one is pending.
type PendingWire struct {
	TxHash string          `json:"tx_hash"`
	Amount decimal.Decimal `json:"amount"`
	Tick   uint64          `json:"tick"`
	SentAt time.Time       `json:"sent_at"`
}

// WireStatus is what the chain says about a pending wire.
type WireStatus string

const (
	WirePending  WireStatus = "pending"   // known to the node, not mined
	WireMined    WireStatus = "mined"     // mined and successful
	WireReverted WireStatus = "reverted"  // mined and reverted
	WireNotFound WireStatus = "not_found" // unknown to the node
)

// NewTreasuryState returns the initial state for a fresh treasury.
func NewTreasuryState(initialCapital decimal.Decimal) TreasuryState {
	return TreasuryState{
		Balance:         initialCapital,
		CumulativeWired: decimal.Zero,
		Undisbursed:     decimal.Zero,
		Phase:           PhaseBootstrap,
		Pending:         map[string]Dispatch{},
	}
}

// Clone returns a deep copy.
func (s TreasuryState) Clone() TreasuryState {
	out := s
	out.Pending = make(map[string]Dispatch, len(s.Pending))
	for k, v := range s.Pending {
		out.Pending[k] = v
	}
	if s.PendingWire != nil {
		w := *s.PendingWire
		out.PendingWire = &w
	}
	return out
}

// DisbursementResult is the Settle-stage outcome of a disbursement decision.
type DisbursementResult struct {
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	TxHash      string          `json:"tx_hash,omitempty"`
	Confirmed   bool            `json:"confirmed"`
	Deferred    bool            `json:"deferred"`
	InFlight    bool            `json:"in_flight"`
	Error       string          `json:"error,omitempty"`
}
