package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SizedPosition is the sizing decision handed to the executor. It is never
// mutated after creation; outcomes are recorded separately.
type SizedPosition struct {
	DispatchID  string          `json:"dispatch_id"`
	Opportunity Opportunity     `json:"opportunity"`
	Amount      decimal.Decimal `json:"amount"`
	Class       StrategyClass   `json:"class"`
	Tick        uint64          `json:"tick"`
	SizedAt     time.Time       `json:"sized_at"`
}

// ExecutionStatus is what the executor reports for a dispatch.
type ExecutionStatus string

const (
	ExecFilled          ExecutionStatus = "filled"
	ExecPartiallyFilled ExecutionStatus = "partially_filled"
	ExecRejected        ExecutionStatus = "rejected"
	ExecFailed          ExecutionStatus = "failed"
	// ExecUnconfirmed marks a dispatch with no result inside the wait bound.
	ExecUnconfirmed ExecutionStatus = "unconfirmed"
	// ExecPending is returned by executor status polls while a dispatch is still open.
	ExecPending ExecutionStatus = "pending"
)

// ExecutionOutcome is a confirmed fact about one dispatch.
type ExecutionOutcome struct {
	DispatchID   string          `json:"dispatch_id"`
	Status       ExecutionStatus `json:"status"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	PnL          decimal.Decimal `json:"pnl"`
	ReportedAt   time.Time       `json:"reported_at"`
}

// Confirmed reports whether the outcome moved capital.
func (o ExecutionOutcome) Confirmed() bool {
	return o.Status == ExecFilled || o.Status == ExecPartiallyFilled
}

// Dispatch is a dispatched position awaiting confirmation.
type Dispatch struct {
	DispatchID    string          `json:"dispatch_id"`
	OpportunityID string          `json:"opportunity_id"`
	Tick          uint64          `json:"tick"`
	Amount        decimal.Decimal `json:"amount"`
	DispatchedAt  time.Time       `json:"dispatched_at"`
}

// DispatchResult is the per-dispatch line of a TickRecord.
type DispatchResult struct {
	DispatchID    string          `json:"dispatch_id"`
	OpportunityID string          `json:"opportunity_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        ExecutionStatus `json:"status"`
	PnL           decimal.Decimal `json:"pnl"`
	Error         string          `json:"error,omitempty"`
}
