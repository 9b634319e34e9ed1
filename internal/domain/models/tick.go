package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrRecordFinalized = errors.New("tick record already finalized")

// Stage is a step of the tick state machine.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageHealthCheck Stage = "health_check"
	StageCollect     Stage = "collect"
	StageScan        Stage = "scan"
	StageEvaluate    Stage = "evaluate"
	StageSize        Stage = "size"
	StageDispatch    Stage = "dispatch"
	StageSettle      Stage = "settle"
)

// TickStatus is how a tick ended.
type TickStatus string

const (
	TickCompleted TickStatus = "completed"
	TickTimedOut  TickStatus = "timed_out"
	TickAborted   TickStatus = "aborted"
)

// ErrorClass is the error taxonomy recorded on ticks and exposed on status.
type ErrorClass string

const (
	ErrClassTransient          ErrorClass = "transient"
	ErrClassDegraded           ErrorClass = "degraded"
	ErrClassCostUnknown        ErrorClass = "cost_unknown"
	ErrClassExecutionUncertain ErrorClass = "execution_uncertain"
	ErrClassFatal              ErrorClass = "fatal"
)

// TickError is one error observed during a tick.
type TickError struct {
	Stage   Stage      `json:"stage"`
	Class   ErrorClass `json:"class"`
	Chain   Chain      `json:"chain,omitempty"`
	Message string     `json:"message"`
}

// TickRecord is the append-only audit record of one tick. Mutators are
// no-ops once the record is finalized.
type TickRecord struct {
	Seq              uint64              `json:"seq"`
	RunID            string              `json:"run_id"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
	Status           TickStatus          `json:"status"`
	Stage            Stage               `json:"stage"`
	Phase            Phase               `json:"phase"`
	PeerCount        int                 `json:"peer_count"`
	EndpointsUsed    []string            `json:"endpoints_used"`
	DegradedChains   []Chain             `json:"degraded_chains,omitempty"`
	Considered       []Evaluation        `json:"considered"`
	Accepted         []Opportunity       `json:"accepted"`
	Sizing           []SizedPosition     `json:"sizing"`
	Dispatches       []DispatchResult    `json:"dispatches"`
	Reconciled       []ExecutionOutcome  `json:"reconciled,omitempty"`
	Errors           []TickError         `json:"errors"`
	RecognizedProfit decimal.Decimal     `json:"recognized_profit"`
	Disbursement     *DisbursementResult `json:"disbursement,omitempty"`
	WireCheck        *WireCheck          `json:"wire_check,omitempty"`
	Finalized        bool                `json:"finalized"`

	dispatched map[string]struct{}
}

// WireCheck records the receipt lookup of a wire pending from an earlier tick.
type WireCheck struct {
	TxHash string          `json:"tx_hash"`
	Amount decimal.Decimal `json:"amount"`
	Status WireStatus      `json:"status"`
	Error  string          `json:"error,omitempty"`
}

// NewTickRecord opens the record for tick seq.
func NewTickRecord(seq uint64, runID string, startedAt time.Time, phase Phase) *TickRecord {
	return &TickRecord{
		Seq:              seq,
		RunID:            runID,
		StartedAt:        startedAt,
		Stage:            StageIdle,
		Phase:            phase,
		RecognizedProfit: decimal.Zero,
		dispatched:       make(map[string]struct{}),
	}
}

// Enter records that the tick reached stage s.
func (r *TickRecord) Enter(s Stage) {
	if r.Finalized {
		return
	}
	r.Stage = s
}

// AddError appends an error to the record.
func (r *TickRecord) AddError(stage Stage, class ErrorClass, chain Chain, err error) {
	if r.Finalized || err == nil {
		return
	}
	r.Errors = append(r.Errors, TickError{Stage: stage, Class: class, Chain: chain, Message: err.Error()})
}

// MarkDispatched claims the single dispatch slot for an opportunity identity.
// It returns false if the opportunity was already dispatched this tick.
func (r *TickRecord) MarkDispatched(opportunityID string) bool {
	if r.Finalized {
		return false
	}
	if r.dispatched == nil {
		r.dispatched = make(map[string]struct{})
	}
	if _, ok := r.dispatched[opportunityID]; ok {
		return false
	}
	r.dispatched[opportunityID] = struct{}{}
	return true
}

// Finalize closes the record. A second call returns ErrRecordFinalized and
// changes nothing.
func (r *TickRecord) Finalize(at time.Time, status TickStatus) error {
	if r.Finalized {
		return ErrRecordFinalized
	}
	r.FinishedAt = at
	r.Status = status
	r.Finalized = true
	return nil
}

// Duration is the wall-clock length of a finalized tick.
func (r *TickRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Clone returns a copy safe to hand to other goroutines.
func (r *TickRecord) Clone() *TickRecord {
	out := *r
	out.EndpointsUsed = append([]string(nil), r.EndpointsUsed...)
	out.DegradedChains = append([]Chain(nil), r.DegradedChains...)
	out.Considered = append([]Evaluation(nil), r.Considered...)
	out.Accepted = append([]Opportunity(nil), r.Accepted...)
	out.Sizing = append([]SizedPosition(nil), r.Sizing...)
	out.Dispatches = append([]DispatchResult(nil), r.Dispatches...)
	out.Reconciled = append([]ExecutionOutcome(nil), r.Reconciled...)
	out.Errors = append([]TickError(nil), r.Errors...)
	if r.Disbursement != nil {
		d := *r.Disbursement
		out.Disbursement = &d
	}
	if r.WireCheck != nil {
		w := *r.WireCheck
		out.WireCheck = &w
	}
	out.dispatched = nil
	return &out
}
