package treasury

import (
	"time"

	"ArbPull/internal/domain/models"
	"ArbPull/internal/service/phase"

	"github.com/shopspring/decimal"
)

// Ledger applies tick outcomes to TreasuryState. Every method takes a state
// value and returns a new one; the input is never modified.
type Ledger struct {
	disbursePct decimal.Decimal
	minWire     decimal.Decimal
	dropAfter   time.Duration
	machine     *phase.Machine
}

// Option configures Ledger.
type Option func(*Ledger)

// WithDisbursePct sets the share of recognized profit accrued for withdrawal.
func WithDisbursePct(pct decimal.Decimal) Option {
	return func(l *Ledger) {
		if !pct.IsNegative() && pct.LessThanOrEqual(decimal.NewFromInt(1)) {
			l.disbursePct = pct
		}
	}
}

// WithMinWire sets the smallest amount worth a disbursement call. Smaller
// accruals are deferred to a later tick. Zero disburses every profitable tick.
func WithMinWire(usd decimal.Decimal) Option {
	return func(l *Ledger) {
		if !usd.IsNegative() {
			l.minWire = usd
		}
	}
}

// WithWireDropAfter sets how long a pending wire the node no longer knows
// may stay unresolved before it is treated as dropped and sent again.
func WithWireDropAfter(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.dropAfter = d
		}
	}
}

func NewLedger(machine *phase.Machine, opts ...Option) *Ledger {
	if machine == nil {
		machine = phase.NewMachine()
	}
	l := &Ledger{
		disbursePct: decimal.NewFromFloat(0.4),
		minWire:     decimal.NewFromFloat(0.5),
		dropAfter:   10 * time.Minute,
		machine:     machine,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SettleInput is everything a tick learned about execution.
type SettleInput struct {
	Now time.Time
	// Outcomes are results of dispatches made this tick that returned in time.
	Outcomes []models.ExecutionOutcome
	// Late are status reports for dispatches from earlier ticks.
	Late []models.ExecutionOutcome
	// Unconfirmed are this tick's dispatches with no result inside the wait bound.
	Unconfirmed []models.Dispatch
}

// Settlement summarizes what Settle did.
type Settlement struct {
	RecognizedProfit decimal.Decimal
	Credited         []string
	Resolved         []string // late reports that closed a pending dispatch without credit
	Ignored          []string // late reports for dispatches not pending
	DisbursementDue  bool
	Disbursement     decimal.Decimal
	Deferred         bool
	WireInFlight     bool // an earlier wire is unresolved, nothing new is sent
}

// Settle credits confirmed outcomes and accrues the disbursement share.
func (l *Ledger) Settle(state models.TreasuryState, in SettleInput) (models.TreasuryState, Settlement) {
	next := state.Clone()
	out := Settlement{RecognizedProfit: decimal.Zero, Disbursement: decimal.Zero}

	for _, o := range in.Outcomes {
		if !o.Confirmed() {
			continue
		}
		next.Balance = next.Balance.Add(o.PnL)
		out.RecognizedProfit = out.RecognizedProfit.Add(o.PnL)
		out.Credited = append(out.Credited, o.DispatchID)
	}

	for _, o := range in.Late {
		if _, ok := next.Pending[o.DispatchID]; !ok {
			out.Ignored = append(out.Ignored, o.DispatchID)
			continue
		}
		switch {
		case o.Confirmed():
			next.Balance = next.Balance.Add(o.PnL)
			out.RecognizedProfit = out.RecognizedProfit.Add(o.PnL)
			out.Credited = append(out.Credited, o.DispatchID)
			delete(next.Pending, o.DispatchID)
		case o.Status == models.ExecRejected || o.Status == models.ExecFailed:
			out.Resolved = append(out.Resolved, o.DispatchID)
			delete(next.Pending, o.DispatchID)
		}
	}

	for _, d := range in.Unconfirmed {
		next.Pending[d.DispatchID] = d
	}

	if out.RecognizedProfit.IsPositive() {
		next.Undisbursed = next.Undisbursed.Add(out.RecognizedProfit.Mul(l.disbursePct).Truncate(6))
	}

	if next.PendingWire != nil {
		out.WireInFlight = true
	} else if out.RecognizedProfit.IsPositive() || next.LastDisbursementFailed {
		amount := decimal.Min(next.Undisbursed, next.Balance)
		switch {
		case !amount.IsPositive():
		case amount.LessThan(l.minWire):
			out.Deferred = true
		default:
			out.DisbursementDue = true
			out.Disbursement = amount
		}
	}

	next.UpdatedAt = in.Now
	return next, out
}

// ApplyDisbursement records the result of the tick's single disbursement call.
// A failed call leaves the amount accrued for the next tick.
func (l *Ledger) ApplyDisbursement(state models.TreasuryState, amount decimal.Decimal, confirmed bool) models.TreasuryState {
	next := state.Clone()
	if !confirmed {
		next.LastDisbursementFailed = true
		return next
	}
	next.Balance = next.Balance.Sub(amount)
	next.Undisbursed = next.Undisbursed.Sub(amount)
	if next.Undisbursed.IsNegative() {
		next.Undisbursed = decimal.Zero
	}
	next.CumulativeWired = next.CumulativeWired.Add(amount)
	next.LastDisbursementFailed = false
	return next
}

// RecordWireSent parks a broadcast wire whose outcome is unknown. The amount
// stays accrued and in Balance until ResolveWire learns the outcome.
func (l *Ledger) RecordWireSent(state models.TreasuryState, wire models.PendingWire) models.TreasuryState {
	next := state.Clone()
	next.PendingWire = &wire
	next.LastDisbursementFailed = false
	return next
}

// ResolveWire applies what the chain says about the pending wire. A mined
// wire is booked as a confirmed disbursement. A reverted wire, or one the
// node has not known for the drop window, is cleared and flagged for a
// retry. Anything else keeps the wire pending.
func (l *Ledger) ResolveWire(state models.TreasuryState, status models.WireStatus, now time.Time) (models.TreasuryState, bool) {
	w := state.PendingWire
	if w == nil {
		return state, false
	}
	switch status {
	case models.WireMined:
		next := l.ApplyDisbursement(state, w.Amount, true)
		next.PendingWire = nil
		return next, true
	case models.WireReverted:
	case models.WireNotFound:
		if now.Sub(w.SentAt) < l.dropAfter {
			return state, false
		}
	default:
		return state, false
	}
	next := state.Clone()
	next.PendingWire = nil
	next.LastDisbursementFailed = true
	return next, true
}

// AdvancePhase runs the phase machine against the settled balance.
func (l *Ledger) AdvancePhase(state models.TreasuryState, peers int) (models.TreasuryState, bool) {
	p, changed := l.machine.Next(state.Phase, state.Balance, peers)
	if !changed {
		return state, false
	}
	next := state.Clone()
	next.Phase = p
	return next, true
}
