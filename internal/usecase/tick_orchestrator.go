package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ArbPull/internal/domain/models"
	drepo "ArbPull/internal/domain/repository"
	"ArbPull/internal/service/endpoint"
	"ArbPull/internal/service/phase"
	"ArbPull/internal/service/treasury"
	"ArbPull/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrTickInProgress = errors.New("tick already in progress")
	ErrLeaseHeld      = errors.New("tick lease held by another engine")
)

// TickConfig holds the orchestrator's time budgets.
type TickConfig struct {
	Interval        time.Duration
	DispatchTimeout time.Duration
	SettleTimeout   time.Duration
	InitialCapital  decimal.Decimal
}

// TickDeps are the orchestrator's collaborators. Lease is optional.
type TickDeps struct {
	Tracker   *endpoint.Tracker
	Health    *HealthChecker
	Collector *QuoteCollector
	Scanner   *OpportunityScanner
	Evaluator *OpportunityEvaluator
	Sizer     *PositionSizer
	Ledger    *treasury.Ledger
	Executor  drepo.Executor
	Disburser drepo.Disburser
	Peers     drepo.PeerSource
	Store     drepo.StateStore
	Recorder  drepo.TickRecorder
	Publisher drepo.SnapshotPublisher
	Lease     drepo.TickLease
	Metrics   drepo.Metrics
	Log       *logger.Logger
}

// TickOrchestrator drives one tick through
// HealthCheck, Collect, Scan, Evaluate, Size, Dispatch and Settle.
// Ticks never overlap and TreasuryState is only written in Settle.
type TickOrchestrator struct {
	cfg     TickConfig
	deps    TickDeps
	targets []models.Target
	now     func() time.Time

	running atomic.Bool

	mu          sync.RWMutex
	state       models.TreasuryState
	unsaved     bool // last Save failed, memory is ahead of the store
	seq         uint64
	chainErrors map[models.Chain]models.ErrorClass
}

func NewTickOrchestrator(cfg TickConfig, deps TickDeps, targets []models.Target) (*TickOrchestrator, error) {
	switch {
	case deps.Tracker == nil, deps.Collector == nil, deps.Scanner == nil, deps.Evaluator == nil,
		deps.Sizer == nil, deps.Ledger == nil:
		return nil, fmt.Errorf("tick orchestrator: pipeline stage missing")
	case deps.Executor == nil, deps.Disburser == nil, deps.Store == nil, deps.Recorder == nil,
		deps.Publisher == nil, deps.Peers == nil:
		return nil, fmt.Errorf("tick orchestrator: collaborator missing")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("tick orchestrator: interval must be positive")
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 10 * time.Second
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 5 * time.Second
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &TickOrchestrator{
		cfg:         cfg,
		deps:        deps,
		targets:     targets,
		now:         time.Now,
		state:       models.NewTreasuryState(cfg.InitialCapital),
		chainErrors: make(map[models.Chain]models.ErrorClass),
	}, nil
}

// Restore loads persisted TreasuryState, including dispatches still awaiting
// reconciliation. A missing state starts from the initial capital.
func (o *TickOrchestrator) Restore(ctx context.Context) error {
	st, found, err := o.load(ctx)
	if err != nil {
		return err
	}
	if !found {
		o.deps.Log.Info("no persisted treasury state, starting fresh",
			logger.String("balance", o.cfg.InitialCapital.String()))
		return nil
	}
	o.mu.Lock()
	o.state = st
	o.mu.Unlock()
	o.deps.Log.Info("treasury state restored",
		logger.String("balance", st.Balance.String()),
		logger.String("phase", string(st.Phase)),
		logger.Int("pending", len(st.Pending)),
	)
	return nil
}

func (o *TickOrchestrator) load(ctx context.Context) (models.TreasuryState, bool, error) {
	st, err := o.deps.Store.Load(ctx)
	if errors.Is(err, drepo.ErrStateNotFound) {
		return models.TreasuryState{}, false, nil
	}
	if err != nil {
		return models.TreasuryState{}, false, fmt.Errorf("load treasury state: %w", err)
	}
	if _, err := phase.Parse(string(st.Phase)); err != nil {
		return models.TreasuryState{}, false, fmt.Errorf("load treasury state: %w", err)
	}
	if st.Pending == nil {
		st.Pending = map[string]models.Dispatch{}
	}
	return st, true, nil
}

// reload picks up state settled by whichever engine held the lease before
// this tick. It keeps memory when our own last Save failed.
func (o *TickOrchestrator) reload(ctx context.Context) error {
	o.mu.RLock()
	unsaved := o.unsaved
	o.mu.RUnlock()
	if unsaved {
		return nil
	}
	st, found, err := o.load(ctx)
	if err != nil || !found {
		return err
	}
	o.mu.Lock()
	o.state = st
	o.mu.Unlock()
	return nil
}

// ReleaseLease gives the tick lease up so another engine can take over
// without waiting for it to expire. It is a no-op without a lease.
func (o *TickOrchestrator) ReleaseLease(ctx context.Context) error {
	if o.deps.Lease == nil {
		return nil
	}
	if err := o.deps.Lease.Release(ctx); err != nil {
		return fmt.Errorf("release tick lease: %w", err)
	}
	return nil
}

// State returns a copy of the current TreasuryState.
func (o *TickOrchestrator) State() models.TreasuryState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Clone()
}

// TickCount returns the number of ticks started.
func (o *TickOrchestrator) TickCount() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.seq
}

// tickRun is the per-tick working set. It is owned by one goroutine.
type tickRun struct {
	rec         *models.TickRecord
	state       models.TreasuryState
	policy      phase.Policy
	deadline    context.Context
	collection  models.Collection
	opps        []models.Opportunity
	positions   []models.SizedPosition
	outcomes    []models.ExecutionOutcome
	late        []models.ExecutionOutcome
	unconfirmed []models.Dispatch
}

// Tick runs one tick and returns its finalized record. Shutdown signalled
// through ctx is honored at the next stage boundary and the tick settles.
func (o *TickOrchestrator) Tick(ctx context.Context) (*models.TickRecord, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrTickInProgress
	}
	defer o.running.Store(false)

	if o.deps.Lease != nil {
		ok, err := o.deps.Lease.Acquire(ctx, 2*o.cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("acquire tick lease: %w", err)
		}
		if !ok {
			return nil, ErrLeaseHeld
		}
		if err := o.reload(ctx); err != nil {
			return nil, err
		}
	}

	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Interval)
	defer cancel()

	o.mu.Lock()
	o.seq++
	seq := o.seq
	state := o.state.Clone()
	o.mu.Unlock()

	run := &tickRun{
		rec:      models.NewTickRecord(seq, uuid.NewString(), o.now(), state.Phase),
		state:    state,
		policy:   phase.PolicyFor(state.Phase),
		deadline: tickCtx,
	}
	run.rec.PeerCount = o.deps.Peers.PeerCount(tickCtx)

	status := o.runStages(ctx, run)
	o.settle(ctx, run, status)
	return run.rec.Clone(), nil
}

type stage struct {
	name models.Stage
	fn   func(ctx context.Context, run *tickRun)
}

func (o *TickOrchestrator) runStages(ctx context.Context, run *tickRun) models.TickStatus {
	stages := []stage{
		{models.StageHealthCheck, o.healthCheck},
		{models.StageCollect, o.collect},
		{models.StageScan, o.scan},
		{models.StageEvaluate, o.evaluate},
		{models.StageSize, o.size},
		{models.StageDispatch, o.dispatch},
	}
	for _, s := range stages {
		if st, stop := boundary(ctx, run.deadline); stop {
			o.deps.Log.Warn("tick interrupted",
				logger.Uint64("tick", run.rec.Seq),
				logger.String("before", string(s.name)),
				logger.String("status", string(st)),
			)
			return st
		}
		run.rec.Enter(s.name)
		t0 := time.Now()
		s.fn(run.deadline, run)
		o.deps.Metrics.RecordLatency("stage_"+string(s.name), time.Since(t0).Seconds())
	}
	if run.deadline.Err() != nil {
		return models.TickTimedOut
	}
	return models.TickCompleted
}

func boundary(shutdown, deadline context.Context) (models.TickStatus, bool) {
	if shutdown.Err() != nil {
		return models.TickAborted, true
	}
	if deadline.Err() != nil {
		return models.TickTimedOut, true
	}
	return "", false
}

func (o *TickOrchestrator) healthCheck(ctx context.Context, _ *tickRun) {
	if o.deps.Health == nil {
		return
	}
	o.deps.Health.Check(ctx)
}

func (o *TickOrchestrator) collect(ctx context.Context, run *tickRun) {
	run.collection = o.deps.Collector.Collect(ctx, o.targets)
	run.rec.EndpointsUsed = run.collection.EndpointsUsed
	run.rec.DegradedChains = run.collection.DegradedChains

	for _, ch := range run.collection.DegradedChains {
		run.rec.AddError(models.StageCollect, models.ErrClassDegraded, ch, fmt.Errorf("%s: %w", ch, endpoint.ErrNoEndpointAvailable))
	}
	degraded := make(map[models.Chain]bool, len(run.collection.DegradedChains))
	for _, ch := range run.collection.DegradedChains {
		degraded[ch] = true
	}
	for _, m := range run.collection.Missing {
		if degraded[m.Target.Chain] {
			continue
		}
		run.rec.AddError(models.StageCollect, models.ErrClassTransient, m.Target.Chain,
			fmt.Errorf("%s %s: %s", m.Kind, m.Target, m.Reason))
	}
}

func (o *TickOrchestrator) scan(_ context.Context, run *tickRun) {
	run.opps = o.deps.Scanner.Scan(run.collection.Quotes, o.now())
}

func (o *TickOrchestrator) evaluate(ctx context.Context, run *tickRun) {
	for _, opp := range run.opps {
		ev, err := o.deps.Evaluator.Evaluate(ctx, opp, run.collection.Fees)
		run.rec.Considered = append(run.rec.Considered, ev)
		if err != nil {
			ch := opp.Buy.Chain
			for _, c := range opp.Chains() {
				if _, ok := run.collection.Fees[c]; !ok {
					ch = c
					break
				}
			}
			run.rec.AddError(models.StageEvaluate, models.ErrClassCostUnknown, ch, err)
			continue
		}
		if ev.Accepted() {
			run.rec.Accepted = append(run.rec.Accepted, ev.Opportunity)
		}
	}
	o.deps.Metrics.RecordOpportunities(len(run.rec.Considered), len(run.rec.Accepted))
}

// size uses the balance and phase captured at tick start.
func (o *TickOrchestrator) size(_ context.Context, run *tickRun) {
	for _, opp := range run.rec.Accepted {
		pos, ok := o.deps.Sizer.Size(opp, run.state.Balance, run.policy, run.rec.Seq)
		if !ok {
			continue
		}
		run.positions = append(run.positions, pos)
		run.rec.Sizing = append(run.rec.Sizing, pos)
	}
}

func (o *TickOrchestrator) dispatch(ctx context.Context, run *tickRun) {
	o.reconcile(ctx, run)

	for _, pos := range run.positions {
		if ctx.Err() != nil {
			break
		}
		if !run.rec.MarkDispatched(pos.Opportunity.ID) {
			continue
		}
		o.dispatchOne(ctx, run, pos)
	}
}

func (o *TickOrchestrator) dispatchOne(ctx context.Context, run *tickRun, pos models.SizedPosition) {
	dctx, cancel := context.WithTimeout(ctx, o.cfg.DispatchTimeout)
	defer cancel()

	out, err := o.deps.Executor.Execute(dctx, pos)
	res := models.DispatchResult{
		DispatchID:    pos.DispatchID,
		OpportunityID: pos.Opportunity.ID,
		Amount:        pos.Amount,
		PnL:           decimal.Zero,
	}
	uncertain := err != nil || out.Status == models.ExecUnconfirmed || out.Status == models.ExecPending

	if uncertain {
		res.Status = models.ExecUnconfirmed
		if err != nil {
			res.Error = err.Error()
		} else {
			err = fmt.Errorf("dispatch %s: no result within wait bound", pos.DispatchID)
		}
		run.unconfirmed = append(run.unconfirmed, models.Dispatch{
			DispatchID:    pos.DispatchID,
			OpportunityID: pos.Opportunity.ID,
			Tick:          run.rec.Seq,
			Amount:        pos.Amount,
			DispatchedAt:  o.now(),
		})
		run.rec.AddError(models.StageDispatch, models.ErrClassExecutionUncertain, pos.Opportunity.Buy.Chain, err)
		o.deps.Log.Warn("dispatch unconfirmed, tracking for reconciliation",
			logger.String("dispatch_id", pos.DispatchID),
			logger.String("opportunity", pos.Opportunity.ID),
			logger.Error(err),
		)
	} else {
		out.DispatchID = pos.DispatchID
		res.Status = out.Status
		res.PnL = out.PnL
		run.outcomes = append(run.outcomes, out)
	}
	run.rec.Dispatches = append(run.rec.Dispatches, res)
	o.deps.Metrics.RecordDispatch(string(res.Status))
}

// reconcile polls the executor for dispatches left unconfirmed by earlier
// ticks. Only terminal answers are passed to Settle.
func (o *TickOrchestrator) reconcile(ctx context.Context, run *tickRun) {
	ids := make([]string, 0, len(run.state.Pending))
	for id := range run.state.Pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, o.cfg.DispatchTimeout)
		out, err := o.deps.Executor.Status(sctx, id)
		cancel()
		if err != nil {
			o.deps.Log.Debug("pending dispatch still unresolved", logger.String("dispatch_id", id), logger.Error(err))
			continue
		}
		if out.Status == models.ExecPending || out.Status == models.ExecUnconfirmed {
			continue
		}
		out.DispatchID = id
		run.late = append(run.late, out)
		run.rec.Reconciled = append(run.rec.Reconciled, out)
	}
}

// settle applies the tick's confirmed facts to TreasuryState, performs at
// most one disbursement, advances the phase, persists and publishes. It
// is a no-op on a finalized record.
func (o *TickOrchestrator) settle(ctx context.Context, run *tickRun, status models.TickStatus) {
	if run.rec.Finalized {
		return
	}
	run.rec.Enter(models.StageSettle)

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.SettleTimeout)
	defer cancel()

	resolved := o.checkWire(sctx, run)
	next, s := o.deps.Ledger.Settle(resolved, treasury.SettleInput{
		Now:         o.now(),
		Outcomes:    run.outcomes,
		Late:        run.late,
		Unconfirmed: run.unconfirmed,
	})
	run.rec.RecognizedProfit = s.RecognizedProfit

	switch {
	case s.DisbursementDue:
		next = o.disburse(sctx, run, next, s.Disbursement)
	case s.Deferred:
		run.rec.Disbursement = &models.DisbursementResult{
			Amount:      next.Undisbursed,
			Destination: o.deps.Disburser.Destination(),
			Deferred:    true,
		}
	case s.WireInFlight:
		w := next.PendingWire
		run.rec.Disbursement = &models.DisbursementResult{
			Amount:      w.Amount,
			Destination: o.deps.Disburser.Destination(),
			TxHash:      w.TxHash,
			InFlight:    true,
		}
	}

	next, changed := o.deps.Ledger.AdvancePhase(next, run.rec.PeerCount)
	if changed {
		o.deps.Log.Info("phase advanced",
			logger.String("from", string(run.state.Phase)),
			logger.String("to", string(next.Phase)),
			logger.String("balance", next.Balance.String()),
			logger.Int("peers", run.rec.PeerCount),
		)
	}

	saveErr := o.deps.Store.Save(sctx, next)
	if saveErr != nil {
		o.deps.Metrics.RecordError("state_save")
		run.rec.AddError(models.StageSettle, models.ErrClassTransient, "", fmt.Errorf("save treasury state: %w", saveErr))
		o.deps.Log.Error("failed to persist treasury state", logger.Error(saveErr))
	}

	o.mu.Lock()
	o.state = next
	o.unsaved = saveErr != nil
	for _, e := range run.rec.Errors {
		if e.Chain != "" {
			o.chainErrors[e.Chain] = e.Class
		}
	}
	chainErrors := make(map[models.Chain]models.ErrorClass, len(o.chainErrors))
	for k, v := range o.chainErrors {
		chainErrors[k] = v
	}
	o.mu.Unlock()

	_ = run.rec.Finalize(o.now(), status)
	rec := run.rec.Clone()

	if err := o.deps.Recorder.Record(sctx, rec); err != nil {
		o.deps.Log.Warn("tick record not persisted yet", logger.Uint64("tick", rec.Seq), logger.Error(err))
	}

	healthy, total := o.deps.Tracker.Summary()
	snap := &models.Snapshot{
		TickCount:        rec.Seq,
		Treasury:         next.Clone(),
		Phase:            next.Phase,
		PeerCount:        rec.PeerCount,
		LatestTick:       rec,
		Endpoints:        o.deps.Tracker.Snapshot(),
		HealthyEndpoints: healthy,
		TotalEndpoints:   total,
		ChainErrors:      chainErrors,
		PublishedAt:      o.now(),
	}
	if err := o.deps.Publisher.Publish(sctx, snap); err != nil {
		o.deps.Metrics.RecordError("snapshot_publish")
		o.deps.Log.Warn("snapshot publish failed", logger.Error(err))
	}

	o.observe(rec, next, snap)
}

// checkWire resolves a wire left pending by an earlier tick before Settle
// decides whether a new one is due.
func (o *TickOrchestrator) checkWire(ctx context.Context, run *tickRun) models.TreasuryState {
	w := run.state.PendingWire
	if w == nil {
		return run.state
	}
	check := &models.WireCheck{TxHash: w.TxHash, Amount: w.Amount}
	run.rec.WireCheck = check

	status, err := o.deps.Disburser.WireStatus(ctx, w.TxHash)
	if err != nil {
		check.Error = err.Error()
		o.deps.Metrics.RecordError("wire_status")
		o.deps.Log.Warn("pending wire lookup failed, keeping it pending",
			logger.String("tx", w.TxHash),
			logger.Error(err),
		)
		return run.state
	}
	check.Status = status

	next, resolved := o.deps.Ledger.ResolveWire(run.state, status, o.now())
	if resolved {
		o.deps.Log.Info("pending wire resolved",
			logger.String("tx", w.TxHash),
			logger.String("amount", w.Amount.String()),
			logger.String("status", string(status)),
		)
	}
	return next
}

func (o *TickOrchestrator) disburse(ctx context.Context, run *tickRun, state models.TreasuryState, amount decimal.Decimal) models.TreasuryState {
	dest := o.deps.Disburser.Destination()
	res := &models.DisbursementResult{Amount: amount, Destination: dest}
	run.rec.Disbursement = res

	tx, err := o.deps.Disburser.Disburse(ctx, amount, dest)
	res.TxHash = tx
	switch {
	case err == nil:
		res.Confirmed = true
		o.deps.Log.Info("disbursement confirmed",
			logger.String("amount", amount.String()),
			logger.String("destination", dest),
			logger.String("tx", tx),
		)
		return o.deps.Ledger.ApplyDisbursement(state, amount, true)

	case tx != "" && !errors.Is(err, drepo.ErrWireReverted):
		// broadcast with unknown outcome: check the receipt before sending again
		res.Error = err.Error()
		res.InFlight = true
		o.deps.Log.Warn("disbursement sent but not confirmed, tracking the wire",
			logger.String("amount", amount.String()),
			logger.String("tx", tx),
			logger.Error(err),
		)
		return o.deps.Ledger.RecordWireSent(state, models.PendingWire{
			TxHash: tx,
			Amount: amount,
			Tick:   run.rec.Seq,
			SentAt: o.now(),
		})
	}

	res.Error = err.Error()
	o.deps.Metrics.RecordError("disburse")
	o.deps.Log.Error("disbursement failed, amount stays accrued",
		logger.String("amount", amount.String()),
		logger.String("tx", tx),
		logger.Error(err),
	)
	return o.deps.Ledger.ApplyDisbursement(state, amount, false)
}

func (o *TickOrchestrator) observe(rec *models.TickRecord, state models.TreasuryState, snap *models.Snapshot) {
	m := o.deps.Metrics
	m.RecordTick(string(rec.Status), rec.Duration().Seconds())
	for _, ep := range snap.Endpoints {
		m.RecordEndpointHealth(string(ep.Chain), ep.URL, ep.Score)
	}
	m.RecordTreasury(state.Balance.InexactFloat64(), state.CumulativeWired.InexactFloat64(), state.Undisbursed.InexactFloat64())
	m.RecordPhase(string(state.Phase))

	o.deps.Log.Info("tick settled",
		logger.Uint64("tick", rec.Seq),
		logger.String("status", string(rec.Status)),
		logger.String("phase", string(state.Phase)),
		logger.Int("considered", len(rec.Considered)),
		logger.Int("accepted", len(rec.Accepted)),
		logger.Int("dispatched", len(rec.Dispatches)),
		logger.Int("errors", len(rec.Errors)),
		logger.String("balance", state.Balance.String()),
		logger.Duration("duration_ms", rec.Duration()),
	)
}
