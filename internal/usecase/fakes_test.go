package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"ArbPull/internal/domain/models"
	drepo "ArbPull/internal/domain/repository"

	"github.com/shopspring/decimal"
)

func ep(chain models.Chain, host string) models.Endpoint {
	return models.Endpoint{Chain: chain, URL: "https://" + host}
}

type fakeProber struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls int
}

func (f *fakeProber) Ping(_ context.Context, e models.Endpoint) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[e.URL] {
		return 0, errors.New("connection refused")
	}
	return 19_000_000, nil
}

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64 // keyed by Target.String()
	liq    float64
	fail   map[string]bool // keyed by endpoint URL
	block  bool
	calls  map[string]int
}

func newFakePrices(prices map[string]float64) *fakePrices {
	return &fakePrices{prices: prices, fail: map[string]bool{}, calls: map[string]int{}}
}

func (f *fakePrices) ReadPrice(ctx context.Context, e models.Endpoint, t models.Target) (models.Quote, error) {
	f.mu.Lock()
	f.calls[e.URL]++
	fail, block := f.fail[e.URL], f.block
	p, ok := f.prices[t.String()]
	liq := f.liq
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return models.Quote{}, ctx.Err()
	}
	if fail {
		return models.Quote{}, errors.New("connection refused")
	}
	if !ok {
		return models.Quote{}, errors.New("pool not found")
	}
	return models.Quote{Price: p, LiquidityUSD: liq}, nil
}

func (f *fakePrices) callsTo(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type fakeFees map[models.Chain]float64

func (f fakeFees) ReadFeeLevel(_ context.Context, _ models.Endpoint, ch models.Chain) (models.FeeEstimate, error) {
	g, ok := f[ch]
	if !ok {
		return models.FeeEstimate{}, errors.New("eth_gasPrice failed")
	}
	return models.FeeEstimate{GasPriceGwei: g}, nil
}

type fakeOracle struct {
	chain models.Chain
	usd   map[string]float64
}

func (f fakeOracle) OracleChain() models.Chain { return f.chain }

func (f fakeOracle) ReadNativeUSD(_ context.Context, _ models.Endpoint, asset string) (float64, error) {
	v, ok := f.usd[asset]
	if !ok {
		return 0, errors.New("no feed")
	}
	return v, nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	execute  func(ctx context.Context, pos models.SizedPosition) (models.ExecutionOutcome, error)
	status   map[string]models.ExecutionOutcome
	executed []models.SizedPosition
	polled   []string
}

func (f *fakeExecutor) Execute(ctx context.Context, pos models.SizedPosition) (models.ExecutionOutcome, error) {
	f.mu.Lock()
	f.executed = append(f.executed, pos)
	fn := f.execute
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, pos)
	}
	return models.ExecutionOutcome{
		DispatchID:   pos.DispatchID,
		Status:       models.ExecFilled,
		FilledAmount: pos.Amount,
		PnL:          pos.Amount.Mul(decimal.NewFromFloat(pos.Opportunity.NetEdge)).Truncate(6),
	}, nil
}

func (f *fakeExecutor) Status(_ context.Context, id string) (models.ExecutionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polled = append(f.polled, id)
	if out, ok := f.status[id]; ok {
		return out, nil
	}
	return models.ExecutionOutcome{DispatchID: id, Status: models.ExecPending}, nil
}

func (f *fakeExecutor) executedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executed)
}

type fakeDisburser struct {
	mu     sync.Mutex
	err    error
	sentTx string // returned with err, as for a wire broadcast but not mined
	wires  map[string]models.WireStatus
	checks []string
	calls  []decimal.Decimal
}

func (f *fakeDisburser) Disburse(_ context.Context, amount decimal.Decimal, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, amount)
	if f.err != nil {
		return f.sentTx, f.err
	}
	return "0xabc", nil
}

func (f *fakeDisburser) WireStatus(_ context.Context, tx string) (models.WireStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, tx)
	if st, ok := f.wires[tx]; ok {
		return st, nil
	}
	return models.WirePending, nil
}

func (f *fakeDisburser) set(fn func(f *fakeDisburser)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeDisburser) Destination() string { return "0x000000000000000000000000000000000000dEaD" }

type memStore struct {
	mu    sync.Mutex
	state *models.TreasuryState
	saves int
}

func (m *memStore) Load(context.Context) (models.TreasuryState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return models.TreasuryState{}, drepo.ErrStateNotFound
	}
	return m.state.Clone(), nil
}

func (m *memStore) Save(_ context.Context, st models.TreasuryState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := st.Clone()
	m.state = &c
	m.saves++
	return nil
}

type memRecorder struct {
	mu   sync.Mutex
	recs []*models.TickRecord
}

func (m *memRecorder) Record(_ context.Context, rec *models.TickRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memRecorder) Close() error { return nil }

func (m *memRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

// sharedLease is granted to every engine, as when each tick lands after
// the previous holder's lease expired.
type sharedLease struct {
	mu       sync.Mutex
	released int
}

func (l *sharedLease) Acquire(context.Context, time.Duration) (bool, error) { return true, nil }

func (l *sharedLease) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return nil
}

type heldLease struct{}

func (heldLease) Acquire(context.Context, time.Duration) (bool, error) { return false, nil }
func (heldLease) Release(context.Context) error                        { return nil }
