package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ArbPull/internal/domain/models"
	drepo "ArbPull/internal/domain/repository"
	"ArbPull/internal/service/cache"
	"ArbPull/internal/service/endpoint"
	"ArbPull/internal/service/ratelimit"
	"ArbPull/pkg/logger"
)

var errRateLimited = errors.New("all endpoints locally rate limited")

// CollectorConfig holds Collect stage limits.
type CollectorConfig struct {
	CallTimeout time.Duration
	MaxInFlight int
	// Natives maps a chain to its native asset symbol for fee pricing.
	Natives map[models.Chain]string
}

// QuoteCollector issues the tick's reads concurrently through the rotator.
// Each read gets one retry on the next-ranked endpoint. Every outcome is
// reported to the tracker by a single reporter goroutine.
type QuoteCollector struct {
	cfg     CollectorConfig
	tracker *endpoint.Tracker
	rotator *endpoint.Rotator
	prices  drepo.PriceReader
	fees    drepo.FeeReader
	oracle  drepo.OracleReader
	limiter *ratelimit.Limiter
	natives *cache.PriceCache
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewQuoteCollector(
	cfg CollectorConfig,
	tracker *endpoint.Tracker,
	prices drepo.PriceReader,
	fees drepo.FeeReader,
	oracle drepo.OracleReader,
	limiter *ratelimit.Limiter,
	natives *cache.PriceCache,
	metrics drepo.Metrics,
	log *logger.Logger,
) *QuoteCollector {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Second
	}
	return &QuoteCollector{
		cfg:     cfg,
		tracker: tracker,
		rotator: endpoint.NewRotator(tracker),
		prices:  prices,
		fees:    fees,
		oracle:  oracle,
		limiter: limiter,
		natives: natives,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

type collectState struct {
	mu       sync.Mutex
	quotes   []models.Quote
	gwei     map[models.Chain]models.FeeEstimate
	usd      map[string]float64
	missing  []models.MissingRead
	degraded map[models.Chain]bool
	used     map[string]bool
}

func (s *collectState) miss(kind models.ReadKind, t models.Target, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing = append(s.missing, models.MissingRead{Kind: kind, Target: t, Reason: err.Error()})
	if errors.Is(err, endpoint.ErrNoEndpointAvailable) {
		s.degraded[t.Chain] = true
	}
}

// Collect reads every target plus the fee level of each involved chain and
// the USD price of each involved native asset. It returns once all reads
// have finished or timed out. Missing reads are normal.
func (c *QuoteCollector) Collect(ctx context.Context, targets []models.Target) models.Collection {
	start := time.Now()
	st := &collectState{
		gwei:     make(map[models.Chain]models.FeeEstimate),
		usd:      make(map[string]float64),
		degraded: make(map[models.Chain]bool),
		used:     make(map[string]bool),
	}

	chains := distinctChains(targets)
	assets := c.assetsFor(chains)

	rep := startReporter(c.tracker, 2*(len(targets)+len(chains)+len(assets)))
	sem := make(chan struct{}, c.cfg.MaxInFlight)
	var wg sync.WaitGroup

	spawn := func(kind models.ReadKind, t models.Target, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				st.miss(kind, t, ctx.Err())
				return
			}
			defer func() { <-sem }()
			if err := fn(ctx); err != nil {
				st.miss(kind, t, err)
			}
		}()
	}

	for _, t := range targets {
		t := t
		spawn(models.ReadQuote, t, func(ctx context.Context) error {
			var q models.Quote
			ep, err := c.call(ctx, t.Chain, rep, func(ctx context.Context, ep models.Endpoint) error {
				var err error
				q, err = c.prices.ReadPrice(ctx, ep, t)
				return err
			})
			if err != nil {
				return err
			}
			q.Chain, q.Venue, q.Pair, q.Endpoint = t.Chain, t.Venue, t.Pair, ep.URL
			if q.CollectedAt.IsZero() {
				q.CollectedAt = c.now()
			}
			st.mu.Lock()
			st.quotes = append(st.quotes, q)
			st.used[ep.ID()] = true
			st.mu.Unlock()
			return nil
		})
	}

	if c.fees != nil {
		for _, ch := range chains {
			ch := ch
			spawn(models.ReadFee, models.Target{Chain: ch}, func(ctx context.Context) error {
				var fe models.FeeEstimate
				ep, err := c.call(ctx, ch, rep, func(ctx context.Context, ep models.Endpoint) error {
					var err error
					fe, err = c.fees.ReadFeeLevel(ctx, ep, ch)
					return err
				})
				if err != nil {
					return err
				}
				fe.Chain, fe.Endpoint = ch, ep.URL
				if fe.CollectedAt.IsZero() {
					fe.CollectedAt = c.now()
				}
				st.mu.Lock()
				st.gwei[ch] = fe
				st.used[ep.ID()] = true
				st.mu.Unlock()
				return nil
			})
		}
	}

	if c.oracle != nil {
		oc := c.oracle.OracleChain()
		for _, asset := range assets {
			asset := asset
			spawn(models.ReadOracle, models.Target{Chain: oc, Pair: asset + "/USD"}, func(ctx context.Context) error {
				var usd float64
				ep, err := c.call(ctx, oc, rep, func(ctx context.Context, ep models.Endpoint) error {
					var err error
					usd, err = c.oracle.ReadNativeUSD(ctx, ep, asset)
					return err
				})
				if err != nil {
					return err
				}
				st.mu.Lock()
				st.usd[asset] = usd
				st.used[ep.ID()] = true
				st.mu.Unlock()
				return nil
			})
		}
	}

	wg.Wait()
	rep.close()

	out := c.assemble(st)
	c.metrics.RecordLatency("collect", time.Since(start).Seconds())
	if len(out.Missing) > 0 {
		c.log.Debug("collect finished with missing reads",
			logger.Int("quotes", len(out.Quotes)),
			logger.Int("missing", len(out.Missing)),
		)
	}
	return out
}

// call runs fn against the best endpoint of chain and retries once on the
// next-ranked endpoint. A locally rate-limited endpoint uses up its turn
// without a call, so nothing past the second-ranked endpoint is tried.
func (c *QuoteCollector) call(ctx context.Context, chain models.Chain, rep *reporter, fn func(context.Context, models.Endpoint) error) (models.Endpoint, error) {
	ranked := c.rotator.Ranked(chain)
	if len(ranked) == 0 {
		return models.Endpoint{}, fmt.Errorf("%s: %w", chain, endpoint.ErrNoEndpointAvailable)
	}
	ranked = ranked[:min(2, len(ranked))]

	var lastErr error
	for _, ep := range ranked {
		if !c.limiter.Allow(ep.ID()) {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		t0 := time.Now()
		err := fn(callCtx, ep)
		cancel()
		if err == nil {
			rep.report(models.Report{EndpointID: ep.ID(), Success: true, Latency: time.Since(t0)})
			return ep, nil
		}
		if ctx.Err() != nil {
			return models.Endpoint{}, ctx.Err()
		}
		rep.report(models.Report{EndpointID: ep.ID(), Latency: time.Since(t0), Err: err})
		c.metrics.RecordError("read_" + string(chain))
		lastErr = fmt.Errorf("%s: %w", ep.URL, err)
	}
	if lastErr == nil {
		return models.Endpoint{}, fmt.Errorf("%s: %w", chain, errRateLimited)
	}
	return models.Endpoint{}, lastErr
}

func (c *QuoteCollector) assemble(st *collectState) models.Collection {
	out := models.Collection{
		Quotes:  st.quotes,
		Fees:    make(models.FeeBook, len(st.gwei)),
		Missing: st.missing,
	}

	for asset, usd := range st.usd {
		if c.natives != nil {
			c.natives.Remember(asset, usd)
		}
	}
	for ch, fe := range st.gwei {
		fe.NativeUSD = c.nativeUSD(ch, st.usd)
		out.Fees[ch] = fe
	}

	for ch := range st.degraded {
		out.DegradedChains = append(out.DegradedChains, ch)
	}
	for id := range st.used {
		out.EndpointsUsed = append(out.EndpointsUsed, id)
	}

	sort.Slice(out.Quotes, func(i, j int) bool {
		return out.Quotes[i].Target().String() < out.Quotes[j].Target().String()
	})
	sort.Slice(out.Missing, func(i, j int) bool {
		if out.Missing[i].Kind != out.Missing[j].Kind {
			return out.Missing[i].Kind < out.Missing[j].Kind
		}
		return out.Missing[i].Target.String() < out.Missing[j].Target.String()
	})
	sort.Slice(out.DegradedChains, func(i, j int) bool { return out.DegradedChains[i] < out.DegradedChains[j] })
	sort.Strings(out.EndpointsUsed)
	return out
}

// nativeUSD prefers this tick's oracle read, then the cached or static price.
func (c *QuoteCollector) nativeUSD(ch models.Chain, read map[string]float64) float64 {
	asset := c.nativeOf(ch)
	if v, ok := read[asset]; ok && v > 0 {
		return v
	}
	if c.natives == nil {
		return 0
	}
	v, _ := c.natives.Lookup(asset)
	return v
}

func (c *QuoteCollector) nativeOf(ch models.Chain) string {
	if a, ok := c.cfg.Natives[ch]; ok && a != "" {
		return strings.ToUpper(a)
	}
	return "ETH"
}

func (c *QuoteCollector) assetsFor(chains []models.Chain) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ch := range chains {
		a := c.nativeOf(ch)
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

func distinctChains(targets []models.Target) []models.Chain {
	seen := make(map[models.Chain]bool)
	var out []models.Chain
	for _, t := range targets {
		if !seen[t.Chain] {
			seen[t.Chain] = true
			out = append(out, t.Chain)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
