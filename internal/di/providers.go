package di

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"ArbPull/internal/domain/models"
	domrepo "ArbPull/internal/domain/repository"
	"ArbPull/internal/handler/api"
	mid "ArbPull/internal/middleware"
	internalrepo "ArbPull/internal/repository"
	icache "ArbPull/internal/service/cache"
	"ArbPull/internal/service/cost"
	"ArbPull/internal/service/endpoint"
	"ArbPull/internal/service/peers"
	"ArbPull/internal/service/phase"
	"ArbPull/internal/service/ratelimit"
	"ArbPull/internal/service/status"
	"ArbPull/internal/service/treasury"
	"ArbPull/internal/usecase"
	pkgcache "ArbPull/pkg/cache"
	pkgch "ArbPull/pkg/clickhouse"
	"ArbPull/pkg/config"
	"ArbPull/pkg/evm"
	xhttp "ArbPull/pkg/http"
	pkgkafka "ArbPull/pkg/kafka"
	applogger "ArbPull/pkg/logger"
	"ArbPull/pkg/metrics"
	"ArbPull/pkg/scheduler"
	"ArbPull/pkg/server"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InstanceID names this engine to the tick lease and peer heartbeats.
type InstanceID string

// ProvideInstanceID returns the configured instance name or hostname-suffix.
func ProvideInstanceID(cfg *config.Config) InstanceID {
	if cfg.Instance != "" {
		return InstanceID(cfg.Instance)
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "arbpull"
	}
	return InstanceID(host + "-" + uuid.NewString()[:8])
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
		Compress:   cfg.Logger.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

func kafkaNeeded(cfg *config.Config) bool {
	return cfg.Kafka.Enabled || cfg.Recorder.Backend == "kafka" || cfg.Peers.Type == "kafka"
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is not
// used. Aggregated error logs are shipped to the errors topic through it.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !kafkaNeeded(cfg) {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval: cfg.Logger.CollectWindow,
		Topic:        cfg.Kafka.ErrorsTopic,
		Publisher:    producer,
	})
	cleanup := func() {
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideKafkaConsumer creates the peer heartbeat consumer. Every instance
// reads all beats, so each gets its own group starting at the latest offset.
func ProvideKafkaConsumer(cfg *config.Config, id InstanceID, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Peers.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID("arbpull-peers-"+string(id)),
		pkgkafka.WithConsumerStartLatest(),
		pkgkafka.WithConsumerRetry(1, 50*time.Millisecond, time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideEVMPool creates the shared RPC client pool.
func ProvideEVMPool() (*evm.Pool, func()) {
	pool := evm.NewPool()
	return pool, pool.Close
}

// ProvideTracker registers the configured endpoints, or the public
// defaults when none are listed.
func ProvideTracker(cfg *config.Config) *endpoint.Tracker {
	eps := endpoint.Defaults()
	if len(cfg.Endpoints.List) > 0 {
		eps = make([]models.Endpoint, 0, len(cfg.Endpoints.List))
		for _, e := range cfg.Endpoints.List {
			eps = append(eps, models.Endpoint{Chain: models.Chain(e.Chain), URL: e.URL, Provider: e.Provider})
		}
	}
	return endpoint.NewTracker(eps,
		endpoint.WithAlpha(cfg.Endpoints.Alpha),
		endpoint.WithFailureThreshold(cfg.Endpoints.FailureThreshold),
		endpoint.WithBackoff(cfg.Endpoints.BaseBackoff, cfg.Endpoints.MaxBackoff),
	)
}

func ProvideHealthChecker(cfg *config.Config, tracker *endpoint.Tracker, pool *evm.Pool, m domrepo.Metrics, l *applogger.Logger) *usecase.HealthChecker {
	return usecase.NewHealthChecker(tracker, internalrepo.NewEVMProber(pool),
		cfg.Engine.HealthCheckTimeout, cfg.Engine.MaxInFlight, m, l)
}

// ProvidePriceReader builds the pool map from the configured venues.
func ProvidePriceReader(cfg *config.Config, pool *evm.Pool) (*internalrepo.EVMPriceReader, error) {
	pools := make(map[models.Target]internalrepo.PoolSpec)
	for _, v := range cfg.Venues {
		for _, p := range v.Pools {
			addr, err := evm.ParseAddress(p.Address)
			if err != nil {
				return nil, fmt.Errorf("venue %s pool %s: %w", v.Name, p.Pair, err)
			}
			t := models.Target{Chain: models.Chain(v.Chain), Venue: v.Name, Pair: strings.ToUpper(p.Pair)}
			pools[t] = internalrepo.PoolSpec{
				Address:       addr,
				BaseIsToken0:  p.BaseIsToken0,
				BaseDecimals:  p.BaseDecimals,
				QuoteDecimals: p.QuoteDecimals,
			}
		}
	}
	return internalrepo.NewEVMPriceReader(pool, pools), nil
}

// ProvideNativePrices remembers oracle reads and falls back to the static
// per-chain prices.
func ProvideNativePrices(cfg *config.Config) *icache.PriceCache {
	fallback := make(map[string]float64, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		if _, ok := fallback[ch.Native]; !ok {
			fallback[ch.Native] = ch.FallbackNativeUSD
		}
	}
	return icache.NewPriceCache(cfg.Oracle.TTL, fallback)
}

func ProvideQuoteCollector(
	cfg *config.Config,
	tracker *endpoint.Tracker,
	prices *internalrepo.EVMPriceReader,
	pool *evm.Pool,
	natives *icache.PriceCache,
	m domrepo.Metrics,
	l *applogger.Logger,
) (*usecase.QuoteCollector, error) {
	feeds := make(map[string]common.Address, len(cfg.Oracle.Feeds))
	for asset, raw := range cfg.Oracle.Feeds {
		addr, err := evm.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("oracle feed %s: %w", asset, err)
		}
		feeds[asset] = addr
	}
	nativeOf := make(map[models.Chain]string, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		nativeOf[models.Chain(ch.Name)] = ch.Native
	}

	return usecase.NewQuoteCollector(
		usecase.CollectorConfig{
			CallTimeout: cfg.Engine.CallTimeout,
			MaxInFlight: cfg.Engine.MaxInFlight,
			Natives:     nativeOf,
		},
		tracker,
		prices,
		internalrepo.NewEVMFeeReader(pool),
		internalrepo.NewChainlinkOracle(pool, models.Chain(cfg.Oracle.Chain), feeds, cfg.Oracle.MaxAge),
		ratelimit.New(cfg.Endpoints.RateLimitRPS, cfg.Endpoints.RateLimitBurst),
		natives,
		m,
		l,
	), nil
}

func ProvideScanner(cfg *config.Config) *usecase.OpportunityScanner {
	return usecase.NewOpportunityScanner(cfg.Engine.StalenessWindow, cfg.Strategy.ConservativePairs)
}

func ProvideEvaluator(cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) *usecase.OpportunityEvaluator {
	s := cfg.Strategy
	return usecase.NewOpportunityEvaluator(
		cost.NewGasEstimator(s.GasUnitsPerLeg, s.ReferenceNotionalUSD),
		cost.NewSlippageEstimator(s.ReferenceNotionalUSD, s.FixedSlippage, s.MinSlippage),
		s.NetEdgeThreshold,
		m,
		l,
	)
}

func ProvideSizer(cfg *config.Config) *usecase.PositionSizer {
	return usecase.NewPositionSizer(cfg.Strategy.KellyFraction, cfg.Strategy.OpportunisticCapUSD)
}

func ProvidePhaseMachine(cfg *config.Config) *phase.Machine {
	return phase.NewMachine(
		phase.WithUnlockBalance(decimal.NewFromFloat(cfg.Phase.UnlockBalanceUSD)),
		phase.WithMinPeers(cfg.Phase.MinPeers),
	)
}

func ProvideLedger(cfg *config.Config, machine *phase.Machine) *treasury.Ledger {
	return treasury.NewLedger(machine,
		treasury.WithDisbursePct(decimal.NewFromFloat(cfg.Treasury.DisbursePct)),
		treasury.WithMinWire(decimal.NewFromFloat(cfg.Treasury.MinWireUSD)),
		treasury.WithWireDropAfter(cfg.Treasury.WireDropAfter),
	)
}

// ProvideExecutor selects the paper or HTTP executor.
func ProvideExecutor(cfg *config.Config) domrepo.Executor {
	if cfg.Executor.Type == "http" {
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Executor.Timeout))
		return internalrepo.NewHTTPExecutor(client, cfg.Executor.URL)
	}
	return internalrepo.NewPaperExecutor()
}

// ProvideDisburser wires profit through the treasury contract when live,
// and only logs disbursements otherwise.
func ProvideDisburser(cfg *config.Config, tracker *endpoint.Tracker, pool *evm.Pool, natives *icache.PriceCache, l *applogger.Logger) (domrepo.Disburser, error) {
	t := cfg.Treasury
	if !t.Live {
		return internalrepo.NewDryRunDisburser(t.OwnerAddress, l), nil
	}

	chain, _ := cfg.ChainByName(t.Chain)
	ranked := tracker.Rank(models.Chain(t.Chain))
	if len(ranked) == 0 {
		return nil, fmt.Errorf("treasury chain %s has no endpoint", t.Chain)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	backend, err := pool.Client(ctx, ranked[0].URL)
	if err != nil {
		return nil, fmt.Errorf("treasury backend: %w", err)
	}

	tc, err := internalrepo.NewTreasuryContract(backend, internalrepo.TreasuryContractConfig{
		Contract:       t.ContractAddress,
		Owner:          t.OwnerAddress,
		PrivateKey:     t.PrivateKey,
		ChainID:        chain.ChainID,
		Native:         chain.Native,
		ReceiptTimeout: t.ReceiptTimeout,
	}, natives, l)
	if err != nil {
		return nil, err
	}
	l.Info("treasury contract ready",
		applogger.String("contract", t.ContractAddress),
		applogger.String("owner", tc.Destination()),
		applogger.String("signer", tc.Signer().Hex()),
	)
	return tc, nil
}

// ProvideCache creates the Redis cache when state lives in Redis, and an
// in-process cache otherwise.
func ProvideCache(cfg *config.Config) (pkgcache.Service, func(), error) {
	if cfg.State.Backend != "redis" {
		mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(1024), pkgcache.WithMemoryCleanup(time.Minute))
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

func ProvideStateStore(cfg *config.Config, svc pkgcache.Service) domrepo.StateStore {
	if cfg.State.Backend == "file" {
		return internalrepo.NewFileStateStore(cfg.State.Path)
	}
	return internalrepo.NewCacheStateStore(svc, cfg.State.Key)
}

// ProvideTickLease returns the Redis lease, or nil for a single engine
// whose state is not shared.
func ProvideTickLease(cfg *config.Config, svc pkgcache.Service, id InstanceID) domrepo.TickLease {
	if cfg.State.Backend != "redis" {
		return nil
	}
	return internalrepo.NewCacheTickLease(svc, cfg.State.Key+":lease", string(id))
}

// ProvideClickHouseClient creates a ClickHouse client when ClickHouse
// records ticks, and prepares the audit table.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Recorder.Backend != "clickhouse" {
		return nil, func() {}, nil
	}
	ch := cfg.ClickHouse
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(ch.Host, ch.Port),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.ClickHouseTickSchema(ch.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideTickSink selects the audit backend for finalized ticks.
func ProvideTickSink(cfg *config.Config, producer *pkgkafka.Producer, ch *pkgch.Client, l *applogger.Logger) (domrepo.TickRecorder, error) {
	switch cfg.Recorder.Backend {
	case "sqlite":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rec, err := internalrepo.NewSQLiteTickRecorder(ctx, cfg.Recorder.SQLitePath, l)
		if err != nil {
			return nil, fmt.Errorf("sqlite recorder: %w", err)
		}
		return rec, nil
	case "clickhouse":
		return internalrepo.NewCHTickRecorder(ch, cfg.ClickHouse.Database, l), nil
	case "kafka":
		return internalrepo.NewKafkaTickRecorder(producer, cfg.Kafka.RecordsTopic), nil
	default:
		return internalrepo.NewNoopTickRecorder(), nil
	}
}

// ProvideTickHistory exposes the sink's read side when it has one.
func ProvideTickHistory(sink domrepo.TickRecorder) domrepo.TickHistory {
	if h, ok := sink.(domrepo.TickHistory); ok {
		return h
	}
	return nil
}

func ProvideRecordPipeline(cfg *config.Config, sink domrepo.TickRecorder, m domrepo.Metrics) *mid.RecordPipeline {
	return mid.NewRecordPipeline(sink, m, mid.WithBufferSize(cfg.Recorder.BufferSize))
}

func ProvideStatusBoard() *status.Board {
	return status.NewBoard()
}

// ProvideSnapshotPublisher feeds the status board and, with Kafka on, the
// snapshots topic.
func ProvideSnapshotPublisher(cfg *config.Config, board *status.Board, producer *pkgkafka.Producer) domrepo.SnapshotPublisher {
	if producer == nil || !cfg.Kafka.Enabled {
		return board
	}
	return status.Fanout{board, internalrepo.NewKafkaSnapshotPublisher(producer, cfg.Kafka.SnapshotsTopic)}
}

// ProvidePeerSource selects how the replication mesh is counted.
func ProvidePeerSource(cfg *config.Config, producer *pkgkafka.Producer, id InstanceID, l *applogger.Logger) domrepo.PeerSource {
	switch cfg.Peers.Type {
	case "websocket":
		return peers.NewClient(cfg.Peers.URL, cfg.Peers.ReconnectDelay, cfg.Peers.PingInterval, l)
	case "kafka":
		return peers.NewHeartbeats(producer, cfg.Peers.Topic, string(id), cfg.Peers.Window, l)
	default:
		return peers.Static(cfg.Peers.StaticCount)
	}
}

func ProvideTickOrchestrator(
	cfg *config.Config,
	tracker *endpoint.Tracker,
	health *usecase.HealthChecker,
	collector *usecase.QuoteCollector,
	scanner *usecase.OpportunityScanner,
	evaluator *usecase.OpportunityEvaluator,
	sizer *usecase.PositionSizer,
	ledger *treasury.Ledger,
	executor domrepo.Executor,
	disburser domrepo.Disburser,
	peerSource domrepo.PeerSource,
	store domrepo.StateStore,
	pipeline *mid.RecordPipeline,
	publisher domrepo.SnapshotPublisher,
	lease domrepo.TickLease,
	prices *internalrepo.EVMPriceReader,
	m domrepo.Metrics,
	l *applogger.Logger,
) (*usecase.TickOrchestrator, error) {
	return usecase.NewTickOrchestrator(
		usecase.TickConfig{
			Interval:        cfg.Engine.TickInterval,
			DispatchTimeout: cfg.Engine.DispatchTimeout,
			SettleTimeout:   cfg.Engine.SettleTimeout,
			InitialCapital:  decimal.NewFromFloat(cfg.Treasury.InitialCapitalUSD),
		},
		usecase.TickDeps{
			Tracker:   tracker,
			Health:    health,
			Collector: collector,
			Scanner:   scanner,
			Evaluator: evaluator,
			Sizer:     sizer,
			Ledger:    ledger,
			Executor:  executor,
			Disburser: disburser,
			Peers:     peerSource,
			Store:     store,
			Recorder:  pipeline,
			Publisher: publisher,
			Lease:     lease,
			Metrics:   m,
			Log:       l,
		},
		prices.Targets(),
	)
}

func ProvideStatusHandler(l *applogger.Logger, board *status.Board, tracker *endpoint.Tracker, machine *phase.Machine, history domrepo.TickHistory) *api.StatusEchoHandler {
	return api.NewStatusEchoHandler(l, board, tracker, machine, history)
}

func ProvideHTTPServer(cfg *config.Config, handler *api.StatusEchoHandler, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithAddr(cfg.Server.Host, cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORS(cfg.Server.CORSOrigins...))
	}
	return xhttp.NewServer(handler, l, opts...)
}

func ProvideScheduler(l *applogger.Logger) *scheduler.Scheduler {
	return scheduler.New(l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	orchestrator *usecase.TickOrchestrator,
	pipeline *mid.RecordPipeline,
	sched *scheduler.Scheduler,
	httpServer *xhttp.Server,
	peerSource domrepo.PeerSource,
	consumer *pkgkafka.Consumer,
) *server.App {
	return server.New(cfg, l, orchestrator, pipeline, sched, httpServer, peerSource, consumer)
}
