package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	// Instance names this engine to the tick lease and peer heartbeats.
	// Empty means hostname plus a random suffix.
	Instance    string `yaml:"instance"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Logger struct {
		Level         string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format        string        `yaml:"format" default:"console" validate:"oneof=json console"`
		Output        string        `yaml:"output" default:"stdout"`
		TimeFormat    string        `yaml:"time_format"`
		MaxSizeMB     int           `yaml:"max_size_mb" default:"100"`
		MaxBackups    int           `yaml:"max_backups" default:"5"`
		MaxAgeDays    int           `yaml:"max_age_days" default:"14"`
		Compress      bool          `yaml:"compress"`
		CollectWindow time.Duration `yaml:"collect_window" default:"30s"` // error aggregation window when kafka is on
	} `yaml:"logger"`
	Engine struct {
		TickInterval       time.Duration `yaml:"tick_interval" default:"30s" validate:"gt=0"`
		CallTimeout        time.Duration `yaml:"call_timeout" default:"2s" validate:"gt=0"`
		HealthCheckTimeout time.Duration `yaml:"health_check_timeout" default:"2s" validate:"gt=0"`
		MaxInFlight        int           `yaml:"max_in_flight" default:"8" validate:"gt=0"`
		StalenessWindow    time.Duration `yaml:"staleness_window" default:"15s" validate:"gt=0"`
		DispatchTimeout    time.Duration `yaml:"dispatch_timeout" default:"5s" validate:"gt=0"`
		SettleTimeout      time.Duration `yaml:"settle_timeout" default:"10s" validate:"gt=0"`
	} `yaml:"engine"`
	Endpoints struct {
		Alpha            float64       `yaml:"alpha" default:"0.3" validate:"gt=0,lte=1"`
		FailureThreshold int           `yaml:"failure_threshold" default:"3" validate:"gt=0"`
		BaseBackoff      time.Duration `yaml:"base_backoff" default:"1s" validate:"gt=0"`
		MaxBackoff       time.Duration `yaml:"max_backoff" default:"16s" validate:"gt=0"`
		RateLimitRPS     float64       `yaml:"rate_limit_rps" default:"10" validate:"gte=0"`
		RateLimitBurst   float64       `yaml:"rate_limit_burst" default:"20" validate:"gte=0"`
		List             []Endpoint    `yaml:"list" validate:"dive"`
	} `yaml:"endpoints"`
	Chains   []Chain `yaml:"chains" validate:"dive"`
	Venues   []Venue `yaml:"venues" validate:"dive"`
	Strategy struct {
		KellyFraction        float64  `yaml:"kelly_fraction" default:"0.01" validate:"gt=0,lte=1"`
		NetEdgeThreshold     float64  `yaml:"net_edge_threshold" default:"0.003" validate:"gte=0,lt=1"`
		OpportunisticCapUSD  float64  `yaml:"opportunistic_cap_usd" default:"50" validate:"gt=0"`
		ReferenceNotionalUSD float64  `yaml:"reference_notional_usd" default:"50" validate:"gt=0"`
		GasUnitsPerLeg       uint64   `yaml:"gas_units_per_leg" default:"150000" validate:"gt=0"`
		FixedSlippage        float64  `yaml:"fixed_slippage" default:"0.001" validate:"gte=0,lt=1"`
		MinSlippage          float64  `yaml:"min_slippage" default:"0.0002" validate:"gte=0,lt=1"`
		ConservativePairs    []string `yaml:"conservative_pairs"`
	} `yaml:"strategy"`
	Phase struct {
		UnlockBalanceUSD float64 `yaml:"unlock_balance_usd" default:"500" validate:"gt=0"`
		MinPeers         int     `yaml:"min_peers" default:"1" validate:"gte=1"`
	} `yaml:"phase"`
	Treasury struct {
		InitialCapitalUSD float64       `yaml:"initial_capital_usd" default:"50" validate:"gte=0"`
		DisbursePct       float64       `yaml:"disburse_pct" default:"0.4" validate:"gte=0,lte=1"`
		MinWireUSD        float64       `yaml:"min_wire_usd" default:"0.5" validate:"gte=0"`
		OwnerAddress      string        `yaml:"owner_address"`
		ContractAddress   string        `yaml:"contract_address"`
		Chain             string        `yaml:"chain" default:"base"`
		PrivateKey        string        `yaml:"-"`
		Live              bool          `yaml:"live"` // false sends no transactions
		ReceiptTimeout    time.Duration `yaml:"receipt_timeout" default:"6s"`
		WireDropAfter     time.Duration `yaml:"wire_drop_after" default:"10m"` // unknown wire is retried after this
	} `yaml:"treasury"`
	Oracle struct {
		Chain  string            `yaml:"chain" default:"ethereum"`
		Feeds  map[string]string `yaml:"feeds"` // native asset -> Chainlink aggregator
		TTL    time.Duration     `yaml:"ttl" default:"5m"`
		MaxAge time.Duration     `yaml:"max_age" default:"2h"`
	} `yaml:"oracle"`
	Executor struct {
		Type    string        `yaml:"type" default:"paper" validate:"oneof=paper http"`
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"executor"`
	Peers struct {
		Type              string        `yaml:"type" default:"static" validate:"oneof=static websocket kafka"`
		URL               string        `yaml:"url"`
		StaticCount       int           `yaml:"static_count" validate:"gte=0"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval      time.Duration `yaml:"ping_interval" default:"20s"`
		Topic             string        `yaml:"topic" default:"arbpull.peers"`
		Window            time.Duration `yaml:"window" default:"90s"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval" default:"30s"`
	} `yaml:"peers"`
	Recorder struct {
		Backend    string `yaml:"backend" default:"noop" validate:"oneof=noop sqlite clickhouse kafka"`
		SQLitePath string `yaml:"sqlite_path" default:"data/ticks.db"`
		BufferSize int    `yaml:"buffer_size" default:"256" validate:"gt=0"`
	} `yaml:"recorder"`
	State struct {
		Backend string `yaml:"backend" default:"file" validate:"oneof=memory file redis"`
		Path    string `yaml:"path" default:"data/treasury.json"`
		Key     string `yaml:"key" default:"treasury:state"`
	} `yaml:"state"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"arbpull"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled        bool     `yaml:"enabled"`
		Brokers        []string `yaml:"brokers"`
		RecordsTopic   string   `yaml:"records_topic" default:"arbpull.ticks"`
		SnapshotsTopic string   `yaml:"snapshots_topic" default:"arbpull.snapshots"`
		ErrorsTopic    string   `yaml:"errors_topic" default:"arbpull.errors"`
		RequiredAcks   int      `yaml:"required_acks" default:"-1"`
		Compression    string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"arbpull"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
}

// Endpoint is a configured RPC endpoint.
type Endpoint struct {
	Chain    string `yaml:"chain" validate:"required"`
	URL      string `yaml:"url" validate:"required,url"`
	Provider string `yaml:"provider"`
}

// Chain holds per-chain execution parameters.
type Chain struct {
	Name              string  `yaml:"name" validate:"required"`
	ChainID           int64   `yaml:"chain_id" validate:"gt=0"`
	Native            string  `yaml:"native" default:"ETH"`
	FallbackNativeUSD float64 `yaml:"fallback_native_usd" default:"2000" validate:"gt=0"`
}

// Venue is a trading venue on one chain and the pools it quotes.
type Venue struct {
	Chain string `yaml:"chain" validate:"required"`
	Name  string `yaml:"name" validate:"required"`
	Kind  string `yaml:"kind" default:"uniswap_v2" validate:"oneof=uniswap_v2"`
	Pools []Pool `yaml:"pools" validate:"dive"`
}

// Pool is a constant-product pool for a base/quote pair.
type Pool struct {
	Pair          string `yaml:"pair" validate:"required"`
	Address       string `yaml:"address" validate:"required"`
	BaseIsToken0  bool   `yaml:"base_is_token0"`
	BaseDecimals  int    `yaml:"base_decimals" default:"18" validate:"gte=0,lte=36"`
	QuoteDecimals int    `yaml:"quote_decimals" default:"6" validate:"gte=0,lte=36"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("OWNER_ADDRESS"); v != "" {
		c.Treasury.OwnerAddress = v
	} else if v := os.Getenv("OWNER_METAMASK"); v != "" {
		c.Treasury.OwnerAddress = v
	}
	if v := os.Getenv("TREASURY_CONTRACT"); v != "" {
		c.Treasury.ContractAddress = v
	}
	if v := os.Getenv("TREASURY_CHAIN"); v != "" {
		c.Treasury.Chain = v
	}
	if v := os.Getenv("TREASURY_PRIVATE_KEY"); v != "" {
		c.Treasury.PrivateKey = v
	}
	if v := os.Getenv("INITIAL_CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("INITIAL_CAPITAL: %w", err)
		}
		c.Treasury.InitialCapitalUSD = f
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR: %w", err)
			}
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("RECORDER_BACKEND"); v != "" {
		c.Recorder.Backend = v
	}
	if v := os.Getenv("ARBPULL_INSTANCE"); v != "" {
		c.Instance = v
	}
	if v := os.Getenv("SWARM_PEERS_URL"); v != "" {
		c.Peers.URL = v
		c.Peers.Type = "websocket"
	}
	return nil
}

func (c *Config) finalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	if len(c.Chains) == 0 {
		c.Chains = DefaultChains()
	}
	if c.Oracle.Feeds == nil {
		c.Oracle.Feeds = map[string]string{"ETH": ChainlinkETHUSD}
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints the struct tags cannot express.
func (c *Config) Validate() error {
	if c.Endpoints.MaxBackoff < c.Endpoints.BaseBackoff {
		return fmt.Errorf("endpoints.max_backoff must be >= endpoints.base_backoff")
	}
	if c.Strategy.MinSlippage > c.Strategy.FixedSlippage && c.Strategy.FixedSlippage > 0 {
		return fmt.Errorf("strategy.min_slippage must be <= strategy.fixed_slippage")
	}
	chains := make(map[string]bool, len(c.Chains))
	for _, ch := range c.Chains {
		chains[ch.Name] = true
	}
	for _, v := range c.Venues {
		if !chains[v.Chain] {
			return fmt.Errorf("venue %s references unknown chain %q", v.Name, v.Chain)
		}
	}
	if c.Executor.Type == "http" && c.Executor.URL == "" {
		return fmt.Errorf("executor.url is required for http executor")
	}
	if c.Peers.Type == "websocket" && c.Peers.URL == "" {
		return fmt.Errorf("peers.url is required for websocket peers")
	}
	if (c.Recorder.Backend == "kafka" || c.Peers.Type == "kafka" || c.Kafka.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is used")
	}
	if c.Treasury.ReceiptTimeout >= c.Engine.SettleTimeout {
		return fmt.Errorf("treasury.receipt_timeout must be less than engine.settle_timeout")
	}
	if c.Treasury.Live {
		if c.Treasury.OwnerAddress == "" || c.Treasury.ContractAddress == "" {
			return fmt.Errorf("treasury.owner_address and treasury.contract_address are required when treasury.live")
		}
		if c.Treasury.PrivateKey == "" {
			return fmt.Errorf("TREASURY_PRIVATE_KEY is required when treasury.live")
		}
		if !chains[c.Treasury.Chain] {
			return fmt.Errorf("treasury.chain %q is not a configured chain", c.Treasury.Chain)
		}
	}
	return nil
}

// ChainlinkETHUSD is the Chainlink ETH/USD aggregator on Ethereum mainnet.
const ChainlinkETHUSD = "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"

// DefaultChains returns the chains the engine knows out of the box.
func DefaultChains() []Chain {
	return []Chain{
		{Name: "ethereum", ChainID: 1, Native: "ETH", FallbackNativeUSD: 2000},
		{Name: "base", ChainID: 8453, Native: "ETH", FallbackNativeUSD: 2000},
		{Name: "arbitrum", ChainID: 42161, Native: "ETH", FallbackNativeUSD: 2000},
		{Name: "polygon", ChainID: 137, Native: "POL", FallbackNativeUSD: 0.5},
	}
}

// ChainByName returns the configured chain with the given name.
func (c *Config) ChainByName(name string) (Chain, bool) {
	for _, ch := range c.Chains {
		if ch.Name == name {
			return ch, true
		}
	}
	return Chain{}, false
}
