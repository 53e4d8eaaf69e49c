package domain

import "time"

// Config holds the complete MuleTrace service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure backends
	Tier Tier `json:"tier"`

	// Engine holds the detection thresholds passed into the forensic engine.
	Engine EngineConfig `json:"engine"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Export     ExportConfig     `json:"export"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// EngineConfig is the immutable set of detection thresholds for one analysis
// run. Passed by value into the engine entry point; never process-wide state.
type EngineConfig struct {
	// Structuring detector
	StructuringWindow    time.Duration `json:"structuringWindow"`    // sliding window width
	StructuringThreshold int           `json:"structuringThreshold"` // distinct counterparties to flag

	// Cycle detector
	CycleMinLength int           `json:"cycleMinLength"`
	CycleMaxLength int           `json:"cycleMaxLength"`
	CycleMaxSpan   time.Duration `json:"cycleMaxSpan"`   // 0 = unbounded elapsed time
	CycleBudget    int           `json:"cycleBudget"`    // max cycles inspected before truncating

	// Shell chain detector
	ShellMinTxCount     int           `json:"shellMinTxCount"`
	ShellMaxTxCount     int           `json:"shellMaxTxCount"`
	ShellMaxResidence   time.Duration `json:"shellMaxResidence"`
	ShellMinChainLength int           `json:"shellMinChainLength"`

	// Temporal behavior analyzer
	NocturnalRatio float64 `json:"nocturnalRatio"` // fraction of tx in [23:00,05:00) to flag
	RoboticCVMax   float64 `json:"roboticCVMax"`   // coefficient-of-variation ceiling

	// Whitelist heuristics. Calibrated against sample ledgers, configurable
	// because product documentation only describes them qualitatively.
	HubMinCounterparties int     `json:"hubMinCounterparties"`
	HubDailyCVMax        float64 `json:"hubDailyCVMax"`
	HubBalanceTolerance  float64 `json:"hubBalanceTolerance"` // |in-out| / max(in,out)
	PayrollMinTransfers  int     `json:"payrollMinTransfers"`
	PayrollMinGap        time.Duration `json:"payrollMinGap"`
	PayrollMaxGap        time.Duration `json:"payrollMaxGap"`
	PayrollAmountCVMax   float64 `json:"payrollAmountCVMax"`

	// HubDiscount scales structuring/velocity/temporal contributions for
	// whitelisted hubs. 0 suppresses them entirely; cycle and shell-chain
	// contributions are never discounted.
	HubDiscount float64 `json:"hubDiscount"`

	// AllowlistRules are optional CEL expressions over account aggregates.
	// An account is whitelisted when any expression evaluates true.
	AllowlistRules []AllowlistRule `json:"allowlistRules,omitempty"`
}

// AllowlistRule is a user-supplied CEL expression marking accounts as
// legitimate hubs, e.g. "in_degree > 100 && total_in > 1000000.0".
type AllowlistRule struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
}

// DefaultEngineConfig returns the calibrated default thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		StructuringWindow:    72 * time.Hour,
		StructuringThreshold: 10,
		CycleMinLength:       3,
		CycleMaxLength:       5,
		CycleMaxSpan:         0, // hop-capped, not time-capped, by default
		CycleBudget:          10000,
		ShellMinTxCount:      2,
		ShellMaxTxCount:      3,
		ShellMaxResidence:    48 * time.Hour,
		ShellMinChainLength:  3,
		NocturnalRatio:       0.40,
		RoboticCVMax:         0.20,
		HubMinCounterparties: 50,
		HubDailyCVMax:        0.70,
		HubBalanceTolerance:  0.30,
		PayrollMinTransfers:  3,
		PayrollMinGap:        25 * 24 * time.Hour,
		PayrollMaxGap:        35 * 24 * time.Hour,
		PayrollAmountCVMax:   0.05,
		HubDiscount:          0,
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// ExportConfig holds optional graph-database export settings.
type ExportConfig struct {
	Enabled  bool   `json:"enabled"`
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-process channels + LRU cache.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 120,
		},
		Tier:   TierCommunity,
		Engine: DefaultEngineConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./muletrace.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     30 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "muletrace",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "muletrace",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   500,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
