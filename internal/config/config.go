// Package config defines the top-level configuration for zetatrigger and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/units"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ZETATRIGGER_* environment variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Oracle    OracleConfig    `toml:"oracle"`
	Swap      SwapConfig      `toml:"swap"`
	Messenger MessengerConfig `toml:"messenger"`
	Chain     ChainConfig     `toml:"chain"`
	Wallet    WalletConfig    `toml:"wallet"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig tunes the execution loop.
type EngineConfig struct {
	Interval      duration `toml:"interval"`
	Concurrency   int      `toml:"concurrency"`
	RetryCooldown duration `toml:"retry_cooldown"`
	LockTTL       duration `toml:"lock_ttl"`
	// DistributedLocks takes a redis lock per order while it executes,
	// guarding against a second instance running from the same journal.
	DistributedLocks bool `toml:"distributed_locks"`
}

// OracleConfig selects and tunes the price source.
type OracleConfig struct {
	// Source is "static", "chainlink" or "cache".
	Source       string   `toml:"source"`
	FeedAddress  string   `toml:"feed_address"`
	StaticPrice  string   `toml:"static_price"` // decimal USDC per ZETA
	Pair         string   `toml:"pair"`
	MaxStaleness duration `toml:"max_staleness"`
	PollInterval duration `toml:"poll_interval"`
	CacheTTL     duration `toml:"cache_ttl"`
}

// SwapConfig selects the swap venue.
type SwapConfig struct {
	// Executor is "paper" or "router".
	Executor      string   `toml:"executor"`
	RouterAddress string   `toml:"router_address"`
	ZETAToken     string   `toml:"zeta_token"`
	USDCToken     string   `toml:"usdc_token"`
	Deadline      duration `toml:"deadline"`
	PaperFeeBps   uint32   `toml:"paper_fee_bps"`
	PaperMaxZETA  string   `toml:"paper_max_zeta"` // decimal, empty for no cap
	PaperMaxUSDC  string   `toml:"paper_max_usdc"`
}

// CounterpartConfig registers the trusted contract on a destination chain.
type CounterpartConfig struct {
	ChainID  uint64 `toml:"chain_id"`
	Address  string `toml:"address"`
	Fee      string `toml:"fee"`       // decimal, in the gas asset
	GasToken string `toml:"gas_token"` // ZRC-20 paying for gas on that chain
}

// MessengerConfig configures cross-chain settlement.
type MessengerConfig struct {
	Enabled bool `toml:"enabled"`
	// Gateway is "loopback" or "stream".
	Gateway        string   `toml:"gateway"`
	GatewayAddress string   `toml:"gateway_address"`
	GasAsset       string   `toml:"gas_asset"`
	Timeout        duration `toml:"timeout"`
	SweepInterval  duration `toml:"sweep_interval"`
	LoopbackDelay  duration `toml:"loopback_delay"`
	RelayerAddress string   `toml:"relayer_address"`
	WebhookSecret  string   `toml:"webhook_secret"`
	WebhookMaxSkew duration `toml:"webhook_max_skew"`
	// StaticReserve funds each destination with this much gas (decimal)
	// when no on-chain gateway is configured.
	StaticReserve string              `toml:"static_reserve"`
	Counterparts  []CounterpartConfig `toml:"counterparts"`
}

// ChainConfig points at the ZetaChain RPC endpoint.
type ChainConfig struct {
	RPCURL string `toml:"rpc_url"`
}

// WalletConfig holds the operator key used for router swaps.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds the journal database connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Prefix     string `toml:"prefix"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveAfter    duration `toml:"archive_after"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5s", "1h30m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"` // requests per rate_window per IP, needs redis
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with sensible defaults for a local
// paper-trading setup.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Interval:      duration{5 * time.Second},
			Concurrency:   4,
			RetryCooldown: duration{30 * time.Second},
			LockTTL:       duration{30 * time.Second},
		},
		Oracle: OracleConfig{
			Source:       "static",
			StaticPrice:  "0.26",
			Pair:         "ZETA-USDC",
			MaxStaleness: duration{2 * time.Minute},
			PollInterval: duration{10 * time.Second},
			CacheTTL:     duration{5 * time.Minute},
		},
		Swap: SwapConfig{
			Executor:    "paper",
			Deadline:    duration{2 * time.Minute},
			PaperFeeBps: 30,
		},
		Messenger: MessengerConfig{
			Enabled:        true,
			Gateway:        "loopback",
			GasAsset:       string(domain.AssetZETA),
			Timeout:        duration{10 * time.Minute},
			SweepInterval:  duration{30 * time.Second},
			LoopbackDelay:  duration{2 * time.Second},
			WebhookMaxSkew: duration{5 * time.Minute},
			StaticReserve:  "100",
		},
		Chain: ChainConfig{
			RPCURL: "https://zetachain-evm.blockpi.network/v1/rpc/public",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "zetatrigger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Prefix:     "zt",
		},
		S3: S3Config{
			Region:          "us-east-1",
			Bucket:          "zetatrigger-archive",
			ForcePathStyle:  true,
			ArchiveAfter:    duration{30 * 24 * time.Hour},
			ArchiveInterval: duration{6 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"OrderExecuted", "OrderHalted", "SettlementFailed", "CallbackRejected"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine": true,
	"server": true,
	"feeder": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		add("unknown mode %q (valid: engine, server, feeder, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Engine
	if c.Engine.Interval.Duration <= 0 {
		add("engine: interval must be > 0")
	}
	if c.Engine.Concurrency < 1 {
		add("engine: concurrency must be >= 1")
	}
	if c.Engine.RetryCooldown.Duration < 0 {
		add("engine: retry_cooldown must not be negative")
	}
	if c.Engine.DistributedLocks && !c.Redis.Enabled {
		add("engine: distributed_locks requires redis")
	}

	// Oracle
	switch c.Oracle.Source {
	case "static":
		if _, err := units.ParsePrice(c.Oracle.StaticPrice); err != nil {
			add("oracle: static_price: %v", err)
		}
	case "chainlink":
		checkAddress(add, "oracle: feed_address", c.Oracle.FeedAddress)
		if c.Chain.RPCURL == "" {
			add("chain: rpc_url is required for the chainlink oracle")
		}
	case "cache":
		if !c.Redis.Enabled {
			add("oracle: source cache requires redis")
		}
	default:
		add("oracle: unknown source %q (valid: static, chainlink, cache)", c.Oracle.Source)
	}
	if c.Oracle.MaxStaleness.Duration <= 0 {
		add("oracle: max_staleness must be > 0")
	}
	if mode == "feeder" {
		if c.Oracle.Source == "cache" {
			add("oracle: feeder mode needs a live source, not the cache")
		}
		if !c.Redis.Enabled {
			add("redis: feeder mode requires redis")
		}
	}

	// Swap
	switch c.Swap.Executor {
	case "paper":
		if c.Swap.PaperFeeBps >= domain.BpsDenominator {
			add("swap: paper_fee_bps must be < %d", domain.BpsDenominator)
		}
		checkAmount(add, "swap: paper_max_zeta", c.Swap.PaperMaxZETA, domain.AssetZETA)
		checkAmount(add, "swap: paper_max_usdc", c.Swap.PaperMaxUSDC, domain.AssetUSDC)
	case "router":
		checkAddress(add, "swap: router_address", c.Swap.RouterAddress)
		checkAddress(add, "swap: zeta_token", c.Swap.ZETAToken)
		checkAddress(add, "swap: usdc_token", c.Swap.USDCToken)
		if c.Chain.RPCURL == "" {
			add("chain: rpc_url is required for the router executor")
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: either private_key or encrypted_key_path must be set for the router executor")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			add("wallet: key_password is required when encrypted_key_path is set")
		}
	default:
		add("swap: unknown executor %q (valid: paper, router)", c.Swap.Executor)
	}

	// Messenger
	if c.Messenger.Enabled {
		switch c.Messenger.Gateway {
		case "loopback":
		case "stream":
			if !c.Redis.Enabled {
				add("messenger: gateway stream requires redis")
			}
		default:
			add("messenger: unknown gateway %q (valid: loopback, stream)", c.Messenger.Gateway)
		}
		if _, err := domain.ParseAsset(c.Messenger.GasAsset); err != nil {
			add("messenger: gas_asset: %v", err)
		}
		if c.Messenger.Timeout.Duration <= 0 {
			add("messenger: timeout must be > 0")
		}
		checkAmount(add, "messenger: static_reserve", c.Messenger.StaticReserve, domain.AssetZETA)
		if c.Messenger.RelayerAddress != "" {
			checkAddress(add, "messenger: relayer_address", c.Messenger.RelayerAddress)
		}
		if c.Messenger.GatewayAddress != "" {
			checkAddress(add, "messenger: gateway_address", c.Messenger.GatewayAddress)
		}
		seen := make(map[uint64]bool, len(c.Messenger.Counterparts))
		for i, cp := range c.Messenger.Counterparts {
			prefix := fmt.Sprintf("messenger: counterparts[%d]", i)
			if cp.ChainID == 0 {
				add("%s: chain_id must be non-zero", prefix)
			}
			if seen[cp.ChainID] {
				add("%s: duplicate chain_id %d", prefix, cp.ChainID)
			}
			seen[cp.ChainID] = true
			checkAddress(add, prefix+": address", cp.Address)
			checkAmount(add, prefix+": fee", cp.Fee, domain.AssetZETA)
			if cp.GasToken != "" {
				checkAddress(add, prefix+": gas_token", cp.GasToken)
			}
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if !c.Postgres.Enabled {
			add("s3: archiving requires postgres")
		}
		if c.S3.ArchiveAfter.Duration <= 0 || c.S3.ArchiveInterval.Duration <= 0 {
			add("s3: archive_after and archive_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled || mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkAddress(add func(string, ...any), field, v string) {
	if !common.IsHexAddress(v) {
		add("%s: %q is not a hex address", field, v)
	}
}

func checkAmount(add func(string, ...any), field, v string, asset domain.Asset) {
	if v == "" {
		return
	}
	if _, err := units.ParseAmount(v, asset); err != nil {
		add("%s: %v", field, err)
	}
}
