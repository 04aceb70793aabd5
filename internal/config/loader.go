package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every override variable.
const envPrefix = "ZETATRIGGER_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ZETATRIGGER_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and per-host settings at
// deploy time without touching the TOML file. Only set, non-empty variables
// take effect.
func applyEnvOverrides(cfg *Config) {
	// Engine
	setDuration(&cfg.Engine.Interval, "ENGINE_INTERVAL")
	setInt(&cfg.Engine.Concurrency, "ENGINE_CONCURRENCY")
	setDuration(&cfg.Engine.RetryCooldown, "ENGINE_RETRY_COOLDOWN")
	setBool(&cfg.Engine.DistributedLocks, "ENGINE_DISTRIBUTED_LOCKS")

	// Oracle
	setStr(&cfg.Oracle.Source, "ORACLE_SOURCE")
	setStr(&cfg.Oracle.FeedAddress, "ORACLE_FEED_ADDRESS")
	setStr(&cfg.Oracle.StaticPrice, "ORACLE_STATIC_PRICE")
	setDuration(&cfg.Oracle.MaxStaleness, "ORACLE_MAX_STALENESS")
	setDuration(&cfg.Oracle.PollInterval, "ORACLE_POLL_INTERVAL")

	// Swap
	setStr(&cfg.Swap.Executor, "SWAP_EXECUTOR")
	setStr(&cfg.Swap.RouterAddress, "SWAP_ROUTER_ADDRESS")
	setStr(&cfg.Swap.ZETAToken, "SWAP_ZETA_TOKEN")
	setStr(&cfg.Swap.USDCToken, "SWAP_USDC_TOKEN")

	// Messenger
	setBool(&cfg.Messenger.Enabled, "MESSENGER_ENABLED")
	setStr(&cfg.Messenger.Gateway, "MESSENGER_GATEWAY")
	setStr(&cfg.Messenger.GatewayAddress, "MESSENGER_GATEWAY_ADDRESS")
	setStr(&cfg.Messenger.RelayerAddress, "MESSENGER_RELAYER_ADDRESS")
	setStr(&cfg.Messenger.WebhookSecret, "MESSENGER_WEBHOOK_SECRET")
	setDuration(&cfg.Messenger.Timeout, "MESSENGER_TIMEOUT")

	// Chain and wallet
	setStr(&cfg.Chain.RPCURL, "CHAIN_RPC_URL")
	setStr(&cfg.Wallet.PrivateKey, "WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "WALLET_KEY_PASSWORD")

	// Postgres
	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// Redis
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Prefix, "REDIS_PREFIX")

	// S3
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveAfter, "S3_ARCHIVE_AFTER")

	// Server
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// Top-level
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty. Keys are given without the prefix.
// ---------------------------------------------------------------------------

func lookup(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
