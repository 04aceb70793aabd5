package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/zetatrigger/internal/blob/s3"
	"github.com/alanyoungcy/zetatrigger/internal/cache/redis"
	"github.com/alanyoungcy/zetatrigger/internal/chain"
	"github.com/alanyoungcy/zetatrigger/internal/config"
	"github.com/alanyoungcy/zetatrigger/internal/crypto"
	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/engine"
	"github.com/alanyoungcy/zetatrigger/internal/events"
	"github.com/alanyoungcy/zetatrigger/internal/ledger"
	"github.com/alanyoungcy/zetatrigger/internal/messenger"
	"github.com/alanyoungcy/zetatrigger/internal/notify"
	"github.com/alanyoungcy/zetatrigger/internal/oracle"
	"github.com/alanyoungcy/zetatrigger/internal/orders"
	"github.com/alanyoungcy/zetatrigger/internal/store/postgres"
	"github.com/alanyoungcy/zetatrigger/internal/swap"
	"github.com/alanyoungcy/zetatrigger/internal/units"
)

// Dependencies bundles the infrastructure adapters. Every field is nil when
// its backend is not configured.
type Dependencies struct {
	// Journal (postgres)
	AccountStore     domain.AccountStore
	OrderStore       domain.OrderStore
	TicketStore      domain.TicketStore
	CounterpartStore domain.CounterpartStore
	AuditStore       domain.AuditStore

	// Redis
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Chain
	Chain  *ethclient.Client
	Sender *chain.Sender

	Notifier *notify.Notifier
}

// needsChain reports whether any configured component talks to ZetaChain.
func needsChain(cfg *config.Config) bool {
	return cfg.Oracle.Source == "chainlink" ||
		cfg.Swap.Executor == "router" ||
		(cfg.Messenger.Enabled && cfg.Messenger.GatewayAddress != "")
}

// needsSender reports whether an operator key is required.
func needsSender(cfg *config.Config) bool {
	return cfg.Swap.Executor == "router" ||
		(cfg.Messenger.Enabled && cfg.Messenger.GatewayAddress != "")
}

// Wire connects every configured backend and returns the adapters together
// with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.AccountStore = postgres.NewAccountStore(pool)
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.TicketStore = postgres.NewTicketStore(pool)
		deps.CounterpartStore = postgres.NewCounterpartStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.Prefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Oracle.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.Warn("s3 bucket not reachable; archiving will retry", slog.String("error", err.Error()))
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- ZetaChain RPC and operator key ---
	if needsChain(cfg) {
		client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fail("chain", err)
		}
		closers = append(closers, client.Close)
		deps.Chain = client

		if needsSender(cfg) {
			key, err := crypto.LoadKey(crypto.KeyConfig{
				RawPrivateKey:    cfg.Wallet.PrivateKey,
				EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
				KeyPassword:      cfg.Wallet.KeyPassword,
			})
			if err != nil {
				return fail("wallet", err)
			}
			sender, err := chain.NewSender(ctx, client, crypto.NewSigner(key), logger)
			if err != nil {
				return fail("tx sender", err)
			}
			deps.Sender = sender
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// Components is the assembled domain layer.
type Components struct {
	Events    *events.Publisher
	Ledger    *ledger.Ledger
	Orders    *orders.Store
	Registry  *messenger.Registry
	Messenger *messenger.Messenger // nil when settlement is disabled
	Gateway   messenger.Gateway
	Source    oracle.Source
	Guard     *oracle.Guard
	Swap      swap.Executor
	Engine    *engine.Engine
	Archiver  *s3blob.Archiver // nil without s3
}

// Build assembles the domain layer on top of deps and restores persisted
// state. Restore order matters: balances first, then orders (which may halt
// interrupted executions), then tickets, then settlements that never got one.
func Build(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*Components, error) {
	c := &Components{}

	var notifier events.Notifier
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		notifier = deps.Notifier
	}
	c.Events = events.NewPublisher(0, deps.SignalBus, deps.AuditStore, notifier, logger)

	c.Ledger = ledger.New(deps.AccountStore, logger)
	c.Orders = orders.NewStore(c.Ledger, deps.OrderStore, logger)

	src, err := buildSource(cfg, deps)
	if err != nil {
		return nil, err
	}
	c.Source = src
	c.Guard = oracle.NewGuard(src, cfg.Oracle.MaxStaleness.Duration)

	if c.Swap, err = buildSwap(cfg, deps, src, logger); err != nil {
		return nil, err
	}

	if err := c.Ledger.Restore(ctx); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if err := c.Orders.Restore(ctx); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	var settler engine.Settler
	if cfg.Messenger.Enabled {
		if err := buildMessenger(ctx, cfg, deps, c, logger); err != nil {
			return nil, err
		}
		settler = c.Messenger
		if n := c.Messenger.Redispatch(ctx, c.Orders.ListSettling()); n > 0 {
			logger.Warn("redispatched settlements left without a ticket", slog.Int("count", n))
		}
	} else if n := len(c.Orders.ListSettling()); n > 0 {
		logger.Error("orders awaiting settlement but messenger is disabled", slog.Int("count", n))
	}

	var locks domain.LockManager
	if cfg.Engine.DistributedLocks {
		locks = deps.LockManager
	}
	c.Engine = engine.New(engine.Config{
		Mode:          cfg.Mode,
		Interval:      cfg.Engine.Interval.Duration,
		Concurrency:   cfg.Engine.Concurrency,
		RetryCooldown: cfg.Engine.RetryCooldown.Duration,
		LockTTL:       cfg.Engine.LockTTL.Duration,
	}, c.Orders, c.Guard, c.Swap, settler, locks, c.Events, logger)

	if deps.BlobWriter != nil && deps.OrderStore != nil {
		var forgetTickets s3blob.Forgetter
		if c.Messenger != nil {
			forgetTickets = c.Messenger
		}
		c.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader,
			deps.OrderStore, deps.TicketStore, deps.AuditStore,
			c.Orders, forgetTickets, logger)
	}
	return c, nil
}

func buildSource(cfg *config.Config, deps *Dependencies) (oracle.Source, error) {
	switch cfg.Oracle.Source {
	case "chainlink":
		src, err := oracle.NewChainlink(deps.Chain, common.HexToAddress(cfg.Oracle.FeedAddress))
		if err != nil {
			return nil, fmt.Errorf("build: oracle: %w", err)
		}
		return src, nil
	case "cache":
		return oracle.NewCacheSource(deps.PriceCache, cfg.Oracle.Pair), nil
	default:
		ticks, err := units.ParsePrice(cfg.Oracle.StaticPrice)
		if err != nil {
			return nil, fmt.Errorf("build: oracle: %w", err)
		}
		return oracle.Fixed(ticks), nil
	}
}

func buildSwap(cfg *config.Config, deps *Dependencies, src oracle.Source, logger *slog.Logger) (swap.Executor, error) {
	if cfg.Swap.Executor == "router" {
		r, err := swap.NewRouter(swap.RouterConfig{
			Router: common.HexToAddress(cfg.Swap.RouterAddress),
			Tokens: map[domain.Asset]common.Address{
				domain.AssetZETA: common.HexToAddress(cfg.Swap.ZETAToken),
				domain.AssetUSDC: common.HexToAddress(cfg.Swap.USDCToken),
			},
			Deadline: cfg.Swap.Deadline.Duration,
		}, deps.Chain, deps.Sender, logger)
		if err != nil {
			return nil, fmt.Errorf("build: swap: %w", err)
		}
		return r, nil
	}

	maxIn := make(map[domain.Asset]*big.Int)
	for asset, s := range map[domain.Asset]string{
		domain.AssetZETA: cfg.Swap.PaperMaxZETA,
		domain.AssetUSDC: cfg.Swap.PaperMaxUSDC,
	} {
		if s == "" {
			continue
		}
		v, err := units.ParseAmount(s, asset)
		if err != nil {
			return nil, fmt.Errorf("build: swap: paper cap %s: %w", asset, err)
		}
		maxIn[asset] = v
	}
	return swap.NewPaper(src, cfg.Swap.PaperFeeBps, maxIn, logger), nil
}

func buildMessenger(ctx context.Context, cfg *config.Config, deps *Dependencies, c *Components, logger *slog.Logger) error {
	gasAsset, err := domain.ParseAsset(cfg.Messenger.GasAsset)
	if err != nil {
		return fmt.Errorf("build: messenger: %w", err)
	}

	c.Registry = messenger.NewRegistry(deps.CounterpartStore)
	if err := c.Registry.Load(ctx); err != nil {
		return fmt.Errorf("build: %w", err)
	}

	fees := make(map[uint64]*big.Int, len(cfg.Messenger.Counterparts))
	gasTokens := make(map[uint64]common.Address, len(cfg.Messenger.Counterparts))
	for _, cp := range cfg.Messenger.Counterparts {
		if err := c.Registry.Register(ctx, cp.ChainID, common.HexToAddress(cp.Address)); err != nil {
			return fmt.Errorf("build: %w", err)
		}
		fee := new(big.Int)
		if cp.Fee != "" {
			if fee, err = units.ParseAmount(cp.Fee, gasAsset); err != nil {
				return fmt.Errorf("build: messenger: fee for chain %d: %w", cp.ChainID, err)
			}
		}
		fees[cp.ChainID] = fee
		if cp.GasToken != "" {
			gasTokens[cp.ChainID] = common.HexToAddress(cp.GasToken)
		}
	}

	var reserve messenger.GasReserve
	if cfg.Messenger.GatewayAddress != "" {
		reserve = messenger.NewChainReserve(deps.Chain, deps.Sender.From(),
			common.HexToAddress(cfg.Messenger.GatewayAddress), gasTokens)
	} else {
		fund, err := units.ParseAmount(cfg.Messenger.StaticReserve, gasAsset)
		if err != nil {
			return fmt.Errorf("build: messenger: static reserve: %w", err)
		}
		static := messenger.NewStaticReserve()
		for chainID := range fees {
			static.Fund(chainID, fund, fund)
		}
		reserve = static
	}

	var loopback *messenger.Loopback
	switch cfg.Messenger.Gateway {
	case "stream":
		c.Gateway = messenger.NewStreamGateway(deps.SignalBus)
	default:
		loopback = messenger.NewLoopback(c.Registry, cfg.Messenger.LoopbackDelay.Duration, logger)
		c.Gateway = loopback
	}

	var relayer common.Address
	if cfg.Messenger.RelayerAddress != "" {
		relayer = common.HexToAddress(cfg.Messenger.RelayerAddress)
	}
	c.Messenger = messenger.New(messenger.Config{
		GasAsset: gasAsset,
		Fees:     fees,
		Timeout:  cfg.Messenger.Timeout.Duration,
		Relayer:  relayer,
	}, c.Registry, reserve, c.Gateway, c.Ledger, c.Orders, deps.TicketStore, c.Events, logger)
	if loopback != nil {
		loopback.Attach(c.Messenger)
	}
	return c.Messenger.Restore(ctx)
}

// webhookAuth returns the relayer webhook verifier, or nil when no secret is
// configured.
func webhookAuth(cfg *config.Config) *crypto.WebhookAuth {
	if cfg.Messenger.WebhookSecret == "" {
		return nil
	}
	return crypto.NewWebhookAuth(cfg.Messenger.WebhookSecret, cfg.Messenger.WebhookMaxSkew.Duration)
}

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second
