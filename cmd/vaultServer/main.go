package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/reward-vault-go/pkg/clock"
	"github.com/Layr-Labs/reward-vault-go/pkg/config"
	"github.com/Layr-Labs/reward-vault-go/pkg/events"
	"github.com/Layr-Labs/reward-vault-go/pkg/ledger/memoryLedger"
	"github.com/Layr-Labs/reward-vault-go/pkg/logger"
	"github.com/Layr-Labs/reward-vault-go/pkg/persistence"
	badgerPersistence "github.com/Layr-Labs/reward-vault-go/pkg/persistence/badger"
	"github.com/Layr-Labs/reward-vault-go/pkg/persistence/memory"
	redisPersistence "github.com/Layr-Labs/reward-vault-go/pkg/persistence/redis"
	"github.com/Layr-Labs/reward-vault-go/pkg/server"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
	"github.com/Layr-Labs/reward-vault-go/pkg/vault"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	app := &cli.App{
		Name:  "vault-server",
		Usage: "Reward vault authorization and custody accounting server",
		Description: `Serves a single reward vault deployment over HTTP.

The server:
- Keeps the vault authority: one owner and a bounded set of signers
- Executes deposits, withdrawals and claims authorized by registered signers
- Rejects replayed authorizations and enforces per-project spend limits
- Publishes vault events to the log and, with redis persistence, to pub/sub`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8000,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvVaultPort},
			},
			&cli.Uint64Flag{
				Name:     "chain-id",
				Aliases:  []string{"chain"},
				Usage:    "Chain ID the vault domain is bound to",
				EnvVars:  []string{config.EnvVaultChainID},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "vault-address",
				Aliases:  []string{"vault"},
				Usage:    "Address identifying this vault deployment",
				EnvVars:  []string{config.EnvVaultAddress},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "initial-owner",
				Usage:   "Initialize the vault with this owner at startup if it is not yet initialized",
				EnvVars: []string{config.EnvVaultInitialOwner},
			},
			&cli.IntFlag{
				Name:    "max-signers",
				Usage:   "Signer set capacity, 0 uses the default",
				EnvVars: []string{config.EnvVaultMaxSigners},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Usage:   "Sustained requests per second, 0 disables rate limiting",
				EnvVars: []string{config.EnvVaultRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Value:   20,
				Usage:   "Burst size for the rate limiter",
				EnvVars: []string{config.EnvVaultRateBurst},
			},
			&cli.StringFlag{
				Name:    "event-channel",
				Value:   events.DefaultRedisEventChannel,
				Usage:   "Redis pub/sub channel for vault events",
				EnvVars: []string{config.EnvVaultEventChannel},
			},
			&cli.StringSliceFlag{
				Name:    "dev-mint",
				Usage:   "Seed the in-memory ledger, account:asset:amount (repeatable)",
				EnvVars: []string{config.EnvVaultDevMints},
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Value:   config.PersistenceTypeMemory.String(),
				Usage:   "Storage backend: memory, badger or redis",
				EnvVars: []string{config.EnvVaultPersistenceType},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Value:   "./data/vault",
				Usage:   "Badger data directory",
				EnvVars: []string{config.EnvVaultBadgerPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Value:   "localhost:6379",
				Usage:   "Redis server address",
				EnvVars: []string{config.EnvVaultRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvVaultRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvVaultRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every Redis key",
				EnvVars: []string{config.EnvVaultRedisKeyPrefix},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvVaultDebug},
			},
		},
		Action: runVaultServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runVaultServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseVaultConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l.Sugar().Infow("Using chain", "name", cfg.ChainName, "chain_id", cfg.ChainID)

	store, sink, err := buildPersistence(cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Warnw("Failed to close persistence", "error", err)
		}
	}()

	domain := types.VaultDomain{ChainID: uint64(cfg.ChainID), VaultAddress: cfg.GetVaultAddress()}

	ledger, err := buildLedger(cfg, domain, l)
	if err != nil {
		return err
	}

	v, err := vault.NewVault(&vault.Config{Domain: domain, MaxSigners: cfg.MaxSigners}, store, ledger, clock.NewSystemClock(), sink, l)
	if err != nil {
		return fmt.Errorf("failed to create vault: %w", err)
	}

	if owner, ok := cfg.GetInitialOwner(); ok {
		_, err := v.Initialize(c.Context, owner)
		switch {
		case err == nil:
			l.Sugar().Infow("Initialized vault", "owner", owner.Hex())
		case errors.Is(err, types.ErrAlreadyInitialized):
			l.Sugar().Infow("Vault already initialized, ignoring initial owner", "initial_owner", owner.Hex())
		default:
			return fmt.Errorf("failed to initialize vault: %w", err)
		}
	}

	srv := server.NewServer(v, &server.ServerConfig{
		Port:      cfg.Port,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, l)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Vault server running",
		"vault", domain.VaultAddress.Hex(),
		"custody", domain.CustodyAddress().Hex(),
		"port", cfg.Port,
		"persistence", cfg.Persistence.Type,
	)
	l.Sugar().Info("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Sugar().Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// buildPersistence opens the configured backend. With redis the event sink
// also publishes on the same connection.
func buildPersistence(cfg *config.VaultServerConfig, l *zap.Logger) (persistence.IVaultPersistence, events.IEventSink, error) {
	logSink := events.NewLoggingSink(l)

	switch cfg.Persistence.Type {
	case config.PersistenceTypeBadger:
		p, err := badgerPersistence.NewBadgerPersistence(&badgerPersistence.BadgerConfig{Path: cfg.Persistence.BadgerPath}, l)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger persistence: %w", err)
		}
		return p, logSink, nil
	case config.PersistenceTypeRedis:
		p, err := redisPersistence.NewRedisPersistence(&redisPersistence.RedisConfig{
			Address:   cfg.Persistence.RedisAddress,
			Password:  cfg.Persistence.RedisPassword,
			DB:        cfg.Persistence.RedisDB,
			KeyPrefix: cfg.Persistence.RedisKeyPrefix,
		}, l)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open redis persistence: %w", err)
		}
		return p, events.NewMultiSink(logSink, events.NewRedisSink(p.Client(), cfg.EventChannel, l)), nil
	default:
		return memory.NewMemoryPersistence(), logSink, nil
	}
}

// ledgerLostOnRestart reports whether vault records survive a restart that
// the in-memory ledger balances do not
func ledgerLostOnRestart(cfg *config.VaultServerConfig) bool {
	return cfg.Persistence.Type != "" && cfg.Persistence.Type != config.PersistenceTypeMemory
}

// buildLedger creates the in-memory ledger with the custody delegation and
// the configured dev balances
func buildLedger(cfg *config.VaultServerConfig, domain types.VaultDomain, l *zap.Logger) (*memoryLedger.MemoryLedger, error) {
	if ledgerLostOnRestart(cfg) {
		l.Sugar().Warnw("WARNING: ledger balances are in memory and are lost on restart while vault records persist; custody will not match recorded deposits after a restart",
			"persistence", cfg.Persistence.Type,
		)
	}

	ledger := memoryLedger.NewMemoryLedger()
	ledger.Delegate(domain.CustodyAddress(), domain.VaultAddress)
	for _, m := range cfg.DevMints {
		mint, err := config.ParseDevMint(m)
		if err != nil {
			return nil, fmt.Errorf("invalid dev mint %q: %w", m, err)
		}
		if err := ledger.Mint(mint.Account, mint.Asset, mint.Amount); err != nil {
			return nil, fmt.Errorf("failed to seed ledger: %w", err)
		}
		l.Sugar().Infow("Seeded ledger balance", "account", mint.Account.Hex(), "asset", mint.Asset.Hex(), "amount", mint.Amount)
	}
	return ledger, nil
}

func parseVaultConfig(c *cli.Context) *config.VaultServerConfig {
	return &config.VaultServerConfig{
		Port:         c.Int("port"),
		ChainID:      config.ChainId(c.Uint64("chain-id")),
		VaultAddress: c.String("vault-address"),
		InitialOwner: c.String("initial-owner"),
		MaxSigners:   c.Int("max-signers"),
		RateLimit:    c.Float64("rate-limit"),
		RateBurst:    c.Int("rate-burst"),
		EventChannel: c.String("event-channel"),
		DevMints:     c.StringSlice("dev-mint"),
		Persistence: config.PersistenceConfig{
			Type:           config.PersistenceType(c.String("persistence-type")),
			BadgerPath:     c.String("badger-path"),
			RedisAddress:   c.String("redis-address"),
			RedisPassword:  c.String("redis-password"),
			RedisDB:        c.Int("redis-db"),
			RedisKeyPrefix: c.String("redis-key-prefix"),
		},
		Debug: c.Bool("verbose"),
	}
}
