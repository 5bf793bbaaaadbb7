package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/reward-vault-go/pkg/persistence"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultOpTimeout = 5 * time.Second

// RedisPersistence is a production-ready persistence implementation using Redis.
// Provides durable, distributed storage suitable for cloud-native deployments.
//
// Update transactions use optimistic locking: every key read is WATCHed and
// all writes are applied in one MULTI/EXEC. A concurrent modification of a
// watched key aborts the transaction with persistence.ErrConflict.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	opTimeout time.Duration
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups).
	// If set, this prefix is prepended to all keys, e.g., "myapp:" would result in
	// keys like "myapp:vault:authority".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
		opTimeout: defaultOpTimeout,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// Client exposes the underlying connection so other components (the event
// publisher) can share it
func (r *RedisPersistence) Client() *redis.Client {
	return r.client
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(persistence.KeySchemaVersion)

	// SETNX so that concurrently starting servers agree on one value
	if err := r.client.SetNX(ctx, schemaKey, persistence.CurrentSchemaVersion, 0).Err(); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != persistence.CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.CurrentSchemaVersion)
	}

	return nil
}

// Update runs fn inside WATCH and commits its staged writes with MULTI/EXEC
func (r *RedisPersistence) Update(fn func(txn persistence.IVaultTxn) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	var fnErr error
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		txn := newRedisTxn(ctx, r, tx, tx)
		if fnErr = fn(txn); fnErr != nil {
			return fnErr
		}
		if !txn.dirty() {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			txn.flush(pipe)
			return nil
		})
		return err
	})
	if fnErr != nil {
		return fnErr
	}
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: watched keys modified", persistence.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to commit redis transaction: %w", err)
	}
	return nil
}

// View runs fn against the live keyspace. Each lookup is a single atomic
// command; writers commit atomically, so a record is never observed half written.
func (r *RedisPersistence) View(fn func(txn persistence.IVaultReader) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	return fn(newRedisTxn(ctx, r, r.client, nil))
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	// Close Redis client
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	// Ping Redis to check connectivity
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	// Verify schema version exists
	_, err := r.client.Get(ctx, r.prefixKey(persistence.KeySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
