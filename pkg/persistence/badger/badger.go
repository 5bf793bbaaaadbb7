package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/reward-vault-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

const (
	defaultGCInterval     = 5 * time.Minute
	defaultGCDiscardRatio = 0.5
)

var (
	keyAuthority     = []byte(persistence.KeyAuthority)
	keySchemaVersion = []byte(persistence.KeySchemaVersion)
)

// BadgerConfig configures the embedded store
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM; nothing survives Close
	InMemory bool

	// GCInterval between value log collections, defaults to 5m
	GCInterval time.Duration

	// GCDiscardRatio passed to RunValueLogGC, defaults to 0.5
	GCDiscardRatio float64
}

// BadgerPersistence stores vault state in an embedded Badger database.
// Every write is fsynced before Update returns.
type BadgerPersistence struct {
	db     *badgerdb.DB
	logger *zap.Logger
	cfg    BadgerConfig

	stopGC context.CancelFunc
	gcDone chan struct{}

	mu     sync.RWMutex
	closed bool
}

func openOptions(cfg *BadgerConfig, logger *zap.Logger) (badgerdb.Options, string, error) {
	if cfg.InMemory {
		return badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(newBadgerLogger(logger)), ":memory:", nil
	}
	if cfg.Path == "" {
		return badgerdb.Options{}, "", fmt.Errorf("badger path is required")
	}
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return badgerdb.Options{}, "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	opts := badgerdb.DefaultOptions(absPath).
		WithLogger(newBadgerLogger(logger)).
		WithSyncWrites(true).
		WithCompactL0OnClose(true).
		WithNumVersionsToKeep(1)
	return opts, absPath, nil
}

// NewBadgerPersistence opens (or creates) the database described by cfg and
// starts value log collection in the background
func NewBadgerPersistence(cfg *BadgerConfig, logger *zap.Logger) (*BadgerPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("badger config cannot be nil")
	}
	opts, location, err := openOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", location, err)
	}

	bp := &BadgerPersistence{db: db, logger: logger, cfg: *cfg}
	if bp.cfg.GCInterval <= 0 {
		bp.cfg.GCInterval = defaultGCInterval
	}
	if bp.cfg.GCDiscardRatio <= 0 || bp.cfg.GCDiscardRatio >= 1 {
		bp.cfg.GCDiscardRatio = defaultGCDiscardRatio
	}

	if err := bp.db.Update(checkSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.stopGC = cancel
	bp.gcDone = make(chan struct{})
	go bp.collectGarbage(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", location)
	return bp, nil
}

// checkSchema stamps a fresh database and rejects one written by another schema
func checkSchema(txn *badgerdb.Txn) error {
	item, err := txn.Get(keySchemaVersion)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return txn.Set(keySchemaVersion, []byte(persistence.CurrentSchemaVersion))
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	version, err := item.ValueCopy(nil)
	if err != nil {
		return fmt.Errorf("failed to read schema version value: %w", err)
	}
	if string(version) != persistence.CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", version, persistence.CurrentSchemaVersion)
	}
	return nil
}

func (b *BadgerPersistence) collectGarbage(ctx context.Context) {
	defer close(b.gcDone)
	if b.cfg.InMemory {
		// no value log to collect
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// RunValueLogGC rewrites at most one file per call; loop until nothing is left
			for {
				err := b.db.RunValueLogGC(b.cfg.GCDiscardRatio)
				if err == nil {
					continue
				}
				if !errors.Is(err, badgerdb.ErrNoRewrite) && !errors.Is(err, badgerdb.ErrRejected) {
					b.logger.Sugar().Warnw("Badger GC error", "error", err)
				}
				break
			}
		}
	}
}

// Update runs fn in a badger read-write transaction. Badger detects
// read-write conflicts at commit time; those surface as persistence.ErrConflict.
func (b *BadgerPersistence) Update(fn func(txn persistence.IVaultTxn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return persistence.ErrClosed
	}

	var fnErr error
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		fnErr = fn(&badgerTxn{txn: txn, logger: b.logger})
		return fnErr
	})
	switch {
	case fnErr != nil:
		return fnErr
	case errors.Is(err, badgerdb.ErrConflict):
		return fmt.Errorf("%w: %v", persistence.ErrConflict, err)
	case err != nil:
		return fmt.Errorf("failed to commit badger transaction: %w", err)
	}
	return nil
}

// View runs fn in a badger read-only transaction over a consistent snapshot
func (b *BadgerPersistence) View(fn func(txn persistence.IVaultReader) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		return fn(&badgerTxn{txn: txn, logger: b.logger})
	})
}

// Close stops collection and closes the database. Safe to call twice.
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	b.stopGC()
	<-b.gcDone

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck reads back the schema stamp
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(keySchemaVersion)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
