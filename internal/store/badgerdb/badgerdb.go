// Package badgerdb persists the catalog and ledger in an embedded BadgerDB.
//
// Both documents are written in one transaction, so a reader never sees a
// catalog and a ledger from different revisions.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/abgdnv/stockroom/internal/store"
	"github.com/dgraph-io/badger/v4"
)

const (
	BackupSuffix = "stockroom.badger.bak"

	backupStampLayout = "20060102_150405"
	maxBackupAttempts = 100
)

var (
	productsKey  = []byte("catalog/products")
	movementsKey = []byte("ledger/movements")
)

var (
	_ store.Persister = (*Persister)(nil)
	_ store.Restorer  = (*Persister)(nil)
)

// Config holds configuration for the BadgerDB persister.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// BackupDir receives the files written by Backup.
	BackupDir string
	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// GCInterval is how often RunGC triggers value log garbage collection. Zero disables it.
	GCInterval time.Duration
	// GCDiscardRatio is the minimum share of garbage that makes GC rewrite a value log file.
	GCDiscardRatio float64
}

// DefaultConfig returns production settings for a database at path.
func DefaultConfig(path, backupDir string) Config {
	return Config{
		Path:           path,
		BackupDir:      backupDir,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for tests. Backups still go to backupDir.
func InMemoryConfig(backupDir string) Config {
	return Config{
		BackupDir: backupDir,
		InMemory:  true,
	}
}

type document struct {
	Revision  int64            `json:"revision"`
	Products  []store.Product  `json:"products,omitempty"`
	Movements []store.Movement `json:"movements,omitempty"`
}

// Persister implements store.Persister on top of a BadgerDB instance it owns.
type Persister struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates the database. The caller must Close it.
func Open(cfg Config, logger *slog.Logger) (*Persister, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent database")
	}
	if cfg.BackupDir == "" {
		return nil, errors.New("backup directory is required")
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup directory %s: %w", cfg.BackupDir, err)
	}
	logger = logger.With("component", "badgerdb")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Persister{db: db, cfg: cfg, logger: logger}, nil
}

// Close flushes and closes the database.
func (p *Persister) Close() error {
	return p.db.Close()
}

// Load reads both documents. Missing keys are treated as empty.
func (p *Persister) Load(ctx context.Context) (store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return store.Snapshot{}, err
	}
	var products, movements document
	err := p.db.View(func(txn *badger.Txn) error {
		if err := get(txn, productsKey, &products); err != nil {
			return err
		}
		return get(txn, movementsKey, &movements)
	})
	if err != nil {
		return store.Snapshot{}, err
	}
	if products.Revision != movements.Revision {
		p.logger.WarnContext(ctx, "Catalog and ledger revisions differ",
			"catalog_revision", products.Revision,
			"ledger_revision", movements.Revision)
	}
	return store.Snapshot{
		Revision:  max(products.Revision, movements.Revision),
		Products:  products.Products,
		Movements: movements.Movements,
	}, nil
}

// Save writes both documents in one transaction.
func (p *Persister) Save(ctx context.Context, snapshot store.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	products, err := json.Marshal(document{Revision: snapshot.Revision, Products: snapshot.Products})
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	movements, err := json.Marshal(document{Revision: snapshot.Revision, Movements: snapshot.Movements})
	if err != nil {
		return fmt.Errorf("encode movements: %w", err)
	}
	err = p.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(movementsKey, movements); err != nil {
			return err
		}
		return txn.Set(productsKey, products)
	})
	if err != nil {
		return fmt.Errorf("commit revision %d: %w", snapshot.Revision, err)
	}
	return nil
}

// Backup streams a full database backup to <BackupDir>/<stamp>_stockroom.badger.bak.
func (p *Persister) Backup(ctx context.Context, at time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stamp := at.Format(backupStampLayout)
	for attempt := 0; attempt < maxBackupAttempts; attempt++ {
		dst := filepath.Join(p.cfg.BackupDir, fmt.Sprintf("%s_%s", stamp, BackupSuffix))
		if attempt > 0 {
			dst = filepath.Join(p.cfg.BackupDir, fmt.Sprintf("%s_%d_%s", stamp, attempt, BackupSuffix))
		}
		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create backup %s: %w", dst, err)
		}
		if _, err := p.db.Backup(out, 0); err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("write backup %s: %w", dst, err)
		}
		if err := out.Close(); err != nil {
			return nil, fmt.Errorf("close backup %s: %w", dst, err)
		}
		return []string{dst}, nil
	}
	return nil, fmt.Errorf("no free backup name after %d attempts", maxBackupAttempts)
}

// Restore replaces the database contents with a file written by Backup.
// No other transaction may run while it does.
func (p *Persister) Restore(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open backup %s: %w", path, err)
	}
	defer in.Close()
	if err := p.db.DropAll(); err != nil {
		return fmt.Errorf("clear database before restore: %w", err)
	}
	if err := p.db.Load(in, 16); err != nil {
		return fmt.Errorf("restore backup %s: %w", path, err)
	}
	p.logger.InfoContext(ctx, "Backup restored", "path", path)
	return nil
}

// RunGC triggers value log garbage collection every GCInterval until ctx is done.
// It returns nil immediately when GC is disabled or the database is in memory.
func (p *Persister) RunGC(ctx context.Context) error {
	if p.cfg.GCInterval <= 0 || p.cfg.InMemory {
		return nil
	}
	ticker := time.NewTicker(p.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := p.db.RunValueLogGC(p.cfg.GCDiscardRatio)
			switch {
			case err == nil:
				p.logger.DebugContext(ctx, "Value log GC completed")
			case !errors.Is(err, badger.ErrNoRewrite):
				p.logger.WarnContext(ctx, "Value log GC failed", "error", err)
			}
		}
	}
}

func get(txn *badger.Txn, key []byte, doc *document) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, doc); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	})
}
