package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/ruteri/certificate-registry/interfaces"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// kvEntry is the single table the sqlite backend keeps registry state in.
type kvEntry struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value []byte `gorm:"column:value"`
}

func (kvEntry) TableName() string {
	return "registry_kv"
}

// SQLiteBackend implements a storage backend on a sqlite database accessed through gorm.
// Update scopes run as SQL transactions.
type SQLiteBackend struct {
	db          *gorm.DB
	path        string
	log         *slog.Logger
	locationURI string
}

// NewSQLiteBackend opens (or creates) the sqlite database at path.
// An empty path opens a private in-memory database.
func NewSQLiteBackend(path string, log *slog.Logger) (*SQLiteBackend, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dsn := "file::memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL journal mode, wait on lock contention instead of failing
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	// A single connection keeps the in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}

	return &SQLiteBackend{
		db:          db,
		path:        path,
		log:         log,
		locationURI: fmt.Sprintf("sqlite://%s", path),
	}, nil
}

// Get returns the value stored under key.
func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return (&sqliteTxn{db: b.db}).Get(ctx, key)
}

// Set stores value under key.
func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	return (&sqliteTxn{db: b.db}).Set(ctx, key, value)
}

// Update runs fn inside a SQL transaction that is rolled back if fn fails.
func (b *SQLiteBackend) Update(ctx context.Context, fn func(interfaces.KV) error) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(&sqliteTxn{db: tx}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// View runs fn inside a SQL transaction that is always rolled back.
func (b *SQLiteBackend) View(ctx context.Context, fn func(interfaces.KV) error) error {
	tx := b.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin read transaction: %w", tx.Error)
	}
	defer tx.Rollback()
	return fn(&sqliteTxn{db: tx})
}

// Available pings the database.
func (b *SQLiteBackend) Available(ctx context.Context) bool {
	sqlDB, err := b.db.DB()
	if err != nil {
		return false
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		b.log.Debug("SQLite backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *SQLiteBackend) Name() string {
	if b.path == "" {
		return "sqlite-memory"
	}
	return fmt.Sprintf("sqlite-%s", filepath.Base(b.path))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *SQLiteBackend) LocationURI() string {
	return b.locationURI
}

// Close closes the underlying database handle.
func (b *SQLiteBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqliteTxn adapts a gorm handle (plain or transactional) to interfaces.KV.
type sqliteTxn struct {
	db *gorm.DB
}

func (t *sqliteTxn) Get(ctx context.Context, key string) ([]byte, error) {
	var entry kvEntry
	result := t.db.WithContext(ctx).First(&entry, "name = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, interfaces.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, result.Error)
	}
	return entry.Value, nil
}

func (t *sqliteTxn) Set(ctx context.Context, key string, value []byte) error {
	result := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&kvEntry{Name: key, Value: value})
	if result.Error != nil {
		return fmt.Errorf("failed to write %s: %w", key, result.Error)
	}
	return nil
}
