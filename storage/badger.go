package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ruteri/certificate-registry/interfaces"
)

// maxConflictRetries bounds how often an Update is retried after badger
// reports a write conflict with a concurrent transaction.
const maxConflictRetries = 3

// BadgerBackend implements a storage backend on an embedded badger database.
// Update scopes map one-to-one onto badger read-write transactions.
type BadgerBackend struct {
	db          *badger.DB
	dataDir     string
	log         *slog.Logger
	locationURI string
}

// NewBadgerBackend opens (or creates) a badger database in dataDir.
// An empty dataDir opens an in-memory database that is lost on Close.
func NewBadgerBackend(dataDir string, log *slog.Logger) (*BadgerBackend, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").
			WithInMemory(true)
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		opts = badger.DefaultOptions(dataDir)
	}
	opts = opts.
		WithLogger(&badgerLogger{log: log}).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &BadgerBackend{
		db:          db,
		dataDir:     dataDir,
		log:         log,
		locationURI: fmt.Sprintf("badger://%s", dataDir),
	}, nil
}

// Get returns the value stored under key.
func (b *BadgerBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.View(ctx, func(kv interfaces.KV) error {
		var err error
		value, err = kv.Get(ctx, key)
		return err
	})
	return value, err
}

// Set stores value under key in its own transaction.
func (b *BadgerBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.Update(ctx, func(kv interfaces.KV) error {
		return kv.Set(ctx, key, value)
	})
}

// Update runs fn inside a badger read-write transaction. The transaction is
// discarded if fn fails and retried when the commit hits a write conflict.
func (b *BadgerBackend) Update(ctx context.Context, fn func(interfaces.KV) error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = b.db.Update(func(txn *badger.Txn) error {
			if err := fn(&badgerTxn{txn: txn}); err != nil {
				return err
			}
			// Abort before commit if the caller went away mid-scope.
			return ctx.Err()
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		b.log.Debug("Badger transaction conflict, retrying",
			slog.Int("attempt", attempt+1))
	}
	return fmt.Errorf("%w: too many transaction conflicts: %v", interfaces.ErrBackendUnavailable, err)
}

// View runs fn inside a badger read-only transaction.
func (b *BadgerBackend) View(ctx context.Context, fn func(interfaces.KV) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTxn{txn: txn})
	})
}

// Available reports whether the database is open.
func (b *BadgerBackend) Available(ctx context.Context) bool {
	return !b.db.IsClosed()
}

// Name returns a unique identifier for this storage backend.
func (b *BadgerBackend) Name() string {
	if b.dataDir == "" {
		return "badger-memory"
	}
	return fmt.Sprintf("badger-%s", b.dataDir)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *BadgerBackend) LocationURI() string {
	return b.locationURI
}

// Close flushes and closes the database.
func (b *BadgerBackend) Close() error {
	start := time.Now()
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	b.log.Debug("Closed badger database", slog.Duration("duration", time.Since(start)))
	return nil
}

// badgerTxn adapts a badger transaction to interfaces.KV.
type badgerTxn struct {
	txn *badger.Txn
}

func (t *badgerTxn) Get(_ context.Context, key string) ([]byte, error) {
	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, interfaces.ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Set(_ context.Context, key string, value []byte) error {
	return t.txn.Set([]byte(key), value)
}

// badgerLogger routes badger's internal logging into slog.
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(msg string, args ...any) {
	l.log.Error(fmt.Sprintf("badger: "+msg, args...))
}

func (l *badgerLogger) Warningf(msg string, args ...any) {
	l.log.Warn(fmt.Sprintf("badger: "+msg, args...))
}

func (l *badgerLogger) Infof(msg string, args ...any) {
	l.log.Info(fmt.Sprintf("badger: "+msg, args...))
}

func (l *badgerLogger) Debugf(msg string, args ...any) {
	l.log.Debug(fmt.Sprintf("badger: "+msg, args...))
}
