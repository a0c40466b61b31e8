package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/certificate-registry/interfaces"
)

// stagedScopes gives a backend without native transactions Update and View
// scopes. Writes made inside Update are buffered and flushed to the
// underlying store in write order only when the callback succeeds. Scopes
// are serialized within the process.
type stagedScopes struct {
	mu    sync.RWMutex
	store interfaces.KV
	log   *slog.Logger
}

func newStagedScopes(store interfaces.KV, log *slog.Logger) *stagedScopes {
	return &stagedScopes{store: store, log: log}
}

// Update runs fn with a write buffer and flushes it if fn returns nil.
func (s *stagedScopes) Update(ctx context.Context, fn func(interfaces.KV) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := &stagedTxn{base: s.store, writes: make(map[string][]byte)}
	if err := fn(txn); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, key := range txn.order {
		if err := s.store.Set(ctx, key, txn.writes[key]); err != nil {
			if i > 0 {
				s.log.Error("Partial flush of staged writes",
					slog.Int("flushed", i),
					slog.Int("total", len(txn.order)),
					slog.String("key", key),
					"err", err)
			}
			return fmt.Errorf("failed to flush %s: %w", key, err)
		}
	}
	return nil
}

// View runs fn against the underlying store while no Update is in progress.
func (s *stagedScopes) View(ctx context.Context, fn func(interfaces.KV) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.store)
}

// stagedTxn reads through its own pending writes before the base store.
type stagedTxn struct {
	base   interfaces.KV
	writes map[string][]byte
	order  []string
}

func (t *stagedTxn) Get(ctx context.Context, key string) ([]byte, error) {
	if value, ok := t.writes[key]; ok {
		return value, nil
	}
	return t.base.Get(ctx, key)
}

func (t *stagedTxn) Set(_ context.Context, key string, value []byte) error {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = append([]byte(nil), value...)
	return nil
}
