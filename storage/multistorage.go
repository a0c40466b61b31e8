package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/certificate-registry/interfaces"
)

// MultiStorageBackend mirrors registry state across several backends. The
// first backend is the primary and serves every read. A write is applied to
// the mirrors first and to the primary last, and fails unless every
// configured backend is reachable and commits it. The primary therefore
// never holds a value that a mirror is missing.
type MultiStorageBackend struct {
	*stagedScopes

	backends []interfaces.StorageBackend
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend. backends[0] is the primary.
func NewMultiStorageBackend(backends []interfaces.StorageBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
	m.stagedScopes = newStagedScopes(m, logger)
	return m
}

func (m *MultiStorageBackend) primary() (interfaces.StorageBackend, error) {
	if len(m.backends) == 0 {
		return nil, fmt.Errorf("%w: no backend configured", interfaces.ErrBackendUnavailable)
	}
	return m.backends[0], nil
}

// Get returns the value held by the primary backend. Mirrors are never
// consulted: if the primary is unreachable the read fails with
// ErrBackendUnavailable.
func (m *MultiStorageBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	primary, err := m.primary()
	if err != nil {
		return nil, err
	}
	if !primary.Available(ctx) {
		m.log.Warn("Primary backend unavailable",
			slog.String("backend_name", primary.Name()),
			slog.String("key", key))
		return nil, fmt.Errorf("%w: primary %s unreachable", interfaces.ErrBackendUnavailable, primary.Name())
	}

	data, err := primary.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			m.log.Error("Failed to fetch from primary backend",
				slog.String("backend_name", primary.Name()),
				slog.String("key", key),
				"err", err)
		}
		return nil, err
	}

	m.log.Debug("Fetched key",
		slog.String("backend_name", primary.Name()),
		slog.String("key", key),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// Set writes value to every backend, mirrors first and the primary last.
// Nothing is written unless all backends are available, and the first
// failing backend aborts the write.
func (m *MultiStorageBackend) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()

	if _, err := m.primary(); err != nil {
		return err
	}
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Warn("Refusing write with unavailable backend",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key))
			return fmt.Errorf("%w: %s unreachable", interfaces.ErrBackendUnavailable, backend.Name())
		}
	}

	for i := len(m.backends) - 1; i >= 0; i-- {
		backend := m.backends[i]
		if err := backend.Set(ctx, key, value); err != nil {
			m.log.Error("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				slog.String("key", key),
				slog.Int("stored_mirrors", len(m.backends)-1-i),
				slog.Duration("duration", time.Since(start)),
				"err", err)
			return fmt.Errorf("failed to store %s to %s: %w", key, backend.Name(), err)
		}
	}

	return nil
}

// Available reports whether every backend is reachable, which is what a write needs.
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	if len(m.backends) == 0 {
		return false
	}
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			return false
		}
	}
	return true
}

// Name returns the name of this backend.
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the location URIs of all backends joined by commas.
func (m *MultiStorageBackend) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return strings.Join(locations, ",")
}

// Close closes every backend and returns the combined error.
func (m *MultiStorageBackend) Close() error {
	var errs []error
	for _, backend := range m.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		}
	}
	return errors.Join(errs...)
}
