package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/ruteri/certificate-registry/metrics"
)

// Policy holds the behaviour switches of a Registry.
type Policy struct {
	// AllowReissue lets the admin mint over an existing certificate,
	// replacing it. When false, Mint fails with ErrCertificateExists.
	AllowReissue bool

	// LockAdmin makes Initialize fail once an admin is recorded.
	// When false, Initialize silently replaces the admin.
	LockAdmin bool

	// Layout selects single-slot or keyed certificate storage.
	Layout Layout
}

// DefaultPolicy is a single certificate slot that can be re-minted, with a replaceable admin.
func DefaultPolicy() Policy {
	return Policy{
		AllowReissue: true,
		LockAdmin:    false,
		Layout:       LayoutSlot,
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithMetrics records every operation in m.
func WithMetrics(m *metrics.RegistryMetrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry implements interfaces.CertificateRegistry on a StorageBackend.
// Every operation loads state, checks it and writes back inside a single
// storage Update (or View) scope, so a failed precondition never leaves a
// partial write behind.
type Registry struct {
	store   interfaces.StorageBackend
	policy  Policy
	metrics *metrics.RegistryMetrics
	log     *slog.Logger
}

// New creates a registry persisting its state in store.
func New(store interfaces.StorageBackend, log *slog.Logger, opts ...Option) *Registry {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &Registry{
		store:  store,
		policy: DefaultPolicy(),
		log:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the active policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Initialize records admin. Unless the policy locks the admin, a later call replaces it.
func (r *Registry) Initialize(ctx context.Context, admin interfaces.Identity) (err error) {
	defer r.observe("initialize", time.Now(), &err, slog.String("admin", admin.String()))

	if admin.IsZero() {
		return fmt.Errorf("%w: admin must not be the zero address", interfaces.ErrInvalidIdentity)
	}

	return r.store.Update(ctx, func(kv interfaces.KV) error {
		if r.policy.LockAdmin {
			current, err := readIdentity(ctx, kv, keyAdmin)
			if err != nil {
				return err
			}
			if current != nil {
				return fmt.Errorf("%w: admin is %s", interfaces.ErrAlreadyInitialized, current)
			}
		}
		return writeIdentity(ctx, kv, keyAdmin, admin)
	})
}

// Mint issues a certificate for itemID owned by to. Only the admin may mint.
func (r *Registry) Mint(ctx context.Context, caller, to interfaces.Identity, itemID interfaces.ItemID) (err error) {
	defer r.observe("mint", time.Now(), &err,
		slog.String("caller", caller.String()),
		slog.String("to", to.String()),
		slog.Uint64("item_id", uint64(itemID)))

	keys := r.policy.Layout.keysFor(itemID)
	return r.store.Update(ctx, func(kv interfaces.KV) error {
		state, err := loadState(ctx, kv, keys)
		if err != nil {
			return err
		}

		if state.Admin == nil {
			return fmt.Errorf("mint item %d: %w", itemID, interfaces.ErrUninitialized)
		}
		if err := Authorize(caller, []interfaces.Role{interfaces.RoleAdmin}, state); err != nil {
			return fmt.Errorf("mint item %d: %w", itemID, err)
		}
		if state.Certificate != nil && !r.policy.AllowReissue {
			return fmt.Errorf("mint item %d: %w: item %d held by %s", itemID, interfaces.ErrCertificateExists, state.Certificate.ItemID, state.Certificate.Owner)
		}
		if to.IsZero() {
			return fmt.Errorf("mint item %d: %w: recipient must not be the zero address", itemID, interfaces.ErrInvalidIdentity)
		}

		return writeCertificate(ctx, kv, keys, interfaces.Certificate{
			Owner:    to,
			ItemID:   itemID,
			IsBurned: false,
		})
	})
}

// Burn permanently invalidates the certificate. The admin or the owner may burn.
func (r *Registry) Burn(ctx context.Context, caller interfaces.Identity, itemID interfaces.ItemID) (err error) {
	defer r.observe("burn", time.Now(), &err,
		slog.String("caller", caller.String()),
		slog.Uint64("item_id", uint64(itemID)))

	keys := r.policy.Layout.keysFor(itemID)
	return r.store.Update(ctx, func(kv interfaces.KV) error {
		state, err := loadState(ctx, kv, keys)
		if err != nil {
			return err
		}

		if state.Admin == nil {
			return fmt.Errorf("burn item %d: %w", itemID, interfaces.ErrUninitialized)
		}
		if state.Certificate == nil {
			return fmt.Errorf("burn item %d: %w", itemID, interfaces.ErrNotFound)
		}
		if err := Authorize(caller, []interfaces.Role{interfaces.RoleAdmin, interfaces.RoleOwner}, state); err != nil {
			return fmt.Errorf("burn item %d: %w", itemID, err)
		}
		if state.Certificate.ItemID != itemID {
			return fmt.Errorf("burn item %d: %w: stored item is %d", itemID, interfaces.ErrMismatch, state.Certificate.ItemID)
		}
		if state.Certificate.IsBurned {
			return fmt.Errorf("burn item %d: %w", itemID, interfaces.ErrAlreadyBurned)
		}

		return writeBurned(ctx, kv, keys, true)
	})
}

// IsValid reports whether the stored certificate attests to itemID and is not burned.
// It fails with ErrNotFound, rather than returning false, when nothing was minted.
func (r *Registry) IsValid(ctx context.Context, itemID interfaces.ItemID) (valid bool, err error) {
	defer r.observe("is_valid", time.Now(), &err, slog.Uint64("item_id", uint64(itemID)))

	err = r.store.View(ctx, func(kv interfaces.KV) error {
		cert, err := readCertificate(ctx, kv, r.policy.Layout.keysFor(itemID))
		if err != nil {
			return err
		}
		if cert == nil {
			return fmt.Errorf("item %d: %w", itemID, interfaces.ErrNotFound)
		}
		valid = cert.Valid(itemID)
		return nil
	})
	return valid, err
}

// Transfer moves the certificate to another owner. Only the current owner may transfer.
func (r *Registry) Transfer(ctx context.Context, caller, to interfaces.Identity, itemID interfaces.ItemID) (err error) {
	defer r.observe("transfer", time.Now(), &err,
		slog.String("caller", caller.String()),
		slog.String("to", to.String()),
		slog.Uint64("item_id", uint64(itemID)))

	keys := r.policy.Layout.keysFor(itemID)
	return r.store.Update(ctx, func(kv interfaces.KV) error {
		state, err := loadState(ctx, kv, keys)
		if err != nil {
			return err
		}

		if state.Certificate == nil {
			return fmt.Errorf("transfer item %d: %w", itemID, interfaces.ErrNotFound)
		}
		if err := Authorize(caller, []interfaces.Role{interfaces.RoleOwner}, state); err != nil {
			return fmt.Errorf("transfer item %d: %w", itemID, err)
		}
		if state.Certificate.ItemID != itemID {
			return fmt.Errorf("transfer item %d: %w: stored item is %d", itemID, interfaces.ErrMismatch, state.Certificate.ItemID)
		}
		if state.Certificate.IsBurned {
			return fmt.Errorf("transfer item %d: %w", itemID, interfaces.ErrBurnedAssetImmutable)
		}
		if to.IsZero() {
			return fmt.Errorf("transfer item %d: %w: recipient must not be the zero address", itemID, interfaces.ErrInvalidIdentity)
		}

		return writeIdentity(ctx, kv, keys.owner, to)
	})
}

// Certificate returns the certificate stored for itemID.
func (r *Registry) Certificate(ctx context.Context, itemID interfaces.ItemID) (cert *interfaces.Certificate, err error) {
	err = r.store.View(ctx, func(kv interfaces.KV) error {
		cert, err = readCertificate(ctx, kv, r.policy.Layout.keysFor(itemID))
		if err != nil {
			return err
		}
		if cert == nil {
			return fmt.Errorf("item %d: %w", itemID, interfaces.ErrNotFound)
		}
		if cert.ItemID != itemID {
			return fmt.Errorf("item %d: %w: stored item is %d", itemID, interfaces.ErrMismatch, cert.ItemID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// Admin returns the recorded administrator.
func (r *Registry) Admin(ctx context.Context) (admin interfaces.Identity, err error) {
	err = r.store.View(ctx, func(kv interfaces.KV) error {
		current, err := readIdentity(ctx, kv, keyAdmin)
		if err != nil {
			return err
		}
		if current == nil {
			return interfaces.ErrUninitialized
		}
		admin = *current
		return nil
	})
	return admin, err
}

func (r *Registry) observe(operation string, start time.Time, errp *error, attrs ...any) {
	elapsed := time.Since(start)
	err := *errp
	r.metrics.Observe(operation, err, elapsed)

	attrs = append(attrs, slog.String("operation", operation), slog.Duration("duration", elapsed))
	switch kind := interfaces.ErrorKind(err); kind {
	case interfaces.KindOK:
		r.log.Info("Registry operation succeeded", attrs...)
	case interfaces.KindInternal, interfaces.KindStorageUnavailable, interfaces.KindCorruptState:
		r.log.Error("Registry operation failed", append(attrs, "err", err)...)
	default:
		r.log.Warn("Registry operation rejected", append(attrs, slog.String("kind", kind), "err", err)...)
	}
}
