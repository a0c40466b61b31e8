package interfaces

import (
	"context"
	"errors"
)

// Registry error kinds. Every operation reports exactly one of these on a
// precondition failure, wrapped with context.
var (
	// ErrUninitialized is returned when no admin has been recorded yet.
	ErrUninitialized = errors.New("registry not initialized")

	// ErrNotFound is returned when no certificate has been minted for the item.
	ErrNotFound = errors.New("certificate not found")

	// ErrUnauthorized is returned when the caller holds none of the required roles.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrMismatch is returned when the supplied item id differs from the stored one.
	ErrMismatch = errors.New("item id does not match certificate")

	// ErrAlreadyBurned is returned when burning a burned certificate.
	ErrAlreadyBurned = errors.New("certificate already burned")

	// ErrBurnedAssetImmutable is returned when transferring a burned certificate.
	ErrBurnedAssetImmutable = errors.New("cannot transfer burned certificate")

	// ErrCertificateExists is returned by mint when reissue is disabled.
	ErrCertificateExists = errors.New("certificate already exists")

	// ErrAlreadyInitialized is returned by initialize when the admin is locked.
	ErrAlreadyInitialized = errors.New("registry already initialized")

	// ErrInvalidIdentity is returned for malformed or zero identities.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrCorruptState is returned when persisted values cannot be decoded.
	ErrCorruptState = errors.New("corrupt registry state")
)

// CertificateRegistry is the ownership-and-certification registry for items.
//
// Callers are authenticated outside the registry; the caller identity passed
// to each mutating operation is trusted.
type CertificateRegistry interface {
	// Initialize records admin as the registry administrator.
	Initialize(ctx context.Context, admin Identity) error

	// Mint issues a certificate for itemID owned by to. Admin only.
	Mint(ctx context.Context, caller, to Identity, itemID ItemID) error

	// Burn permanently invalidates the certificate. Admin or owner.
	Burn(ctx context.Context, caller Identity, itemID ItemID) error

	// IsValid reports whether a live certificate exists for itemID.
	IsValid(ctx context.Context, itemID ItemID) (bool, error)

	// Transfer moves ownership of the certificate to another identity. Owner only.
	Transfer(ctx context.Context, caller, to Identity, itemID ItemID) error

	// Certificate returns the stored certificate for itemID.
	Certificate(ctx context.Context, itemID ItemID) (*Certificate, error)

	// Admin returns the recorded administrator.
	Admin(ctx context.Context) (Identity, error)
}

// Stable names for error kinds, shared by the HTTP API, the client and metrics.
const (
	KindOK                   = "ok"
	KindUninitialized        = "uninitialized"
	KindNotFound             = "not_found"
	KindUnauthorized         = "unauthorized"
	KindMismatch             = "mismatch"
	KindAlreadyBurned        = "already_burned"
	KindBurnedAssetImmutable = "burned_asset_immutable"
	KindCertificateExists    = "certificate_exists"
	KindAlreadyInitialized   = "already_initialized"
	KindInvalidIdentity      = "invalid_identity"
	KindCorruptState         = "corrupt_state"
	KindStorageUnavailable   = "storage_unavailable"
	KindInternal             = "internal"
)

var errorKinds = []struct {
	kind string
	err  error
}{
	{KindUninitialized, ErrUninitialized},
	{KindNotFound, ErrNotFound},
	{KindUnauthorized, ErrUnauthorized},
	{KindMismatch, ErrMismatch},
	{KindAlreadyBurned, ErrAlreadyBurned},
	{KindBurnedAssetImmutable, ErrBurnedAssetImmutable},
	{KindCertificateExists, ErrCertificateExists},
	{KindAlreadyInitialized, ErrAlreadyInitialized},
	{KindInvalidIdentity, ErrInvalidIdentity},
	{KindCorruptState, ErrCorruptState},
	{KindStorageUnavailable, ErrBackendUnavailable},
}

// ErrorKind classifies err into one of the Kind* names. A nil error is KindOK;
// anything unrecognized is KindInternal.
func ErrorKind(err error) string {
	if err == nil {
		return KindOK
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// ErrorForKind returns the sentinel error for kind, or nil if kind has none.
func ErrorForKind(kind string) error {
	for _, k := range errorKinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}
