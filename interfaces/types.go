package interfaces

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is the 20-byte address of a caller, derived from its secp256k1 public key.
type Identity [20]byte

// NewIdentityFromBytes creates an identity from a 20-byte slice.
func NewIdentityFromBytes(addr []byte) (Identity, error) {
	if len(addr) != 20 {
		return Identity{}, errors.New("invalid identity length: must be 20 bytes")
	}

	var res Identity
	copy(res[:], addr)
	return res, nil
}

// NewIdentityFromHex parses a 40-character hex address, with or without a 0x or 0X prefix.
func NewIdentityFromHex(addr string) (Identity, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return Identity{}, fmt.Errorf("%w: %q is not a 20-byte hex address", ErrInvalidIdentity, addr)
	}

	return Identity(common.HexToAddress(addr)), nil
}

// MustIdentityFromHex is NewIdentityFromHex that panics on error. Used for constants and tests.
func MustIdentityFromHex(addr string) Identity {
	id, err := NewIdentityFromHex(addr)
	if err != nil {
		panic(err)
	}
	return id
}

// Address returns the go-ethereum representation of the identity.
func (id Identity) Address() common.Address {
	return common.Address(id)
}

// String returns the EIP-55 checksummed 0x-prefixed address.
func (id Identity) String() string {
	return common.Address(id).Hex()
}

// Bytes returns the raw 20-byte address.
func (id Identity) Bytes() []byte {
	return id[:]
}

// IsZero reports whether the identity is the all-zero address.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Equal compares two identities.
func (id Identity) Equal(other Identity) bool {
	return id == other
}

// MarshalText encodes the identity as a checksummed hex address.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes a hex address.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := NewIdentityFromHex(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ItemID is the external identifier of the physical or logical item a certificate attests to.
type ItemID uint32

// Certificate is the ownership record bound to an item.
type Certificate struct {
	Owner    Identity `json:"owner"`
	ItemID   ItemID   `json:"item_id"`
	IsBurned bool     `json:"is_burned"`
}

// Valid reports whether the certificate attests to id and has not been burned.
func (c Certificate) Valid(id ItemID) bool {
	return c.ItemID == id && !c.IsBurned
}

// Role is an authorization role a caller can hold against the registry state.
type Role int

const (
	// RoleAdmin is held by the identity recorded at initialization.
	RoleAdmin Role = iota
	// RoleOwner is held by the current owner of the certificate.
	RoleOwner
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// State is the registry state loaded for a single operation.
// A nil Admin means the registry is uninitialized; a nil Certificate means nothing was minted.
type State struct {
	Admin       *Identity
	Certificate *Certificate
}

// HasRole reports whether caller holds role in this state.
func (s State) HasRole(caller Identity, role Role) bool {
	switch role {
	case RoleAdmin:
		return s.Admin != nil && *s.Admin == caller
	case RoleOwner:
		return s.Certificate != nil && s.Certificate.Owner == caller
	default:
		return false
	}
}
