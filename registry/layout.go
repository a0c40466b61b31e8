package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruteri/certificate-registry/interfaces"
)

// Layout selects how certificates are laid out in the key-value store.
type Layout int

const (
	// LayoutSlot keeps a single certificate under the flat keys owner,
	// item_id and is_burned. Minting again replaces it.
	LayoutSlot Layout = iota
	// LayoutKeyed keeps one certificate per item id under
	// certificates/<item_id>/{owner,item_id,is_burned}.
	LayoutKeyed
)

// String returns the layout name as accepted by ParseLayout.
func (l Layout) String() string {
	switch l {
	case LayoutSlot:
		return "slot"
	case LayoutKeyed:
		return "keyed"
	default:
		return "unknown"
	}
}

// ParseLayout parses "slot" or "keyed".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slot", "":
		return LayoutSlot, nil
	case "keyed":
		return LayoutKeyed, nil
	default:
		return LayoutSlot, fmt.Errorf("unknown layout %q, expected slot or keyed", s)
	}
}

const (
	keyAdmin    = "admin"
	keyOwner    = "owner"
	keyItemID   = "item_id"
	keyIsBurned = "is_burned"
)

// certificateKeys are the storage keys of one certificate's fields.
type certificateKeys struct {
	owner    string
	itemID   string
	isBurned string
}

func (l Layout) keysFor(itemID interfaces.ItemID) certificateKeys {
	if l == LayoutKeyed {
		prefix := fmt.Sprintf("certificates/%d/", itemID)
		return certificateKeys{
			owner:    prefix + keyOwner,
			itemID:   prefix + keyItemID,
			isBurned: prefix + keyIsBurned,
		}
	}
	return certificateKeys{owner: keyOwner, itemID: keyItemID, isBurned: keyIsBurned}
}

// loadState reads the admin and the certificate addressed by itemID.
func loadState(ctx context.Context, kv interfaces.KV, keys certificateKeys) (interfaces.State, error) {
	var state interfaces.State

	admin, err := readIdentity(ctx, kv, keyAdmin)
	if err != nil {
		return state, err
	}
	state.Admin = admin

	cert, err := readCertificate(ctx, kv, keys)
	if err != nil {
		return state, err
	}
	state.Certificate = cert

	return state, nil
}

// readCertificate returns nil if no certificate has been minted under keys.
// A missing is_burned reads as false.
func readCertificate(ctx context.Context, kv interfaces.KV, keys certificateKeys) (*interfaces.Certificate, error) {
	owner, err := readIdentity(ctx, kv, keys.owner)
	if err != nil || owner == nil {
		return nil, err
	}

	raw, err := readValue(ctx, kv, keys.itemID)
	if err != nil || raw == nil {
		return nil, err
	}
	itemID, err := decodeItemID(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", interfaces.ErrCorruptState, keys.itemID, err)
	}

	isBurned := false
	raw, err = readValue(ctx, kv, keys.isBurned)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		isBurned, err = strconv.ParseBool(string(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", interfaces.ErrCorruptState, keys.isBurned, err)
		}
	}

	return &interfaces.Certificate{
		Owner:    *owner,
		ItemID:   itemID,
		IsBurned: isBurned,
	}, nil
}

func writeCertificate(ctx context.Context, kv interfaces.KV, keys certificateKeys, cert interfaces.Certificate) error {
	if err := writeIdentity(ctx, kv, keys.owner, cert.Owner); err != nil {
		return err
	}
	if err := kv.Set(ctx, keys.itemID, encodeItemID(cert.ItemID)); err != nil {
		return fmt.Errorf("failed to write %s: %w", keys.itemID, err)
	}
	return writeBurned(ctx, kv, keys, cert.IsBurned)
}

func writeBurned(ctx context.Context, kv interfaces.KV, keys certificateKeys, burned bool) error {
	if err := kv.Set(ctx, keys.isBurned, []byte(strconv.FormatBool(burned))); err != nil {
		return fmt.Errorf("failed to write %s: %w", keys.isBurned, err)
	}
	return nil
}

func readIdentity(ctx context.Context, kv interfaces.KV, key string) (*interfaces.Identity, error) {
	raw, err := readValue(ctx, kv, key)
	if err != nil || raw == nil {
		return nil, err
	}
	id, err := interfaces.NewIdentityFromHex(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", interfaces.ErrCorruptState, key, err)
	}
	return &id, nil
}

func writeIdentity(ctx context.Context, kv interfaces.KV, key string, id interfaces.Identity) error {
	if err := kv.Set(ctx, key, []byte(id.String())); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// readValue returns nil, nil for keys that were never written.
func readValue(ctx context.Context, kv interfaces.KV, key string) ([]byte, error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if raw == nil {
		raw = []byte{}
	}
	return raw, nil
}

func encodeItemID(id interfaces.ItemID) []byte {
	return []byte(strconv.FormatUint(uint64(id), 10))
}

func decodeItemID(raw []byte) (interfaces.ItemID, error) {
	v, err := strconv.ParseUint(string(raw), 10, 32)
	if err != nil {
		return 0, err
	}
	return interfaces.ItemID(v), nil
}
