package registry

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/ruteri/certificate-registry/metrics"
	"github.com/ruteri/certificate-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newIdentity derives an identity from a freshly generated secp256k1 key.
func newIdentity(t *testing.T) interfaces.Identity {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return interfaces.Identity(crypto.PubkeyToAddress(key.PublicKey))
}

func newStore(t *testing.T) interfaces.StorageBackend {
	t.Helper()
	store, err := storage.NewBadgerBackend("", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type actors struct {
	admin, owner, other interfaces.Identity
}

func newActors(t *testing.T) actors {
	return actors{admin: newIdentity(t), owner: newIdentity(t), other: newIdentity(t)}
}

// setup returns an initialized registry holding item 1 owned by a.owner.
func setup(t *testing.T, opts ...Option) (*Registry, actors) {
	t.Helper()
	ctx := context.Background()
	a := newActors(t)

	reg := New(newStore(t), testLogger(), opts...)
	require.NoError(t, reg.Initialize(ctx, a.admin))
	require.NoError(t, reg.Mint(ctx, a.admin, a.owner, 1))
	return reg, a
}

func TestRegistry_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	log := testLogger()

	badgerStore, err := storage.NewBadgerBackend("", log)
	require.NoError(t, err)
	sqliteStore, err := storage.NewSQLiteBackend("", log)
	require.NoError(t, err)
	fileStore, err := storage.NewFileBackend(filepath.Join(dir, "files"), log)
	require.NoError(t, err)

	stores := map[string]interfaces.StorageBackend{
		"badger": badgerStore,
		"sqlite": sqliteStore,
		"file":   fileStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()
			a := newActors(t)
			newOwner := newIdentity(t)
			reg := New(store, log)

			require.NoError(t, reg.Initialize(ctx, a.admin))
			require.NoError(t, reg.Mint(ctx, a.admin, a.owner, 1))

			valid, err := reg.IsValid(ctx, 1)
			require.NoError(t, err)
			assert.True(t, valid)

			require.NoError(t, reg.Transfer(ctx, a.owner, newOwner, 1))
			cert, err := reg.Certificate(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, newOwner, cert.Owner)

			require.NoError(t, reg.Burn(ctx, newOwner, 1))

			valid, err = reg.IsValid(ctx, 1)
			require.NoError(t, err)
			assert.False(t, valid)
		})
	}
}

func TestRegistry_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces admin by default", func(t *testing.T) {
		reg := New(newStore(t), testLogger())
		first, second := newIdentity(t), newIdentity(t)

		_, err := reg.Admin(ctx)
		assert.ErrorIs(t, err, interfaces.ErrUninitialized)

		require.NoError(t, reg.Initialize(ctx, first))
		require.NoError(t, reg.Initialize(ctx, second))

		admin, err := reg.Admin(ctx)
		require.NoError(t, err)
		assert.Equal(t, second, admin)

		// The replaced admin lost its minting right
		err = reg.Mint(ctx, first, first, 1)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	})

	t.Run("locked admin", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.LockAdmin = true
		reg := New(newStore(t), testLogger(), WithPolicy(policy))
		first, second := newIdentity(t), newIdentity(t)

		require.NoError(t, reg.Initialize(ctx, first))
		err := reg.Initialize(ctx, second)
		assert.ErrorIs(t, err, interfaces.ErrAlreadyInitialized)

		admin, err := reg.Admin(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, admin)
	})

	t.Run("zero admin", func(t *testing.T) {
		reg := New(newStore(t), testLogger())
		err := reg.Initialize(ctx, interfaces.Identity{})
		assert.ErrorIs(t, err, interfaces.ErrInvalidIdentity)
	})
}

func TestRegistry_Mint(t *testing.T) {
	ctx := context.Background()

	t.Run("uninitialized", func(t *testing.T) {
		reg := New(newStore(t), testLogger())
		a := newActors(t)
		err := reg.Mint(ctx, a.admin, a.owner, 1)
		assert.ErrorIs(t, err, interfaces.ErrUninitialized)
	})

	t.Run("non-admin", func(t *testing.T) {
		reg := New(newStore(t), testLogger())
		a := newActors(t)
		require.NoError(t, reg.Initialize(ctx, a.admin))

		err := reg.Mint(ctx, a.other, a.other, 1)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

		_, err = reg.IsValid(ctx, 1)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	t.Run("reissue replaces certificate", func(t *testing.T) {
		reg, a := setup(t)
		require.NoError(t, reg.Burn(ctx, a.owner, 1))

		require.NoError(t, reg.Mint(ctx, a.admin, a.other, 2))

		valid, err := reg.IsValid(ctx, 2)
		require.NoError(t, err)
		assert.True(t, valid)

		// The slot holds item 2 now
		valid, err = reg.IsValid(ctx, 1)
		require.NoError(t, err)
		assert.False(t, valid)

		cert, err := reg.Certificate(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, interfaces.Certificate{Owner: a.other, ItemID: 2, IsBurned: false}, *cert)
	})

	t.Run("reissue disabled", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.AllowReissue = false
		reg, a := setup(t, WithPolicy(policy))

		err := reg.Mint(ctx, a.admin, a.other, 2)
		assert.ErrorIs(t, err, interfaces.ErrCertificateExists)

		// A burned certificate still occupies the slot
		require.NoError(t, reg.Burn(ctx, a.admin, 1))
		err = reg.Mint(ctx, a.admin, a.other, 1)
		assert.ErrorIs(t, err, interfaces.ErrCertificateExists)

		cert, err := reg.Certificate(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, a.owner, cert.Owner)
	})

	t.Run("zero recipient", func(t *testing.T) {
		reg := New(newStore(t), testLogger())
		a := newActors(t)
		require.NoError(t, reg.Initialize(ctx, a.admin))

		err := reg.Mint(ctx, a.admin, interfaces.Identity{}, 1)
		assert.ErrorIs(t, err, interfaces.ErrInvalidIdentity)
	})
}

func TestRegistry_Burn(t *testing.T) {
	ctx := context.Background()

	t.Run("uninitialized before not found", func(t *testing.T) {
		reg := New(newStore(t), testLogger())
		err := reg.Burn(ctx, newIdentity(t), 1)
		assert.ErrorIs(t, err, interfaces.ErrUninitialized)
	})

	t.Run("nothing minted", func(t *testing.T) {
		reg := New(newStore(t), testLogger())
		a := newActors(t)
		require.NoError(t, reg.Initialize(ctx, a.admin))

		err := reg.Burn(ctx, a.admin, 1)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	t.Run("by non-owner", func(t *testing.T) {
		reg, a := setup(t)

		err := reg.Burn(ctx, a.other, 1)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

		valid, err := reg.IsValid(ctx, 1)
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("unauthorized before mismatch", func(t *testing.T) {
		reg, a := setup(t)
		err := reg.Burn(ctx, a.other, 99)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	})

	t.Run("by admin", func(t *testing.T) {
		reg, a := setup(t)
		require.NoError(t, reg.Burn(ctx, a.admin, 1))

		valid, err := reg.IsValid(ctx, 1)
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("twice", func(t *testing.T) {
		reg, a := setup(t)
		require.NoError(t, reg.Burn(ctx, a.owner, 1))

		err := reg.Burn(ctx, a.owner, 1)
		assert.ErrorIs(t, err, interfaces.ErrAlreadyBurned)
		err = reg.Burn(ctx, a.admin, 1)
		assert.ErrorIs(t, err, interfaces.ErrAlreadyBurned)

		valid, err := reg.IsValid(ctx, 1)
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("mismatched item", func(t *testing.T) {
		reg, a := setup(t)

		for _, caller := range []interfaces.Identity{a.admin, a.owner} {
			err := reg.Burn(ctx, caller, 99)
			assert.ErrorIs(t, err, interfaces.ErrMismatch)
		}

		valid, err := reg.IsValid(ctx, 1)
		require.NoError(t, err)
		assert.True(t, valid)
	})
}

func TestRegistry_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing minted", func(t *testing.T) {
		reg := New(newStore(t), testLogger())
		err := reg.Transfer(ctx, newIdentity(t), newIdentity(t), 1)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	t.Run("by non-owner", func(t *testing.T) {
		reg, a := setup(t)

		for _, caller := range []interfaces.Identity{a.other, a.admin} {
			err := reg.Transfer(ctx, caller, caller, 1)
			assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
		}

		cert, err := reg.Certificate(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, a.owner, cert.Owner)
	})

	t.Run("mismatched item", func(t *testing.T) {
		reg, a := setup(t)
		err := reg.Transfer(ctx, a.owner, a.other, 99)
		assert.ErrorIs(t, err, interfaces.ErrMismatch)
	})

	t.Run("burned", func(t *testing.T) {
		reg, a := setup(t)
		require.NoError(t, reg.Burn(ctx, a.owner, 1))

		err := reg.Transfer(ctx, a.owner, a.other, 1)
		assert.ErrorIs(t, err, interfaces.ErrBurnedAssetImmutable)

		cert, err := reg.Certificate(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, a.owner, cert.Owner)
		assert.True(t, cert.IsBurned)
	})

	t.Run("to self and to admin", func(t *testing.T) {
		reg, a := setup(t)
		require.NoError(t, reg.Transfer(ctx, a.owner, a.owner, 1))
		require.NoError(t, reg.Transfer(ctx, a.owner, a.admin, 1))

		cert, err := reg.Certificate(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, a.admin, cert.Owner)

		// The admin now holds both roles and may transfer onwards
		require.NoError(t, reg.Transfer(ctx, a.admin, a.other, 1))
	})

	t.Run("previous owner loses rights", func(t *testing.T) {
		reg, a := setup(t)
		require.NoError(t, reg.Transfer(ctx, a.owner, a.other, 1))

		err := reg.Transfer(ctx, a.owner, a.owner, 1)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
		err = reg.Burn(ctx, a.owner, 1)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	})
}

func TestRegistry_IsValid(t *testing.T) {
	ctx := context.Background()

	t.Run("before mint", func(t *testing.T) {
		reg := New(newStore(t), testLogger())
		require.NoError(t, reg.Initialize(ctx, newIdentity(t)))

		_, err := reg.IsValid(ctx, 1)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	t.Run("other item", func(t *testing.T) {
		reg, _ := setup(t)
		valid, err := reg.IsValid(ctx, 2)
		require.NoError(t, err)
		assert.False(t, valid)

		_, err = reg.Certificate(ctx, 2)
		assert.ErrorIs(t, err, interfaces.ErrMismatch)
	})

	t.Run("missing burned flag reads as live", func(t *testing.T) {
		store := newStore(t)
		owner := newIdentity(t)
		require.NoError(t, store.Set(ctx, "owner", []byte(owner.String())))
		require.NoError(t, store.Set(ctx, "item_id", []byte("5")))

		reg := New(store, testLogger())
		valid, err := reg.IsValid(ctx, 5)
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("corrupt item id", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "owner", []byte(newIdentity(t).String())))
		require.NoError(t, store.Set(ctx, "item_id", []byte("not-a-number")))

		reg := New(store, testLogger())
		_, err := reg.IsValid(ctx, 5)
		assert.ErrorIs(t, err, interfaces.ErrCorruptState)
	})
}

func TestRegistry_PersistedLayout(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := newActors(t)
	reg := New(store, testLogger())

	require.NoError(t, reg.Initialize(ctx, a.admin))
	require.NoError(t, reg.Mint(ctx, a.admin, a.owner, 4294967295))

	expected := map[string]string{
		"admin":     a.admin.String(),
		"owner":     a.owner.String(),
		"item_id":   "4294967295",
		"is_burned": "false",
	}
	for key, value := range expected {
		raw, err := store.Get(ctx, key)
		require.NoError(t, err, key)
		assert.Equal(t, value, string(raw), key)
	}
}

func TestRegistry_KeyedLayout(t *testing.T) {
	ctx := context.Background()
	policy := DefaultPolicy()
	policy.Layout = LayoutKeyed
	policy.AllowReissue = false

	store := newStore(t)
	a := newActors(t)
	reg := New(store, testLogger(), WithPolicy(policy))

	require.NoError(t, reg.Initialize(ctx, a.admin))
	require.NoError(t, reg.Mint(ctx, a.admin, a.owner, 1))
	require.NoError(t, reg.Mint(ctx, a.admin, a.other, 2))

	err := reg.Mint(ctx, a.admin, a.other, 1)
	assert.ErrorIs(t, err, interfaces.ErrCertificateExists)

	require.NoError(t, reg.Burn(ctx, a.owner, 1))

	valid, err := reg.IsValid(ctx, 1)
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = reg.IsValid(ctx, 2)
	require.NoError(t, err)
	assert.True(t, valid)

	// Ownership is per item
	err = reg.Transfer(ctx, a.owner, a.owner, 2)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	require.NoError(t, reg.Transfer(ctx, a.other, a.owner, 2))

	_, err = reg.IsValid(ctx, 3)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	err = reg.Burn(ctx, a.admin, 3)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	raw, err := store.Get(ctx, "certificates/2/owner")
	require.NoError(t, err)
	assert.Equal(t, a.owner.String(), string(raw))
}

func TestRegistry_Metrics(t *testing.T) {
	ctx := context.Background()
	promReg := metrics.NewRegistry()
	reg, a := setup(t, WithMetrics(metrics.NewRegistryMetrics(promReg)))

	require.NoError(t, reg.Burn(ctx, a.owner, 1))
	assert.ErrorIs(t, reg.Burn(ctx, a.owner, 1), interfaces.ErrAlreadyBurned)

	// initialize/ok, mint/ok, burn/ok and burn/already_burned
	count, err := testutil.GatherAndCount(promReg, "certificate_registry_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestParseLayout(t *testing.T) {
	for input, want := range map[string]Layout{"": LayoutSlot, "slot": LayoutSlot, "KEYED": LayoutKeyed} {
		got, err := ParseLayout(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLayout("sharded")
	assert.Error(t, err)
}
