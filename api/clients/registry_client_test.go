package clients

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/auth"
	"github.com/ruteri/certificate-registry/httpserver"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/ruteri/certificate-registry/registry"
	"github.com/ruteri/certificate-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewBadgerBackend("", log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := httpserver.NewHandler(registry.New(store, log), auth.Verifier{MaxSkew: time.Minute}, log)
	srv, err := httpserver.New(&api.HTTPServerConfig{Log: log}, handler)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T, baseURL string) (*RegistryClient, interfaces.Identity) {
	t.Helper()
	key, err := auth.GenerateKey()
	require.NoError(t, err)
	return NewRegistryClient(baseURL, key, 5*time.Second), auth.IdentityOf(key)
}

func TestRegistryClient_Lifecycle(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)

	adminClient, admin := newClient(t, ts.URL)
	ownerClient, owner := newClient(t, ts.URL)
	buyerClient, buyer := newClient(t, ts.URL)

	_, err := adminClient.Admin(ctx)
	assert.ErrorIs(t, err, interfaces.ErrUninitialized)

	err = adminClient.Mint(ctx, owner, 1)
	assert.ErrorIs(t, err, interfaces.ErrUninitialized)

	require.NoError(t, adminClient.Initialize(ctx, admin))
	got, err := ownerClient.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, got)

	_, err = ownerClient.IsValid(ctx, 1)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	err = ownerClient.Mint(ctx, owner, 1)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	require.NoError(t, adminClient.Mint(ctx, owner, 1))
	valid, err := buyerClient.IsValid(ctx, 1)
	require.NoError(t, err)
	assert.True(t, valid)

	err = buyerClient.Transfer(ctx, buyer, 1)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	require.NoError(t, ownerClient.Transfer(ctx, buyer, 1))
	cert, err := adminClient.Certificate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Certificate{Owner: buyer, ItemID: 1}, *cert)

	err = buyerClient.Burn(ctx, 99)
	assert.ErrorIs(t, err, interfaces.ErrMismatch)

	require.NoError(t, buyerClient.Burn(ctx, 1))
	valid, err = adminClient.IsValid(ctx, 1)
	require.NoError(t, err)
	assert.False(t, valid)

	err = adminClient.Burn(ctx, 1)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyBurned)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	err = buyerClient.Transfer(ctx, owner, 1)
	assert.ErrorIs(t, err, interfaces.ErrBurnedAssetImmutable)
}

func TestRegistryClient_ClockSkew(t *testing.T) {
	ts := newTestServer(t)
	client, admin := newClient(t, ts.URL)
	client.now = func() time.Time { return time.Now().Add(-time.Hour) }

	err := client.Initialize(context.Background(), admin)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, api.KindUnauthenticated, apiErr.Kind)
}

func TestRegistryClient_ReadOnly(t *testing.T) {
	ts := newTestServer(t)
	client := NewRegistryClient(ts.URL+"/", nil)

	_, err := client.Caller()
	assert.Error(t, err)
	assert.Error(t, client.Burn(context.Background(), 1))

	_, err = client.Admin(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrUninitialized)
}

func TestRegistryClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream gone", http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewRegistryClient(ts.URL, nil)
	_, err := client.IsValid(context.Background(), 1)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream gone", apiErr.Message)
	assert.Equal(t, interfaces.KindInternal, apiErr.Kind)
}
