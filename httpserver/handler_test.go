package httpserver

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/auth"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/ruteri/certificate-registry/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter wires handler into the same router the server uses.
func newTestRouter(t *testing.T, reg interfaces.CertificateRegistry) http.Handler {
	t.Helper()
	cfg := &api.HTTPServerConfig{Log: testLogger()}
	srv, err := New(cfg, NewHandler(reg, auth.Verifier{MaxSkew: time.Minute}, testLogger()))
	require.NoError(t, err)
	return srv.Handler()
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := auth.GenerateKey()
	require.NoError(t, err)
	return key
}

func signedPost(t *testing.T, key *ecdsa.PrivateKey, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, nil)
	require.NoError(t, auth.SignRequest(req, raw, key))
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func now() api.Signed {
	return api.Signed{IssuedAt: time.Now().Unix()}
}

func TestHandleMint_Success(t *testing.T) {
	key := newKey(t)
	caller := auth.IdentityOf(key)
	to := interfaces.MustIdentityFromHex("0x00000000000000000000000000000000000000b2")

	mockRegistry := new(registry.MockRegistry)
	mockRegistry.On("Mint", mock.Anything, caller, to, interfaces.ItemID(1)).Return(nil)

	w := httptest.NewRecorder()
	newTestRouter(t, mockRegistry).ServeHTTP(w, signedPost(t, key, api.PathMint, api.MintRequest{Signed: now(), To: to, ItemID: 1}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp api.OperationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "minted", resp.Status)
	assert.Equal(t, caller, resp.Caller)
	mockRegistry.AssertExpectations(t)
}

func TestHandleMutations_CallerComesFromSignature(t *testing.T) {
	key := newKey(t)
	caller := auth.IdentityOf(key)
	to := interfaces.MustIdentityFromHex("0x00000000000000000000000000000000000000b2")

	mockRegistry := new(registry.MockRegistry)
	mockRegistry.On("Initialize", mock.Anything, to).Return(nil)
	mockRegistry.On("Burn", mock.Anything, caller, interfaces.ItemID(7)).Return(nil)
	mockRegistry.On("Transfer", mock.Anything, caller, to, interfaces.ItemID(7)).Return(nil)
	router := newTestRouter(t, mockRegistry)

	for path, body := range map[string]any{
		api.PathInitialize: api.InitializeRequest{Signed: now(), Admin: to},
		api.PathBurn:       api.BurnRequest{Signed: now(), ItemID: 7},
		api.PathTransfer:   api.TransferRequest{Signed: now(), To: to, ItemID: 7},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, signedPost(t, key, path, body))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	mockRegistry.AssertExpectations(t)
}

func TestHandleMutations_ErrorStatus(t *testing.T) {
	key := newKey(t)
	caller := auth.IdentityOf(key)

	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{interfaces.ErrUninitialized, http.StatusPreconditionFailed, interfaces.KindUninitialized},
		{interfaces.ErrNotFound, http.StatusNotFound, interfaces.KindNotFound},
		{interfaces.ErrUnauthorized, http.StatusForbidden, interfaces.KindUnauthorized},
		{interfaces.ErrMismatch, http.StatusConflict, interfaces.KindMismatch},
		{interfaces.ErrAlreadyBurned, http.StatusConflict, interfaces.KindAlreadyBurned},
		{interfaces.ErrBurnedAssetImmutable, http.StatusConflict, interfaces.KindBurnedAssetImmutable},
		{interfaces.ErrCertificateExists, http.StatusConflict, interfaces.KindCertificateExists},
		{interfaces.ErrInvalidIdentity, http.StatusBadRequest, interfaces.KindInvalidIdentity},
		{interfaces.ErrBackendUnavailable, http.StatusServiceUnavailable, interfaces.KindStorageUnavailable},
		{interfaces.ErrCorruptState, http.StatusInternalServerError, interfaces.KindCorruptState},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, interfaces.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			mockRegistry := new(registry.MockRegistry)
			mockRegistry.On("Burn", mock.Anything, caller, interfaces.ItemID(1)).
				Return(fmt.Errorf("burn item 1: %w", tt.err))

			w := httptest.NewRecorder()
			newTestRouter(t, mockRegistry).ServeHTTP(w, signedPost(t, key, api.PathBurn, api.BurnRequest{Signed: now(), ItemID: 1}))

			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.Contains(t, resp.Error, "burn item 1")
		})
	}
}

func TestHandleMutations_RejectsBeforeRegistry(t *testing.T) {
	key := newKey(t)
	mockRegistry := new(registry.MockRegistry)
	router := newTestRouter(t, mockRegistry)

	t.Run("unsigned", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, api.PathMint, strings.NewReader(`{"item_id":1}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, api.KindUnauthenticated, decodeError(t, w).Kind)
	})

	t.Run("stale", func(t *testing.T) {
		body := api.BurnRequest{Signed: api.Signed{IssuedAt: time.Now().Add(-time.Hour).Unix()}, ItemID: 1}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, signedPost(t, key, api.PathBurn, body))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("signed for another path", func(t *testing.T) {
		req := signedPost(t, key, api.PathBurn, api.BurnRequest{Signed: now(), ItemID: 1})
		req.URL.Path = api.PathTransfer
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		body := map[string]any{"issued_at": time.Now().Unix(), "item_id": 1, "force": true}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, signedPost(t, key, api.PathBurn, body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, api.KindBadRequest, decodeError(t, w).Kind)
	})

	t.Run("malformed recipient", func(t *testing.T) {
		body := map[string]any{"issued_at": time.Now().Unix(), "item_id": 1, "to": "0x1234"}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, signedPost(t, key, api.PathMint, body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("item id out of range", func(t *testing.T) {
		body := map[string]any{"issued_at": time.Now().Unix(), "item_id": 1 << 33}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, signedPost(t, key, api.PathBurn, body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	mockRegistry.AssertNotCalled(t, "Mint", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockRegistry.AssertNotCalled(t, "Burn", mock.Anything, mock.Anything, mock.Anything)
	mockRegistry.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleReads(t *testing.T) {
	owner := interfaces.MustIdentityFromHex("0x00000000000000000000000000000000000000b2")
	admin := interfaces.MustIdentityFromHex("0x00000000000000000000000000000000000000a1")

	mockRegistry := new(registry.MockRegistry)
	mockRegistry.On("IsValid", mock.Anything, interfaces.ItemID(1)).Return(true, nil)
	mockRegistry.On("IsValid", mock.Anything, interfaces.ItemID(2)).Return(false, fmt.Errorf("item 2: %w", interfaces.ErrNotFound))
	mockRegistry.On("Certificate", mock.Anything, interfaces.ItemID(1)).
		Return(&interfaces.Certificate{Owner: owner, ItemID: 1, IsBurned: false}, nil)
	mockRegistry.On("Admin", mock.Anything).Return(admin, nil)
	router := newTestRouter(t, mockRegistry)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/api/v1/certificates/1/valid")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"item_id":1,"valid":true}`, w.Body.String())

	w = get("/api/v1/certificates/2/valid")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, interfaces.KindNotFound, decodeError(t, w).Kind)

	w = get("/api/v1/certificates/1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"owner":%q,"item_id":1,"is_burned":false}`, owner.String()), w.Body.String())

	w = get("/api/v1/admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"admin":%q}`, admin.String()), w.Body.String())

	for _, bad := range []string{"/api/v1/certificates/abc/valid", "/api/v1/certificates/-1", "/api/v1/certificates/4294967296"} {
		w = get(bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	mockRegistry.AssertExpectations(t)
}

func TestHandleTransfer_ReplayedRequest(t *testing.T) {
	key := newKey(t)
	caller := auth.IdentityOf(key)
	to := interfaces.MustIdentityFromHex("0x00000000000000000000000000000000000000b2")

	mockRegistry := new(registry.MockRegistry)
	mockRegistry.On("Transfer", mock.Anything, caller, to, interfaces.ItemID(1)).Return(nil).Once()

	cfg := &api.HTTPServerConfig{Log: testLogger()}
	verifier := auth.Verifier{MaxSkew: time.Minute, Replay: auth.NewReplayCache()}
	srv, err := New(cfg, NewHandler(mockRegistry, verifier, testLogger()))
	require.NoError(t, err)

	body := api.TransferRequest{Signed: now(), To: to, ItemID: 1}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, signedPost(t, key, api.PathTransfer, body))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, signedPost(t, key, api.PathTransfer, body))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, api.KindUnauthenticated, decodeError(t, w).Kind)

	mockRegistry.AssertExpectations(t)
}
