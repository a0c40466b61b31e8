package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/auth"
	"github.com/ruteri/certificate-registry/interfaces"
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Kind is reported to the client in ErrorResponse.Kind.
	Kind string

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...any) *RequestError {
	return &RequestError{StatusCode: http.StatusBadRequest, Kind: api.KindBadRequest, Err: fmt.Errorf(format, args...)}
}

// kindStatus maps registry error kinds to HTTP status codes.
var kindStatus = map[string]int{
	interfaces.KindUninitialized:        http.StatusPreconditionFailed,
	interfaces.KindNotFound:             http.StatusNotFound,
	interfaces.KindUnauthorized:         http.StatusForbidden,
	interfaces.KindMismatch:             http.StatusConflict,
	interfaces.KindAlreadyBurned:        http.StatusConflict,
	interfaces.KindBurnedAssetImmutable: http.StatusConflict,
	interfaces.KindCertificateExists:    http.StatusConflict,
	interfaces.KindAlreadyInitialized:   http.StatusConflict,
	interfaces.KindInvalidIdentity:      http.StatusBadRequest,
	interfaces.KindStorageUnavailable:   http.StatusServiceUnavailable,
	interfaces.KindCorruptState:         http.StatusInternalServerError,
	interfaces.KindInternal:             http.StatusInternalServerError,
}

// StatusForError returns the HTTP status and error kind reported for err.
func StatusForError(err error) (int, string) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode, reqErr.Kind
	}

	kind := interfaces.ErrorKind(err)
	if status, ok := kindStatus[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, interfaces.KindInternal
}

// Handler serves the certificate registry API.
type Handler struct {
	registry interfaces.CertificateRegistry
	verifier auth.Verifier
	log      *slog.Logger
}

// NewHandler creates a handler serving registry. Signed requests are checked by verifier.
func NewHandler(registry interfaces.CertificateRegistry, verifier auth.Verifier, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		verifier: verifier,
		log:      log,
	}
}

// HandleInitialize records the administrator.
//
// URL format: POST /api/v1/initialize
// Request body: api.InitializeRequest, signed by any caller.
func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	var req api.InitializeRequest
	caller, err := h.decodeSigned(r, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.registry.Initialize(r.Context(), req.Admin); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.OperationResponse{Status: "initialized", Caller: caller})
}

// HandleMint issues a certificate. Only the admin may mint.
//
// URL format: POST /api/v1/mint
// Request body: api.MintRequest
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	var req api.MintRequest
	caller, err := h.decodeSigned(r, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.registry.Mint(r.Context(), caller, req.To, req.ItemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.OperationResponse{Status: "minted", Caller: caller})
}

// HandleBurn invalidates a certificate. The admin or the owner may burn.
//
// URL format: POST /api/v1/burn
// Request body: api.BurnRequest
func (h *Handler) HandleBurn(w http.ResponseWriter, r *http.Request) {
	var req api.BurnRequest
	caller, err := h.decodeSigned(r, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.registry.Burn(r.Context(), caller, req.ItemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.OperationResponse{Status: "burned", Caller: caller})
}

// HandleTransfer moves a certificate to a new owner. Only the owner may transfer.
//
// URL format: POST /api/v1/transfer
// Request body: api.TransferRequest
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req api.TransferRequest
	caller, err := h.decodeSigned(r, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.registry.Transfer(r.Context(), caller, req.To, req.ItemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.OperationResponse{Status: "transferred", Caller: caller})
}

// HandleIsValid reports whether a live certificate exists for the item.
//
// URL format: GET /api/v1/certificates/{item_id}/valid
func (h *Handler) HandleIsValid(w http.ResponseWriter, r *http.Request) {
	itemID, err := itemIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	valid, err := h.registry.IsValid(r.Context(), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.ValidityResponse{ItemID: itemID, Valid: valid})
}

// HandleCertificate returns the stored certificate for the item.
//
// URL format: GET /api/v1/certificates/{item_id}
func (h *Handler) HandleCertificate(w http.ResponseWriter, r *http.Request) {
	itemID, err := itemIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cert, err := h.registry.Certificate(r.Context(), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.CertificateResponse{Certificate: *cert})
}

// HandleAdmin returns the recorded administrator.
//
// URL format: GET /api/v1/admin
func (h *Handler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := h.registry.Admin(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.AdminResponse{Admin: admin})
}

// decodeSigned authenticates r and decodes its body into dst.
func (h *Handler) decodeSigned(r *http.Request, dst any) (interfaces.Identity, error) {
	caller, body, err := h.verifier.RecoverCaller(r)
	switch {
	case errors.Is(err, auth.ErrMissingSignature),
		errors.Is(err, auth.ErrInvalidSignature),
		errors.Is(err, auth.ErrSignatureMismatch),
		errors.Is(err, auth.ErrStaleRequest),
		errors.Is(err, auth.ErrReplayedRequest):
		return caller, &RequestError{StatusCode: http.StatusUnauthorized, Kind: api.KindUnauthenticated, Err: err}
	case err != nil:
		return caller, badRequest("%v", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return caller, badRequest("invalid request body: %v", err)
	}
	return caller, nil
}

func itemIDParam(r *http.Request) (interfaces.ItemID, error) {
	raw := chi.URLParam(r, "item_id")
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, badRequest("invalid item id %q", raw)
	}
	return interfaces.ItemID(v), nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := StatusForError(err)

	attrs := []any{"err", err, slog.String("path", r.URL.Path), slog.Int("status", status), slog.String("kind", kind)}
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", attrs...)
	} else {
		h.log.Debug("Request rejected", attrs...)
	}

	h.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: kind})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
