package api

import (
	"github.com/ruteri/certificate-registry/interfaces"
)

// API paths served by httpserver and called by clients.
const (
	PathInitialize  = "/api/v1/initialize"
	PathMint        = "/api/v1/mint"
	PathBurn        = "/api/v1/burn"
	PathTransfer    = "/api/v1/transfer"
	PathAdmin       = "/api/v1/admin"
	PathCertificate = "/api/v1/certificates/{item_id}"
	PathValidity    = "/api/v1/certificates/{item_id}/valid"
)

// Signed is embedded in every mutating request. IssuedAt is the unix time the
// request was signed at; the server rejects requests outside its allowed skew.
type Signed struct {
	IssuedAt int64 `json:"issued_at"`
}

// InitializeRequest sets the registry administrator.
type InitializeRequest struct {
	Signed
	Admin interfaces.Identity `json:"admin"`
}

// MintRequest issues a certificate for ItemID owned by To.
type MintRequest struct {
	Signed
	To     interfaces.Identity `json:"to"`
	ItemID interfaces.ItemID   `json:"item_id"`
}

// BurnRequest invalidates the certificate for ItemID.
type BurnRequest struct {
	Signed
	ItemID interfaces.ItemID `json:"item_id"`
}

// TransferRequest moves the certificate for ItemID to To.
type TransferRequest struct {
	Signed
	To     interfaces.Identity `json:"to"`
	ItemID interfaces.ItemID   `json:"item_id"`
}

// OperationResponse acknowledges a successful mutation.
type OperationResponse struct {
	Status string              `json:"status"`
	Caller interfaces.Identity `json:"caller"`
}

// ValidityResponse answers GET /api/v1/certificates/{item_id}/valid.
type ValidityResponse struct {
	ItemID interfaces.ItemID `json:"item_id"`
	Valid  bool              `json:"valid"`
}

// CertificateResponse answers GET /api/v1/certificates/{item_id}.
type CertificateResponse struct {
	interfaces.Certificate
}

// AdminResponse answers GET /api/v1/admin.
type AdminResponse struct {
	Admin interfaces.Identity `json:"admin"`
}

// ErrorResponse is the body of every non-2xx API response. Kind is one of
// the interfaces.Kind* names, or bad_request / unauthenticated for errors
// raised before the registry is reached.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Error kinds for failures that happen before a registry operation runs.
const (
	KindBadRequest      = "bad_request"
	KindUnauthenticated = "unauthenticated"
)
