package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/certificate-registry/api"
	"github.com/ruteri/certificate-registry/auth"
	"github.com/ruteri/certificate-registry/interfaces"
)

// APIError is a non-2xx response from the registry server. It unwraps to the
// interfaces sentinel named by Kind, so callers can use errors.Is as they
// would against a local registry.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry returned %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return interfaces.ErrorForKind(e.Kind)
}

// RegistryClient calls the registry HTTP API, signing mutations with its key.
type RegistryClient struct {
	baseURL    string
	key        *ecdsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time
}

// NewRegistryClient creates a client for the server at baseURL (e.g. "http://localhost:8080").
// key may be nil for a read-only client.
func NewRegistryClient(baseURL string, key *ecdsa.PrivateKey, timeout ...time.Duration) *RegistryClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &RegistryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
		now: time.Now,
	}
}

// Caller returns the identity requests are signed as.
func (c *RegistryClient) Caller() (interfaces.Identity, error) {
	if c.key == nil {
		return interfaces.Identity{}, errors.New("client has no signing key")
	}
	return auth.IdentityOf(c.key), nil
}

func (c *RegistryClient) signed() api.Signed {
	return api.Signed{IssuedAt: c.now().Unix()}
}

// Initialize records admin as the registry administrator.
func (c *RegistryClient) Initialize(ctx context.Context, admin interfaces.Identity) error {
	return c.post(ctx, api.PathInitialize, api.InitializeRequest{Signed: c.signed(), Admin: admin})
}

// Mint issues a certificate for itemID owned by to.
func (c *RegistryClient) Mint(ctx context.Context, to interfaces.Identity, itemID interfaces.ItemID) error {
	return c.post(ctx, api.PathMint, api.MintRequest{Signed: c.signed(), To: to, ItemID: itemID})
}

// Burn invalidates the certificate for itemID.
func (c *RegistryClient) Burn(ctx context.Context, itemID interfaces.ItemID) error {
	return c.post(ctx, api.PathBurn, api.BurnRequest{Signed: c.signed(), ItemID: itemID})
}

// Transfer moves the certificate for itemID to to.
func (c *RegistryClient) Transfer(ctx context.Context, to interfaces.Identity, itemID interfaces.ItemID) error {
	return c.post(ctx, api.PathTransfer, api.TransferRequest{Signed: c.signed(), To: to, ItemID: itemID})
}

// IsValid reports whether a live certificate exists for itemID.
func (c *RegistryClient) IsValid(ctx context.Context, itemID interfaces.ItemID) (bool, error) {
	var resp api.ValidityResponse
	if err := c.get(ctx, certificatePath(itemID)+"/valid", &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// Certificate returns the stored certificate for itemID.
func (c *RegistryClient) Certificate(ctx context.Context, itemID interfaces.ItemID) (*interfaces.Certificate, error) {
	var resp api.CertificateResponse
	if err := c.get(ctx, certificatePath(itemID), &resp); err != nil {
		return nil, err
	}
	return &resp.Certificate, nil
}

// Admin returns the recorded administrator.
func (c *RegistryClient) Admin(ctx context.Context) (interfaces.Identity, error) {
	var resp api.AdminResponse
	if err := c.get(ctx, api.PathAdmin, &resp); err != nil {
		return interfaces.Identity{}, err
	}
	return resp.Admin, nil
}

func certificatePath(itemID interfaces.ItemID) string {
	return strings.Replace(api.PathCertificate, "{item_id}", strconv.FormatUint(uint64(itemID), 10), 1)
}

func (c *RegistryClient) post(ctx context.Context, path string, reqBody any) error {
	if c.key == nil {
		return errors.New("client has no signing key")
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := auth.SignRequest(req, body, c.key); err != nil {
		return err
	}

	var resp api.OperationResponse
	return c.do(req, &resp)
}

func (c *RegistryClient) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, dst)
}

func (c *RegistryClient) do(req *http.Request, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var errResp api.ErrorResponse
		if err := json.Unmarshal(raw, &errResp); err != nil || errResp.Kind == "" {
			return &APIError{StatusCode: resp.StatusCode, Kind: interfaces.KindInternal, Message: string(bytes.TrimSpace(raw))}
		}
		return &APIError{StatusCode: resp.StatusCode, Kind: errResp.Kind, Message: errResp.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", req.URL.Path, err)
	}
	return nil
}
