// Package auth authenticates API callers by secp256k1 request signatures.
//
// A client signs keccak256(method + " " + path + "\n" + body) with its key and
// sends the signature together with the address it claims. The server recovers
// the signer from the signature and accepts the request only if it matches the
// claimed address. Request bodies carry an issued_at unix timestamp which the
// server checks against its own clock, and a ReplayCache rejects a second
// delivery of the same signed request while its timestamp is still accepted.
package auth

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/certificate-registry/interfaces"
)

const (
	// CallerAddressHeader carries the 0x-prefixed address the caller claims.
	CallerAddressHeader = "X-Caller-Address"

	// CallerSignatureHeader carries the 65-byte recoverable signature, 0x hex encoded.
	CallerSignatureHeader = "X-Caller-Signature"

	// MaxBodySize is the largest request body that will be read for verification (1MB).
	MaxBodySize = 1024 * 1024
)

var (
	// ErrMissingSignature is returned when the caller headers are absent.
	ErrMissingSignature = errors.New("missing caller signature")

	// ErrInvalidSignature is returned when the signature headers cannot be decoded.
	ErrInvalidSignature = errors.New("malformed caller signature")

	// ErrSignatureMismatch is returned when the recovered signer differs from the claimed address.
	ErrSignatureMismatch = errors.New("signature does not match caller address")

	// ErrStaleRequest is returned when issued_at is missing or outside the allowed clock skew.
	ErrStaleRequest = errors.New("request timestamp outside allowed skew")

	// ErrReplayedRequest is returned when a signed request was already accepted.
	ErrReplayedRequest = errors.New("signed request already used")
)

// Digest returns the 32-byte hash a caller signs for a request.
func Digest(method, path string, body []byte) []byte {
	msg := make([]byte, 0, len(method)+len(path)+len(body)+2)
	msg = append(msg, method...)
	msg = append(msg, ' ')
	msg = append(msg, path...)
	msg = append(msg, '\n')
	msg = append(msg, body...)
	return crypto.Keccak256(msg)
}

// SignRequest signs req with key and sets body as its payload.
func SignRequest(req *http.Request, body []byte, key *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(Digest(req.Method, req.URL.Path, body), key)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set(CallerAddressHeader, IdentityOf(key).String())
	req.Header.Set(CallerSignatureHeader, hexutil.Encode(sig))

	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return nil
}

// IdentityOf returns the identity controlled by key.
func IdentityOf(key *ecdsa.PrivateKey) interfaces.Identity {
	return interfaces.Identity(crypto.PubkeyToAddress(key.PublicKey))
}

// Verifier recovers the caller of signed requests.
type Verifier struct {
	// MaxSkew bounds |now - issued_at|. Zero disables the timestamp check.
	MaxSkew time.Duration

	// Now overrides the clock, mostly for tests.
	Now func() time.Time

	// Replay, if set, remembers accepted requests until their issued_at
	// leaves the MaxSkew window. It has no effect when MaxSkew is zero.
	Replay *ReplayCache
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// RecoverCaller authenticates r and returns the caller identity and the request body.
// The body is restored on r so later handlers can read it again.
func (v Verifier) RecoverCaller(r *http.Request) (interfaces.Identity, []byte, error) {
	claimedHex := r.Header.Get(CallerAddressHeader)
	sigHex := r.Header.Get(CallerSignatureHeader)
	if claimedHex == "" || sigHex == "" {
		return interfaces.Identity{}, nil, ErrMissingSignature
	}

	claimed, err := interfaces.NewIdentityFromHex(claimedHex)
	if err != nil {
		return interfaces.Identity{}, nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return interfaces.Identity{}, nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return interfaces.Identity{}, nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
		if err != nil {
			return interfaces.Identity{}, nil, fmt.Errorf("failed to read request body: %w", err)
		}
		if len(body) > MaxBodySize {
			return interfaces.Identity{}, nil, fmt.Errorf("request body exceeds %d bytes", MaxBodySize)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	digest := Digest(r.Method, r.URL.Path, body)
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return interfaces.Identity{}, nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	recovered := interfaces.Identity(crypto.PubkeyToAddress(*pub))
	if recovered != claimed {
		return interfaces.Identity{}, nil, fmt.Errorf("%w: claimed %s, signed by %s", ErrSignatureMismatch, claimed, recovered)
	}

	if v.MaxSkew <= 0 {
		return recovered, body, nil
	}

	now := v.now()
	issuedAt, err := v.checkIssuedAt(body, now)
	if err != nil {
		return interfaces.Identity{}, nil, err
	}
	if v.Replay != nil && !v.Replay.Accept(recovered, digest, issuedAt.Add(v.MaxSkew), now) {
		return interfaces.Identity{}, nil, fmt.Errorf("%w: by %s", ErrReplayedRequest, recovered)
	}

	return recovered, body, nil
}

func (v Verifier) checkIssuedAt(body []byte, now time.Time) (time.Time, error) {
	var stamped struct {
		IssuedAt *int64 `json:"issued_at"`
	}
	if err := json.Unmarshal(body, &stamped); err != nil || stamped.IssuedAt == nil {
		return time.Time{}, fmt.Errorf("%w: issued_at missing", ErrStaleRequest)
	}

	issuedAt := time.Unix(*stamped.IssuedAt, 0)
	skew := now.Sub(issuedAt)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.MaxSkew {
		return time.Time{}, fmt.Errorf("%w: issued %s away from server time", ErrStaleRequest, skew.Round(time.Second))
	}
	return issuedAt, nil
}
