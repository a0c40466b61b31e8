package auth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// GenerateKey creates a new secp256k1 caller key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// LoadKeyFile reads a hex-encoded private key written by SaveKeyFile.
func LoadKeyFile(path string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load key from %s: %w", path, err)
	}
	return key, nil
}

// SaveKeyFile writes key hex-encoded to path with 0600 permissions.
func SaveKeyFile(path string, key *ecdsa.PrivateKey) error {
	if err := crypto.SaveECDSA(path, key); err != nil {
		return fmt.Errorf("failed to save key to %s: %w", path, err)
	}
	return nil
}
