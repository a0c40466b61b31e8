// Package interfaces defines core interfaces and types for the certificate
// registry, separating interface definitions from implementations.
//
// # Registry
//
// CertificateRegistry: the ownership-and-certification state machine for an
// item identified by an ItemID. A certificate is minted by the admin, can be
// transferred by its owner and burned by either. Burning is irreversible.
//
// State, Role and Certificate describe the data the registry loads for every
// operation; the sentinel errors (ErrUninitialized, ErrNotFound, ...) are the
// failure kinds shared by the registry, the HTTP API and the client.
//
// # Storage Interfaces
//
// StorageBackend: a persisted key-value store with atomic Update and View
// scopes, implemented over badger, sqlite, the local file system, S3, Vault
// and IPFS.
//
// StorageBackendFactory: creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Identity
//
// Identity is the 20-byte address recovered from a secp256k1 signature over a
// request. It is the only notion of "caller" the registry knows.
package interfaces
