// Package storage provides the persisted key-value stores the certificate
// registry keeps its state in.
//
// Every backend implements interfaces.StorageBackend: plain Get/Set plus
// Update and View scopes. Writes made inside an Update scope are applied all
// together or not at all:
//
//   - Badger: embedded transactional store, the default for a single node
//   - SQLite: embedded SQL store accessed through gorm
//   - File system storage for local development and testing
//   - S3-compatible storage for cloud deployments
//   - Vault KV v2 for deployments that keep state next to their secrets
//   - IPFS mutable file system for publishing state snapshots
//
// Badger and SQLite map scopes onto native transactions. The remaining
// backends stage writes in memory and flush them when the scope succeeds;
// scopes on one backend instance are serialized.
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - badger:///var/lib/certificate-registry/state (badger:// for in-memory)
//   - sqlite:///var/lib/certificate-registry/state.db (sqlite:// for in-memory)
//   - file:///var/lib/certificate-registry/
//   - s3://ACCESS:SECRET@bucket-name/prefix/?region=us-west-2
//   - vault://vault.example.com:8200/secret/registry?token=...
//   - ipfs://127.0.0.1:5001/certificate-registry
//
// # Multi-Backend Example
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.BackendForURIs([]string{
//	    "badger:///var/lib/certificate-registry/state",
//	    "s3://ACCESS:SECRET@registry-backup/state/?region=eu-west-1",
//	})
//
// Reads are served by the first (primary) backend only. A write must reach
// every backend; if any of them is unavailable the write fails with
// ErrBackendUnavailable and the primary is left untouched.
package storage
