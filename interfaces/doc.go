// Package interfaces defines core interfaces and types for the sensor anchoring
// gateway, separating contracts from their implementations.
//
// The package provides interfaces for the collaborators the identity lifecycle
// and the anchoring pipeline call through:
//
// # Storage Interfaces
//
// ContextStore: Durable mapping from a device short name to its identity
// context, with load/add/store/delete operations.
//
// StorageBackend: Key/value blob storage underneath a ContextStore, across
// multiple backend types (memory, file, S3, Vault).
//
// StorageBackendFactory: Creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Crypto Interfaces
//
// CryptoProvider: Deterministic name-based UUID derivation, Ed25519 key pair
// generation, signing and verification.
//
// # Backend Interfaces
//
// BackendClient: Identity registration, key registration and envelope
// anchoring against the remote backend.
//
// Token: Credential gating bootstrap and identity registration.
//
// # Types
//
//   - DeviceContext: the persisted identity record of one device
//   - ShortName: bounded-length derived identifier, the store key of a context
//   - Signature: 64-byte Ed25519 signature, also used as the chain value
//   - StorageBackendLocation: parsed storage URI
package interfaces
