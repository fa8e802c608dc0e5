// Package cryptoutils provides the cryptographic primitives of the gateway.
//
// # Device Identities
//
// Ed25519Provider implements interfaces.CryptoProvider:
//
//   - DeriveUUIDv5 chains version 5 UUIDs (namespace -> gateway id -> short name)
//     so that device UUIDs are reproducible from stable inputs
//   - GenerateKeyPair creates Ed25519 signing keys
//   - Sign / Verify produce and check 64-byte signatures, the same width as
//     the chain value carried by every envelope
//
// GatewayID resolves the gateway identifier, either configured or derived
// from the host's first hardware address.
//
// # Sealing
//
// Seal and Open protect device contexts at rest. The encryption key is derived
// from a passphrase with Argon2id and a random per-blob salt, and the payload is
// encrypted with AES-GCM. The salt doubles as additional authenticated data.
//
//	[salt (16 bytes)][nonce (12 bytes)][ciphertext]
package cryptoutils
