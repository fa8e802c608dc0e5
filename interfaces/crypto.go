package interfaces

import (
	"crypto/ed25519"

	"github.com/google/uuid"
)

// CryptoProvider provides the signature scheme used for device identities,
// outgoing envelopes and backend response verification.
type CryptoProvider interface {
	// DeriveUUIDv5 derives a name-based UUID from a namespace, a parent
	// identifier and a short name. Equal inputs always yield equal UUIDs.
	DeriveUUIDv5(namespace string, parent uuid.UUID, name ShortName) uuid.UUID

	// GenerateKeyPair creates a fresh signing key pair.
	GenerateKeyPair() (KeyPair, error)

	// Sign signs message with the private key.
	Sign(privateKey ed25519.PrivateKey, message []byte) (Signature, error)

	// Verify checks signature over message against the public key.
	Verify(publicKey ed25519.PublicKey, message []byte, signature Signature) bool
}
