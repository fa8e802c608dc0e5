package cryptoutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
)

// Ed25519Provider implements interfaces.CryptoProvider with Ed25519 keys and
// SHA-1 name-based (version 5) UUIDs.
type Ed25519Provider struct{}

// NewEd25519Provider returns the default crypto provider.
func NewEd25519Provider() *Ed25519Provider {
	return &Ed25519Provider{}
}

// DeriveUUIDv5 derives a device UUID by chaining version 5 UUIDs:
// namespace name -> gateway id -> short name.
// The derivation is a pure function of its inputs, so a lost UUID can be
// recomputed as long as the gateway identity is stable.
func (p *Ed25519Provider) DeriveUUIDv5(namespace string, parent uuid.UUID, name interfaces.ShortName) uuid.UUID {
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte(namespace))
	gateway := uuid.NewSHA1(ns, parent[:])
	return uuid.NewSHA1(gateway, []byte(name))
}

// GenerateKeyPair creates a new Ed25519 key pair from crypto/rand.
func (p *Ed25519Provider) GenerateKeyPair() (interfaces.KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return interfaces.KeyPair{}, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return interfaces.KeyPair{Public: pub, Private: priv}, nil
}

// Sign signs message with privateKey.
func (p *Ed25519Provider) Sign(privateKey ed25519.PrivateKey, message []byte) (interfaces.Signature, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return interfaces.Signature{}, errors.New("invalid private key length")
	}
	sig, _ := interfaces.NewSignatureFromBytes(ed25519.Sign(privateKey, message))
	return sig, nil
}

// Verify checks signature over message. Malformed keys never verify.
func (p *Ed25519Provider) Verify(publicKey ed25519.PublicKey, message []byte, signature interfaces.Signature) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature[:])
}

// ParsePublicKey decodes a raw 32-byte Ed25519 public key.
func ParsePublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length: got %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
