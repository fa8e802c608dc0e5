package backend

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/codec"
)

const (
	// DeviceUUIDHeader carries the device UUID on anchoring requests.
	DeviceUUIDHeader = "X-Device-UUID"

	// ContentTypeCBOR is the media type of encoded envelopes.
	ContentTypeCBOR = "application/cbor"

	// AlgorithmEd25519 names the only supported key algorithm.
	AlgorithmEd25519 = "ECC_ED25519"
)

var (
	ErrAlreadyRegistered = errors.New("identity already registered")
	ErrRejected          = errors.New("request rejected by backend")
	ErrUnknownDevice     = errors.New("unknown device")
)

// ThingRequest registers a device identity.
type ThingRequest struct {
	HwDeviceID  uuid.UUID `json:"hwDeviceId"`
	Description string    `json:"description"`
	DeviceType  string    `json:"deviceType"`
}

// KeyCertificate describes a device public key.
type KeyCertificate struct {
	Algorithm      string    `json:"algorithm" cbor:"1,keyasint"`
	HwDeviceID     uuid.UUID `json:"hwDeviceId" cbor:"2,keyasint"`
	PubKey         []byte    `json:"pubKey" cbor:"3,keyasint"`
	PubKeyID       []byte    `json:"pubKeyId" cbor:"4,keyasint"`
	Created        time.Time `json:"created" cbor:"5,keyasint"`
	ValidNotBefore time.Time `json:"validNotBefore" cbor:"6,keyasint"`
	ValidNotAfter  time.Time `json:"validNotAfter" cbor:"7,keyasint"`
	PrevPubKeyID   []byte    `json:"prevPubKeyId,omitempty" cbor:"8,keyasint,omitempty"`
}

// SigningBytes returns the deterministic encoding covered by key signatures.
func (c *KeyCertificate) SigningBytes() ([]byte, error) {
	return codec.Marshal(c)
}

// KeyRegistration is the body of key registration and update requests.
type KeyRegistration struct {
	Certificate   KeyCertificate `json:"pubKeyInfo"`
	Signature     []byte         `json:"signature"`
	PrevSignature []byte         `json:"prevSignature,omitempty"`
}

// PubKeyID identifies a public key by the truncated SHA-256 of its bytes.
func PubKeyID(pub ed25519.PublicKey) []byte {
	sum := sha256.Sum256(pub)
	return sum[:16]
}
