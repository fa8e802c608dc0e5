package interfaces

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// SignatureSize is the width of an Ed25519 signature and of the chain value.
const SignatureSize = ed25519.SignatureSize

// ShortName is the bounded-length store key of a device context.
type ShortName string

// String returns the short name as a plain string.
func (n ShortName) String() string {
	return string(n)
}

// Signature is a 64-byte Ed25519 signature.
// The zero value is the valid initial chain value ("no prior chained message").
type Signature [SignatureSize]byte

// IsZero reports whether the signature is the all-zero initial chain value.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// String returns hex representation.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// Bytes returns the raw 64 bytes.
func (s Signature) Bytes() []byte {
	return s[:]
}

// NewSignatureFromBytes copies a 64-byte slice into a Signature.
func NewSignatureFromBytes(b []byte) (Signature, bool) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, false
	}
	copy(sig[:], b)
	return sig, true
}

// KeyPair holds an Ed25519 signing key and its public half.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// DeviceContext is the persisted identity record of one device.
//
// IDRegistered and KeysRegistered only ever move from false to true; there is
// no way to reset them short of deleting the context from its store.
type DeviceContext struct {
	ShortName         ShortName          `cbor:"1,keyasint"`
	UUID              uuid.UUID          `cbor:"2,keyasint"`
	PublicKey         ed25519.PublicKey  `cbor:"3,keyasint"`
	PrivateKey        ed25519.PrivateKey `cbor:"4,keyasint"`
	PreviousSignature Signature          `cbor:"5,keyasint"`
	IDRegistered      bool               `cbor:"6,keyasint"`
	KeysRegistered    bool               `cbor:"7,keyasint"`
	KeyCreated        time.Time          `cbor:"8,keyasint"`
	NextKeyUpdate     time.Time          `cbor:"9,keyasint"`
}

// NewDeviceContext allocates an empty context for a short name.
func NewDeviceContext(name ShortName) *DeviceContext {
	return &DeviceContext{ShortName: name}
}

// KeyPair returns the current signing key pair.
func (d *DeviceContext) KeyPair() KeyPair {
	return KeyPair{Public: d.PublicKey, Private: d.PrivateKey}
}

// SetKeyPair replaces the signing key pair.
func (d *DeviceContext) SetKeyPair(kp KeyPair) {
	d.PublicKey = kp.Public
	d.PrivateKey = kp.Private
}

// MarkIDRegistered records a successful identity registration.
func (d *DeviceContext) MarkIDRegistered() {
	d.IDRegistered = true
}

// MarkKeysRegistered records a successful key registration.
func (d *DeviceContext) MarkKeysRegistered() {
	d.KeysRegistered = true
}

// Populated reports whether the context carries an identity and a key pair.
func (d *DeviceContext) Populated() bool {
	return d.UUID != uuid.Nil && len(d.PublicKey) == ed25519.PublicKeySize && len(d.PrivateKey) == ed25519.PrivateKeySize
}

// Clone returns a deep copy.
func (d *DeviceContext) Clone() *DeviceContext {
	c := *d
	c.PublicKey = append(ed25519.PublicKey(nil), d.PublicKey...)
	c.PrivateKey = append(ed25519.PrivateKey(nil), d.PrivateKey...)
	return &c
}

// Clock abstracts wall-clock reads so that plausibility checks and key
// rotation schedules can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
