// Package envelope implements the chained signed message exchanged with the
// anchoring backend.
//
// An envelope is a CBOR array
//
//	[version, uuid, previous signature, payload type, payload, signature]
//
// where the signature covers the deterministic encoding of the first five
// elements. Each device links its envelopes by placing the signature of its
// previous envelope in the next one.
package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/codec"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
)

// VersionChained marks a signed envelope carrying a chain value.
const VersionChained uint8 = 0x23

// Payload types.
const (
	PayloadBinary   uint8 = 0x00
	PayloadReading  uint8 = 0x01
	PayloadResponse uint8 = 0x02
)

var (
	ErrInvalidSignature   = errors.New("invalid envelope signature")
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
)

// Envelope is a decoded chained signed message.
type Envelope struct {
	_                 struct{} `cbor:",toarray"`
	Version           uint8
	UUID              uuid.UUID
	PreviousSignature interfaces.Signature
	PayloadType       uint8
	Payload           []byte
	Signature         interfaces.Signature
}

type signedPart struct {
	_                 struct{} `cbor:",toarray"`
	Version           uint8
	UUID              uuid.UUID
	PreviousSignature interfaces.Signature
	PayloadType       uint8
	Payload           []byte
}

// SigningBytes returns the bytes covered by the signature.
func (e *Envelope) SigningBytes() ([]byte, error) {
	return codec.Marshal(signedPart{
		Version:           e.Version,
		UUID:              e.UUID,
		PreviousSignature: e.PreviousSignature,
		PayloadType:       e.PayloadType,
		Payload:           e.Payload,
	})
}

// Encode returns the wire form of the envelope.
func (e *Envelope) Encode() ([]byte, error) {
	return codec.Marshal(e)
}

// Sign computes and sets the envelope signature.
func (e *Envelope) Sign(crypto interfaces.CryptoProvider, privateKey []byte) error {
	msg, err := e.SigningBytes()
	if err != nil {
		return fmt.Errorf("could not encode envelope: %w", err)
	}
	sig, err := crypto.Sign(privateKey, msg)
	if err != nil {
		return fmt.Errorf("could not sign envelope: %w", err)
	}
	e.Signature = sig
	return nil
}

// Verify checks the envelope signature against publicKey.
func Verify(e *Envelope, publicKey []byte, crypto interfaces.CryptoProvider) error {
	msg, err := e.SigningBytes()
	if err != nil {
		return fmt.Errorf("could not encode envelope: %w", err)
	}
	if !crypto.Verify(publicKey, msg, e.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Decode reads one envelope from r.
func Decode(r io.Reader) (*Envelope, error) {
	var env Envelope
	if err := codec.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("could not decode envelope: %w", err)
	}
	if env.Version != VersionChained {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedVersion, env.Version)
	}
	return &env, nil
}

// DecodeBytes decodes an envelope held in memory.
func DecodeBytes(data []byte) (*Envelope, error) {
	return Decode(bytes.NewReader(data))
}
