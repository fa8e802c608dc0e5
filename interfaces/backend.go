package interfaces

import (
	"context"

	"github.com/google/uuid"
)

// Token is an externally managed credential. The gateway only reads its validity.
type Token interface {
	// IsValid reports whether the token may currently be used.
	IsValid() bool

	// Value returns the bearer credential.
	Value() string
}

// RegistrationOutcome categorizes the backend answer to an identity registration.
type RegistrationOutcome int

const (
	// RegistrationUnavailable means no categorizable answer was received (transport failure).
	RegistrationUnavailable RegistrationOutcome = iota
	// RegistrationSuccess means the identity was created.
	RegistrationSuccess
	// RegistrationAlreadyRegistered means the backend already knows the identity.
	RegistrationAlreadyRegistered
	// RegistrationRejected means the backend refused the registration.
	RegistrationRejected
)

// String returns outcome name.
func (o RegistrationOutcome) String() string {
	switch o {
	case RegistrationSuccess:
		return "success"
	case RegistrationAlreadyRegistered:
		return "already-registered"
	case RegistrationRejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

// AnchorResponse is the raw backend answer to an anchoring request.
type AnchorResponse struct {
	StatusCode int
	Body       []byte
}

// BackendClient talks to the remote identity and anchoring services.
type BackendClient interface {
	// RegisterIdentity creates the identity uuid with a human-readable description.
	RegisterIdentity(ctx context.Context, id uuid.UUID, description string, token Token) (RegistrationOutcome, error)

	// RegisterKeys publishes the context's current public key.
	RegisterKeys(ctx context.Context, dev *DeviceContext, token Token) error

	// UpdateKeys publishes the context's current public key as the successor of previous.
	UpdateKeys(ctx context.Context, dev *DeviceContext, previous KeyPair, token Token) error

	// SendEnvelope posts an encoded envelope to the anchoring endpoint.
	SendEnvelope(ctx context.Context, endpoint string, id uuid.UUID, data []byte) (*AnchorResponse, error)
}
