package identity

import (
	"errors"
	"fmt"
)

// ErrNotReady matches every NotReadyError.
var ErrNotReady = errors.New("device not ready")

// Reason explains why a device did not reach Ready.
type Reason string

const (
	ReasonTokenInvalid            Reason = "token invalid"
	ReasonClockNotPlausible       Reason = "clock not plausible"
	ReasonStoreFailure            Reason = "store failure"
	ReasonRegistrationRejected    Reason = "backend rejected registration"
	ReasonKeyRegistrationRejected Reason = "backend rejected key registration"
	ReasonBackendUnavailable      Reason = "backend unavailable"
	ReasonInvalidIdentifier       Reason = "invalid sensor identifier"
	ReasonCryptoFailure           Reason = "crypto failure"
)

// Reasons lists every reason, for metric label initialization.
var Reasons = []Reason{
	ReasonTokenInvalid,
	ReasonClockNotPlausible,
	ReasonStoreFailure,
	ReasonRegistrationRejected,
	ReasonKeyRegistrationRejected,
	ReasonBackendUnavailable,
	ReasonInvalidIdentifier,
	ReasonCryptoFailure,
}

// NotReadyError is the Failed(reason) outcome of EnsureReady.
type NotReadyError struct {
	Reason Reason
	Err    error
}

func (e *NotReadyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrNotReady, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", ErrNotReady, e.Reason, e.Err)
}

func (e *NotReadyError) Unwrap() error {
	return e.Err
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// ReasonOf returns the reason carried by err, or "" if err is not a NotReadyError.
func ReasonOf(err error) Reason {
	var nr *NotReadyError
	if errors.As(err, &nr) {
		return nr.Reason
	}
	return ""
}
