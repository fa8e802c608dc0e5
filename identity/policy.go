package identity

import (
	"fmt"
	"time"
)

// AlreadyRegisteredPolicy decides what an "already registered" answer to an
// identity registration means.
type AlreadyRegisteredPolicy string

const (
	// AlreadyRegisteredFail fails the cycle and leaves IDRegistered unset.
	AlreadyRegisteredFail AlreadyRegisteredPolicy = "fail"
	// AlreadyRegisteredReconcile marks the identity registered and continues.
	AlreadyRegisteredReconcile AlreadyRegisteredPolicy = "reconcile"
)

// ParseAlreadyRegisteredPolicy parses a configured policy name. Empty selects the default.
func ParseAlreadyRegisteredPolicy(s string) (AlreadyRegisteredPolicy, error) {
	switch AlreadyRegisteredPolicy(s) {
	case "", AlreadyRegisteredFail:
		return AlreadyRegisteredFail, nil
	case AlreadyRegisteredReconcile:
		return AlreadyRegisteredReconcile, nil
	default:
		return "", fmt.Errorf("unknown already-registered policy %q", s)
	}
}

const (
	DefaultNamespace    = "example_namespace"
	DefaultKeyValidity  = 365 * 24 * time.Hour
	DefaultRotationLead = 30 * 24 * time.Hour
)

// DefaultClockThreshold is the earliest wall-clock time accepted as synchronized.
var DefaultClockThreshold = time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC)
