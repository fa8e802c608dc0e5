package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
)

// MaxShortNameLength bounds the store key of a device context.
const MaxShortNameLength = 14

var plainShortName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,13}$`)

// ShortName derives the store key of a sensor. Identifiers that are already
// short and safe are kept, anything else is replaced by a hash so that two
// long identifiers sharing a prefix never collide.
func ShortName(raw string) (interfaces.ShortName, error) {
	if raw == "" {
		return "", &NotReadyError{Reason: ReasonInvalidIdentifier}
	}
	if plainShortName.MatchString(raw) {
		return interfaces.ShortName(raw), nil
	}
	sum := sha256.Sum256([]byte(raw))
	return interfaces.ShortName("x" + hex.EncodeToString(sum[:])[:MaxShortNameLength-1]), nil
}
