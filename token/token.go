// Package token implements the credentials that gate bootstrap and registration.
//
// The gateway never issues tokens. It reads their validity and forwards the
// bearer value to the backend.
package token

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/stretchr/testify/mock"
)

var ErrEmptyToken = errors.New("empty token")

// StaticToken is an opaque bearer token, valid whenever it is non-empty.
type StaticToken string

func (t StaticToken) IsValid() bool { return t != "" }

func (t StaticToken) Value() string { return string(t) }

// JWTToken is a bearer JWT whose validity follows its nbf and exp claims.
// The signature is not checked here, the backend does that.
type JWTToken struct {
	raw       string
	notBefore time.Time
	expiresAt time.Time
	clock     interfaces.Clock
}

// ParseJWT reads the registered claims of raw without verifying its signature.
func ParseJWT(raw string, clock interfaces.Clock) (*JWTToken, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}

	t := &JWTToken{raw: raw, clock: clock}
	if claims.NotBefore != nil {
		t.notBefore = claims.NotBefore.Time
	}
	if claims.ExpiresAt != nil {
		t.expiresAt = claims.ExpiresAt.Time
	}
	return t, nil
}

// IsValid reports whether nbf <= now < exp. Missing claims do not restrict validity.
func (t *JWTToken) IsValid() bool {
	now := t.clock.Now()
	if !t.notBefore.IsZero() && now.Before(t.notBefore) {
		return false
	}
	if !t.expiresAt.IsZero() && !now.Before(t.expiresAt) {
		return false
	}
	return true
}

func (t *JWTToken) Value() string { return t.raw }

// ExpiresAt returns the exp claim, zero if absent.
func (t *JWTToken) ExpiresAt() time.Time { return t.expiresAt }

// Load picks the token type from raw: compact JWS strings become a JWTToken,
// anything else a StaticToken.
func Load(raw string, clock interfaces.Clock) (interfaces.Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyToken
	}
	if strings.Count(raw, ".") == 2 {
		if t, err := ParseJWT(raw, clock); err == nil {
			return t, nil
		}
	}
	return StaticToken(raw), nil
}

// Holder is a replaceable token. The process that manages the credential
// swaps it in place while the gateway keeps reading it.
type Holder struct {
	mu    sync.RWMutex
	token interfaces.Token
}

// NewHolder wraps t, which may be nil (never valid).
func NewHolder(t interfaces.Token) *Holder {
	return &Holder{token: t}
}

// Set replaces the held token.
func (h *Holder) Set(t interfaces.Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = t
}

func (h *Holder) IsValid() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token != nil && h.token.IsValid()
}

func (h *Holder) Value() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.token == nil {
		return ""
	}
	return h.token.Value()
}

// MockToken implements interfaces.Token for testing
type MockToken struct {
	mock.Mock
}

func (m *MockToken) IsValid() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockToken) Value() string {
	args := m.Called()
	return args.String(0)
}
