package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func signedJWT(t *testing.T, nbf, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "gateway",
		NotBefore: jwt.NewNumericDate(nbf),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return raw
}

func TestStaticToken(t *testing.T) {
	assert.True(t, StaticToken("abc").IsValid())
	assert.False(t, StaticToken("").IsValid())
	assert.Equal(t, "abc", StaticToken("abc").Value())
}

func TestJWTToken_Validity(t *testing.T) {
	nbf := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := nbf.Add(24 * time.Hour)
	raw := signedJWT(t, nbf, exp)

	tests := []struct {
		name  string
		now   time.Time
		valid bool
	}{
		{name: "before nbf", now: nbf.Add(-time.Second), valid: false},
		{name: "at nbf", now: nbf, valid: true},
		{name: "inside window", now: nbf.Add(time.Hour), valid: true},
		{name: "at exp", now: exp, valid: false},
		{name: "after exp", now: exp.Add(time.Hour), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := ParseJWT(raw, fixedClock{tt.now})
			require.NoError(t, err)
			assert.Equal(t, tt.valid, tok.IsValid())
			assert.Equal(t, raw, tok.Value())
		})
	}
}

func TestLoad(t *testing.T) {
	clock := fixedClock{time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)}

	_, err := Load("  ", clock)
	assert.ErrorIs(t, err, ErrEmptyToken)

	tok, err := Load("opaque-token", clock)
	require.NoError(t, err)
	assert.IsType(t, StaticToken(""), tok)

	raw := signedJWT(t, clock.now.Add(-time.Hour), clock.now.Add(time.Hour))
	tok, err = Load(raw+"\n", clock)
	require.NoError(t, err)
	assert.IsType(t, &JWTToken{}, tok)
	assert.True(t, tok.IsValid())
}

func TestHolder(t *testing.T) {
	h := NewHolder(nil)
	assert.False(t, h.IsValid())
	assert.Equal(t, "", h.Value())

	h.Set(StaticToken("abc"))
	assert.True(t, h.IsValid())
	assert.Equal(t, "abc", h.Value())
}
