package cryptoutils

import (
	"bytes"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveUUIDv5_Deterministic(t *testing.T) {
	p := NewEd25519Provider()
	gateway := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	first := p.DeriveUUIDv5("example_namespace", gateway, "test_alpha")
	second := p.DeriveUUIDv5("example_namespace", gateway, "test_alpha")
	assert.Equal(t, first, second)
	assert.Equal(t, uuid.Version(5), first.Version())

	assert.NotEqual(t, first, p.DeriveUUIDv5("example_namespace", gateway, "test_beta"))
	assert.NotEqual(t, first, p.DeriveUUIDv5("other_namespace", gateway, "test_alpha"))
	assert.NotEqual(t, first, p.DeriveUUIDv5("example_namespace", uuid.New(), "test_alpha"))
}

func TestSignVerify(t *testing.T) {
	p := NewEd25519Provider()
	kp, err := p.GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("reading 42")
	sig, err := p.Sign(kp.Private, msg)
	require.NoError(t, err)
	assert.False(t, sig.IsZero())

	assert.True(t, p.Verify(kp.Public, msg, sig))
	assert.False(t, p.Verify(kp.Public, []byte("reading 43"), sig))

	other, err := p.GenerateKeyPair()
	require.NoError(t, err)
	assert.False(t, p.Verify(other.Public, msg, sig))
	assert.False(t, p.Verify(nil, msg, sig))

	_, err = p.Sign(nil, msg)
	assert.Error(t, err)
}

func TestGatewayID(t *testing.T) {
	id, err := GatewayID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", id.String())

	_, err = GatewayID("not-a-uuid")
	assert.Error(t, err)

	mac, err := net.ParseMAC("24:0a:c4:00:01:10")
	require.NoError(t, err)
	assert.Equal(t, GatewayIDFromHardwareAddr(mac), GatewayIDFromHardwareAddr(mac))
}

// TestSealOpen tests the Seal and Open functions
func TestSealOpen(t *testing.T) {
	passphrase := []byte("correct horse battery staple")

	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "Simple string",
			data: []byte("This is a device context"),
		},
		{
			name: "Binary data",
			data: []byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE, 0xFD},
		},
		{
			name: "Empty data",
			data: []byte{},
		},
		{
			name: "Long data",
			data: make([]byte, 1024),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := Seal(passphrase, tc.data)
			require.NoError(t, err)
			assert.False(t, len(tc.data) > 0 && bytes.Contains(sealed, tc.data))

			opened, err := Open(passphrase, sealed)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tc.data, opened))

			_, err = Open([]byte("wrong passphrase"), sealed)
			assert.Error(t, err)
		})
	}

	_, err := Open(passphrase, []byte("short"))
	assert.Error(t, err)

	_, err = Seal(nil, []byte("data"))
	assert.Error(t, err)
}

func TestSignatureHelpers(t *testing.T) {
	var zero interfaces.Signature
	assert.True(t, zero.IsZero())

	_, ok := interfaces.NewSignatureFromBytes(make([]byte, 10))
	assert.False(t, ok)

	sig, ok := interfaces.NewSignatureFromBytes(bytes.Repeat([]byte{1}, interfaces.SignatureSize))
	require.True(t, ok)
	assert.False(t, sig.IsZero())
}
