package envelope

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/cryptoutils"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/ruteri/sensor-anchoring-gateway/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readyContext(t *testing.T) *interfaces.DeviceContext {
	t.Helper()
	kp, err := cryptoutils.NewEd25519Provider().GenerateKeyPair()
	require.NoError(t, err)

	dev := interfaces.NewDeviceContext("test_alpha")
	dev.UUID = uuid.New()
	dev.SetKeyPair(kp)
	return dev
}

type failingStore struct {
	interfaces.ContextStore
}

func (failingStore) Store(ctx context.Context, dev *interfaces.DeviceContext) error {
	return errors.New("disk full")
}

func TestBuilder_ChainsAndPersists(t *testing.T) {
	ctx := context.Background()
	crypto := cryptoutils.NewEd25519Provider()
	store := storage.NewContextStore(storage.NewMemoryBackend("test", testLogger()), storage.ContextStoreOpts{}, testLogger())
	builder := NewBuilder(crypto, store, testLogger())
	dev := readyContext(t)

	payload, err := NewReading([]int32{1}, time.Unix(1700000000, 0)).Encode()
	require.NoError(t, err)

	first, data, err := builder.Build(ctx, dev, PayloadReading, payload)
	require.NoError(t, err)
	assert.True(t, first.PreviousSignature.IsZero())
	assert.Equal(t, first.Signature, dev.PreviousSignature)

	decoded, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, dev.UUID, decoded.UUID)
	require.NoError(t, Verify(decoded, dev.PublicKey, crypto))

	stored, err := store.Load(ctx, dev.ShortName)
	require.NoError(t, err)
	assert.Equal(t, first.Signature, stored.PreviousSignature)

	second, _, err := builder.Build(ctx, dev, PayloadReading, payload)
	require.NoError(t, err)
	assert.Equal(t, first.Signature, second.PreviousSignature)
	assert.NotEqual(t, first.Signature, second.Signature)

	reading, err := DecodeReading(decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, reading.Values)
	assert.Equal(t, int64(1700000000), reading.Timestamp)
}

func TestBuilder_PersistFailureKeepsChain(t *testing.T) {
	builder := NewBuilder(cryptoutils.NewEd25519Provider(), failingStore{}, testLogger())
	dev := readyContext(t)
	dev.PreviousSignature[3] = 7
	before := dev.PreviousSignature

	_, _, err := builder.Build(context.Background(), dev, PayloadBinary, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, before, dev.PreviousSignature)
}

func TestVerify_Tampered(t *testing.T) {
	crypto := cryptoutils.NewEd25519Provider()
	dev := readyContext(t)

	env := &Envelope{Version: VersionChained, UUID: dev.UUID, PayloadType: PayloadBinary, Payload: []byte("hello")}
	require.NoError(t, env.Sign(crypto, dev.PrivateKey))
	require.NoError(t, Verify(env, dev.PublicKey, crypto))

	env.Payload = []byte("hellO")
	assert.ErrorIs(t, Verify(env, dev.PublicKey, crypto), ErrInvalidSignature)
}

func TestDecode_Errors(t *testing.T) {
	_, err := DecodeBytes([]byte{0xff, 0x00})
	assert.Error(t, err)

	env := &Envelope{Version: 0x22, UUID: uuid.New()}
	data, err := env.Encode()
	require.NoError(t, err)
	_, err = DecodeBytes(data)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestResponseConfig(t *testing.T) {
	cfg, err := DecodeResponseConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, cfg.Interval)

	interval := uint32(30)
	data, err := ResponseConfig{Interval: &interval}.Encode()
	require.NoError(t, err)

	cfg, err = DecodeResponseConfig(data)
	require.NoError(t, err)
	require.NotNil(t, cfg.Interval)
	assert.Equal(t, uint32(30), *cfg.Interval)
}
