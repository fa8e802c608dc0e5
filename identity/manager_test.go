package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/backend"
	"github.com/ruteri/sensor-anchoring-gateway/cryptoutils"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/ruteri/sensor-anchoring-gateway/storage"
	"github.com/ruteri/sensor-anchoring-gateway/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testGateway = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingStore snapshots every persisted context.
type recordingStore struct {
	*storage.ContextStore
	mu     sync.Mutex
	stored []*interfaces.DeviceContext
}

func (s *recordingStore) Store(ctx context.Context, dev *interfaces.DeviceContext) error {
	s.mu.Lock()
	s.stored = append(s.stored, dev.Clone())
	s.mu.Unlock()
	return s.ContextStore.Store(ctx, dev)
}

func (s *recordingStore) stores() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

type fixture struct {
	store   *recordingStore
	backend *backend.MockClient
	token   *token.Holder
	clock   *fakeClock
	manager *Manager
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, policy AlreadyRegisteredPolicy) *fixture {
	t.Helper()
	f := &fixture{
		store: &recordingStore{
			ContextStore: storage.NewContextStore(storage.NewMemoryBackend("test", testLogger()), storage.ContextStoreOpts{}, testLogger()),
		},
		backend: &backend.MockClient{},
		token:   token.NewHolder(token.StaticToken("valid")),
		clock:   newFakeClock(),
	}
	f.manager = NewManager(ManagerOpts{GatewayID: testGateway, AlreadyRegistered: policy},
		f.store, cryptoutils.NewEd25519Provider(), f.backend, f.token, f.clock, testLogger())
	return f
}

func (f *fixture) stored(t *testing.T, name interfaces.ShortName) *interfaces.DeviceContext {
	t.Helper()
	dev, err := f.store.Load(context.Background(), name)
	require.NoError(t, err)
	return dev
}

func TestShortName(t *testing.T) {
	tests := []struct {
		raw      string
		expected interfaces.ShortName
	}{
		{raw: "test_alpha", expected: "test_alpha"},
		{raw: "s1", expected: "s1"},
		{raw: "sensor-01.temp", expected: "sensor-01.temp"},
	}
	for _, tt := range tests {
		name, err := ShortName(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, name)
	}

	long1, err := ShortName("a-very-long-sensor-identifier-1")
	require.NoError(t, err)
	long2, err := ShortName("a-very-long-sensor-identifier-2")
	require.NoError(t, err)
	assert.Len(t, string(long1), MaxShortNameLength)
	assert.NotEqual(t, long1, long2)

	dotted, err := ShortName("..")
	require.NoError(t, err)
	assert.Equal(t, byte('x'), dotted[0])

	unicode, err := ShortName("température")
	require.NoError(t, err)
	assert.Len(t, string(unicode), MaxShortNameLength)

	_, err = ShortName("")
	assert.Equal(t, ReasonInvalidIdentifier, ReasonOf(err))
}

func TestEnsureReady_TokenInvalid(t *testing.T) {
	store := &storage.MockContextStore{}
	store.On("Load", mock.Anything, interfaces.ShortName("s1")).Return(nil, interfaces.ErrContextNotFound)
	client := &backend.MockClient{}
	tok := &token.MockToken{}
	tok.On("IsValid").Return(false)

	m := NewManager(ManagerOpts{GatewayID: testGateway}, store, cryptoutils.NewEd25519Provider(), client, tok, newFakeClock(), testLogger())

	dev, err := m.EnsureReady(context.Background(), "s1")
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, ReasonTokenInvalid, ReasonOf(err))

	store.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	client.AssertExpectations(t)
	assert.Empty(t, client.Calls)
}

func TestEnsureReady_ClockNotPlausible(t *testing.T) {
	f := newFixture(t, AlreadyRegisteredFail)
	f.clock.Set(time.Date(1970, 1, 1, 0, 0, 10, 0, time.UTC))

	_, err := f.manager.EnsureReady(context.Background(), "s1")
	assert.Equal(t, ReasonClockNotPlausible, ReasonOf(err))
	assert.Equal(t, 0, f.store.stores())

	_, err = f.store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, interfaces.ErrContextNotFound)
}

func TestEnsureReady_BootstrapToReady(t *testing.T) {
	f := newFixture(t, AlreadyRegisteredFail)
	ctx := context.Background()

	expectedUUID := cryptoutils.NewEd25519Provider().DeriveUUIDv5(DefaultNamespace, testGateway, "s1")
	f.backend.On("RegisterIdentity", mock.Anything, expectedUUID, "s1 on gateway "+testGateway.String(), f.token).
		Return(interfaces.RegistrationSuccess, nil).Once()
	f.backend.On("RegisterKeys", mock.Anything, mock.Anything, f.token).Return(nil).Once()

	dev, err := f.manager.EnsureReady(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, expectedUUID, dev.UUID)
	assert.True(t, dev.PreviousSignature.IsZero())

	require.Equal(t, 3, f.store.stores())
	assert.False(t, f.store.stored[0].IDRegistered)
	assert.False(t, f.store.stored[0].KeysRegistered)
	assert.True(t, f.store.stored[1].IDRegistered)
	assert.False(t, f.store.stored[1].KeysRegistered)
	assert.True(t, f.store.stored[2].IDRegistered)
	assert.True(t, f.store.stored[2].KeysRegistered)

	stored := f.stored(t, "s1")
	assert.True(t, f.clock.Now().Add(DefaultKeyValidity-DefaultRotationLead).Equal(stored.NextKeyUpdate))

	// A second call has nothing left to do.
	again, err := f.manager.EnsureReady(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, dev.UUID, again.UUID)
	assert.Equal(t, 3, f.store.stores())
	f.backend.AssertExpectations(t)
	f.backend.AssertNumberOfCalls(t, "RegisterIdentity", 1)
	f.backend.AssertNumberOfCalls(t, "RegisterKeys", 1)
}

func TestEnsureReady_BootstrapStoreFailureRollsBack(t *testing.T) {
	store := &storage.MockContextStore{}
	store.On("Load", mock.Anything, interfaces.ShortName("s1")).Return(nil, interfaces.ErrContextNotFound)
	store.On("Add", mock.Anything, interfaces.ShortName("s1")).Return(nil)
	store.On("Store", mock.Anything, mock.Anything).Return(errors.New("no space left"))
	store.On("Delete", mock.Anything, interfaces.ShortName("s1")).Return(nil)

	client := &backend.MockClient{}
	m := NewManager(ManagerOpts{GatewayID: testGateway}, store, cryptoutils.NewEd25519Provider(), client, token.StaticToken("valid"), newFakeClock(), testLogger())

	_, err := m.EnsureReady(context.Background(), "s1")
	assert.Equal(t, ReasonStoreFailure, ReasonOf(err))
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "Delete", 1)
	assert.Empty(t, client.Calls)
}

func TestEnsureReady_AlreadyRegistered(t *testing.T) {
	t.Run("fail policy", func(t *testing.T) {
		f := newFixture(t, AlreadyRegisteredFail)
		f.backend.On("RegisterIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(interfaces.RegistrationAlreadyRegistered, backend.ErrAlreadyRegistered)

		_, err := f.manager.EnsureReady(context.Background(), "s1")
		assert.Equal(t, ReasonRegistrationRejected, ReasonOf(err))
		assert.ErrorIs(t, err, backend.ErrAlreadyRegistered)

		assert.False(t, f.stored(t, "s1").IDRegistered)

		// Nothing is reconciled, the next cycle asks again.
		_, err = f.manager.EnsureReady(context.Background(), "s1")
		assert.Equal(t, ReasonRegistrationRejected, ReasonOf(err))
		f.backend.AssertNumberOfCalls(t, "RegisterIdentity", 2)
		f.backend.AssertNotCalled(t, "RegisterKeys", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reconcile policy", func(t *testing.T) {
		f := newFixture(t, AlreadyRegisteredReconcile)
		f.backend.On("RegisterIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(interfaces.RegistrationAlreadyRegistered, backend.ErrAlreadyRegistered)
		f.backend.On("RegisterKeys", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		_, err := f.manager.EnsureReady(context.Background(), "s1")
		require.NoError(t, err)
		assert.True(t, f.stored(t, "s1").IDRegistered)
	})
}

func TestEnsureReady_RegistrationRejectedDeletesContext(t *testing.T) {
	f := newFixture(t, AlreadyRegisteredFail)
	f.backend.On("RegisterIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(interfaces.RegistrationRejected, backend.ErrRejected)

	_, err := f.manager.EnsureReady(context.Background(), "s1")
	assert.Equal(t, ReasonRegistrationRejected, ReasonOf(err))

	_, err = f.store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, interfaces.ErrContextNotFound)
}

func TestEnsureReady_RegistrationUnavailableKeepsContext(t *testing.T) {
	f := newFixture(t, AlreadyRegisteredFail)
	f.backend.On("RegisterIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(interfaces.RegistrationUnavailable, errors.New("connection refused"))

	_, err := f.manager.EnsureReady(context.Background(), "s1")
	assert.Equal(t, ReasonBackendUnavailable, ReasonOf(err))
	assert.False(t, f.stored(t, "s1").IDRegistered)
}

func TestEnsureReady_KeyRegistrationRetried(t *testing.T) {
	f := newFixture(t, AlreadyRegisteredFail)
	ctx := context.Background()

	f.backend.On("RegisterIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(interfaces.RegistrationSuccess, nil).Once()
	f.backend.On("RegisterKeys", mock.Anything, mock.Anything, mock.Anything).Return(backend.ErrRejected).Once()

	_, err := f.manager.EnsureReady(ctx, "s1")
	assert.Equal(t, ReasonKeyRegistrationRejected, ReasonOf(err))
	stored := f.stored(t, "s1")
	assert.True(t, stored.IDRegistered)
	assert.False(t, stored.KeysRegistered)

	// Token loss blocks the retry without touching the context.
	f.token.Set(nil)
	_, err = f.manager.EnsureReady(ctx, "s1")
	assert.Equal(t, ReasonTokenInvalid, ReasonOf(err))

	f.token.Set(token.StaticToken("valid"))
	f.backend.On("RegisterKeys", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	_, err = f.manager.EnsureReady(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, f.stored(t, "s1").KeysRegistered)
	f.backend.AssertNumberOfCalls(t, "RegisterIdentity", 1)
	f.backend.AssertNumberOfCalls(t, "RegisterKeys", 2)
}

func TestEnsureReady_KeyRotation(t *testing.T) {
	setup := func(t *testing.T) (*fixture, *interfaces.DeviceContext) {
		f := newFixture(t, AlreadyRegisteredFail)
		f.backend.On("RegisterIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(interfaces.RegistrationSuccess, nil)
		f.backend.On("RegisterKeys", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		dev, err := f.manager.EnsureReady(context.Background(), "s1")
		require.NoError(t, err)
		dev = dev.Clone()

		f.clock.Set(dev.NextKeyUpdate.Add(time.Minute))
		return f, dev
	}

	t.Run("success", func(t *testing.T) {
		f, before := setup(t)
		f.backend.On("UpdateKeys", mock.Anything, mock.Anything, before.KeyPair(), mock.Anything).Return(nil).Once()

		dev, err := f.manager.EnsureReady(context.Background(), "s1")
		require.NoError(t, err)
		assert.NotEqual(t, before.PublicKey, dev.PublicKey)
		assert.True(t, dev.NextKeyUpdate.After(f.clock.Now()))
		assert.True(t, dev.KeysRegistered)

		stored := f.stored(t, "s1")
		assert.Equal(t, dev.PublicKey, stored.PublicKey)
		f.backend.AssertExpectations(t)
	})

	t.Run("failure keeps previous keys", func(t *testing.T) {
		f, before := setup(t)
		f.backend.On("UpdateKeys", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(backend.ErrRejected)
		storesBefore := f.store.stores()

		dev, err := f.manager.EnsureReady(context.Background(), "s1")
		require.NoError(t, err)
		assert.Equal(t, before.PublicKey, dev.PublicKey)
		assert.Equal(t, before.PrivateKey, dev.PrivateKey)
		assert.True(t, before.NextKeyUpdate.Equal(dev.NextKeyUpdate))
		assert.Equal(t, storesBefore+1, f.store.stores())
	})
}

func TestEnsureReady_SerializedPerName(t *testing.T) {
	f := newFixture(t, AlreadyRegisteredFail)
	f.backend.On("RegisterIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(interfaces.RegistrationSuccess, nil)
	f.backend.On("RegisterKeys", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.EnsureReady(context.Background(), "s1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	f.backend.AssertNumberOfCalls(t, "RegisterIdentity", 1)
	f.backend.AssertNumberOfCalls(t, "RegisterKeys", 1)
	assert.Equal(t, 0, f.manager.locks.size())
}

func TestStatus(t *testing.T) {
	f := newFixture(t, AlreadyRegisteredFail)
	f.backend.On("RegisterIdentity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(interfaces.RegistrationSuccess, nil)
	f.backend.On("RegisterKeys", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.manager.Status(context.Background(), "s1")
	assert.ErrorIs(t, err, interfaces.ErrContextNotFound)

	dev, err := f.manager.EnsureReady(context.Background(), "s1")
	require.NoError(t, err)

	status, err := f.manager.Status(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, dev.UUID, status.UUID)
	assert.Equal(t, StateKeysRegistered.String(), status.State)
}
