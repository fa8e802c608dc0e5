package storage

import (
	"context"

	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockStorageBackend implements interfaces.StorageBackend for testing
type MockStorageBackend struct {
	mock.Mock
	BackendName string
}

func (m *MockStorageBackend) Fetch(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorageBackend) Store(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func (m *MockStorageBackend) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorageBackend) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockStorageBackend) Name() string {
	return m.BackendName
}

func (m *MockStorageBackend) LocationURI() string {
	return "mock:"
}

// MockContextStore implements interfaces.ContextStore for testing
type MockContextStore struct {
	mock.Mock
}

func (m *MockContextStore) Load(ctx context.Context, name interfaces.ShortName) (*interfaces.DeviceContext, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.DeviceContext), args.Error(1)
}

func (m *MockContextStore) Add(ctx context.Context, name interfaces.ShortName) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockContextStore) Store(ctx context.Context, dev *interfaces.DeviceContext) error {
	args := m.Called(ctx, dev)
	return args.Error(0)
}

func (m *MockContextStore) Delete(ctx context.Context, name interfaces.ShortName) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}
