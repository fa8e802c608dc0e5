package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/anchor"
	"github.com/ruteri/sensor-anchoring-gateway/identity"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevices struct {
	statuses map[interfaces.ShortName]*identity.DeviceStatus
	err      error

	readyErr error
	ensured  []string
}

func (f *fakeDevices) Status(ctx context.Context, name interfaces.ShortName) (*identity.DeviceStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.statuses[name]
	if !ok {
		return nil, interfaces.ErrContextNotFound
	}
	return s, nil
}

func (f *fakeDevices) EnsureReady(ctx context.Context, rawID string) (*interfaces.DeviceContext, error) {
	f.ensured = append(f.ensured, rawID)
	if f.readyErr != nil {
		return nil, f.readyErr
	}
	name, err := identity.ShortName(rawID)
	if err != nil {
		return nil, err
	}
	if f.statuses == nil {
		f.statuses = map[interfaces.ShortName]*identity.DeviceStatus{}
	}
	f.statuses[name] = &identity.DeviceStatus{ShortName: name, IDRegistered: true, KeysRegistered: true, State: "KeysRegistered"}
	return interfaces.NewDeviceContext(name), nil
}

type fakeStats struct{ stats anchor.Stats }

func (f fakeStats) Stats() anchor.Stats { return f.stats }

func TestHandleDeviceStatus(t *testing.T) {
	id := uuid.New()
	devices := &fakeDevices{statuses: map[interfaces.ShortName]*identity.DeviceStatus{
		"test_alpha": {
			ShortName:      "test_alpha",
			UUID:           id,
			IDRegistered:   true,
			KeysRegistered: false,
			NextKeyUpdate:  time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			State:          "IDRegistered",
		},
	}}
	srv := newTestServer(t, NewHandler(devices, fakeStats{}, testLogger()), nil)
	router := srv.getRouter()

	w := get(t, router, "/api/v1/devices/test_alpha")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var status identity.DeviceStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, id, status.UUID)
	assert.True(t, status.IDRegistered)
	assert.False(t, status.KeysRegistered)
	assert.NotContains(t, w.Body.String(), "private")

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/v1/devices/test_beta").Code)

	devices.err = errors.New("disk gone")
	assert.Equal(t, http.StatusInternalServerError, get(t, router, "/api/v1/devices/test_alpha").Code)
}

func TestHandleStats(t *testing.T) {
	stats := anchor.Stats{QueueLength: 1, QueueCapacity: 4, Submitted: 10, Dropped: 2}
	stats.Worker.Delivered = 7
	srv := newTestServer(t, NewHandler(&fakeDevices{}, fakeStats{stats: stats}, testLogger()), nil)

	w := get(t, srv.getRouter(), "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var got anchor.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, stats, got)
}
