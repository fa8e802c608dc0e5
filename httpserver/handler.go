package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/sensor-anchoring-gateway/anchor"
	"github.com/ruteri/sensor-anchoring-gateway/identity"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
)

// maxBodySize is the maximum allowed request body size (64KiB).
const maxBodySize = 64 * 1024

// DeviceStatusSource reports the stored lifecycle state of a short name.
type DeviceStatusSource interface {
	Status(ctx context.Context, name interfaces.ShortName) (*identity.DeviceStatus, error)
}

// StatsSource reports pipeline counters.
type StatsSource interface {
	Stats() anchor.Stats
}

// Handler serves read-only gateway state.
type Handler struct {
	devices DeviceStatusSource
	stats   StatsSource
	log     *slog.Logger
}

func NewHandler(devices DeviceStatusSource, stats StatsSource, log *slog.Logger) *Handler {
	return &Handler{devices: devices, stats: stats, log: log}
}

// RegisterRoutes configures the HTTP router with status endpoints:
//   - GET /api/v1/devices/{sensor_id}
//   - GET /api/v1/stats
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/devices/{sensor_id}", h.HandleDeviceStatus)
	r.Get("/api/v1/stats", h.HandleStats)
}

// HandleDeviceStatus returns the lifecycle flags of a sensor. The path takes a
// raw sensor identifier or its short name.
//
// Status codes:
//   - 200 OK: status in the body
//   - 400 Bad Request: identifier has no short name
//   - 404 Not Found: no context stored
//   - 500 Internal Server Error: store failure
func (h *Handler) HandleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	name, err := identity.ShortName(chi.URLParam(r, "sensor_id"))
	if err != nil {
		http.Error(w, "invalid sensor identifier", http.StatusBadRequest)
		return
	}

	status, err := h.devices.Status(r.Context(), name)
	switch {
	case errors.Is(err, interfaces.ErrContextNotFound):
		http.Error(w, "device not found", http.StatusNotFound)
		return
	case err != nil:
		h.log.Error("Failed to load device status", "err", err, "short_name", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// HandleStats returns the pipeline counters.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
