package httpserver

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/sensor-anchoring-gateway/anchor"
	"github.com/ruteri/sensor-anchoring-gateway/identity"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/ruteri/sensor-anchoring-gateway/token"
)

const (
	AdminIDHeader        = "X-Admin-ID"
	AdminSignatureHeader = "X-Admin-Signature"

	// submitTimeout bounds how long an injected reading waits for queue space.
	submitTimeout = time.Second
)

// ReadinessDriver drives sensors to Ready and reports their state.
type ReadinessDriver interface {
	DeviceStatusSource
	EnsureReady(ctx context.Context, rawID string) (*interfaces.DeviceContext, error)
}

// AdminStatus is the body of GET /admin/status.
type AdminStatus struct {
	TokenValid bool          `json:"token_valid"`
	Pipeline   *anchor.Stats `json:"pipeline,omitempty"`
}

// SetTokenRequest is the body of PUT /admin/token.
type SetTokenRequest struct {
	Token string `json:"token"`
}

// EnsureReadyResponse is the body of POST /admin/devices/{sensor_id}/ensure-ready.
type EnsureReadyResponse struct {
	Ready  bool                   `json:"ready"`
	Reason string                 `json:"reason,omitempty"`
	Status *identity.DeviceStatus `json:"status,omitempty"`
}

// SubmitReadingRequest is the body of POST /admin/readings.
type SubmitReadingRequest struct {
	Sensor string  `json:"sensor"`
	Values []int32 `json:"values"`
}

// AdminHandler processes signed administration requests.
//
// Every mutating request must be signed by one of the configured admin keys.
// The status endpoint is public.
type AdminHandler struct {
	log          *slog.Logger
	adminPubKeys map[string]ed25519.PublicKey
	devices      ReadinessDriver
	token        *token.Holder
	intake       anchor.Submitter
	stats        StatsSource
	clock        interfaces.Clock
}

// NewAdminHandler creates an admin handler. Any of devices, holder, intake and
// stats may be nil, which disables the routes that need them.
func NewAdminHandler(adminPubKeys map[string]ed25519.PublicKey, devices ReadinessDriver, holder *token.Holder, intake anchor.Submitter, stats StatsSource, log *slog.Logger) *AdminHandler {
	return &AdminHandler{
		log:          log,
		adminPubKeys: adminPubKeys,
		devices:      devices,
		token:        holder,
		intake:       intake,
		stats:        stats,
		clock:        interfaces.SystemClock{},
	}
}

// AdminRouter returns the routes to mount under /admin:
//   - GET /status
//   - PUT /token
//   - POST /devices/{sensor_id}/ensure-ready
//   - POST /readings
func (h *AdminHandler) AdminRouter() chi.Router {
	r := chi.NewRouter()

	r.Get("/status", h.handleStatus)
	r.Put("/token", h.handleSetToken)
	r.Post("/devices/{sensor_id}/ensure-ready", h.handleEnsureReady)
	r.Post("/readings", h.handleSubmitReading)

	return r
}

// handleStatus reports token validity and pipeline counters.
//
// Endpoint: GET /admin/status
func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := AdminStatus{}
	if h.token != nil {
		resp.TokenValid = h.token.IsValid()
	}
	if h.stats != nil {
		stats := h.stats.Stats()
		resp.Pipeline = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSetToken replaces the registration token.
//
// Endpoint: PUT /admin/token
// Body: {"token": "<opaque or JWT>"}
func (h *AdminHandler) handleSetToken(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.verifyAdmin(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.token == nil {
		http.Error(w, "token is not managed by this gateway", http.StatusNotImplemented)
		return
	}

	var req SetTokenRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t, err := token.Load(req.Token, h.clock)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.token.Set(t)

	h.log.Info("Token replaced", "adminID", adminID, "valid", t.IsValid())
	writeJSON(w, http.StatusOK, AdminStatus{TokenValid: t.IsValid()})
}

// handleEnsureReady drives a sensor through its lifecycle without anchoring.
//
// Endpoint: POST /admin/devices/{sensor_id}/ensure-ready
func (h *AdminHandler) handleEnsureReady(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.verifyAdmin(r); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.devices == nil {
		http.Error(w, "no identity manager", http.StatusNotImplemented)
		return
	}

	raw := chi.URLParam(r, "sensor_id")
	dev, err := h.devices.EnsureReady(r.Context(), raw)
	if err != nil {
		reason := identity.ReasonOf(err)
		if reason == "" {
			h.log.Error("EnsureReady failed", "err", err, "sensor", raw)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		status := http.StatusServiceUnavailable
		if reason == identity.ReasonInvalidIdentifier {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, EnsureReadyResponse{Reason: string(reason)})
		return
	}

	status, err := h.devices.Status(r.Context(), dev.ShortName)
	if err != nil {
		h.log.Error("Failed to load device status", "err", err, "short_name", dev.ShortName)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, EnsureReadyResponse{Ready: true, Status: status})
}

// handleSubmitReading enqueues a reading from an external sensor source.
//
// Endpoint: POST /admin/readings
// Body: {"sensor": "<id>", "values": [<int32>...]}
//
// Status codes:
//   - 202 Accepted: reading queued
//   - 503 Service Unavailable: queue full, reading dropped
func (h *AdminHandler) handleSubmitReading(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.verifyAdmin(r); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.intake == nil {
		http.Error(w, "no pipeline", http.StatusNotImplemented)
		return
	}

	var req SubmitReadingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil || req.Sensor == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	outcome := h.intake.SubmitReading(r.Context(), anchor.SensorReading{
		SensorID: req.Sensor,
		Values:   req.Values,
		At:       h.clock.Now(),
	}, submitTimeout)

	status := http.StatusAccepted
	if outcome == anchor.Dropped {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"outcome": outcome.String()})
}

// verifyAdmin checks that the request is signed by a known admin over
// path followed by body.
func (h *AdminHandler) verifyAdmin(r *http.Request) (string, bool) {
	adminID := r.Header.Get(AdminIDHeader)
	adminSignatureStr := r.Header.Get(AdminSignatureHeader)
	if adminID == "" || adminSignatureStr == "" {
		return "", false
	}

	pubKey, exists := h.adminPubKeys[adminID]
	if !exists {
		h.log.Warn("Authentication failed: unknown admin ID", "adminID", adminID)
		return adminID, false
	}

	signature, err := base64.StdEncoding.DecodeString(adminSignatureStr)
	if err != nil {
		h.log.Warn("Authentication failed: invalid signature encoding", "adminID", adminID, "err", err)
		return adminID, false
	}

	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, err = io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			h.log.Error("Failed to read request body", "err", err)
			return adminID, false
		}
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	if !ed25519.Verify(pubKey, adminMessage(r.URL.Path, bodyBytes), signature) {
		h.log.Warn("Authentication failed: invalid signature", "adminID", adminID)
		return adminID, false
	}

	h.log.Debug("Admin authentication successful", "adminID", adminID)
	return adminID, true
}

func adminMessage(path string, body []byte) []byte {
	return append([]byte(path), body...)
}

// AdminID derives the admin identifier of a public key.
func AdminID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// AdminKeysConfig is the admin keys file format.
type AdminKeysConfig struct {
	Admins []AdminMetadata `json:"admins"`
}

type AdminMetadata struct {
	ID string `json:"id"`
	// PubKey is the hex encoded Ed25519 public key.
	PubKey string `json:"pubkey"`
}

// LoadAdminKeys loads admin public keys from a JSON AdminKeysConfig.
// An entry without an id gets AdminID of its key.
func LoadAdminKeys(r io.Reader) (map[string]ed25519.PublicKey, error) {
	var config AdminKeysConfig
	if err := json.NewDecoder(r).Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode admin keys: %w", err)
	}

	keys := make(map[string]ed25519.PublicKey, len(config.Admins))
	for _, admin := range config.Admins {
		raw, err := hex.DecodeString(admin.PubKey)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid public key for admin %q", admin.ID)
		}
		id := admin.ID
		if id == "" {
			id = AdminID(raw)
		}
		keys[id] = ed25519.PublicKey(raw)
	}

	if len(keys) == 0 {
		return nil, errors.New("no admin keys found")
	}
	return keys, nil
}
