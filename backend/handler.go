package backend

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/envelope"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"go.uber.org/atomic"
)

// HandlerOpts configures the reference backend.
type HandlerOpts struct {
	// ID is the backend identity placed in response envelopes.
	ID uuid.UUID

	// Keys sign response envelopes.
	Keys interfaces.KeyPair

	// Token, when non-empty, must be presented as a bearer token on registration requests.
	Token string

	// Interval, when non-zero, is pushed back to devices in every response.
	Interval uint32
}

// HandlerStats counts the requests served by a Handler.
type HandlerStats struct {
	Things      int    `json:"things"`
	Keys        int    `json:"keys"`
	KeyUpdates  uint64 `json:"key_updates"`
	Anchored    uint64 `json:"anchored"`
	ChainBreaks uint64 `json:"chain_breaks"`
}

type device struct {
	description string
	publicKey   ed25519.PublicKey
	lastSig     interfaces.Signature
}

// Handler is an in-process implementation of the backend API.
type Handler struct {
	opts   HandlerOpts
	crypto interfaces.CryptoProvider
	log    *slog.Logger

	mu      sync.Mutex
	devices map[uuid.UUID]*device

	keyUpdates  atomic.Uint64
	anchored    atomic.Uint64
	chainBreaks atomic.Uint64
}

// NewHandler creates a reference backend handler.
func NewHandler(opts HandlerOpts, crypto interfaces.CryptoProvider, log *slog.Logger) *Handler {
	return &Handler{
		opts:    opts,
		crypto:  crypto,
		log:     log,
		devices: make(map[uuid.UUID]*device),
	}
}

// RegisterRoutes configures the HTTP router with backend endpoints:
//   - POST /api/things - identity registration
//   - POST /api/keys - initial key registration
//   - POST /api/keys/update - key rotation
//   - POST /api/anchor - anchoring of chained envelopes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/things", h.HandleThing)
	r.Post("/api/keys", h.HandleKeys)
	r.Post("/api/keys/update", h.HandleKeyUpdate)
	r.Post("/api/anchor", h.HandleAnchor)
}

// PublicKey returns the key verifying response envelopes.
func (h *Handler) PublicKey() ed25519.PublicKey {
	return h.opts.Keys.Public
}

// Stats returns a snapshot of the served requests.
func (h *Handler) Stats() HandlerStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := HandlerStats{
		Things:      len(h.devices),
		KeyUpdates:  h.keyUpdates.Load(),
		Anchored:    h.anchored.Load(),
		ChainBreaks: h.chainBreaks.Load(),
	}
	for _, d := range h.devices {
		if d.publicKey != nil {
			stats.Keys++
		}
	}
	return stats
}

// HandleThing registers a device identity.
//
// Status codes:
//   - 201 Created: identity registered
//   - 400 Bad Request: malformed request
//   - 401 Unauthorized: missing or wrong token
//   - 409 Conflict: identity already registered
func (h *Handler) HandleThing(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req ThingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxResponseSize)).Decode(&req); err != nil || req.HwDeviceID == uuid.Nil {
		http.Error(w, "invalid thing request", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, found := h.devices[req.HwDeviceID]; found {
		h.log.Info("Identity already registered", "uuid", req.HwDeviceID)
		http.Error(w, "already registered", http.StatusConflict)
		return
	}

	h.devices[req.HwDeviceID] = &device{description: req.Description}
	h.log.Info("Registered identity", "uuid", req.HwDeviceID, "description", req.Description)
	w.WriteHeader(http.StatusCreated)
}

// HandleKeys registers the first key of a device.
//
// Status codes:
//   - 200 OK: key registered
//   - 400 Bad Request: malformed request or bad certificate signature
//   - 401 Unauthorized: missing or wrong token
//   - 404 Not Found: unknown identity
//   - 409 Conflict: a different key is already registered
func (h *Handler) HandleKeys(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.decodeKeyRegistration(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	dev, found := h.devices[reg.Certificate.HwDeviceID]
	if !found {
		http.Error(w, ErrUnknownDevice.Error(), http.StatusNotFound)
		return
	}
	if dev.publicKey != nil && !dev.publicKey.Equal(ed25519.PublicKey(reg.Certificate.PubKey)) {
		http.Error(w, "a different key is registered, use key update", http.StatusConflict)
		return
	}

	dev.publicKey = ed25519.PublicKey(reg.Certificate.PubKey)
	h.log.Info("Registered key", "uuid", reg.Certificate.HwDeviceID)
	w.WriteHeader(http.StatusOK)
}

// HandleKeyUpdate replaces the key of a device. The certificate must reference
// the current key and be counter-signed by it.
func (h *Handler) HandleKeyUpdate(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.decodeKeyRegistration(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	dev, found := h.devices[reg.Certificate.HwDeviceID]
	if !found || dev.publicKey == nil {
		http.Error(w, ErrUnknownDevice.Error(), http.StatusNotFound)
		return
	}

	if string(reg.Certificate.PrevPubKeyID) != string(PubKeyID(dev.publicKey)) {
		http.Error(w, "certificate does not reference the current key", http.StatusBadRequest)
		return
	}

	msg, err := reg.Certificate.SigningBytes()
	if err != nil {
		http.Error(w, "invalid certificate", http.StatusBadRequest)
		return
	}
	prevSig, ok := interfaces.NewSignatureFromBytes(reg.PrevSignature)
	if !ok || !h.crypto.Verify(dev.publicKey, msg, prevSig) {
		http.Error(w, "invalid counter-signature", http.StatusBadRequest)
		return
	}

	dev.publicKey = ed25519.PublicKey(reg.Certificate.PubKey)
	h.keyUpdates.Inc()
	h.log.Info("Updated key", "uuid", reg.Certificate.HwDeviceID)
	w.WriteHeader(http.StatusOK)
}

// HandleAnchor verifies a chained envelope and answers with a signed envelope.
//
// Status codes:
//   - 200 OK: envelope anchored, body is the signed response envelope
//   - 400 Bad Request: malformed envelope or uuid mismatch
//   - 401 Unauthorized: signature does not verify
//   - 404 Not Found: no key registered for the device
func (h *Handler) HandleAnchor(w http.ResponseWriter, r *http.Request) {
	env, err := envelope.Decode(io.LimitReader(r.Body, maxResponseSize))
	if err != nil {
		h.log.Warn("Invalid envelope", "err", err)
		http.Error(w, "invalid envelope", http.StatusBadRequest)
		return
	}

	if header := r.Header.Get(DeviceUUIDHeader); header != "" && header != env.UUID.String() {
		http.Error(w, "uuid header does not match envelope", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	dev, found := h.devices[env.UUID]
	if !found || dev.publicKey == nil {
		h.mu.Unlock()
		http.Error(w, ErrUnknownDevice.Error(), http.StatusNotFound)
		return
	}

	if err := envelope.Verify(env, dev.publicKey, h.crypto); err != nil {
		h.mu.Unlock()
		h.log.Warn("Envelope signature invalid", "uuid", env.UUID, "err", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	// The gateway persists its chain value before sending, so a lost request
	// shows up here as a gap. It is recorded, not rejected.
	if env.PreviousSignature != dev.lastSig {
		h.chainBreaks.Inc()
		h.log.Warn("Envelope chain gap", "uuid", env.UUID)
	}
	dev.lastSig = env.Signature
	h.mu.Unlock()

	h.anchored.Inc()

	resp, err := h.response(env)
	if err != nil {
		h.log.Error("Failed to build response", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ContentTypeCBOR)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp); err != nil {
		h.log.Error("Failed to write response", "err", err)
	}
}

func (h *Handler) response(req *envelope.Envelope) ([]byte, error) {
	var cfg envelope.ResponseConfig
	if h.opts.Interval != 0 {
		interval := h.opts.Interval
		cfg.Interval = &interval
	}
	payload, err := cfg.Encode()
	if err != nil {
		return nil, err
	}

	resp := &envelope.Envelope{
		Version:           envelope.VersionChained,
		UUID:              h.opts.ID,
		PreviousSignature: req.Signature,
		PayloadType:       envelope.PayloadResponse,
		Payload:           payload,
	}
	if err := resp.Sign(h.crypto, h.opts.Keys.Private); err != nil {
		return nil, err
	}
	return resp.Encode()
}

func (h *Handler) decodeKeyRegistration(w http.ResponseWriter, r *http.Request) (*KeyRegistration, bool) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	var reg KeyRegistration
	if err := json.NewDecoder(io.LimitReader(r.Body, maxResponseSize)).Decode(&reg); err != nil {
		http.Error(w, "invalid key registration", http.StatusBadRequest)
		return nil, false
	}

	if err := h.verifyCertificate(&reg); err != nil {
		h.log.Warn("Invalid key certificate", "err", err, "uuid", reg.Certificate.HwDeviceID)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return &reg, true
}

func (h *Handler) verifyCertificate(reg *KeyRegistration) error {
	cert := &reg.Certificate
	if cert.Algorithm != AlgorithmEd25519 {
		return errors.New("unsupported key algorithm")
	}
	if len(cert.PubKey) != ed25519.PublicKeySize {
		return errors.New("invalid public key")
	}
	if string(cert.PubKeyID) != string(PubKeyID(cert.PubKey)) {
		return errors.New("public key id mismatch")
	}
	if !cert.ValidNotAfter.After(cert.ValidNotBefore) {
		return errors.New("empty validity window")
	}

	msg, err := cert.SigningBytes()
	if err != nil {
		return errors.New("invalid certificate")
	}
	sig, ok := interfaces.NewSignatureFromBytes(reg.Signature)
	if !ok || !h.crypto.Verify(cert.PubKey, msg, sig) {
		return errors.New("invalid certificate signature")
	}
	return nil
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.opts.Token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+h.opts.Token
}
