package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
)

// ManagerOpts configures a Manager.
type ManagerOpts struct {
	// Namespace is the root name of every device UUID.
	Namespace string

	// GatewayID is the parent identifier of every device UUID.
	GatewayID uuid.UUID

	// ClockThreshold is the earliest time accepted as a synchronized clock.
	ClockThreshold time.Time

	// KeyValidity is the lifetime of a key pair.
	KeyValidity time.Duration

	// RotationLead is how long before expiry a key gets rotated.
	RotationLead time.Duration

	AlreadyRegistered AlreadyRegisteredPolicy
}

// Manager drives device contexts to Ready.
type Manager struct {
	opts    ManagerOpts
	store   interfaces.ContextStore
	crypto  interfaces.CryptoProvider
	backend interfaces.BackendClient
	token   interfaces.Token
	clock   interfaces.Clock
	locks   *lockMap
	log     *slog.Logger
}

// NewManager creates a lifecycle manager. Zero options take their defaults.
func NewManager(opts ManagerOpts, store interfaces.ContextStore, crypto interfaces.CryptoProvider, backend interfaces.BackendClient, token interfaces.Token, clock interfaces.Clock, log *slog.Logger) *Manager {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.ClockThreshold.IsZero() {
		opts.ClockThreshold = DefaultClockThreshold
	}
	if opts.KeyValidity == 0 {
		opts.KeyValidity = DefaultKeyValidity
	}
	if opts.RotationLead == 0 {
		opts.RotationLead = DefaultRotationLead
	}
	if opts.AlreadyRegistered == "" {
		opts.AlreadyRegistered = AlreadyRegisteredFail
	}
	if clock == nil {
		clock = interfaces.SystemClock{}
	}

	return &Manager{
		opts:    opts,
		store:   store,
		crypto:  crypto,
		backend: backend,
		token:   token,
		clock:   clock,
		locks:   newLockMap(),
		log:     log,
	}
}

// EnsureReady returns the Ready context of the sensor, or a *NotReadyError.
// It is safe to call repeatedly: a call on an already Ready device performs no
// store or backend operations other than a due key rotation.
func (m *Manager) EnsureReady(ctx context.Context, rawID string) (*interfaces.DeviceContext, error) {
	name, err := ShortName(rawID)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.lock(name)
	defer unlock()

	return m.ensureReady(ctx, name)
}

// WithReadyDevice runs fn on the Ready context of the sensor while holding its
// lock. Nothing else touches the context until fn returns.
func (m *Manager) WithReadyDevice(ctx context.Context, rawID string, fn func(dev *interfaces.DeviceContext) error) error {
	name, err := ShortName(rawID)
	if err != nil {
		return err
	}

	unlock := m.locks.lock(name)
	defer unlock()

	dev, err := m.ensureReady(ctx, name)
	if err != nil {
		return err
	}
	return fn(dev)
}

// Lock acquires the lock of a short name and returns its release function.
func (m *Manager) Lock(name interfaces.ShortName) func() {
	return m.locks.lock(name)
}

// run tracks the lifecycle of one EnsureReady call.
type run struct {
	name  interfaces.ShortName
	state State
	log   *slog.Logger
}

func (r *run) advance(ev Event) {
	next, err := Transition(r.state, ev)
	if err != nil {
		// Manager only emits events valid for the current state.
		panic(err)
	}
	r.log.Debug("identity transition",
		slog.String("short_name", r.name.String()),
		slog.String("from", r.state.String()),
		slog.String("event", ev.String()),
		slog.String("to", next.String()))
	r.state = next
}

func (r *run) fail(reason Reason, err error) error {
	r.advance(EventFail)
	return &NotReadyError{Reason: reason, Err: err}
}

func (m *Manager) ensureReady(ctx context.Context, name interfaces.ShortName) (*interfaces.DeviceContext, error) {
	r := &run{name: name, state: StateUnresolved, log: m.log}

	dev, err := m.store.Load(ctx, name)
	switch {
	case err == nil:
		r.advance(EventFound)
	case errors.Is(err, interfaces.ErrContextNotFound):
		m.log.Info("context not found, generating it", slog.String("short_name", name.String()))
		r.advance(EventNotFound)
		dev, err = m.bootstrap(ctx, r)
		if err != nil {
			return nil, err
		}
		r.advance(EventBootstrapped)
	default:
		m.log.Error("failed to load context", "err", err, slog.String("short_name", name.String()))
		return nil, r.fail(ReasonStoreFailure, err)
	}

	if err := m.registerIdentity(ctx, r, dev); err != nil {
		return nil, err
	}
	r.advance(EventIDRegistered)

	if err := m.registerKeys(ctx, r, dev); err != nil {
		return nil, err
	}
	r.advance(EventKeysRegistered)

	m.rotateKeysIfDue(ctx, dev)
	r.advance(EventKeysChecked)

	return dev, nil
}

func (m *Manager) checkPreconditions(r *run, clock bool) error {
	if m.token == nil || !m.token.IsValid() {
		m.log.Warn("token not valid", slog.String("short_name", r.name.String()))
		return r.fail(ReasonTokenInvalid, nil)
	}
	if clock {
		if now := m.clock.Now(); now.Before(m.opts.ClockThreshold) {
			m.log.Warn("clock not synchronized", slog.String("short_name", r.name.String()), slog.Time("now", now))
			return r.fail(ReasonClockNotPlausible, nil)
		}
	}
	return nil
}

// bootstrap creates, populates and persists a new context. Any failure after
// the slot was reserved deletes it again.
func (m *Manager) bootstrap(ctx context.Context, r *run) (dev *interfaces.DeviceContext, err error) {
	if err := m.checkPreconditions(r, true); err != nil {
		return nil, err
	}

	if err := m.store.Add(ctx, r.name); err != nil {
		m.log.Error("failed to add context", "err", err, slog.String("short_name", r.name.String()))
		return nil, r.fail(ReasonStoreFailure, err)
	}

	defer func() {
		if err == nil {
			return
		}
		if delErr := m.store.Delete(context.WithoutCancel(ctx), r.name); delErr != nil {
			m.log.Error("failed to remove partial context", "err", delErr, slog.String("short_name", r.name.String()))
		}
	}()

	dev = interfaces.NewDeviceContext(r.name)
	dev.UUID = m.crypto.DeriveUUIDv5(m.opts.Namespace, m.opts.GatewayID, r.name)

	kp, err := m.crypto.GenerateKeyPair()
	if err != nil {
		return nil, r.fail(ReasonCryptoFailure, err)
	}
	dev.SetKeyPair(kp)
	dev.PreviousSignature = interfaces.Signature{}
	m.scheduleKeys(dev, m.clock.Now())

	if err := m.store.Store(ctx, dev); err != nil {
		m.log.Error("failed to store new context", "err", err, slog.String("short_name", r.name.String()))
		return nil, r.fail(ReasonStoreFailure, err)
	}

	m.log.Info("created context",
		slog.String("short_name", r.name.String()),
		slog.String("uuid", dev.UUID.String()))

	return dev, nil
}

func (m *Manager) description(name interfaces.ShortName) string {
	return fmt.Sprintf("%s on gateway %s", name, m.opts.GatewayID)
}

func (m *Manager) registerIdentity(ctx context.Context, r *run, dev *interfaces.DeviceContext) error {
	if dev.IDRegistered {
		return nil
	}
	if err := m.checkPreconditions(r, false); err != nil {
		return err
	}

	outcome, err := m.backend.RegisterIdentity(ctx, dev.UUID, m.description(dev.ShortName), m.token)
	switch outcome {
	case interfaces.RegistrationSuccess:
		m.log.Info("identity registered", slog.String("short_name", dev.ShortName.String()), slog.String("uuid", dev.UUID.String()))

	case interfaces.RegistrationAlreadyRegistered:
		m.log.Error("identity was already registered",
			slog.String("short_name", dev.ShortName.String()),
			slog.String("uuid", dev.UUID.String()),
			slog.String("policy", string(m.opts.AlreadyRegistered)))
		if m.opts.AlreadyRegistered != AlreadyRegisteredReconcile {
			return r.fail(ReasonRegistrationRejected, err)
		}

	case interfaces.RegistrationRejected:
		m.log.Error("identity registration failed", "err", err, slog.String("short_name", dev.ShortName.String()))
		if delErr := m.store.Delete(context.WithoutCancel(ctx), dev.ShortName); delErr != nil {
			m.log.Error("failed to remove context", "err", delErr, slog.String("short_name", dev.ShortName.String()))
		}
		return r.fail(ReasonRegistrationRejected, err)

	default:
		m.log.Warn("identity registration unavailable", "err", err, slog.String("short_name", dev.ShortName.String()))
		return r.fail(ReasonBackendUnavailable, err)
	}

	dev.MarkIDRegistered()
	if err := m.store.Store(ctx, dev); err != nil {
		m.log.Error("failed to store context after identity registration", "err", err, slog.String("short_name", dev.ShortName.String()))
		return r.fail(ReasonStoreFailure, err)
	}
	return nil
}

func (m *Manager) registerKeys(ctx context.Context, r *run, dev *interfaces.DeviceContext) error {
	if dev.KeysRegistered {
		return nil
	}
	if err := m.checkPreconditions(r, false); err != nil {
		return err
	}

	if err := m.backend.RegisterKeys(ctx, dev, m.token); err != nil {
		m.log.Warn("failed to register keys, try later", "err", err, slog.String("short_name", dev.ShortName.String()))
		return r.fail(ReasonKeyRegistrationRejected, err)
	}

	dev.MarkKeysRegistered()
	if err := m.store.Store(ctx, dev); err != nil {
		m.log.Error("failed to store context after key registration", "err", err, slog.String("short_name", dev.ShortName.String()))
		return r.fail(ReasonStoreFailure, err)
	}

	m.log.Info("keys registered", slog.String("short_name", dev.ShortName.String()))
	return nil
}

// rotateKeysIfDue replaces the key pair once NextKeyUpdate has passed. A device
// keeps its previous keys if the rotation fails; the context is persisted after
// every attempt.
func (m *Manager) rotateKeysIfDue(ctx context.Context, dev *interfaces.DeviceContext) {
	now := m.clock.Now()
	if !dev.NextKeyUpdate.Before(now) {
		return
	}

	m.log.Info("key is about to expire, updating", slog.String("short_name", dev.ShortName.String()), slog.Time("next_key_update", dev.NextKeyUpdate))

	if err := m.rotateKeys(ctx, dev, now); err != nil {
		m.log.Error("failed to update keys", "err", err, slog.String("short_name", dev.ShortName.String()))
	}

	if err := m.store.Store(ctx, dev); err != nil {
		m.log.Error("failed to store context after key update", "err", err, slog.String("short_name", dev.ShortName.String()))
	}
}

func (m *Manager) rotateKeys(ctx context.Context, dev *interfaces.DeviceContext, now time.Time) error {
	if m.token == nil || !m.token.IsValid() {
		return errors.New("token not valid")
	}

	next, err := m.crypto.GenerateKeyPair()
	if err != nil {
		return err
	}

	previous := dev.KeyPair()
	prevCreated, prevNext := dev.KeyCreated, dev.NextKeyUpdate

	dev.SetKeyPair(next)
	m.scheduleKeys(dev, now)

	if err := m.backend.UpdateKeys(ctx, dev, previous, m.token); err != nil {
		dev.SetKeyPair(previous)
		dev.KeyCreated, dev.NextKeyUpdate = prevCreated, prevNext
		return err
	}

	m.log.Info("keys updated",
		slog.String("short_name", dev.ShortName.String()),
		slog.Time("next_key_update", dev.NextKeyUpdate))
	return nil
}

func (m *Manager) scheduleKeys(dev *interfaces.DeviceContext, created time.Time) {
	dev.KeyCreated = created
	dev.NextKeyUpdate = created.Add(m.opts.KeyValidity - m.opts.RotationLead)
}

// DeviceStatus is the externally visible summary of a context. It never carries keys.
type DeviceStatus struct {
	ShortName      interfaces.ShortName `json:"short_name"`
	UUID           uuid.UUID            `json:"uuid"`
	IDRegistered   bool                 `json:"id_registered"`
	KeysRegistered bool                 `json:"keys_registered"`
	KeyCreated     time.Time            `json:"key_created"`
	NextKeyUpdate  time.Time            `json:"next_key_update"`
	State          string               `json:"state"`
}

// Status reports the stored state of a short name without changing it.
func (m *Manager) Status(ctx context.Context, name interfaces.ShortName) (*DeviceStatus, error) {
	unlock := m.locks.lock(name)
	defer unlock()

	dev, err := m.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	state := StateLoaded
	switch {
	case dev.IDRegistered && dev.KeysRegistered:
		state = StateKeysRegistered
	case dev.IDRegistered:
		state = StateIDRegistered
	}

	return &DeviceStatus{
		ShortName:      dev.ShortName,
		UUID:           dev.UUID,
		IDRegistered:   dev.IDRegistered,
		KeysRegistered: dev.KeysRegistered,
		KeyCreated:     dev.KeyCreated,
		NextKeyUpdate:  dev.NextKeyUpdate,
		State:          state.String(),
	}, nil
}
