package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/sensor-anchoring-gateway/codec"
	"github.com/ruteri/sensor-anchoring-gateway/cryptoutils"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
)

const contextKeySuffix = ".ctx"

// ContextStoreOpts configures a ContextStore.
type ContextStoreOpts struct {
	// Passphrase seals every context at rest. Empty stores plaintext CBOR.
	Passphrase []byte
}

// ContextStore implements interfaces.ContextStore on top of a blob backend.
type ContextStore struct {
	backend    interfaces.StorageBackend
	passphrase []byte
	log        *slog.Logger
}

// NewContextStore creates a context store persisting into backend.
func NewContextStore(backend interfaces.StorageBackend, opts ContextStoreOpts, log *slog.Logger) *ContextStore {
	if log == nil {
		log = slog.Default()
	}
	return &ContextStore{
		backend:    backend,
		passphrase: opts.Passphrase,
		log:        log,
	}
}

// Load returns the populated context stored under name.
// Missing keys and empty slots both yield ErrContextNotFound.
func (s *ContextStore) Load(ctx context.Context, name interfaces.ShortName) (*interfaces.DeviceContext, error) {
	blob, err := s.backend.Fetch(ctx, contextKey(name))
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return nil, interfaces.ErrContextNotFound
	} else if err != nil {
		return nil, fmt.Errorf("could not fetch context %s: %w", name, err)
	}

	if len(blob) == 0 {
		return nil, interfaces.ErrContextNotFound
	}

	dev, err := s.decode(blob)
	if err != nil {
		return nil, fmt.Errorf("could not decode context %s: %w", name, err)
	}
	if dev.ShortName != name {
		return nil, fmt.Errorf("context stored under %s belongs to %s", name, dev.ShortName)
	}
	if !dev.Populated() {
		return nil, interfaces.ErrContextNotFound
	}

	return dev, nil
}

// Add reserves an empty slot for name.
func (s *ContextStore) Add(ctx context.Context, name interfaces.ShortName) error {
	_, err := s.Load(ctx, name)
	switch {
	case err == nil:
		return interfaces.ErrContextExists
	case !errors.Is(err, interfaces.ErrContextNotFound):
		return err
	}

	if err := s.backend.Store(ctx, contextKey(name), []byte{}); err != nil {
		return fmt.Errorf("could not reserve context slot %s: %w", name, err)
	}

	s.log.Debug("reserved context slot", slog.String("short_name", name.String()))
	return nil
}

// Store encodes and persists dev under its short name.
func (s *ContextStore) Store(ctx context.Context, dev *interfaces.DeviceContext) error {
	if dev == nil || dev.ShortName == "" {
		return errors.New("cannot store context without a short name")
	}

	blob, err := s.encode(dev)
	if err != nil {
		return fmt.Errorf("could not encode context %s: %w", dev.ShortName, err)
	}

	if err := s.backend.Store(ctx, contextKey(dev.ShortName), blob); err != nil {
		return fmt.Errorf("could not persist context %s: %w", dev.ShortName, err)
	}
	return nil
}

// Delete removes the context or slot stored under name.
func (s *ContextStore) Delete(ctx context.Context, name interfaces.ShortName) error {
	if err := s.backend.Delete(ctx, contextKey(name)); err != nil {
		return fmt.Errorf("could not delete context %s: %w", name, err)
	}
	s.log.Debug("deleted context", slog.String("short_name", name.String()))
	return nil
}

func (s *ContextStore) encode(dev *interfaces.DeviceContext) ([]byte, error) {
	data, err := codec.Marshal(dev)
	if err != nil {
		return nil, err
	}
	if len(s.passphrase) == 0 {
		return data, nil
	}
	return cryptoutils.Seal(s.passphrase, data)
}

func (s *ContextStore) decode(blob []byte) (*interfaces.DeviceContext, error) {
	data := blob
	if len(s.passphrase) > 0 {
		opened, err := cryptoutils.Open(s.passphrase, blob)
		if err != nil {
			return nil, err
		}
		data = opened
	}

	var dev interfaces.DeviceContext
	if err := codec.Unmarshal(data, &dev); err != nil {
		return nil, err
	}
	return &dev, nil
}

func contextKey(name interfaces.ShortName) string {
	return name.String() + contextKeySuffix
}
