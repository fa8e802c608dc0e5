package envelope

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
)

// Builder produces chained envelopes for device contexts.
//
// Build advances dev.PreviousSignature and persists the context before the
// envelope leaves the gateway, so a chain value is never signed over twice.
type Builder struct {
	crypto interfaces.CryptoProvider
	store  interfaces.ContextStore
	log    *slog.Logger
}

func NewBuilder(crypto interfaces.CryptoProvider, store interfaces.ContextStore, log *slog.Logger) *Builder {
	return &Builder{crypto: crypto, store: store, log: log}
}

// Build signs payload for dev and returns the encoded envelope.
// If the context cannot be persisted, its chain value is restored and nothing
// should be sent.
func (b *Builder) Build(ctx context.Context, dev *interfaces.DeviceContext, payloadType uint8, payload []byte) (*Envelope, []byte, error) {
	env := &Envelope{
		Version:           VersionChained,
		UUID:              dev.UUID,
		PreviousSignature: dev.PreviousSignature,
		PayloadType:       payloadType,
		Payload:           payload,
	}
	if err := env.Sign(b.crypto, dev.PrivateKey); err != nil {
		return nil, nil, err
	}

	data, err := env.Encode()
	if err != nil {
		return nil, nil, fmt.Errorf("could not encode envelope: %w", err)
	}

	previous := dev.PreviousSignature
	dev.PreviousSignature = env.Signature
	if err := b.store.Store(ctx, dev); err != nil {
		dev.PreviousSignature = previous
		return nil, nil, fmt.Errorf("could not persist chain value: %w", err)
	}

	b.log.Debug("built envelope",
		slog.String("short_name", dev.ShortName.String()),
		slog.String("uuid", dev.UUID.String()),
		slog.Int("size", len(data)))

	return env, data, nil
}
