// Package storage provides the durable device-context store and the key/value
// blob backends it persists into.
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - memory://contexts - in-process map, lost on restart
//   - file:///var/lib/gateway/contexts/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - vault://vault.example.com:8200/secret/gateway?token=... (KV v2)
//
// Several URIs can be combined with StorageBackendFactory.CreateMultiBackend,
// which writes to every available backend and reads from the first one that
// holds the key.
//
// # Device Contexts
//
// ContextStore maps a short name to its DeviceContext. Contexts are encoded as
// deterministic CBOR and optionally sealed with a passphrase (see
// cryptoutils.Seal) before they reach the backend.
//
// Add reserves a slot by writing an empty blob. An empty slot is reported as
// ErrContextNotFound by Load so that a bootstrap interrupted between Add and
// the first Store is retried from scratch on the next attempt.
//
// Usage:
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.StorageBackendFor(location)
//	store, err := storage.NewContextStore(backend, storage.ContextStoreOpts{Passphrase: pass}, logger)
//	dev, err := store.Load(ctx, "test_alpha")
//	if errors.Is(err, interfaces.ErrContextNotFound) {
//	    // Bootstrap
//	}
package storage
