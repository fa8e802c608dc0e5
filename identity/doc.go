// Package identity implements the identity and key lifecycle of the devices
// attached to a gateway.
//
// Manager.EnsureReady takes a raw sensor identifier and drives the device
// context through
//
//	Unresolved -> [Bootstrapping ->] Loaded -> IdRegistered -> KeysRegistered -> Ready
//
// or into Failed(reason). Each step after bootstrap persists its completion
// flag, so a failed call is retried by calling EnsureReady again on a later
// cycle. Bootstrap is all or nothing: a context that could not be fully
// persisted is removed from the store before EnsureReady returns.
//
// Calls for the same short name are serialized by a per-name lock, calls for
// different names run concurrently.
package identity
