// Package main (cmd/mock-backend) serves an in-memory implementation of the
// identity, key and anchoring services for local testing of the gateway.
//
// The backend signs its responses with an ed25519 key. Pass --key-seed to get
// the same key on every start; the public key to configure on the gateway is
// logged at startup.
package main
