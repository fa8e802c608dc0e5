// Package main (cmd/admin) implements the admin client for a running gateway.
//
// Commands:
//
//	status                - Show token validity and pipeline counters
//	generate-admin        - Generate a new ed25519 admin key pair
//	generate-admin-config - Create admins.json from admin public keys
//	set-token             - Replace the registration token
//	ensure-ready          - Provision a sensor identity ahead of its first reading
//	submit-reading        - Queue a reading for anchoring
//
// Every command except status signs its request with the admin private key.
// The gateway accepts the request only if the key is listed in the file passed
// to its --admin-keys-file flag.
//
// Example workflow:
//
//  1. Generate an admin key pair:
//     admin generate-admin --admin-privkey-file=admin1-private.hex --admin-pubkey-file=admin1-public.hex
//
//  2. Create the admin configuration and start the gateway with it:
//     admin generate-admin-config --admin-pubkey-files=admin1-public.hex
//     gateway --admin-keys-file=admins.json
//
//  3. Install a fresh registration token:
//     admin set-token --token-file=token.jwt
//
//  4. Provision a sensor and anchor a reading:
//     admin ensure-ready --sensor=test_alpha
//     admin submit-reading --sensor=test_alpha --value=21 --value=45
package main
