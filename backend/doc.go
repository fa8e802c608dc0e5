// Package backend talks to the remote identity and anchoring services.
//
// # Client
//
// Client implements interfaces.BackendClient over HTTP:
//
//   - POST {base}/api/things      - identity registration (JSON ThingRequest)
//   - POST {base}/api/keys        - initial key registration (JSON KeyRegistration)
//   - POST {base}/api/keys/update - key rotation, counter-signed by the previous key
//   - POST {endpoint}             - anchoring, body is an encoded envelope (application/cbor)
//
// Identity registration answers are categorized:
//
//   - 2xx          RegistrationSuccess
//   - 409 Conflict RegistrationAlreadyRegistered
//   - other status RegistrationRejected
//   - no answer    RegistrationUnavailable
//
// # Key Certificates
//
// A KeyCertificate describes one public key and its validity window. It is
// signed over its deterministic CBOR encoding by the key it describes; updates
// carry a second signature by the key being replaced.
//
// # Reference Backend
//
// Handler is an in-process implementation of the backend API, used by tests and
// by the mock-backend binary. It verifies key certificates and the envelope
// chain of every device, and answers each anchoring request with an envelope
// signed by its own key whose chain value is the request's signature.
//
// # Discovery
//
// ResolveSRV resolves the backend base URL from DNS SRV records.
package backend
