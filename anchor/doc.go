// Package anchor connects sensor readings to the anchoring backend.
//
// Producers push SensorReading values into a bounded Queue. A Worker pops them,
// drives the device identity to Ready, builds a chained envelope, sends it and
// classifies and verifies the backend answer.
package anchor
