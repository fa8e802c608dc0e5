// Package main (cmd/gateway) runs the sensor anchoring gateway.
//
// The gateway keeps one identity per sensor, provisions it against the
// backend on first use and anchors every reading as a signed envelope chained
// to the previous one. Configuration is read from a YAML file; flags set on
// the command line take precedence.
//
// Example:
//
//	gateway --config=/etc/sensor-anchoring-gateway/config.yaml \
//	  --token-file=/run/secrets/registration-token \
//	  --store=file:///var/lib/sensor-anchoring-gateway/contexts \
//	  --admin-keys-file=/etc/sensor-anchoring-gateway/admins.json
//
// The status API listens on --listen-addr, Prometheus metrics on --metrics-addr.
package main
