package cryptoutils

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
)

// GatewayID returns the gateway identifier used as the parent of every device
// UUID. A configured value must parse as a UUID; otherwise the identifier is
// derived from the first non-loopback hardware address of the host.
func GatewayID(configured string) (uuid.UUID, error) {
	if configured != "" {
		id, err := uuid.Parse(configured)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid gateway id %q: %w", configured, err)
		}
		return id, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to list network interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return GatewayIDFromHardwareAddr(iface.HardwareAddr), nil
	}

	return uuid.Nil, errors.New("no hardware address available, a gateway id must be configured")
}

// GatewayIDFromHardwareAddr derives a stable gateway identifier from a MAC address.
func GatewayIDFromHardwareAddr(mac net.HardwareAddr) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, mac)
}
