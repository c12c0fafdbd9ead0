package mesh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// mDNS constants.
const (
	// ServiceType is the DNS-SD service type of a gateway.
	ServiceType = "_lnproxy-gw._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultDiscoveryTimeout bounds DiscoverGateway.
	DefaultDiscoveryTimeout = 5 * time.Second

	// txtVersion is published in the TXT record.
	txtVersion = "v=1"
)

// ErrNoGateway indicates discovery found no gateway in time.
var ErrNoGateway = errors.New("no gateway found")

// Advertise registers a gateway service on all interfaces.
// Call Shutdown on the result to withdraw it.
func Advertise(instance string, port int) (*zeroconf.Server, error) {
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, []string{txtVersion}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register gateway service: %w", err)
	}
	return server, nil
}

// DiscoverGateway browses for a gateway and returns the first dialable
// host:port. A zero timeout uses DefaultDiscoveryTimeout.
func DiscoverGateway(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoGateway
			}
			if addr, ok := entryAddress(entry); ok {
				return addr, nil
			}
		case <-removed:
		case <-ctx.Done():
			return "", ErrNoGateway
		}
	}
}

// entryAddress picks a dialable address from a service entry, preferring IPv4.
func entryAddress(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port <= 0 {
		return "", false
	}
	port := strconv.Itoa(entry.Port)
	switch {
	case len(entry.AddrIPv4) > 0:
		return net.JoinHostPort(entry.AddrIPv4[0].String(), port), true
	case len(entry.AddrIPv6) > 0:
		return net.JoinHostPort(entry.AddrIPv6[0].String(), port), true
	case entry.HostName != "":
		return net.JoinHostPort(entry.HostName, port), true
	default:
		return "", false
	}
}
