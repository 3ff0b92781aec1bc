// Package discovery announces and browses peerchannel signaling endpoints
// over mDNS so peers on the same network find each other without typed
// addresses.
package discovery

import (
	"context"
	"net"
)

const (
	DefaultServiceType = "_peerchannel._tcp"
	DefaultDomain      = "local"
)

// ServiceInfo identifies one announced signaling endpoint.
type ServiceInfo struct {
	Name   string // instance name, usually the peer ID
	Type   string // service type, e.g. "_peerchannel._tcp"
	Domain string // domain, e.g. "local"
	Addr   net.IP
	Port   int
}

// DiscoveryResult carries a snapshot of known services or a browse error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

// Adapter abstracts the discovery backend.
type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, serviceType string) <-chan DiscoveryResult
}
