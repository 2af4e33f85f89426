// Copyright (c) 2021-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"net"
	"strconv"
	"time"

	"github.com/davidgumberg/bitcoin/wire"
)

// NetAddress defines information about a peer on the network.
type NetAddress struct {
	// IP address of the peer.
	IP net.IP

	// Port is the port of the remote peer.
	Port uint16

	// Timestamp is the last time the address was seen.
	Timestamp time.Time

	// Services represents the service flags supported by this network
	// address.
	Services wire.ServiceFlag
}

// NewNetAddressIPPort creates a new network address using the provided
// IP, port, and service flags.  The timestamp is set to the current
// time.
func NewNetAddressIPPort(ip net.IP, port uint16, services wire.ServiceFlag) *NetAddress {
	return &NetAddress{
		IP:        ip,
		Port:      port,
		Services:  services,
		Timestamp: time.Unix(time.Now().Unix(), 0),
	}
}

// NewNetAddressTimestamp creates a new network address using the
// provided timestamp, IP, port, and service flags.
func NewNetAddressTimestamp(timestamp time.Time, ip net.IP, port uint16, services wire.ServiceFlag) *NetAddress {
	// Limit the timestamp to one second precision since the protocol
	// doesn't support better.
	return &NetAddress{
		IP:        ip,
		Port:      port,
		Services:  services,
		Timestamp: time.Unix(timestamp.Unix(), 0),
	}
}

// Key returns a string that can be used to uniquely represent the
// network address and includes the port.
func (netAddr *NetAddress) Key() string {
	portString := strconv.FormatUint(uint64(netAddr.Port), 10)
	return net.JoinHostPort(netAddr.IP.String(), portString)
}

// String returns a human-readable string for the network address.
// This is equivalent to calling Key, but is provided so the type can
// be used as a fmt.Stringer.
func (netAddr *NetAddress) String() string {
	return netAddr.Key()
}

// Clone creates a shallow copy of the provided network address.
func (netAddr *NetAddress) Clone() *NetAddress {
	naCopy := *netAddr
	return &naCopy
}

// AddTimestamp adds the provided timestamp to the network address.
func (netAddr *NetAddress) AddTimestamp(timestamp time.Time) {
	netAddr.Timestamp = timestamp
}

// IsRoutable returns a boolean indicating whether the network address
// is routable.
func (netAddr *NetAddress) IsRoutable() bool {
	return IsRoutable(netAddr.IP)
}

var (
	// rfc1918Nets specifies the IPv4 private address blocks as defined
	// by RFC1918 (10.0.0.0/8, 172.16.0.0/12, and 192.168.0.0/16).
	rfc1918Nets = []net.IPNet{
		ipNet("10.0.0.0", 8, 32),
		ipNet("172.16.0.0", 12, 32),
		ipNet("192.168.0.0", 16, 32),
	}

	// rfc4193Net specifies the IPv6 unique local address block as
	// defined by RFC4193 (FC00::/7).
	rfc4193Net = ipNet("FC00::", 7, 128)
)

// ipNet returns a net.IPNet struct given the passed IP address string,
// number of one bits to include at the start of the mask, and the
// total number of bits for the mask.
func ipNet(ip string, ones, bits int) net.IPNet {
	return net.IPNet{IP: net.ParseIP(ip), Mask: net.CIDRMask(ones, bits)}
}

// isRFC1918 returns whether or not the passed address is part of the
// IPv4 private network address space as defined by RFC1918.
func isRFC1918(netIP net.IP) bool {
	for _, rfc := range rfc1918Nets {
		if rfc.Contains(netIP) {
			return true
		}
	}
	return false
}

// isRFC4193 returns whether or not the passed address is part of the
// IPv6 unique local address space as defined by RFC4193.
func isRFC4193(netIP net.IP) bool {
	return rfc4193Net.Contains(netIP)
}

// isValid returns whether or not the passed address is valid.  The
// address is considered invalid when it is either a zero or all bits
// set address.
func isValid(netIP net.IP) bool {
	// IsUnspecified returns if address is 0, so only all bits set needs
	// to be explicitly checked.
	return netIP != nil && !(netIP.IsUnspecified() ||
		netIP.Equal(net.IPv4bcast))
}

// IsRoutable returns whether or not the passed address is routable
// over the public internet.  This is true as long as the address is
// valid and is not in any reserved ranges.
func IsRoutable(netIP net.IP) bool {
	return isValid(netIP) && !(netIP.IsLoopback() ||
		netIP.IsLinkLocalUnicast() || netIP.IsLinkLocalMulticast() ||
		isRFC1918(netIP) || isRFC4193(netIP))
}
