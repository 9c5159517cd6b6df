// Package netx extracts client addressing details from transport metadata.
package netx

import (
	"net"
	"strings"
)

// HostOnly strips the port from a host:port pair. Anything that does not
// parse is returned unchanged.
func HostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// ClientIP prefers the first valid entry of an X-Forwarded-For value and falls
// back to the peer address.
func ClientIP(peer net.Addr, forwardedFor string) string {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	if peer == nil {
		return ""
	}
	return HostOnly(peer.String())
}
