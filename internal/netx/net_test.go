package netx

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostOnly(t *testing.T) {
	assert.Equal(t, "10.0.0.1", HostOnly("10.0.0.1:5555"))
	assert.Equal(t, "::1", HostOnly("[::1]:443"))
	assert.Equal(t, "bufconn", HostOnly("bufconn"))
}

func TestClientIP(t *testing.T) {
	peer := &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 41000}

	tests := []struct {
		name      string
		peer      net.Addr
		forwarded string
		want      string
	}{
		{"peer only", peer, "", "192.0.2.10"},
		{"forwarded wins", peer, "203.0.113.5, 10.0.0.1", "203.0.113.5"},
		{"garbage forwarded ignored", peer, "not-an-ip", "192.0.2.10"},
		{"no peer", nil, "", ""},
		{"ipv6 forwarded", nil, " 2001:db8::1 ", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientIP(tt.peer, tt.forwarded))
		})
	}
}
