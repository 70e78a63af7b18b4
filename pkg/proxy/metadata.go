package proxy

import (
	"net"
	"net/http"
	"strings"
)

// Proxy headers consulted by ClientIP when trusted.
const (
	ForwardedForHeader = "X-Forwarded-For"
	RealIPHeader       = "X-Real-IP"
)

// ClientIP returns the caller's IP address. With trustProxy the left-most
// X-Forwarded-For entry, then X-Real-IP, take precedence over the socket
// address.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get(ForwardedForHeader); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get(RealIPHeader)); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
