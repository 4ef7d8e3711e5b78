package device

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPExtractor resolves the client address of a request. Forwarding headers are read
// only when the direct peer is a trusted proxy.
type IPExtractor struct {
	trusted []netip.Prefix
}

// NewIPExtractor parses trusted proxy addresses or CIDR ranges. With none, only
// RemoteAddr is used.
func NewIPExtractor(trustedProxies []string) (*IPExtractor, error) {
	e := &IPExtractor{}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to parse trusted proxy %q: %w", raw, err)
			}
			e.trusted = append(e.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		e.trusted = append(e.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return e, nil
}

func (e *IPExtractor) isTrusted(ip string) bool {
	if e == nil || len(e.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range e.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the peer address, or when the peer is a trusted proxy, the nearest
// untrusted hop in X-Forwarded-For (then X-Real-IP).
func (e *IPExtractor) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !e.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !e.isTrusted(hop) || i == 0 {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// ClientIP returns the peer address of r, ignoring forwarding headers.
func ClientIP(r *http.Request) string {
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
