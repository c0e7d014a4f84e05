package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseTrustedProxies accepts bare addresses and CIDR ranges.
func ParseTrustedProxies(specs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(specs))
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// RealIP replaces r.RemoteAddr with the forwarded client address, but only
// when the direct peer is one of the trusted proxies. X-Forwarded-For is
// walked from the right and the first hop outside the trusted set wins;
// X-Real-IP is the fallback. Requests from any other peer keep their socket
// address, so clients cannot spoof it with headers.
func RealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if peer, ok := parseAddr(hostOnly(r.RemoteAddr)); ok && isTrusted(trusted, peer) {
				if ip := forwardedFor(r, trusted); ip != "" {
					r.RemoteAddr = ip
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedFor(r *http.Request, trusted []netip.Prefix) string {
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		leftmost := ""
		for i := len(hops) - 1; i >= 0; i-- {
			a, ok := parseAddr(hops[i])
			if !ok {
				// garbage or "unknown" ends the chain we can vouch for
				break
			}
			if !isTrusted(trusted, a) {
				return a.String()
			}
			leftmost = a.String()
		}
		if leftmost != "" {
			return leftmost
		}
	}
	if a, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return a.String()
	}
	return ""
}

func isTrusted(trusted []netip.Prefix, a netip.Addr) bool {
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func parseAddr(s string) (netip.Addr, bool) {
	a, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(s), "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// ClientIP returns the caller's address from r.RemoteAddr, which RealIP has
// already resolved when the request came through a trusted proxy. IPv6
// loopback is reported as 127.0.0.1.
func ClientIP(r *http.Request) string {
	return normalizeIP(hostOnly(r.RemoteAddr))
}

func normalizeIP(ip string) string {
	ip = strings.Trim(ip, "[]")
	if parsed := net.ParseIP(ip); parsed != nil {
		if parsed.IsLoopback() && parsed.To4() == nil {
			return "127.0.0.1"
		}
		return parsed.String()
	}
	return ip
}
