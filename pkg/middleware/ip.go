package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// IPSourceType selects where the client address is read from.
type IPSourceType string

const (
	IPSourceRemoteAddr    IPSourceType = "remote_addr"
	IPSourceXForwardedFor IPSourceType = "x_forwarded_for"
	IPSourceXRealIP       IPSourceType = "x_real_ip"
	IPSourceCustomHeader  IPSourceType = "custom_header"
)

// IPConfig configures client address extraction.
type IPConfig struct {
	Source IPSourceType

	// CustomHeader names the header used with IPSourceCustomHeader.
	CustomHeader string

	// TrustProxy enables header based sources. When false the connection's
	// RemoteAddr is always used.
	TrustProxy bool
}

// DefaultIPConfig reads X-Forwarded-For and trusts proxies.
func DefaultIPConfig() *IPConfig {
	return &IPConfig{Source: IPSourceXForwardedFor, TrustProxy: true}
}

type clientIPKey struct{}

// ClientIP returns the address stored by ClientIPMiddleware, or "".
func ClientIP(r *http.Request) string {
	ip, _ := r.Context().Value(clientIPKey{}).(string)
	return ip
}

// ClientIPMiddleware resolves the client address once per request and stores
// it in the context for ClientIP, rate limiting and logging.
func ClientIPMiddleware(config *IPConfig) Middleware {
	if config == nil {
		config = DefaultIPConfig()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIPKey{}, extractClientIP(r, config))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractClientIP(r *http.Request, config *IPConfig) string {
	var ip string
	if config.TrustProxy {
		switch config.Source {
		case IPSourceRemoteAddr:
		case IPSourceXRealIP:
			ip = r.Header.Get("X-Real-IP")
		case IPSourceCustomHeader:
			if config.CustomHeader != "" {
				ip = r.Header.Get(config.CustomHeader)
			}
		default:
			ip = firstForwarded(r.Header.Get("X-Forwarded-For"))
		}
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = r.RemoteAddr
	}
	return stripPort(ip)
}

// firstForwarded returns the left-most, original client entry.
func firstForwarded(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// stripPort removes a port from host:port and [v6]:port forms. Bare IPv6
// addresses are returned unchanged.
func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}

// requestIP prefers the address resolved by ClientIPMiddleware and falls
// back to RemoteAddr.
func requestIP(r *http.Request) string {
	if ip := ClientIP(r); ip != "" {
		return ip
	}
	return stripPort(r.RemoteAddr)
}
