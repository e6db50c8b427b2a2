package httpx

import (
	"net"
	"net/http"
	"strings"
)

// KeyExtractor pulls a grouping key out of a request, usually for rate
// limiting (client IP, form field, ...).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It honours X-Forwarded-For and X-Real-IP, so only use it behind a proxy
// that overwrites those headers.
func IPKeyExtractor(r *http.Request) string {
	// Check X-Forwarded-For header (comma-separated list)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return RemoteIPKeyExtractor(r)
}

// RemoteIPKeyExtractor uses the socket peer address only.
func RemoteIPKeyExtractor(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ClientIP picks the proxy-aware or the socket-only extractor.
func ClientIP(trustProxy bool) KeyExtractor {
	if trustProxy {
		return IPKeyExtractor
	}
	return RemoteIPKeyExtractor
}
