package http

import (
	"net/http"
	"strings"
)

// UnknownClient is the identifier used when no forwarding header names the
// client. All such clients share one rate-limit bucket, a deliberate
// coarsening for requests that arrive without proxy metadata.
const UnknownClient = "unknown"

// ResolveClientIP derives the stable client identifier used as the rate
// limiter key. Precedence is fixed and load-bearing behind proxies:
//
//  1. first comma-separated value of X-Forwarded-For, trimmed
//  2. X-Real-IP
//  3. the literal "unknown"
func ResolveClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if i := strings.Index(xff, ","); i >= 0 {
			first = xff[:i]
		}
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return UnknownClient
}
