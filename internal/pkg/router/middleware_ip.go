package router

import (
	"net"
	"net/http"
	"strings"
)

// middlewareIP rewrites RemoteAddr with the client address reported by the
// proxy layer so handlers and logs see the real caller.
func middlewareIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := clientIP(r); ip != "" {
			r.RemoteAddr = ip
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP picks the first populated proxy header and validates it, falling
// back to the socket peer when the header value does not parse.
func clientIP(r *http.Request) string {
	candidate := r.Header.Get("True-Client-IP")
	if candidate == "" {
		candidate = r.Header.Get("X-Real-IP")
	}
	if candidate == "" {
		candidate, _, _ = strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	}

	if net.ParseIP(candidate) != nil {
		return candidate
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(host) != nil {
		return host
	}

	return ""
}
