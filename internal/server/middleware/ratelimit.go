package middleware

import (
	"net"
	"net/http"
	"strings"

	"medianest/backend/internal/ratelimit"
	"medianest/backend/internal/server/respond"
)

// RateLimit enforces the named endpoint class's window. The subject is the
// session when one is established, the client IP otherwise.
func RateLimit(limiter *ratelimit.Limiter, class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := GetSessionID(r.Context())
			if !ok {
				subject = "ip:" + clientIP(r)
			}
			if err := limiter.Allow(r.Context(), class, subject); err != nil {
				respond.Error(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, set by the reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
