package middleware

import (
	"context"
	"net/http"
)

var clientIPKey = contextKey{"client_ip"}

// RealIP stores the resolved client IP on the request context so code
// further down (audit logging in particular) can read it without touching
// the request.
func RealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPKey, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP returns the client IP recorded by RealIP, or "".
func GetClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}
