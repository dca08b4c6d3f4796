package middleware

import (
	"context"
	"net/http"
	"strings"

	"medianest/backend/internal/apperr"
	identitydomain "medianest/backend/internal/identity/domain"
	"medianest/backend/internal/server/respond"
	sessiondomain "medianest/backend/internal/session/domain"
)

// SessionCookieName is the cookie the browser client stores the session
// token in; the Authorization header takes precedence when both are present.
const SessionCookieName = "mn_session"

// SessionValidator checks a presented token against live server-side state.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*identitydomain.Identity, *sessiondomain.Session, error)
}

// RequireSession rejects requests without a valid session and stores the
// resolved identity on the request context.
func RequireSession(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				respond.Error(w, apperr.Unauthorized("missing session token"))
				return
			}
			identity, session, err := sessions.ValidateSession(r.Context(), token)
			if err != nil {
				respond.Error(w, err)
				return
			}
			ctx := WithIdentity(r.Context(), identity.ID, string(identity.Role), session.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects authenticated requests whose identity is not an
// admin. Must run inside RequireSession.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := GetRole(r.Context())
		if !ok || role != string(identitydomain.RoleAdmin) {
			respond.Error(w, apperr.Unauthorized("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest extracts the session token from the Authorization header
// or, failing that, the session cookie.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}
