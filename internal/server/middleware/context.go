package middleware

import "context"

type contextKey struct{ name string }

var (
	identityIDKey = contextKey{"identity_id"}
	roleKey       = contextKey{"role"}
	sessionIDKey  = contextKey{"session_id"}
)

// WithIdentity returns a context with identity_id, role, and session_id set.
// Handlers read these via GetIdentityID, GetRole, GetSessionID.
func WithIdentity(ctx context.Context, identityID, role, sessionID string) context.Context {
	ctx = context.WithValue(ctx, identityIDKey, identityID)
	ctx = context.WithValue(ctx, roleKey, role)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return ctx
}

// GetIdentityID returns the identity_id from context and true if set; otherwise "", false.
func GetIdentityID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(identityIDKey).(string)
	return v, ok
}

// GetRole returns the role from context and true if set; otherwise "", false.
func GetRole(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}
