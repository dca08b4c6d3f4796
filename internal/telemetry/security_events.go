package telemetry

import (
	"context"
	"encoding/json"
	"time"
)

// SecurityEventLogger adapts the audit-event shape onto the telemetry
// pipeline, so every security event hits the external backends alongside
// the database audit trail.
type SecurityEventLogger struct {
	emitter EventEmitter
}

func NewSecurityEventLogger(emitter EventEmitter) *SecurityEventLogger {
	return &SecurityEventLogger{emitter: emitter}
}

// LogEvent ships the event asynchronously; it never blocks the caller.
func (l *SecurityEventLogger) LogEvent(ctx context.Context, identityID, action, resource, metadata string) {
	if l == nil || l.emitter == nil {
		return
	}
	var raw json.RawMessage
	if metadata != "" && json.Valid([]byte(metadata)) {
		raw = json.RawMessage(metadata)
	}
	EmitAsync(l.emitter, ctx, &Event{
		IdentityID: identityID,
		EventType:  action,
		Source:     resource,
		Metadata:   raw,
		CreatedAt:  time.Now().UTC(),
	})
}
