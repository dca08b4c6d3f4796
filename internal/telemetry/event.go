// Package telemetry emits security events (logins, revocations, token
// reuse) to the configured backends: OTel logs and Kafka. Emission is
// best-effort and asynchronous; it never blocks or fails a request.
package telemetry

import (
	"context"
	"encoding/json"
	"time"
)

// Event is one security event as shipped to the telemetry backends.
type Event struct {
	IdentityID string          `json:"identityId,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
	EventType  string          `json:"eventType"`
	Source     string          `json:"source"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// EventEmitter emits security events (e.g. to OTel Logs or Kafka).
// Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// MultiEmitter fans one event out to several emitters. Emit returns the
// first error but still tries every emitter.
type MultiEmitter []EventEmitter

func (m MultiEmitter) Emit(ctx context.Context, event *Event) error {
	var first error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
