package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []*Event
	err    error
	done   chan struct{}
}

func newCaptureEmitter() *captureEmitter {
	return &captureEmitter{done: make(chan struct{}, 8)}
}

func (c *captureEmitter) Emit(ctx context.Context, event *Event) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	c.done <- struct{}{}
	return c.err
}

func (c *captureEmitter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit did not happen")
	}
}

func (c *captureEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestEmitAsyncDeliversEvent(t *testing.T) {
	emitter := newCaptureEmitter()
	EmitAsync(emitter, context.Background(), &Event{EventType: "login_failure", Source: "session"})
	emitter.wait(t)
	if emitter.count() != 1 {
		t.Fatalf("events = %d, want 1", emitter.count())
	}
}

func TestEmitAsyncNilEmitterAndEvent(t *testing.T) {
	// Must not panic or spawn goroutines.
	EmitAsync(nil, context.Background(), &Event{EventType: "x"})
	emitter := newCaptureEmitter()
	EmitAsync(emitter, context.Background(), nil)
	select {
	case <-emitter.done:
		t.Fatal("emit happened for nil event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitAsyncSurvivesCancelledRequestContext(t *testing.T) {
	emitter := newCaptureEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	EmitAsync(emitter, ctx, &Event{EventType: "logout"})
	emitter.wait(t)
}

func TestMultiEmitterFansOutAndReportsFirstError(t *testing.T) {
	first := newCaptureEmitter()
	first.err = errors.New("backend down")
	second := newCaptureEmitter()

	err := MultiEmitter{first, nil, second}.Emit(context.Background(), &Event{EventType: "register"})
	if err == nil || err.Error() != "backend down" {
		t.Fatalf("err = %v", err)
	}
	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("counts = %d, %d, want 1, 1", first.count(), second.count())
	}
}

func TestSecurityEventLoggerShapesEvent(t *testing.T) {
	emitter := newCaptureEmitter()
	logger := NewSecurityEventLogger(emitter)

	logger.LogEvent(context.Background(), "id-1", "remember_reuse", "remember_token", `{"k":"v"}`)
	emitter.wait(t)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	e := emitter.events[0]
	if e.IdentityID != "id-1" || e.EventType != "remember_reuse" || e.Source != "remember_token" {
		t.Fatalf("event = %+v", e)
	}
	if string(e.Metadata) != `{"k":"v"}` || e.CreatedAt.IsZero() {
		t.Fatalf("metadata/timestamp wrong: %+v", e)
	}
}

func TestSecurityEventLoggerDropsInvalidMetadata(t *testing.T) {
	emitter := newCaptureEmitter()
	logger := NewSecurityEventLogger(emitter)

	logger.LogEvent(context.Background(), "", "logout", "session", "not-json")
	emitter.wait(t)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.events[0].Metadata) != 0 {
		t.Fatalf("metadata = %s, want empty", emitter.events[0].Metadata)
	}
}
