package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"medianest/backend/internal/counterstore"
	"medianest/backend/internal/resilience"
	"medianest/backend/internal/server/middleware"
	"medianest/backend/internal/status"
)

type aliveChecker struct{ alive bool }

func (c *aliveChecker) SessionAlive(ctx context.Context, sessionID string) bool { return c.alive }

type wsFixture struct {
	server      *httptest.Server
	broadcaster *status.Broadcaster
	conn        *websocket.Conn
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	store := counterstore.NewMemoryStore()
	snapshots := resilience.NewSnapshotStore(store, []string{"plex", "mediabroker", "uptime"})
	broadcaster := status.NewBroadcaster()
	snapshots.SetListener(broadcaster.Publish)
	h := NewHandler(snapshots, broadcaster, &aliveChecker{alive: true})

	// Session middleware runs before Stream in the real router; the test
	// injects the same context values directly.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.WithIdentity(r.Context(), "id-1", "user", "sess-1")
		h.Stream(w, r.WithContext(ctx))
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	f := &wsFixture{server: server, broadcaster: broadcaster, conn: conn}

	// First frame is the full state, empty until something is published.
	var initial map[string]any
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if _, ok := initial["services"]; !ok {
		t.Fatalf("initial frame %v has no services list", initial)
	}
	return f
}

func (f *wsFixture) readSnapshot(t *testing.T) resilience.Snapshot {
	t.Helper()
	var snap resilience.Snapshot
	f.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := f.conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return snap
}

func TestStreamDeliversAllServicesByDefault(t *testing.T) {
	f := newWSFixture(t)

	f.broadcaster.Publish(resilience.Snapshot{ServiceName: "mediabroker", Status: resilience.StatusDown})
	if snap := f.readSnapshot(t); snap.ServiceName != "mediabroker" {
		t.Fatalf("got %q, want mediabroker", snap.ServiceName)
	}
	f.broadcaster.Publish(resilience.Snapshot{ServiceName: "plex", Status: resilience.StatusUp})
	if snap := f.readSnapshot(t); snap.ServiceName != "plex" {
		t.Fatalf("got %q, want plex", snap.ServiceName)
	}
}

func TestStreamSubscribeFrameNarrowsFeed(t *testing.T) {
	f := newWSFixture(t)

	if err := f.conn.WriteJSON(clientFrame{Action: "subscribe", Services: []string{"plex"}}); err != nil {
		t.Fatalf("write subscribe frame: %v", err)
	}
	// Reader goroutine applies the frame asynchronously.
	time.Sleep(200 * time.Millisecond)

	f.broadcaster.Publish(resilience.Snapshot{ServiceName: "mediabroker", Status: resilience.StatusDown})
	f.broadcaster.Publish(resilience.Snapshot{ServiceName: "uptime", Status: resilience.StatusDown})
	f.broadcaster.Publish(resilience.Snapshot{ServiceName: "plex", Status: resilience.StatusUp})

	if snap := f.readSnapshot(t); snap.ServiceName != "plex" {
		t.Fatalf("got update for %q after subscribing to plex only", snap.ServiceName)
	}
}

func TestStreamIgnoresMalformedFrames(t *testing.T) {
	f := newWSFixture(t)

	if err := f.conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	f.broadcaster.Publish(resilience.Snapshot{ServiceName: "plex", Status: resilience.StatusUp})
	if snap := f.readSnapshot(t); snap.ServiceName != "plex" {
		t.Fatalf("got %q, want plex", snap.ServiceName)
	}
}
