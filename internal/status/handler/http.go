// Package handler serves service status to clients, as a plain JSON poll
// and as a websocket push feed. Both read the same snapshot store, so a
// client that falls back from websocket to polling sees identical state.
package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/resilience"
	"medianest/backend/internal/server/middleware"
	"medianest/backend/internal/server/respond"
	"medianest/backend/internal/status"
)

const (
	writeWait        = 10 * time.Second
	pingInterval     = 30 * time.Second
	pongWait         = pingInterval + writeWait
	revalidateEvery  = 30 * time.Second
	closeGracePeriod = time.Second
)

// SessionChecker re-checks that a session still exists server-side.
type SessionChecker interface {
	SessionAlive(ctx context.Context, sessionID string) bool
}

type Handler struct {
	snapshots   *resilience.SnapshotStore
	broadcaster *status.Broadcaster
	sessions    SessionChecker
	upgrader    websocket.Upgrader
}

func NewHandler(snapshots *resilience.SnapshotStore, broadcaster *status.Broadcaster, sessions SessionChecker) *Handler {
	return &Handler{
		snapshots:   snapshots,
		broadcaster: broadcaster,
		sessions:    sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type statusList struct {
	Services []resilience.Snapshot `json:"services"`
}

// List handles GET /api/v1/status, the polling fallback.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.snapshots.List(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, statusList{Services: snaps})
}

// clientFrame is the only message a client may send: a subscribe frame
// selecting the services it wants updates for. An empty service list widens
// the feed back to everything.
type clientFrame struct {
	Action   string   `json:"action"`
	Services []string `json:"services"`
}

// Stream handles GET /api/v1/status/ws. The session is validated by the
// route middleware at upgrade time and re-checked periodically for the life
// of the connection; a revoked session closes the stream. Clients narrow
// the feed with subscribe frames; until the first one arrives they receive
// every service's updates.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		respond.Error(w, apperr.Unauthorized("missing session"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Printf("status: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	sub := h.broadcaster.Subscribe()
	defer sub.Cancel()

	// Initial full state so the client never starts blank.
	snaps, err := h.snapshots.List(r.Context())
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(statusList{Services: snaps}); err != nil {
			return
		}
	}

	// Reader goroutine: drains for pong handling, notices the peer going
	// away, and applies subscribe frames to the subscription's topic set.
	readerDone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go func() {
		defer close(readerDone)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame clientFrame
			if err := json.Unmarshal(msg, &frame); err != nil {
				continue
			}
			if frame.Action == "subscribe" {
				sub.Select(frame.Services...)
			}
		}
	}()

	pings := time.NewTicker(pingInterval)
	defer pings.Stop()
	revalidate := time.NewTicker(revalidateEvery)
	defer revalidate.Stop()

	for {
		select {
		case snap, open := <-sub.Updates():
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-revalidate.C:
			if !h.sessions.SessionAlive(r.Context(), sessionID) {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session revoked"))
				time.Sleep(closeGracePeriod)
				return
			}
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
