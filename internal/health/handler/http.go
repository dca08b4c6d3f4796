// Package handler implements the liveness/readiness endpoint for load
// balancers and container orchestration.
package handler

import (
	"context"
	"net/http"

	"medianest/backend/internal/server/respond"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a plain function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

type Handler struct {
	db    Pinger
	store Pinger
}

// NewHandler returns a health handler checking the database and the counter
// store. Either pinger may be nil and is then skipped.
func NewHandler(db, store Pinger) *Handler {
	return &Handler{db: db, store: store}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Check handles GET /healthz. Degraded dependencies yield 503 with the
// failing checks named; the body never includes error details.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if h.db != nil {
		checks["database"] = "ok"
		if err := h.db.PingContext(r.Context()); err != nil {
			checks["database"] = "unreachable"
			healthy = false
		}
	}
	if h.store != nil {
		checks["counter_store"] = "ok"
		if err := h.store.PingContext(r.Context()); err != nil {
			checks["counter_store"] = "unreachable"
			healthy = false
		}
	}

	status := http.StatusOK
	resp := healthResponse{Status: "ok", Checks: checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		resp.Status = "degraded"
	}
	respond.JSON(w, status, resp)
}
