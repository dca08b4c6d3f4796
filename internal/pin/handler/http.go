// Package handler exposes the account-link flow over HTTP: start a PIN,
// poll for authorization, consume into a session.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/audit"
	identityhandler "medianest/backend/internal/identity/handler"
	pinsvc "medianest/backend/internal/pin/service"
	"medianest/backend/internal/server/middleware"
	"medianest/backend/internal/server/respond"
)

type Handler struct {
	pins    *pinsvc.PinService
	auditor audit.AuditLogger
}

func NewHandler(pins *pinsvc.PinService, auditor audit.AuditLogger) *Handler {
	if auditor == nil {
		auditor = audit.Nop{}
	}
	return &Handler{pins: pins, auditor: auditor}
}

type startLinkResponse struct {
	PinID     string    `json:"pin_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StartLink handles POST /api/v1/auth/link/start.
func (h *Handler) StartLink(w http.ResponseWriter, r *http.Request) {
	result, err := h.pins.StartLink(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, startLinkResponse{
		PinID:     result.PinID,
		Code:      result.Code,
		ExpiresAt: result.ExpiresAt,
	})
}

type statusResponse struct {
	Status string `json:"status"`
	// ExpiresIn is the attempt's remaining lifetime in seconds, omitted once
	// the deadline has passed.
	ExpiresIn int64 `json:"expires_in,omitempty"`
}

// Status handles GET /api/v1/auth/link/status/{pinId}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	pinID := mux.Vars(r)["pinId"]
	status, err := h.pins.PollStatus(r.Context(), pinID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	resp := statusResponse{Status: string(status)}
	if remaining, ok := h.pins.Remaining(r.Context(), pinID); ok {
		resp.ExpiresIn = int64(remaining.Seconds())
	}
	respond.JSON(w, http.StatusOK, resp)
}

type consumeRequest struct {
	PinID    string `json:"pin_id"`
	Remember bool   `json:"remember"`
}

type consumeResponse struct {
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
	IdentityID    string    `json:"identity_id"`
	Username      string    `json:"username"`
	Role          string    `json:"role"`
	RememberToken string    `json:"remember_token,omitempty"`
}

// Consume handles POST /api/v1/auth/link/consume. Exactly one concurrent
// consumer of the same PIN succeeds.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, apperr.Invalid("malformed request body"))
		return
	}
	if req.PinID == "" {
		respond.Error(w, apperr.Invalid("pin_id is required"))
		return
	}

	ip := middleware.GetClientIP(r.Context())
	result, err := h.pins.Consume(r.Context(), req.PinID, r.UserAgent(), ip, req.Remember)
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			h.auditor.LogEvent(r.Context(), "", audit.ActionConsumeConflict, "pin", `{"pin_id":"`+req.PinID+`"}`)
		}
		respond.Error(w, err)
		return
	}

	h.auditor.LogEvent(r.Context(), result.Identity.ID, audit.ActionLinkConsumed, "pin", "")
	identityhandler.SetSessionCookie(w, result.Token, result.Session.ExpiresAt)
	respond.JSON(w, http.StatusOK, consumeResponse{
		Token:         result.Token,
		ExpiresAt:     result.Session.ExpiresAt,
		IdentityID:    result.Identity.ID,
		Username:      result.Identity.Username,
		Role:          string(result.Identity.Role),
		RememberToken: result.RememberToken,
	})
}
