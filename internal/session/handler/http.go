// Package handler exposes session lifecycle over HTTP: logout and
// remember-token redemption.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/audit"
	identityhandler "medianest/backend/internal/identity/handler"
	"medianest/backend/internal/server/middleware"
	"medianest/backend/internal/server/respond"
	sessionsvc "medianest/backend/internal/session/service"
)

type Handler struct {
	sessions *sessionsvc.SessionService
	auditor  audit.AuditLogger
}

func NewHandler(sessions *sessionsvc.SessionService, auditor audit.AuditLogger) *Handler {
	if auditor == nil {
		auditor = audit.Nop{}
	}
	return &Handler{sessions: sessions, auditor: auditor}
}

// Logout handles POST /api/v1/auth/logout. Routed behind RequireSession;
// revocation is a hard delete, the token is dead on return.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		respond.Error(w, apperr.Unauthorized("missing session"))
		return
	}
	if err := h.sessions.RevokeSession(r.Context(), sessionID); err != nil {
		respond.Error(w, err)
		return
	}
	identityID, _ := middleware.GetIdentityID(r.Context())
	h.auditor.LogEvent(r.Context(), identityID, audit.ActionLogout, "session", "")
	identityhandler.ClearSessionCookie(w)
	respond.JSON(w, http.StatusNoContent, nil)
}

// LogoutAll handles POST /api/v1/auth/logout/all, revoking every session of
// the calling identity.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r.Context())
	if !ok {
		respond.Error(w, apperr.Unauthorized("missing session"))
		return
	}
	if err := h.sessions.RevokeAllSessions(r.Context(), identityID); err != nil {
		respond.Error(w, err)
		return
	}
	h.auditor.LogEvent(r.Context(), identityID, audit.ActionSessionRevoked, "session", `{"scope":"all"}`)
	identityhandler.ClearSessionCookie(w)
	respond.JSON(w, http.StatusNoContent, nil)
}

type redeemRequest struct {
	RememberToken string `json:"remember_token"`
}

type redeemResponse struct {
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
	IdentityID    string    `json:"identity_id"`
	RememberToken string    `json:"remember_token"`
}

// RedeemRemember handles POST /api/v1/auth/remember/redeem. Each remember
// token is single-use; redemption returns a fresh session and a replacement
// token. A replayed token signals theft and is audited.
func (h *Handler) RedeemRemember(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, apperr.Invalid("malformed request body"))
		return
	}
	if req.RememberToken == "" {
		respond.Error(w, apperr.Invalid("remember_token is required"))
		return
	}

	identity, replacement, err := h.sessions.RedeemRememberToken(r.Context(), req.RememberToken)
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			h.auditor.LogEvent(r.Context(), "", audit.ActionRememberReuse, "remember_token", "")
		}
		respond.Error(w, err)
		return
	}

	ip := middleware.GetClientIP(r.Context())
	token, session, err := h.sessions.IssueSession(r.Context(), identity, r.UserAgent(), ip)
	if err != nil {
		respond.Error(w, err)
		return
	}

	h.auditor.LogEvent(r.Context(), identity.ID, audit.ActionRememberRedeemed, "remember_token", "")
	identityhandler.SetSessionCookie(w, token, session.ExpiresAt)
	respond.JSON(w, http.StatusOK, redeemResponse{
		Token:         token,
		ExpiresAt:     session.ExpiresAt,
		IdentityID:    identity.ID,
		RememberToken: replacement,
	})
}
