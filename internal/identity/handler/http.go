// Package handler exposes local credential auth over HTTP: password login
// and admin-only registration.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/identity/domain"
	identitysvc "medianest/backend/internal/identity/service"
	"medianest/backend/internal/server/middleware"
	"medianest/backend/internal/server/respond"
	sessiondomain "medianest/backend/internal/session/domain"
)

// SessionIssuer issues sessions and remember tokens for logged-in identities.
type SessionIssuer interface {
	IssueSession(ctx context.Context, identity *domain.Identity, deviceFingerprint, ip string) (string, *sessiondomain.Session, error)
	IssueRememberToken(ctx context.Context, identityID string) (string, error)
}

type Handler struct {
	identities *identitysvc.IdentityService
	sessions   SessionIssuer
}

func NewHandler(identities *identitysvc.IdentityService, sessions SessionIssuer) *Handler {
	return &Handler{identities: identities, sessions: sessions}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type identityBody struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
}

type sessionResponse struct {
	Token         string       `json:"token"`
	ExpiresAt     time.Time    `json:"expires_at"`
	Identity      identityBody `json:"identity"`
	RememberToken string       `json:"remember_token,omitempty"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, apperr.Invalid("malformed request body"))
		return
	}

	identity, err := h.identities.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respond.Error(w, err)
		return
	}

	ip := middleware.GetClientIP(r.Context())
	token, session, err := h.sessions.IssueSession(r.Context(), identity, r.UserAgent(), ip)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := sessionResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		Identity:  toIdentityBody(identity),
	}
	if req.Remember {
		if rt, err := h.sessions.IssueRememberToken(r.Context(), identity.ID); err == nil {
			resp.RememberToken = rt
		}
	}

	SetSessionCookie(w, token, session.ExpiresAt)
	respond.JSON(w, http.StatusOK, resp)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register handles POST /api/v1/auth/register. Routed behind RequireAdmin.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, apperr.Invalid("malformed request body"))
		return
	}

	identity, err := h.identities.Register(r.Context(), req.Username, req.Email, req.Password, domain.Role(req.Role))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, toIdentityBody(identity))
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r.Context())
	if !ok {
		respond.Error(w, apperr.Unauthorized("missing session"))
		return
	}
	identity, err := h.identities.Get(r.Context(), identityID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toIdentityBody(identity))
}

func toIdentityBody(i *domain.Identity) identityBody {
	return identityBody{
		ID:          i.ID,
		Username:    i.Username,
		Email:       i.Email,
		DisplayName: i.DisplayName,
		Role:        string(i.Role),
	}
}

// SetSessionCookie mirrors the issued token into the browser cookie.
func SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the browser cookie on logout.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
