// Package server assembles the HTTP API: route table, middleware chain, and
// the endpoint-class rate limits.
package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"medianest/backend/internal/config"
	healthhandler "medianest/backend/internal/health/handler"
	identityhandler "medianest/backend/internal/identity/handler"
	mediahandler "medianest/backend/internal/media/handler"
	pinhandler "medianest/backend/internal/pin/handler"
	"medianest/backend/internal/ratelimit"
	"medianest/backend/internal/server/middleware"
	sessionhandler "medianest/backend/internal/session/handler"
	statushandler "medianest/backend/internal/status/handler"
)


// Deps holds the handlers and cross-cutting pieces the router wires
// together. All fields are required.
type Deps struct {
	Identity *identityhandler.Handler
	Pin      *pinhandler.Handler
	Session  *sessionhandler.Handler
	Status   *statushandler.Handler
	Media    *mediahandler.Handler
	Health   *healthhandler.Handler

	Limiter  *ratelimit.Limiter
	Sessions middleware.SessionValidator
}

// NewRouter builds the route table.
//
// Route → handler mapping:
//   - /api/v1/auth/*        → identity, pin, and session handlers
//   - /api/v1/status[, /ws] → status handler
//   - /api/v1/media/*       → media handler
//   - /healthz              → health handler
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging, middleware.SecurityHeaders, middleware.RealIP)

	r.HandleFunc("/healthz", deps.Health.Check).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	requireSession := middleware.RequireSession(deps.Sessions)
	limitAuth := middleware.RateLimit(deps.Limiter, config.EndpointClassAuth)
	limitGeneral := middleware.RateLimit(deps.Limiter, config.EndpointClassGeneral)
	limitExternal := middleware.RateLimit(deps.Limiter, config.EndpointClassExternal)

	// Anonymous auth endpoints: the caller has no session yet, so limits key
	// on client IP.
	anon := api.PathPrefix("/auth").Subrouter()
	anon.Use(limitAuth)
	anon.HandleFunc("/login", deps.Identity.Login).Methods(http.MethodPost)
	anon.HandleFunc("/link/start", deps.Pin.StartLink).Methods(http.MethodPost)
	anon.HandleFunc("/link/status/{pinId}", deps.Pin.Status).Methods(http.MethodGet)
	anon.HandleFunc("/link/consume", deps.Pin.Consume).Methods(http.MethodPost)
	anon.HandleFunc("/remember/redeem", deps.Session.RedeemRemember).Methods(http.MethodPost)

	// Session-bound auth endpoints.
	authed := api.PathPrefix("/auth").Subrouter()
	authed.Use(requireSession, limitAuth)
	authed.HandleFunc("/logout", deps.Session.Logout).Methods(http.MethodPost)
	authed.HandleFunc("/logout/all", deps.Session.LogoutAll).Methods(http.MethodPost)
	authed.HandleFunc("/me", deps.Identity.Me).Methods(http.MethodGet)
	authed.Handle("/register",
		middleware.RequireAdmin(http.HandlerFunc(deps.Identity.Register))).Methods(http.MethodPost)

	status := api.PathPrefix("/status").Subrouter()
	status.Use(requireSession)
	status.Handle("", limitGeneral(http.HandlerFunc(deps.Status.List))).Methods(http.MethodGet)
	// No rate limit on the websocket route; one upgrade holds the connection.
	status.HandleFunc("/ws", deps.Status.Stream).Methods(http.MethodGet)

	media := api.PathPrefix("/media").Subrouter()
	media.Use(requireSession, limitExternal)
	media.HandleFunc("/requests", deps.Media.ListRequests).Methods(http.MethodGet)
	media.HandleFunc("/requests", deps.Media.SubmitRequest).Methods(http.MethodPost)
	media.HandleFunc("/search", deps.Media.Search).Methods(http.MethodGet)

	return r
}
