// Package handler exposes media browsing and requests over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/mediabroker"
	mediasvc "medianest/backend/internal/media/service"
	"medianest/backend/internal/server/respond"
)

type Handler struct {
	media *mediasvc.MediaService
}

func NewHandler(media *mediasvc.MediaService) *Handler {
	return &Handler{media: media}
}

type requestListResponse struct {
	Requests []mediabroker.MediaRequest `json:"requests"`
	Degraded bool                       `json:"degraded"`
}

// ListRequests handles GET /api/v1/media/requests.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.media.ListRequests(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	if list.Requests == nil {
		list.Requests = []mediabroker.MediaRequest{}
	}
	respond.JSON(w, http.StatusOK, requestListResponse{Requests: list.Requests, Degraded: list.Degraded})
}

type submitRequest struct {
	MediaType string `json:"media_type"`
	MediaID   int64  `json:"media_id"`
}

// SubmitRequest handles POST /api/v1/media/requests.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, apperr.Invalid("malformed request body"))
		return
	}
	created, err := h.media.SubmitRequest(r.Context(), req.MediaType, req.MediaID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, created)
}

type searchResponse struct {
	Results  []mediabroker.SearchResult `json:"results"`
	Degraded bool                       `json:"degraded"`
}

// Search handles GET /api/v1/media/search?q=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	results, err := h.media.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, searchResponse{Results: results.Results, Degraded: results.Degraded})
}
