// Package respond holds the JSON response helpers shared by all HTTP
// handlers, including the application-error to status-code mapping.
package respond

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"medianest/backend/internal/apperr"
)

type errorBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// JSON writes v with the given status. Encoding failures are logged, not
// surfaced; headers are already gone by then.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("respond: encode response: %v", err)
	}
}

// Error maps an application error onto an HTTP status and JSON body. Unknown
// errors become an opaque 500.
func Error(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Printf("respond: unhandled error: %v", err)
		JSON(w, http.StatusInternalServerError, errorBody{Error: string(apperr.KindInternal), Message: "internal error"})
		return
	}

	status := statusFor(appErr.Kind)
	body := errorBody{Error: string(appErr.Kind), Message: appErr.Message}
	if appErr.Kind == apperr.KindRateLimited && appErr.RetryAfterSeconds > 0 {
		body.RetryAfterSeconds = appErr.RetryAfterSeconds
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfterSeconds))
	}
	if appErr.Kind == apperr.KindInternal {
		log.Printf("respond: internal error: %v", appErr)
		body.Message = "internal error"
	}
	JSON(w, status, body)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
