package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeUnauthorized     = "unauthorised"
	ErrCodeForbidden        = "forbidden"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "unavailable"
	ErrCodeCloudAuth        = "cloud_auth_failed"
	ErrCodeCloudUnreachable = "cloud_unreachable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeControllerError maps controller and cloud errors onto HTTP responses.
// Vendor auth failures answer 502, not 401.
func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, litterbox.ErrUnknownEntity),
		errors.Is(err, litterbox.ErrUnknownService):
		writeNotFound(w, err.Error())
	case errors.Is(err, litterbox.ErrInvalidAction),
		errors.Is(err, litterbox.ErrUnknownProperty):
		writeBadRequest(w, err.Error())
	case errors.Is(err, cloud.ErrAuth):
		writeError(w, http.StatusBadGateway, ErrCodeCloudAuth, err.Error())
	case errors.Is(err, cloud.ErrConnection):
		writeError(w, http.StatusBadGateway, ErrCodeCloudUnreachable, err.Error())
	case errors.Is(err, litterbox.ErrDecode):
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
	case errors.Is(err, litterbox.ErrNoSnapshot):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
