package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trust-scanner/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error: types.ServiceError{Code: code, Message: message},
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeQuotaExceeded = "QUOTA_EXCEEDED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondServiceError maps repository errors to HTTP responses.
func respondServiceError(w http.ResponseWriter, err error) {
	var serviceErr *types.ServiceError
	if errors.As(err, &serviceErr) {
		switch serviceErr.Code {
		case "INVALID_ADDRESS_FORMAT":
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, serviceErr.Message)
		case "FEEDBACK_NOT_PARTICIPANT":
			respondError(w, http.StatusForbidden, serviceErr.Code, serviceErr.Message)
		default:
			respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred")
		}
		return
	}
	respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred")
}
