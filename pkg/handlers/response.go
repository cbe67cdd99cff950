package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/logging"
)

// OKResponse is the body of mutations that return no resource.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusFor maps an error kind to its HTTP status. ErrMissingField is
// checked before ErrValidation because it wraps it.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrMissingField):
		return http.StatusUnprocessableEntity, "missing_field"
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusBadRequest, "conflict"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// WriteServiceError translates a service error into a JSON error response.
// Unknown errors are logged and answered with a generic 500.
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger, op string) {
	status, fallback := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("op", op),
			zap.String("error", logging.SanitizeError(err)))
		message = "Internal server error"
	}
	if err := ErrorResponse(w, status, apperrors.CodeOf(err, fallback), message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// clientIP returns the caller address, preferring the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
