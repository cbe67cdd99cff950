package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies. Questionnaires carry signature PNGs as data URLs.
const maxBodyBytes = 8 << 20

// ParseQuestionnaireID extracts and validates the questionnaire ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: id
func ParseQuestionnaireID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_questionnaire_id", "Invalid questionnaire ID format", logger)
}

// ParseUserID extracts and validates the user ID from the request path.
// Expects path parameter: id
func ParseUserID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_user_id", "Invalid user ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes a JSON request body into dst. On failure it writes a
// 400 invalid_request response and returns false. An empty body is accepted
// when allowEmpty is set, leaving dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool, logger *zap.Logger) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	logger.Debug("Invalid request body", zap.String("path", r.URL.Path), zap.Error(err))
	if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
	return false
}
