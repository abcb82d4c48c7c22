package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/benvon/habitual/internal/database"
	logpkg "github.com/benvon/habitual/internal/logger"
	"github.com/benvon/habitual/internal/scheduler"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// maxErrorMessageLength bounds messages echoed to clients
const maxErrorMessageLength = 200

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends an error JSON response with a length-bounded, log-safe message
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   logpkg.SanitizeString(message, maxErrorMessageLength),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondServiceError maps domain errors to HTTP statuses. Anything unrecognized is logged and
// answered with a generic 500.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", "Habit not found")
	case errors.Is(err, scheduler.ErrForbidden):
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Habit belongs to another user")
	case errors.Is(err, scheduler.ErrNotToday):
		respondJSONError(w, http.StatusConflict, "Conflict", "Only today's instance can be changed")
	case errors.Is(err, database.ErrVersionConflict):
		respondJSONError(w, http.StatusConflict, "Conflict", "Habit was modified concurrently, retry")
	default:
		logger.Error(op+"_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Request failed")
	}
}

// pathUUID parses the named mux path variable as a UUID
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)[name])
}
