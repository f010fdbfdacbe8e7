package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jwebster45206/infinite-story/internal/middleware"
	"github.com/jwebster45206/infinite-story/internal/services"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		middleware.LoggerFrom(r.Context(), logger).Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, msg string) {
	writeJSON(w, r, logger, status, ErrorResponse{Error: msg})
}

// writeServiceError maps a StoryService error to its HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	log := middleware.LoggerFrom(r.Context(), logger)
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		writeError(w, r, logger, http.StatusNotFound, "Invalid session")
	case errors.Is(err, services.ErrNoActiveStory):
		writeError(w, r, logger, http.StatusNotFound, "No active story")
	case errors.Is(err, services.ErrMergeRequestNotFound):
		writeError(w, r, logger, http.StatusNotFound, "Merge request not found")
	case errors.Is(err, services.ErrSegmentNotFound):
		writeError(w, r, logger, http.StatusNotFound, "Source segment not found")
	case errors.Is(err, services.ErrInvalidMood):
		writeError(w, r, logger, http.StatusBadRequest, "Invalid mood")
	case errors.Is(err, services.ErrInvalidGenre):
		writeError(w, r, logger, http.StatusBadRequest, "Invalid genre")
	case errors.Is(err, services.ErrNoStoryToMerge):
		writeError(w, r, logger, http.StatusBadRequest, "No story to merge")
	case errors.Is(err, services.ErrMergeRequestResolved):
		writeError(w, r, logger, http.StatusConflict, "Merge request already resolved")
	case errors.Is(err, services.ErrSessionBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, r, logger, http.StatusServiceUnavailable, "Session is busy, try again")
	default:
		log.Error("Story service error", "error", err, "path", r.URL.Path)
		writeError(w, r, logger, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeBody reads a JSON body into v. On failure it writes a 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.LoggerFrom(r.Context(), logger).Warn("Invalid request body", "error", err)
		writeError(w, r, logger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// pathParts splits the path after prefix into its non-empty segments.
func pathParts(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// queryInt reads a non-negative integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, logger *slog.Logger, allowed ...string) {
	middleware.LoggerFrom(r.Context(), logger).Warn("Method not allowed", "method", r.Method, "path", r.URL.Path)
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: "+strings.Join(allowed, ", "))
}
