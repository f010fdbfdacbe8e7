package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/infinite-story/internal/services"
)

type SessionHandler struct {
	stories *services.StoryService
	logger  *slog.Logger
}

func NewSessionHandler(stories *services.StoryService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		stories: stories,
		logger:  logger,
	}
}

// ServeHTTP handles session requests
// Routes:
// POST /api/session               - Create a session with a fresh engine
// GET /api/session/{session_id}    - Read the user and context summary
// DELETE /api/session/{session_id} - Delete the user, its story and its engine
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/session")

	switch {
	case len(parts) == 0:
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, h.logger, http.MethodPost)
			return
		}
		info, err := h.stories.CreateSession(r.Context())
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, r, h.logger, http.StatusCreated, info)

	case len(parts) == 1:
		sessionID := parts[0]
		switch r.Method {
		case http.MethodGet:
			details, err := h.stories.GetSession(r.Context(), sessionID)
			if err != nil {
				writeServiceError(w, r, h.logger, err)
				return
			}
			writeJSON(w, r, h.logger, http.StatusOK, details)

		case http.MethodDelete:
			if err := h.stories.DeleteSession(r.Context(), sessionID); err != nil {
				writeServiceError(w, r, h.logger, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			methodNotAllowed(w, r, h.logger, http.MethodGet, http.MethodDelete)
		}

	default:
		writeError(w, r, h.logger, http.StatusNotFound, "Not found")
	}
}
