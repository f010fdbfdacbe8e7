package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/infinite-story/internal/services"
)

// InteractionsHandler serves a session's interaction history.
// GET /api/interactions/{session_id}?limit=10
type InteractionsHandler struct {
	stories *services.StoryService
	logger  *slog.Logger
}

func NewInteractionsHandler(stories *services.StoryService, logger *slog.Logger) *InteractionsHandler {
	return &InteractionsHandler{
		stories: stories,
		logger:  logger,
	}
}

func (h *InteractionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}
	parts := pathParts(r.URL.Path, "/api/interactions")
	if len(parts) != 1 {
		writeError(w, r, h.logger, http.StatusNotFound, "Not found")
		return
	}

	history, err := h.stories.Interactions(r.Context(), parts[0], queryInt(r, "limit", services.DefaultInteractionLimit))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, history)
}
