package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/pkg/story"
)

// maxActiveMinutes caps the window at one year.
const maxActiveMinutes = 365 * 24 * 60

type ActiveUsersResponse struct {
	Users []story.User `json:"users"`
	Count int          `json:"count"`
}

// UsersHandler lists recently active users, the candidates for a merge.
// GET /api/users/active?minutes=5
type UsersHandler struct {
	stories *services.StoryService
	logger  *slog.Logger
}

func NewUsersHandler(stories *services.StoryService, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{
		stories: stories,
		logger:  logger,
	}
}

func (h *UsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}
	if parts := pathParts(r.URL.Path, "/api/users"); len(parts) != 1 || parts[0] != "active" {
		writeError(w, r, h.logger, http.StatusNotFound, "Not found")
		return
	}

	minutes := min(queryInt(r, "minutes", 0), maxActiveMinutes)
	users, err := h.stories.ActiveUsers(r.Context(), time.Duration(minutes)*time.Minute)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, ActiveUsersResponse{Users: users, Count: len(users)})
}
