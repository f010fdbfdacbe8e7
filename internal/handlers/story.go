package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
)

type StartRequest struct {
	SessionID string `json:"session_id"`
}

type ContinueRequest struct {
	SessionID   string                 `json:"session_id"`
	Interaction *narrative.Interaction `json:"interaction,omitempty"`
}

type MoodRequest struct {
	SessionID string `json:"session_id"`
	Mood      string `json:"mood"`
}

type GenreRequest struct {
	SessionID string `json:"session_id"`
	Genre     string `json:"genre"`
}

type ContextResponse struct {
	Success bool               `json:"success"`
	Context *narrative.Summary `json:"context"`
}

type FullStoryResponse struct {
	SessionID string `json:"session_id"`
	Story     string `json:"story"`
}

type StoryHandler struct {
	stories *services.StoryService
	logger  *slog.Logger
}

func NewStoryHandler(stories *services.StoryService, logger *slog.Logger) *StoryHandler {
	return &StoryHandler{
		stories: stories,
		logger:  logger,
	}
}

// ServeHTTP handles story requests
// Routes:
// POST /api/story/start
// POST /api/story/continue
// POST /api/story/mood
// POST /api/story/genre
// GET /api/story/{session_id}?limit=&offset=
// GET /api/story/{session_id}/full
func (h *StoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/story")

	if len(parts) == 1 {
		switch parts[0] {
		case "start":
			h.post(w, r, h.handleStart)
			return
		case "continue":
			h.post(w, r, h.handleContinue)
			return
		case "mood":
			h.post(w, r, h.handleMood)
			return
		case "genre":
			h.post(w, r, h.handleGenre)
			return
		}
	}

	switch {
	case len(parts) == 1:
		h.get(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleRead(w, r, parts[0]) })
	case len(parts) == 2 && parts[1] == "full":
		h.get(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleFull(w, r, parts[0]) })
	default:
		writeError(w, r, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *StoryHandler) post(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger, http.MethodPost)
		return
	}
	next(w, r)
}

func (h *StoryHandler) get(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}
	next(w, r)
}

func (h *StoryHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, r, h.logger, http.StatusBadRequest, "Session ID required")
		return
	}
	result, err := h.stories.StartStory(r.Context(), req.SessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, result)
}

func (h *StoryHandler) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req ContinueRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, r, h.logger, http.StatusBadRequest, "Session ID required")
		return
	}
	result, err := h.stories.ContinueStory(r.Context(), req.SessionID, req.Interaction)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, result)
}

func (h *StoryHandler) handleMood(w http.ResponseWriter, r *http.Request) {
	var req MoodRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.SessionID == "" || req.Mood == "" {
		writeError(w, r, h.logger, http.StatusBadRequest, "Session ID and mood required")
		return
	}
	summary, err := h.stories.SetMood(r.Context(), req.SessionID, req.Mood)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, ContextResponse{Success: true, Context: summary})
}

func (h *StoryHandler) handleGenre(w http.ResponseWriter, r *http.Request) {
	var req GenreRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.SessionID == "" || req.Genre == "" {
		writeError(w, r, h.logger, http.StatusBadRequest, "Session ID and genre required")
		return
	}
	summary, err := h.stories.SetGenre(r.Context(), req.SessionID, req.Genre)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, ContextResponse{Success: true, Context: summary})
}

func (h *StoryHandler) handleRead(w http.ResponseWriter, r *http.Request, sessionID string) {
	limit := queryInt(r, "limit", services.DefaultStoryLimit)
	offset := queryInt(r, "offset", 0)
	page, err := h.stories.GetStory(r.Context(), sessionID, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, page)
}

func (h *StoryHandler) handleFull(w http.ResponseWriter, r *http.Request, sessionID string) {
	text, err := h.stories.FullStory(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, FullStoryResponse{SessionID: sessionID, Story: text})
}
