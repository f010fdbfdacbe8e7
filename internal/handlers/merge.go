package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/pkg/story"
)

type MergeRequestBody struct {
	SessionID       string `json:"session_id"`
	TargetSessionID string `json:"target_session_id"`
}

type MergeDecisionBody struct {
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
}

type MergeRequestResponse struct {
	MergeRequest *story.MergeRequest `json:"merge_request"`
}

type PendingMergesResponse struct {
	Requests []story.MergeRequest `json:"requests"`
}

type MergeHandler struct {
	stories *services.StoryService
	logger  *slog.Logger
}

func NewMergeHandler(stories *services.StoryService, logger *slog.Logger) *MergeHandler {
	return &MergeHandler{
		stories: stories,
		logger:  logger,
	}
}

// ServeHTTP handles merge requests
// Routes:
// POST /api/merge/request
// GET /api/merge/pending/{session_id}
// POST /api/merge/accept
// POST /api/merge/reject
func (h *MergeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/merge")

	switch {
	case len(parts) == 1 && parts[0] == "request":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, h.logger, http.MethodPost)
			return
		}
		h.handleRequest(w, r)

	case len(parts) == 1 && (parts[0] == "accept" || parts[0] == "reject"):
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, h.logger, http.MethodPost)
			return
		}
		h.handleDecision(w, r, parts[0] == "accept")

	case len(parts) == 2 && parts[0] == "pending":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, h.logger, http.MethodGet)
			return
		}
		h.handlePending(w, r, parts[1])

	default:
		writeError(w, r, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *MergeHandler) handleRequest(w http.ResponseWriter, r *http.Request) {
	var body MergeRequestBody
	if !decodeBody(w, r, h.logger, &body) {
		return
	}
	if body.SessionID == "" || body.TargetSessionID == "" {
		writeError(w, r, h.logger, http.StatusBadRequest, "Both session IDs required")
		return
	}
	req, err := h.stories.RequestMerge(r.Context(), body.SessionID, body.TargetSessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, MergeRequestResponse{MergeRequest: req})
}

func (h *MergeHandler) handleDecision(w http.ResponseWriter, r *http.Request, accept bool) {
	var body MergeDecisionBody
	if !decodeBody(w, r, h.logger, &body) {
		return
	}
	if body.SessionID == "" || body.RequestID == "" {
		writeError(w, r, h.logger, http.StatusBadRequest, "Session ID and request ID required")
		return
	}
	requestID, err := uuid.Parse(body.RequestID)
	if err != nil {
		writeError(w, r, h.logger, http.StatusBadRequest, "Invalid request ID format")
		return
	}

	if !accept {
		resolved, err := h.stories.RejectMerge(r.Context(), body.SessionID, requestID)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, r, h.logger, http.StatusOK, MergeRequestResponse{MergeRequest: resolved})
		return
	}

	result, err := h.stories.AcceptMerge(r.Context(), body.SessionID, requestID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, result)
}

func (h *MergeHandler) handlePending(w http.ResponseWriter, r *http.Request, sessionID string) {
	reqs, err := h.stories.PendingMerges(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, PendingMergesResponse{Requests: reqs})
}
