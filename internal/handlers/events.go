package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/infinite-story/internal/services/events"
	"github.com/redis/go-redis/v9"
)

const defaultKeepalive = 30 * time.Second

// Subscriber opens pub/sub subscriptions on session channels.
// *events.Broadcaster implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) *redis.PubSub
}

// EventsHandler handles Server-Sent Events (SSE) for real-time story updates
type EventsHandler struct {
	subscriber Subscriber
	logger     *slog.Logger
	keepalive  time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(subscriber Subscriber, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		subscriber: subscriber,
		logger:     logger,
		keepalive:  defaultKeepalive,
	}
}

// ServeHTTP handles SSE requests for story events
// GET /api/events/{session_id}
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}

	parts := pathParts(r.URL.Path, "/api/events")
	if len(parts) != 1 {
		writeError(w, r, h.logger, http.StatusBadRequest, "Invalid path. Expected /api/events/{session_id}")
		return
	}
	sessionID, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, r, h.logger, http.StatusBadRequest, "Invalid session ID format.")
		return
	}
	sid := sessionID.String()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, h.logger, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	// Subscribe before writing headers so no event published after the
	// client sees "connected" is lost.
	pubsub := h.subscriber.Subscribe(r.Context(), sid)
	defer func() {
		if err := pubsub.Close(); err != nil {
			h.logger.Error("Failed to close pubsub", "error", err)
		}
	}()
	if _, err := pubsub.Receive(r.Context()); err != nil {
		h.logger.Error("Failed to subscribe", "session_id", sid, "error", err)
		writeError(w, r, h.logger, http.StatusServiceUnavailable, "Event stream unavailable")
		return
	}

	h.logger.Info("SSE connection established",
		"session_id", sid,
		"remote_addr", r.RemoteAddr)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	msgChan := pubsub.Channel()

	keepaliveTicker := time.NewTicker(h.keepalive)
	defer keepaliveTicker.Stop()

	h.sendSSE(w, "connected", map[string]any{
		"session_id": sid,
		"message":    "Connected to event stream",
	})

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "session_id", sid)
			return

		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			event, err := events.Decode(msg.Payload)
			if err != nil {
				h.logger.Error("Failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}
			h.sendSSE(w, string(event.Type), event.Data)

		case <-keepaliveTicker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				h.logger.Error("Failed to write keepalive", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// sendSSE sends a Server-Sent Event to the client
func (h *EventsHandler) sendSSE(w http.ResponseWriter, eventType string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		h.logger.Error("Failed to write event type", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", dataJSON); err != nil {
		h.logger.Error("Failed to write event data", "error", err)
		return
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
