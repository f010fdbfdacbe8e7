package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/internal/services/events"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
	"github.com/jwebster45206/infinite-story/pkg/queue"
	"github.com/redis/go-redis/v9"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client to server events.
const (
	wsJoinStory         = "join_story"
	wsLeaveStory        = "leave_story"
	wsInteraction       = "interaction"
	wsMergeNotification = "merge_notification"
)

// Server to client events.
const (
	wsConnected    = "connected"
	wsJoined       = "joined"
	wsLeft         = "left"
	wsStoryUpdate  = "story_update"
	wsMergeRequest = "merge_request"
	wsError        = "error"
)

// EventHub is the pub/sub side the WebSocket handler needs.
// *events.Broadcaster implements it.
type EventHub interface {
	Subscriber
	PublishMergeRequest(ctx context.Context, targetSessionID string, requestID string, fromSessionID string, preview string) error
	PublishInteractionQueued(ctx context.Context, sessionID string, requestID string, interactionType string) error
}

// Enqueuer hands interactions to the story worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, req *queue.Request) error
}

// WSMessage is the envelope of every WebSocket frame in both directions.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type wsSessionData struct {
	SessionID   string                 `json:"session_id"`
	Interaction *narrative.Interaction `json:"interaction,omitempty"`
}

type wsMergeData struct {
	TargetSessionID string `json:"target_session_id"`
	RequestID       string `json:"request_id"`
	FromSessionID   string `json:"from_session_id"`
	Preview         string `json:"preview"`
}

// WebSocketHandler is the real-time channel. Clients join story rooms and
// receive their events; interactions are queued for the worker.
// GET /ws
type WebSocketHandler struct {
	stories  *services.StoryService
	queue    Enqueuer
	hub      EventHub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(stories *services.StoryService, q Enqueuer, hub EventHub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		stories: stories,
		queue:   q,
		hub:     hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Warn("Failed to upgrade connection", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &wsClient{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		rooms:  make(map[string]*redis.PubSub),
		logger: h.logger.With("remote_addr", r.RemoteAddr),
	}
	c.logger.Info("WebSocket connection established")

	go c.writePump()
	c.emit(wsConnected, map[string]string{"status": "connected"})

	// The request context is cancelled once the handler returns.
	ctx := context.WithoutCancel(r.Context())
	h.readPump(ctx, c)
	c.shutdown()
}

func (h *WebSocketHandler) readPump(ctx context.Context, c *wsClient) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read error", "error", err)
			} else {
				c.logger.Info("WebSocket connection closed")
			}
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.emitError("Invalid message")
			continue
		}
		h.dispatch(ctx, c, msg)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, c *wsClient, msg WSMessage) {
	switch msg.Event {
	case wsJoinStory:
		var data wsSessionData
		if !c.decode(msg, &data) {
			return
		}
		if err := c.join(ctx, h.hub, data.SessionID); err != nil {
			c.logger.Error("Failed to join story", "session_id", data.SessionID, "error", err)
			c.emitError("Failed to join story")
			return
		}
		c.emit(wsJoined, map[string]string{"room": data.SessionID})

	case wsLeaveStory:
		var data wsSessionData
		if !c.decode(msg, &data) {
			return
		}
		c.leave(data.SessionID)
		c.emit(wsLeft, map[string]string{"room": data.SessionID})

	case wsInteraction:
		var data wsSessionData
		if !c.decode(msg, &data) {
			return
		}
		h.handleInteraction(ctx, c, data)

	case wsMergeNotification:
		var data wsMergeData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.TargetSessionID == "" {
			c.emitError("Target session ID required")
			return
		}
		if err := h.hub.PublishMergeRequest(ctx, data.TargetSessionID, data.RequestID, data.FromSessionID, data.Preview); err != nil {
			c.logger.Error("Failed to forward merge notification", "error", err)
			c.emitError("Failed to notify target session")
		}

	default:
		c.emitError("Unknown event: " + msg.Event)
	}
}

func (h *WebSocketHandler) handleInteraction(ctx context.Context, c *wsClient, data wsSessionData) {
	if _, err := h.stories.GetSession(ctx, data.SessionID); err != nil {
		c.logger.Warn("Interaction for unknown session", "session_id", data.SessionID, "error", err)
		c.emitError("Invalid session")
		return
	}

	req := queue.NewRequest(data.SessionID, data.Interaction)
	if err := h.queue.Enqueue(ctx, req); err != nil {
		c.logger.Error("Failed to enqueue interaction", "session_id", data.SessionID, "error", err)
		c.emitError("Failed to queue interaction")
		return
	}
	if err := h.hub.PublishInteractionQueued(ctx, data.SessionID, req.RequestID, data.Interaction.TypeName()); err != nil {
		c.logger.Warn("Failed to publish queued event", "request_id", req.RequestID, "error", err)
	}
	c.logger.Debug("Interaction queued", "session_id", data.SessionID, "request_id", req.RequestID)
}

// wsClient is one WebSocket connection and the story rooms it joined.
// Only writePump writes to conn.
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*redis.PubSub
}

func (c *wsClient) decode(msg WSMessage, data *wsSessionData) bool {
	if err := json.Unmarshal(msg.Data, data); err != nil || data.SessionID == "" {
		c.emitError("Session ID required")
		return false
	}
	return true
}

func (c *wsClient) join(ctx context.Context, hub Subscriber, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[sessionID]; ok {
		return nil
	}

	ps := hub.Subscribe(ctx, sessionID)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}
	c.rooms[sessionID] = ps
	go c.forward(ps)
	return nil
}

func (c *wsClient) leave(sessionID string) {
	c.mu.Lock()
	ps, ok := c.rooms[sessionID]
	delete(c.rooms, sessionID)
	c.mu.Unlock()
	if ok {
		if err := ps.Close(); err != nil {
			c.logger.Warn("Failed to close subscription", "session_id", sessionID, "error", err)
		}
	}
}

// forward relays room events to the client until the subscription closes.
func (c *wsClient) forward(ps *redis.PubSub) {
	for msg := range ps.Channel() {
		event, err := events.Decode(msg.Payload)
		if err != nil {
			c.logger.Error("Failed to decode event", "error", err)
			continue
		}
		switch event.Type {
		case events.EventTypeStoryUpdate:
			c.emit(wsStoryUpdate, event.Data)
		case events.EventTypeMergeRequest:
			c.emit(wsMergeRequest, event.Data)
		case events.EventTypeInteractionFailed:
			c.emit(wsError, map[string]any{
				"message":    event.Data["error"],
				"request_id": event.RequestID,
			})
		}
	}
}

func (c *wsClient) emitError(message string) {
	c.emit(wsError, map[string]string{"message": message})
}

func (c *wsClient) emit(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Error("Failed to marshal WebSocket data", "event", event, "error", err)
		return
	}
	frame, err := json.Marshal(WSMessage{Event: event, Data: raw})
	if err != nil {
		c.logger.Error("Failed to marshal WebSocket frame", "event", event, "error", err)
		return
	}
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.logger.Warn("WebSocket send buffer full, dropping event", "event", event)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return

		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("Failed to write message", "error", err)
				_ = c.conn.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("Failed to send ping", "error", err)
				_ = c.conn.Close()
				return
			}
		}
	}
}

// shutdown closes every room subscription and stops the writer.
func (c *wsClient) shutdown() {
	c.mu.Lock()
	rooms := c.rooms
	c.rooms = make(map[string]*redis.PubSub)
	c.mu.Unlock()

	for sessionID, ps := range rooms {
		if err := ps.Close(); err != nil {
			c.logger.Warn("Failed to close subscription", "session_id", sessionID, "error", err)
		}
	}
	close(c.done)
	c.logger.Info("WebSocket connection finished")
}
