package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeStoryUpdate       EventType = "story.update"
	EventTypeMergeRequest      EventType = "merge.request"
	EventTypeInteractionQueued EventType = "interaction.queued"
	EventTypeInteractionFailed EventType = "interaction.failed"
)

// Event is the payload carried on a session channel.
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Channel returns the pub/sub channel for a story session.
func Channel(sessionID string) string {
	return "story-events:" + sessionID
}

// Broadcaster publishes events to Redis Pub/Sub for SSE and WebSocket distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishStoryUpdate announces a new segment in the session's story.
func (b *Broadcaster) PublishStoryUpdate(ctx context.Context, sessionID string, segment any, summary any, merged bool) error {
	return b.publish(ctx, sessionID, Event{
		Type:      EventTypeStoryUpdate,
		SessionID: sessionID,
		Data: map[string]any{
			"segment": segment,
			"context": summary,
			"merged":  merged,
		},
	})
}

// PublishMergeRequest notifies the target session of an incoming merge request.
func (b *Broadcaster) PublishMergeRequest(ctx context.Context, targetSessionID string, requestID string, fromSessionID string, preview string) error {
	return b.publish(ctx, targetSessionID, Event{
		Type:      EventTypeMergeRequest,
		RequestID: requestID,
		SessionID: targetSessionID,
		Data: map[string]any{
			"request_id":      requestID,
			"from_session_id": fromSessionID,
			"preview":         preview,
		},
	})
}

func (b *Broadcaster) PublishInteractionQueued(ctx context.Context, sessionID string, requestID string, interactionType string) error {
	return b.publish(ctx, sessionID, Event{
		Type:      EventTypeInteractionQueued,
		RequestID: requestID,
		SessionID: sessionID,
		Data: map[string]any{
			"status": "queued",
			"type":   interactionType,
		},
	})
}

func (b *Broadcaster) PublishInteractionFailed(ctx context.Context, sessionID string, requestID string, errorMsg string) error {
	return b.publish(ctx, sessionID, Event{
		Type:      EventTypeInteractionFailed,
		RequestID: requestID,
		SessionID: sessionID,
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	})
}

// Subscribe opens a subscription on the session channel. Callers must close it.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID string) *redis.PubSub {
	return b.redisClient.Subscribe(ctx, Channel(sessionID))
}

func (b *Broadcaster) publish(ctx context.Context, sessionID string, event Event) error {
	channel := Channel(sessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)
	return nil
}

// Decode parses a pub/sub payload back into an Event.
func Decode(payload string) (*Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}
