package queue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
)

// RequestType identifies the type of request in the queue
type RequestType string

const (
	// RequestTypeInteraction advances a story with a user interaction
	RequestTypeInteraction RequestType = "interaction"

	// RequestTypeContinue advances a story without any interaction
	RequestTypeContinue RequestType = "continue"
)

// Request is one unit of work for the story worker.
type Request struct {
	RequestID   string                 `json:"request_id"`
	Type        RequestType            `json:"type"`
	SessionID   string                 `json:"session_id"`
	Interaction *narrative.Interaction `json:"interaction,omitempty"`
	Attempts    int                    `json:"attempts,omitempty"`
	EnqueuedAt  time.Time              `json:"enqueued_at"`
}

// NewRequest builds a request for the session. A nil interaction yields a continue request.
func NewRequest(sessionID string, in *narrative.Interaction) *Request {
	req := &Request{
		RequestID:   uuid.New().String(),
		Type:        RequestTypeContinue,
		SessionID:   sessionID,
		Interaction: in,
		EnqueuedAt:  time.Now().UTC(),
	}
	if in != nil {
		req.Type = RequestTypeInteraction
	}
	return req
}

// Validate checks the fields the worker relies on.
func (r *Request) Validate() error {
	if r.SessionID == "" {
		return errors.New("request has no session id")
	}
	switch r.Type {
	case RequestTypeContinue:
	case RequestTypeInteraction:
		if r.Interaction == nil {
			return errors.New("interaction request has no interaction")
		}
	default:
		return errors.New("unknown request type " + string(r.Type))
	}
	return nil
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses and validates a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}
