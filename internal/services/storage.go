package services

import (
	"context"
)

// HealthChecker defines basic health check capabilities
type HealthChecker interface {
	// Ping tests the service connection
	Ping(ctx context.Context) error
}

// Closer defines cleanup capabilities
type Closer interface {
	// Close closes the service connection
	Close() error
}

// Publisher fans story events out to the clients watching a session.
// *events.Broadcaster implements it.
type Publisher interface {
	PublishStoryUpdate(ctx context.Context, sessionID string, segment any, summary any, merged bool) error
	PublishMergeRequest(ctx context.Context, targetSessionID string, requestID string, fromSessionID string, preview string) error
}
