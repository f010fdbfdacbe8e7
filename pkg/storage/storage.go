package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
	"github.com/jwebster45206/infinite-story/pkg/story"
)

var (
	// ErrSessionExists is returned when a user already owns the session id.
	ErrSessionExists = errors.New("session already exists")
	// ErrMergeRequestResolved is returned when a merge request was already settled.
	ErrMergeRequestResolved = errors.New("merge request already resolved")
)

// Storage defines relational persistence for users, segments, interactions and merges.
// Lookups return nil, nil when the record does not exist.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Users
	CreateUser(ctx context.Context, sessionID string) (*story.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*story.User, error)
	GetUserBySession(ctx context.Context, sessionID string) (*story.User, error)
	TouchUser(ctx context.Context, id uuid.UUID) error
	ListActiveUsers(ctx context.Context, since time.Time) ([]story.User, error)
	// DeleteUser removes the user with all segments, interactions and merge requests.
	DeleteUser(ctx context.Context, id uuid.UUID) (bool, error)

	// Segments
	CreateSegment(ctx context.Context, seg *story.Segment) error
	GetSegment(ctx context.Context, id uuid.UUID) (*story.Segment, error)
	LatestSegment(ctx context.Context, userID uuid.UUID) (*story.Segment, error)
	ListSegments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]story.Segment, error)
	// AppendSegment stores the segment together with the interaction that produced it.
	// rec may be nil. Nothing is written when either insert fails.
	AppendSegment(ctx context.Context, seg *story.Segment, rec *story.InteractionRecord) error

	// Interactions
	RecordInteraction(ctx context.Context, rec *story.InteractionRecord) error
	RecentInteractions(ctx context.Context, userID uuid.UUID, limit int) ([]story.InteractionRecord, error)
	InteractionCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error)

	// Merge requests
	CreateMergeRequest(ctx context.Context, req *story.MergeRequest) error
	GetMergeRequest(ctx context.Context, id uuid.UUID) (*story.MergeRequest, error)
	PendingMergeRequests(ctx context.Context, targetUserID uuid.UUID) ([]story.MergeRequest, error)
	// ResolveMergeRequest settles a pending request and returns it. It returns nil, nil
	// for an unknown id and ErrMergeRequestResolved when another call settled it first.
	ResolveMergeRequest(ctx context.Context, id uuid.UUID, accepted bool) (*story.MergeRequest, error)
	// AcceptMergeRequest accepts a pending request and stores the merged segment in one
	// unit. Errors follow ResolveMergeRequest; nothing is written on failure.
	AcceptMergeRequest(ctx context.Context, id uuid.UUID, seg *story.Segment) (*story.MergeRequest, error)
}

// SessionStore keeps one engine snapshot per session and serializes engine access.
type SessionStore interface {
	Ping(ctx context.Context) error
	Close() error

	SaveSnapshot(ctx context.Context, sessionID string, snap *narrative.Snapshot) error
	// LoadSnapshot returns nil, nil when the session has no engine yet.
	LoadSnapshot(ctx context.Context, sessionID string) (*narrative.Snapshot, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error

	// AcquireLock returns false when another owner holds the session lock.
	AcquireLock(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error)
	// ReleaseLock only releases a lock held by owner.
	ReleaseLock(ctx context.Context, sessionID, owner string) error
}
