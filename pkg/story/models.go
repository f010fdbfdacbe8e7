package story

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User is one browser session taking part in the story web.
type User struct {
	ID         uuid.UUID `json:"id"`
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Segment is one persisted fragment of a user's storyline.
// Segments chain through ParentID; merged segments list their sources in MergedFrom.
type Segment struct {
	ID             uuid.UUID   `json:"id"`
	UserID         uuid.UUID   `json:"user_id"`
	Content        string      `json:"content"`
	SequenceNumber int         `json:"sequence_number"`
	ParentID       *uuid.UUID  `json:"parent_id"`
	IsMerged       bool        `json:"is_merged"`
	MergedFrom     []uuid.UUID `json:"merged_from"`
	CreatedAt      time.Time   `json:"created_at"`
}

// NewSegment builds a segment following latest, or the first segment when latest is nil.
func NewSegment(userID uuid.UUID, content string, latest *Segment) *Segment {
	seg := &Segment{
		ID:        uuid.New(),
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if latest != nil {
		parent := latest.ID
		seg.ParentID = &parent
		seg.SequenceNumber = latest.SequenceNumber + 1
	}
	return seg
}

// InteractionRecord is a logged user interaction.
type InteractionRecord struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"interaction_type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// MergeStatus is the lifecycle state of a merge request.
type MergeStatus string

const (
	MergePending  MergeStatus = "pending"
	MergeAccepted MergeStatus = "accepted"
	MergeRejected MergeStatus = "rejected"
)

// MergeRequest asks the target user to weave the source user's segment into their story.
type MergeRequest struct {
	ID              uuid.UUID   `json:"id"`
	SourceUserID    uuid.UUID   `json:"source_user_id"`
	TargetUserID    uuid.UUID   `json:"target_user_id"`
	SourceSegmentID uuid.UUID   `json:"source_segment_id"`
	Status          MergeStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	ResolvedAt      *time.Time  `json:"resolved_at"`
}

// IsPending reports whether the request still awaits a decision.
func (m *MergeRequest) IsPending() bool {
	return m.Status == MergePending
}
