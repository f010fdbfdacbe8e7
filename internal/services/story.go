package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/infinite-story/internal/metrics"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
	"github.com/jwebster45206/infinite-story/pkg/storage"
	"github.com/jwebster45206/infinite-story/pkg/story"
)

const (
	DefaultStoryLimit       = 50
	DefaultInteractionLimit = 10
	DefaultActiveWindow     = 5 * time.Minute

	defaultLockTTL      = 30 * time.Second
	defaultLockAttempts = 50
	defaultLockDelay    = 100 * time.Millisecond

	previewWords = 12
)

// SessionInfo identifies a freshly created session.
type SessionInfo struct {
	SessionID string             `json:"session_id"`
	UserID    uuid.UUID          `json:"user_id"`
	Context   *narrative.Summary `json:"context,omitempty"`
}

// SessionDetails is a session's user record and, when an engine exists, its summary.
type SessionDetails struct {
	User    *story.User        `json:"user"`
	Context *narrative.Summary `json:"context"`
}

// SegmentResult is a newly persisted segment with the engine summary after it.
type SegmentResult struct {
	Segment *story.Segment    `json:"segment"`
	Context narrative.Summary `json:"context"`
}

// StoryPage is a window of a session's segments.
type StoryPage struct {
	Segments []story.Segment   `json:"segments"`
	Context  *narrative.Summary `json:"context"`
}

// InteractionHistory is the recent interactions of a user plus lifetime counts per type.
type InteractionHistory struct {
	Interactions []story.InteractionRecord `json:"interactions"`
	Counts       map[string]int            `json:"counts"`
}

// StoryService owns the narrative engines of all sessions. Engines live as
// snapshots in the SessionStore and every mutation runs under the session lock.
type StoryService struct {
	store        storage.Storage
	sessions     storage.SessionStore
	publisher    Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	newEngine    func() *narrative.Engine
	lockTTL      time.Duration
	lockAttempts int
	lockDelay    time.Duration
	activeWindow time.Duration
}

type Option func(*StoryService)

// WithPublisher enables story and merge events.
func WithPublisher(p Publisher) Option {
	return func(s *StoryService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *StoryService) { s.metrics = m }
}

// WithEngineFactory replaces how fresh engines are built, e.g. with a fixed seed.
func WithEngineFactory(f func() *narrative.Engine) Option {
	return func(s *StoryService) { s.newEngine = f }
}

// WithLock tunes the session lock: its ttl and how long callers wait for it.
func WithLock(ttl time.Duration, attempts int, delay time.Duration) Option {
	return func(s *StoryService) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
		if attempts > 0 {
			s.lockAttempts = attempts
		}
		if delay > 0 {
			s.lockDelay = delay
		}
	}
}

// WithActiveWindow sets the default window for ActiveUsers.
func WithActiveWindow(d time.Duration) Option {
	return func(s *StoryService) {
		if d > 0 {
			s.activeWindow = d
		}
	}
}

func NewStoryService(store storage.Storage, sessions storage.SessionStore, logger *slog.Logger, opts ...Option) *StoryService {
	s := &StoryService{
		store:        store,
		sessions:     sessions,
		logger:       logger,
		newEngine:    func() *narrative.Engine { return narrative.New() },
		lockTTL:      defaultLockTTL,
		lockAttempts: defaultLockAttempts,
		lockDelay:    defaultLockDelay,
		activeWindow: DefaultActiveWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withEngine loads the session engine under the session lock, runs fn and saves
// the engine back when fn succeeds. A missing engine is created when create is
// set, otherwise ErrNoActiveStory is returned.
func (s *StoryService) withEngine(ctx context.Context, sessionID string, create bool, fn func(e *narrative.Engine) error) error {
	owner := uuid.New().String()
	if err := s.acquire(ctx, sessionID, owner); err != nil {
		return err
	}
	defer func() {
		if err := s.sessions.ReleaseLock(context.WithoutCancel(ctx), sessionID, owner); err != nil {
			s.logger.Error("Failed to release session lock", "session_id", sessionID, "error", err)
		}
	}()

	snap, err := s.sessions.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load engine: %w", err)
	}

	var engine *narrative.Engine
	switch {
	case snap != nil:
		engine, err = narrative.Restore(snap)
		if err != nil {
			return fmt.Errorf("failed to restore engine: %w", err)
		}
	case create:
		s.logger.Debug("Creating engine for session", "session_id", sessionID)
		engine = s.newEngine()
	default:
		return ErrNoActiveStory
	}

	if err := fn(engine); err != nil {
		return err
	}

	snap, err = engine.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot engine: %w", err)
	}
	if err := s.sessions.SaveSnapshot(ctx, sessionID, snap); err != nil {
		return fmt.Errorf("failed to save engine: %w", err)
	}
	return nil
}

func (s *StoryService) acquire(ctx context.Context, sessionID, owner string) error {
	for attempt := 0; attempt < s.lockAttempts; attempt++ {
		ok, err := s.sessions.AcquireLock(ctx, sessionID, owner, s.lockTTL)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for session lock: %w", ctx.Err())
		case <-time.After(s.lockDelay):
		}
	}
	return ErrSessionBusy
}

// engineSummary reads the summary without taking the lock. Nil when the session has no engine.
func (s *StoryService) engineSummary(ctx context.Context, sessionID string) (*narrative.Summary, error) {
	snap, err := s.sessions.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load engine: %w", err)
	}
	if snap == nil {
		return nil, nil
	}
	engine, err := narrative.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to restore engine: %w", err)
	}
	summary := engine.Summary()
	return &summary, nil
}

func (s *StoryService) user(ctx context.Context, sessionID string) (*story.User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	u, err := s.store.GetUserBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if u == nil {
		return nil, ErrSessionNotFound
	}
	return u, nil
}

// CreateSession registers a new user with a fresh engine.
func (s *StoryService) CreateSession(ctx context.Context) (*SessionInfo, error) {
	sessionID := uuid.New().String()
	u, err := s.store.CreateUser(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	var summary narrative.Summary
	err = s.withEngine(ctx, sessionID, true, func(e *narrative.Engine) error {
		summary = e.Summary()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session created", "session_id", sessionID, "user_id", u.ID)
	return &SessionInfo{SessionID: sessionID, UserID: u.ID, Context: &summary}, nil
}

func (s *StoryService) GetSession(ctx context.Context, sessionID string) (*SessionDetails, error) {
	u, err := s.user(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summary, err := s.engineSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionDetails{User: u, Context: summary}, nil
}

// StartStory resets the engine and persists a new opening.
func (s *StoryService) StartStory(ctx context.Context, sessionID string) (*SegmentResult, error) {
	u, err := s.user(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var result SegmentResult
	err = s.withEngine(ctx, sessionID, true, func(e *narrative.Engine) error {
		e.Reset()
		opening := e.GenerateOpening()

		latest, err := s.store.LatestSegment(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("failed to load latest segment: %w", err)
		}
		seg := story.NewSegment(u.ID, opening, nil)
		if latest != nil {
			seg.SequenceNumber = latest.SequenceNumber + 1
		}
		if err := s.store.CreateSegment(ctx, seg); err != nil {
			return fmt.Errorf("failed to save segment: %w", err)
		}
		result = SegmentResult{Segment: seg, Context: e.Summary()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.TouchUser(ctx, u.ID); err != nil {
		s.logger.Warn("Failed to update user activity", "session_id", sessionID, "error", err)
	}
	s.metrics.SegmentGenerated(metrics.KindOpening)
	s.publishUpdate(ctx, sessionID, &result, false)
	s.logger.Info("Story started", "session_id", sessionID, "genre", result.Context.Genre, "mood", result.Context.Mood)
	return &result, nil
}

// ContinueStory records the interaction, if any, and appends the next segment.
// An empty interaction counts as none.
func (s *StoryService) ContinueStory(ctx context.Context, sessionID string, in *narrative.Interaction) (*SegmentResult, error) {
	if in.IsZero() {
		in = nil
	}
	u, err := s.user(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var rec *story.InteractionRecord
	if in != nil {
		if rec, err = newInteractionRecord(u.ID, in); err != nil {
			return nil, err
		}
	}

	var result SegmentResult
	err = s.withEngine(ctx, sessionID, true, func(e *narrative.Engine) error {
		latest, err := s.store.LatestSegment(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("failed to load latest segment: %w", err)
		}
		seg := story.NewSegment(u.ID, e.Advance(in), latest)
		if err := s.store.AppendSegment(ctx, seg, rec); err != nil {
			return fmt.Errorf("failed to save segment: %w", err)
		}
		result = SegmentResult{Segment: seg, Context: e.Summary()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.TouchUser(ctx, u.ID); err != nil {
		s.logger.Warn("Failed to update user activity", "session_id", sessionID, "error", err)
	}
	if in != nil {
		s.metrics.InteractionApplied(in.TypeName())
	}
	s.metrics.SegmentGenerated(metrics.KindAdvance)
	s.publishUpdate(ctx, sessionID, &result, false)
	s.logger.Debug("Story continued",
		"session_id", sessionID,
		"sequence", result.Segment.SequenceNumber,
		"interaction", in.TypeName(),
	)
	return &result, nil
}

func newInteractionRecord(userID uuid.UUID, in *narrative.Interaction) (*story.InteractionRecord, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode interaction: %w", err)
	}
	return &story.InteractionRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      in.TypeName(),
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GetStory pages through the session's segments in sequence order.
func (s *StoryService) GetStory(ctx context.Context, sessionID string, limit, offset int) (*StoryPage, error) {
	u, err := s.user(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultStoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	segs, err := s.store.ListSegments(ctx, u.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	summary, err := s.engineSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if segs == nil {
		segs = []story.Segment{}
	}
	return &StoryPage{Segments: segs, Context: summary}, nil
}

// FullStory joins every segment of the session into one text.
func (s *StoryService) FullStory(ctx context.Context, sessionID string) (string, error) {
	u, err := s.user(ctx, sessionID)
	if err != nil {
		return "", err
	}
	segs, err := s.store.ListSegments(ctx, u.ID, 0, 0)
	if err != nil {
		return "", fmt.Errorf("failed to list segments: %w", err)
	}
	parts := make([]string, len(segs))
	for i, seg := range segs {
		parts[i] = seg.Content
	}
	return strings.Join(parts, " "), nil
}

func (s *StoryService) SetMood(ctx context.Context, sessionID, mood string) (*narrative.Summary, error) {
	var summary narrative.Summary
	err := s.withEngine(ctx, sessionID, false, func(e *narrative.Engine) error {
		if !e.SetMood(mood) {
			return ErrInvalidMood
		}
		summary = e.Summary()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *StoryService) SetGenre(ctx context.Context, sessionID, genre string) (*narrative.Summary, error) {
	var summary narrative.Summary
	err := s.withEngine(ctx, sessionID, false, func(e *narrative.Engine) error {
		if !e.SetGenre(genre) {
			return ErrInvalidGenre
		}
		summary = e.Summary()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// ActiveUsers lists users active within window, or the default window when it is zero.
func (s *StoryService) ActiveUsers(ctx context.Context, window time.Duration) ([]story.User, error) {
	if window <= 0 {
		window = s.activeWindow
	}
	users, err := s.store.ListActiveUsers(ctx, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	if users == nil {
		users = []story.User{}
	}
	return users, nil
}

// RequestMerge offers the source session's latest segment to the target session.
func (s *StoryService) RequestMerge(ctx context.Context, sessionID, targetSessionID string) (*story.MergeRequest, error) {
	source, err := s.user(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	target, err := s.user(ctx, targetSessionID)
	if err != nil {
		return nil, err
	}

	latest, err := s.store.LatestSegment(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest segment: %w", err)
	}
	if latest == nil {
		return nil, ErrNoStoryToMerge
	}

	req := &story.MergeRequest{
		ID:              uuid.New(),
		SourceUserID:    source.ID,
		TargetUserID:    target.ID,
		SourceSegmentID: latest.ID,
		Status:          story.MergePending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.CreateMergeRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create merge request: %w", err)
	}
	s.metrics.MergeRequest(string(story.MergePending))

	if s.publisher != nil {
		if err := s.publisher.PublishMergeRequest(ctx, targetSessionID, req.ID.String(), sessionID, preview(latest.Content)); err != nil {
			s.logger.Warn("Failed to publish merge request", "request_id", req.ID, "error", err)
		}
	}
	s.logger.Info("Merge requested", "request_id", req.ID, "source", sessionID, "target", targetSessionID)
	return req, nil
}

func (s *StoryService) PendingMerges(ctx context.Context, sessionID string) ([]story.MergeRequest, error) {
	u, err := s.user(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	reqs, err := s.store.PendingMergeRequests(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge requests: %w", err)
	}
	if reqs == nil {
		reqs = []story.MergeRequest{}
	}
	return reqs, nil
}

// pendingRequestFor returns the request when it targets u and is still pending.
func (s *StoryService) pendingRequestFor(ctx context.Context, u *story.User, requestID uuid.UUID) (*story.MergeRequest, error) {
	req, err := s.store.GetMergeRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merge request: %w", err)
	}
	if req == nil || req.TargetUserID != u.ID {
		return nil, ErrMergeRequestNotFound
	}
	if !req.IsPending() {
		return nil, ErrMergeRequestResolved
	}
	return req, nil
}

// AcceptMerge weaves the requested segment into the session's story.
func (s *StoryService) AcceptMerge(ctx context.Context, sessionID string, requestID uuid.UUID) (*SegmentResult, error) {
	u, err := s.user(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	req, err := s.pendingRequestFor(ctx, u, requestID)
	if err != nil {
		return nil, err
	}
	source, err := s.store.GetSegment(ctx, req.SourceSegmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source segment: %w", err)
	}
	if source == nil {
		return nil, ErrSegmentNotFound
	}

	var result SegmentResult
	err = s.withEngine(ctx, sessionID, true, func(e *narrative.Engine) error {
		latest, err := s.store.LatestSegment(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("failed to load latest segment: %w", err)
		}
		seg := story.NewSegment(u.ID, e.MergeStorylines([]string{source.Content}), latest)
		seg.IsMerged = true
		seg.MergedFrom = []uuid.UUID{source.ID}

		// The request settles in the same write as the segment. A concurrent accept
		// that lost the race gets ErrMergeRequestResolved here.
		resolved, err := s.store.AcceptMergeRequest(ctx, req.ID, seg)
		switch {
		case errors.Is(err, ErrMergeRequestResolved):
			return err
		case err != nil:
			return fmt.Errorf("failed to accept merge request: %w", err)
		case resolved == nil:
			return ErrMergeRequestNotFound
		}
		result = SegmentResult{Segment: seg, Context: e.Summary()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.TouchUser(ctx, u.ID); err != nil {
		s.logger.Warn("Failed to update user activity", "session_id", sessionID, "error", err)
	}
	s.metrics.MergeRequest(string(story.MergeAccepted))
	s.metrics.SegmentGenerated(metrics.KindMerge)
	s.publishUpdate(ctx, sessionID, &result, true)
	s.logger.Info("Merge accepted", "request_id", requestID, "session_id", sessionID)
	return &result, nil
}

func (s *StoryService) RejectMerge(ctx context.Context, sessionID string, requestID uuid.UUID) (*story.MergeRequest, error) {
	u, err := s.user(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.pendingRequestFor(ctx, u, requestID); err != nil {
		return nil, err
	}
	resolved, err := s.store.ResolveMergeRequest(ctx, requestID, false)
	switch {
	case errors.Is(err, ErrMergeRequestResolved):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("failed to resolve merge request: %w", err)
	case resolved == nil:
		return nil, ErrMergeRequestNotFound
	}
	s.metrics.MergeRequest(string(story.MergeRejected))
	s.logger.Info("Merge rejected", "request_id", requestID, "session_id", sessionID)
	return resolved, nil
}

func (s *StoryService) Interactions(ctx context.Context, sessionID string, limit int) (*InteractionHistory, error) {
	u, err := s.user(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultInteractionLimit
	}
	recent, err := s.store.RecentInteractions(ctx, u.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	counts, err := s.store.InteractionCounts(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count interactions: %w", err)
	}
	if recent == nil {
		recent = []story.InteractionRecord{}
	}
	return &InteractionHistory{Interactions: recent, Counts: counts}, nil
}

// DeleteSession removes the user, everything it owns and its engine.
func (s *StoryService) DeleteSession(ctx context.Context, sessionID string) error {
	u, err := s.user(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := s.store.DeleteUser(ctx, u.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := s.sessions.DeleteSnapshot(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete engine: %w", err)
	}
	s.logger.Info("Session deleted", "session_id", sessionID)
	return nil
}

func (s *StoryService) publishUpdate(ctx context.Context, sessionID string, result *SegmentResult, merged bool) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStoryUpdate(ctx, sessionID, result.Segment, result.Context, merged); err != nil {
		s.logger.Warn("Failed to publish story update", "session_id", sessionID, "error", err)
	}
}

func preview(content string) string {
	words := strings.Fields(content)
	if len(words) <= previewWords {
		return content
	}
	return strings.Join(words[:previewWords], " ") + "..."
}

// IsClientError reports whether err is caused by the caller rather than the service.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrSessionNotFound, ErrNoActiveStory, ErrInvalidMood, ErrInvalidGenre, ErrNoStoryToMerge,
		ErrMergeRequestNotFound, ErrMergeRequestResolved, ErrSegmentNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
