package storage

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
	"github.com/jwebster45206/infinite-story/pkg/story"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu           sync.RWMutex
	users        map[uuid.UUID]*story.User
	segments     map[uuid.UUID]*story.Segment
	interactions []story.InteractionRecord
	merges       map[uuid.UUID]*story.MergeRequest
	pingError    error
	segmentError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		users:    make(map[uuid.UUID]*story.User),
		segments: make(map[uuid.UUID]*story.Segment),
		merges:   make(map[uuid.UUID]*story.MergeRequest),
	}
}

// SetPingSuccess configures the mock to succeed on ping
func (m *MockStorage) SetPingSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = nil
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSegmentError makes every segment write fail with err. Nil clears it.
func (m *MockStorage) SetSegmentError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segmentError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) CreateUser(ctx context.Context, sessionID string) (*story.User, error) {
	if sessionID == "" {
		return nil, errors.New("session id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.SessionID == sessionID {
			return nil, ErrSessionExists
		}
	}
	now := time.Now().UTC()
	u := &story.User{ID: uuid.New(), SessionID: sessionID, CreatedAt: now, LastActive: now}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *MockStorage) GetUser(ctx context.Context, id uuid.UUID) (*story.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MockStorage) GetUserBySession(ctx context.Context, sessionID string) (*story.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.SessionID == sessionID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockStorage) TouchUser(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastActive = time.Now().UTC()
	}
	return nil
}

// SetLastActive lets tests age a user out of the active window.
func (m *MockStorage) SetLastActive(id uuid.UUID, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastActive = t
	}
}

func (m *MockStorage) ListActiveUsers(ctx context.Context, since time.Time) ([]story.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []story.User
	for _, u := range m.users {
		if !u.LastActive.Before(since) {
			out = append(out, *u)
		}
	}
	slices.SortFunc(out, func(a, b story.User) int { return b.LastActive.Compare(a.LastActive) })
	return out, nil
}

func (m *MockStorage) DeleteUser(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	maps.DeleteFunc(m.segments, func(_ uuid.UUID, s *story.Segment) bool { return s.UserID == id })
	maps.DeleteFunc(m.merges, func(_ uuid.UUID, r *story.MergeRequest) bool {
		return r.SourceUserID == id || r.TargetUserID == id
	})
	m.interactions = slices.DeleteFunc(m.interactions, func(r story.InteractionRecord) bool { return r.UserID == id })
	return true, nil
}

func (m *MockStorage) CreateSegment(ctx context.Context, seg *story.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSegment(seg)
}

func (m *MockStorage) AppendSegment(ctx context.Context, seg *story.Segment, rec *story.InteractionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertSegment(seg); err != nil {
		return err
	}
	if rec != nil {
		m.insertInteraction(rec)
	}
	return nil
}

// insertSegment validates and stores seg. Callers hold mu.
func (m *MockStorage) insertSegment(seg *story.Segment) error {
	if seg == nil {
		return errors.New("segment cannot be nil")
	}
	if m.segmentError != nil {
		return m.segmentError
	}
	if _, ok := m.users[seg.UserID]; !ok {
		return errors.New("segment user does not exist")
	}
	if _, ok := m.segments[seg.ID]; ok {
		return errors.New("segment already exists")
	}
	m.segments[seg.ID] = copySegment(seg)
	return nil
}

func (m *MockStorage) GetSegment(ctx context.Context, id uuid.UUID) (*story.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.segments[id]
	if !ok {
		return nil, nil
	}
	return copySegment(s), nil
}

func (m *MockStorage) LatestSegment(ctx context.Context, userID uuid.UUID) (*story.Segment, error) {
	segs := m.userSegments(userID)
	if len(segs) == 0 {
		return nil, nil
	}
	last := segs[len(segs)-1]
	return &last, nil
}

func (m *MockStorage) ListSegments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]story.Segment, error) {
	segs := m.userSegments(userID)
	if offset >= len(segs) {
		return nil, nil
	}
	segs = segs[offset:]
	if limit > 0 && limit < len(segs) {
		segs = segs[:limit]
	}
	return segs, nil
}

func (m *MockStorage) userSegments(userID uuid.UUID) []story.Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []story.Segment
	for _, s := range m.segments {
		if s.UserID == userID {
			out = append(out, *copySegment(s))
		}
	}
	slices.SortFunc(out, func(a, b story.Segment) int {
		if a.SequenceNumber != b.SequenceNumber {
			return a.SequenceNumber - b.SequenceNumber
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func (m *MockStorage) RecordInteraction(ctx context.Context, rec *story.InteractionRecord) error {
	if rec == nil {
		return errors.New("interaction cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertInteraction(rec)
	return nil
}

func (m *MockStorage) insertInteraction(rec *story.InteractionRecord) {
	cp := *rec
	cp.Data = slices.Clone(rec.Data)
	m.interactions = append(m.interactions, cp)
}

func (m *MockStorage) RecentInteractions(ctx context.Context, userID uuid.UUID, limit int) ([]story.InteractionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []story.InteractionRecord
	for i := len(m.interactions) - 1; i >= 0; i-- {
		if m.interactions[i].UserID != userID {
			continue
		}
		out = append(out, m.interactions[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockStorage) InteractionCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, r := range m.interactions {
		if r.UserID == userID {
			counts[r.Type]++
		}
	}
	return counts, nil
}

func (m *MockStorage) CreateMergeRequest(ctx context.Context, req *story.MergeRequest) error {
	if req == nil {
		return errors.New("merge request cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.merges[req.ID] = &cp
	return nil
}

func (m *MockStorage) GetMergeRequest(ctx context.Context, id uuid.UUID) (*story.MergeRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.merges[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MockStorage) PendingMergeRequests(ctx context.Context, targetUserID uuid.UUID) ([]story.MergeRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []story.MergeRequest
	for _, r := range m.merges {
		if r.TargetUserID == targetUserID && r.IsPending() {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b story.MergeRequest) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *MockStorage) ResolveMergeRequest(ctx context.Context, id uuid.UUID, accepted bool) (*story.MergeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.pendingMerge(id)
	if r == nil || err != nil {
		return nil, err
	}
	return m.settle(r, accepted), nil
}

func (m *MockStorage) AcceptMergeRequest(ctx context.Context, id uuid.UUID, seg *story.Segment) (*story.MergeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.pendingMerge(id)
	if r == nil || err != nil {
		return nil, err
	}
	if err := m.insertSegment(seg); err != nil {
		return nil, err
	}
	return m.settle(r, true), nil
}

// pendingMerge returns nil, nil for an unknown id. Callers hold mu.
func (m *MockStorage) pendingMerge(id uuid.UUID) (*story.MergeRequest, error) {
	r, ok := m.merges[id]
	if !ok {
		return nil, nil
	}
	if !r.IsPending() {
		return nil, ErrMergeRequestResolved
	}
	return r, nil
}

func (m *MockStorage) settle(r *story.MergeRequest, accepted bool) *story.MergeRequest {
	r.Status = story.MergeRejected
	if accepted {
		r.Status = story.MergeAccepted
	}
	now := time.Now().UTC()
	r.ResolvedAt = &now
	cp := *r
	return &cp
}

func copySegment(s *story.Segment) *story.Segment {
	cp := *s
	cp.MergedFrom = slices.Clone(s.MergedFrom)
	if s.ParentID != nil {
		p := *s.ParentID
		cp.ParentID = &p
	}
	return &cp
}

// MockSessionStore is an in-memory SessionStore for testing
type MockSessionStore struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	locks     map[string]string
	pingError error
}

var _ SessionStore = (*MockSessionStore)(nil)

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		snapshots: make(map[string][]byte),
		locks:     make(map[string]string),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockSessionStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

func (m *MockSessionStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingError
}

func (m *MockSessionStore) Close() error {
	return nil
}

// SaveSnapshot stores the snapshot encoded, the same way the Redis store does.
func (m *MockSessionStore) SaveSnapshot(ctx context.Context, sessionID string, snap *narrative.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot cannot be nil")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[sessionID] = data
	return nil
}

func (m *MockSessionStore) LoadSnapshot(ctx context.Context, sessionID string) (*narrative.Snapshot, error) {
	m.mu.Lock()
	data, ok := m.snapshots[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var snap narrative.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (m *MockSessionStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, sessionID)
	return nil
}

// HasSnapshot reports whether a snapshot is stored for the session.
func (m *MockSessionStore) HasSnapshot(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.snapshots[sessionID]
	return ok
}

// AcquireLock ignores ttl; locks are held until released.
func (m *MockSessionStore) AcquireLock(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[sessionID]; held {
		return false, nil
	}
	m.locks[sessionID] = owner
	return true, nil
}

func (m *MockSessionStore) ReleaseLock(ctx context.Context, sessionID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[sessionID] == owner {
		delete(m.locks, sessionID)
	}
	return nil
}
