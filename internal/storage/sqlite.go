package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/infinite-story/internal/storage/migrations"
	pkgstorage "github.com/jwebster45206/infinite-story/pkg/storage"
	"github.com/jwebster45206/infinite-story/pkg/story"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const migrationTable = "schema_migrations"

// SQLiteStorage implements the Storage interface on a single SQLite file.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStorage implements Storage interface
var _ pkgstorage.Storage = (*SQLiteStorage)(nil)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// OpenSQLite opens the database at path and applies embedded migrations.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite storage ready", "path", path)
	return &SQLiteStorage{db: db, logger: logger}, nil
}

func applyMigrations(db *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		var found int
		err := db.QueryRow("SELECT 1 FROM "+migrationTable+" WHERE name = ?", name).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}

		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
			name, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// upSection returns the SQL between the Up and Down markers.
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	content = content[start+len(up):]
	if end := strings.Index(content, down); end != -1 {
		content = content[:end]
	}
	return content
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Health and lifecycle methods

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", "error", err)
		return err
	}
	s.logger.Info("SQLite database closed")
	return nil
}

// User operations

func (s *SQLiteStorage) CreateUser(ctx context.Context, sessionID string) (*story.User, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	u := &story.User{ID: uuid.New(), SessionID: sessionID, CreatedAt: now, LastActive: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, session_id, created_at, last_active) VALUES (?, ?, ?, ?)`,
		u.ID.String(), u.SessionID, toMillis(u.CreatedAt), toMillis(u.LastActive))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, pkgstorage.ErrSessionExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

const userColumns = `id, session_id, created_at, last_active`

func scanUser(row interface{ Scan(...any) error }) (*story.User, error) {
	var (
		id, sessionID         string
		createdAt, lastActive int64
	)
	if err := row.Scan(&id, &sessionID, &createdAt, &lastActive); err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	return &story.User{
		ID:         uid,
		SessionID:  sessionID,
		CreatedAt:  fromMillis(createdAt),
		LastActive: fromMillis(lastActive),
	}, nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id uuid.UUID) (*story.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStorage) GetUserBySession(ctx context.Context, sessionID string) (*story.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE session_id = ?`, sessionID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by session: %w", err)
	}
	return u, nil
}

func (s *SQLiteStorage) TouchUser(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_active = ? WHERE id = ?`,
		toMillis(time.Now()), id.String()); err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListActiveUsers(ctx context.Context, since time.Time) ([]story.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE last_active >= ? ORDER BY last_active DESC`,
		toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var users []story.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// DeleteUser removes the user and everything it owns in one transaction.
func (s *SQLiteStorage) DeleteUser(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	uid := id.String()
	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM merge_requests WHERE source_user_id = ? OR target_user_id = ?`, []any{uid, uid}},
		{`DELETE FROM interactions WHERE user_id = ?`, []any{uid}},
		{`DELETE FROM story_segments WHERE user_id = ?`, []any{uid}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return false, fmt.Errorf("delete user data: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, uid)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete user: %w", err)
	}
	return n > 0, nil
}

// Segment operations

func (s *SQLiteStorage) CreateSegment(ctx context.Context, seg *story.Segment) error {
	return insertSegment(ctx, s.db, seg)
}

// AppendSegment writes the interaction and the segment it produced in one transaction.
func (s *SQLiteStorage) AppendSegment(ctx context.Context, seg *story.Segment, rec *story.InteractionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append segment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if rec != nil {
		if err := insertInteraction(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err := insertSegment(ctx, tx, seg); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append segment: %w", err)
	}
	return nil
}

func insertSegment(ctx context.Context, db execer, seg *story.Segment) error {
	if seg == nil {
		return fmt.Errorf("segment is required")
	}
	var parent sql.NullString
	if seg.ParentID != nil {
		parent = sql.NullString{String: seg.ParentID.String(), Valid: true}
	}
	var mergedFrom sql.NullString
	if len(seg.MergedFrom) > 0 {
		data, err := json.Marshal(seg.MergedFrom)
		if err != nil {
			return fmt.Errorf("marshal merged_from: %w", err)
		}
		mergedFrom = sql.NullString{String: string(data), Valid: true}
	}
	if seg.CreatedAt.IsZero() {
		seg.CreatedAt = time.Now().UTC()
	}
	seg.CreatedAt = seg.CreatedAt.UTC().Truncate(time.Millisecond)

	_, err := db.ExecContext(ctx,
		`INSERT INTO story_segments (
		   id, user_id, content, sequence_number, parent_id, is_merged, merged_from, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.ID.String(), seg.UserID.String(), seg.Content, seg.SequenceNumber,
		parent, seg.IsMerged, mergedFrom, toMillis(seg.CreatedAt))
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	return nil
}

const segmentColumns = `id, user_id, content, sequence_number, parent_id, is_merged, merged_from, created_at`

func scanSegment(row interface{ Scan(...any) error }) (*story.Segment, error) {
	var (
		id, userID, content string
		seq                 int
		parent, mergedFrom  sql.NullString
		isMerged            bool
		createdAt           int64
	)
	if err := row.Scan(&id, &userID, &content, &seq, &parent, &isMerged, &mergedFrom, &createdAt); err != nil {
		return nil, err
	}
	seg := &story.Segment{
		Content:        content,
		SequenceNumber: seq,
		IsMerged:       isMerged,
		CreatedAt:      fromMillis(createdAt),
	}
	var err error
	if seg.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse segment id: %w", err)
	}
	if seg.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse segment user id: %w", err)
	}
	if parent.Valid {
		p, err := uuid.Parse(parent.String)
		if err != nil {
			return nil, fmt.Errorf("parse parent id: %w", err)
		}
		seg.ParentID = &p
	}
	if mergedFrom.Valid && mergedFrom.String != "" {
		if err := json.Unmarshal([]byte(mergedFrom.String), &seg.MergedFrom); err != nil {
			return nil, fmt.Errorf("unmarshal merged_from: %w", err)
		}
	}
	return seg, nil
}

func (s *SQLiteStorage) GetSegment(ctx context.Context, id uuid.UUID) (*story.Segment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM story_segments WHERE id = ?`, id.String())
	seg, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

func (s *SQLiteStorage) LatestSegment(ctx context.Context, userID uuid.UUID) (*story.Segment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+segmentColumns+` FROM story_segments WHERE user_id = ?
		 ORDER BY sequence_number DESC, created_at DESC, rowid DESC LIMIT 1`,
		userID.String())
	seg, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest segment: %w", err)
	}
	return seg, nil
}

func (s *SQLiteStorage) ListSegments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]story.Segment, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM story_segments WHERE user_id = ?
		 ORDER BY sequence_number, created_at, rowid LIMIT ? OFFSET ?`,
		userID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segs []story.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segs = append(segs, *seg)
	}
	return segs, rows.Err()
}

// Interaction operations

func (s *SQLiteStorage) RecordInteraction(ctx context.Context, rec *story.InteractionRecord) error {
	return insertInteraction(ctx, s.db, rec)
}

func insertInteraction(ctx context.Context, db execer, rec *story.InteractionRecord) error {
	if rec == nil {
		return fmt.Errorf("interaction is required")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	var data sql.NullString
	if len(rec.Data) > 0 {
		data = sql.NullString{String: string(rec.Data), Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO interactions (id, user_id, interaction_type, data, timestamp) VALUES (?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.UserID.String(), rec.Type, data, toMillis(rec.Timestamp))
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) RecentInteractions(ctx context.Context, userID uuid.UUID, limit int) ([]story.InteractionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, interaction_type, data, timestamp FROM interactions
		 WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("recent interactions: %w", err)
	}
	defer rows.Close()

	var out []story.InteractionRecord
	for rows.Next() {
		var (
			id, uid, typ string
			data         sql.NullString
			ts           int64
		)
		if err := rows.Scan(&id, &uid, &typ, &data, &ts); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		rec := story.InteractionRecord{Type: typ, Timestamp: fromMillis(ts)}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse interaction id: %w", err)
		}
		if rec.UserID, err = uuid.Parse(uid); err != nil {
			return nil, fmt.Errorf("parse interaction user id: %w", err)
		}
		if data.Valid {
			rec.Data = json.RawMessage(data.String)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) InteractionCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT interaction_type, COUNT(*) FROM interactions WHERE user_id = ? GROUP BY interaction_type`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("interaction counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan interaction count: %w", err)
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// Merge request operations

func (s *SQLiteStorage) CreateMergeRequest(ctx context.Context, req *story.MergeRequest) error {
	if req == nil {
		return fmt.Errorf("merge request is required")
	}
	if req.Status == "" {
		req.Status = story.MergePending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.CreatedAt = req.CreatedAt.UTC().Truncate(time.Millisecond)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO merge_requests (
		   id, source_user_id, target_user_id, source_segment_id, status, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID.String(), req.SourceUserID.String(), req.TargetUserID.String(),
		req.SourceSegmentID.String(), string(req.Status), toMillis(req.CreatedAt))
	if err != nil {
		return fmt.Errorf("create merge request: %w", err)
	}
	return nil
}

const mergeColumns = `id, source_user_id, target_user_id, source_segment_id, status, created_at, resolved_at`

func scanMergeRequest(row interface{ Scan(...any) error }) (*story.MergeRequest, error) {
	var (
		id, source, target, segment, status string
		createdAt                           int64
		resolvedAt                          sql.NullInt64
	)
	if err := row.Scan(&id, &source, &target, &segment, &status, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}
	req := &story.MergeRequest{Status: story.MergeStatus(status), CreatedAt: fromMillis(createdAt)}
	ids := []struct {
		dst *uuid.UUID
		src string
	}{
		{&req.ID, id}, {&req.SourceUserID, source}, {&req.TargetUserID, target}, {&req.SourceSegmentID, segment},
	}
	for _, v := range ids {
		parsed, err := uuid.Parse(v.src)
		if err != nil {
			return nil, fmt.Errorf("parse merge request id: %w", err)
		}
		*v.dst = parsed
	}
	if resolvedAt.Valid {
		t := fromMillis(resolvedAt.Int64)
		req.ResolvedAt = &t
	}
	return req, nil
}

func (s *SQLiteStorage) GetMergeRequest(ctx context.Context, id uuid.UUID) (*story.MergeRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mergeColumns+` FROM merge_requests WHERE id = ?`, id.String())
	req, err := scanMergeRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get merge request: %w", err)
	}
	return req, nil
}

func (s *SQLiteStorage) PendingMergeRequests(ctx context.Context, targetUserID uuid.UUID) ([]story.MergeRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mergeColumns+` FROM merge_requests
		 WHERE target_user_id = ? AND status = ? ORDER BY created_at, rowid`,
		targetUserID.String(), string(story.MergePending))
	if err != nil {
		return nil, fmt.Errorf("pending merge requests: %w", err)
	}
	defer rows.Close()

	var out []story.MergeRequest
	for rows.Next() {
		req, err := scanMergeRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merge request: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) ResolveMergeRequest(ctx context.Context, id uuid.UUID, accepted bool) (*story.MergeRequest, error) {
	status := story.MergeRejected
	if accepted {
		status = story.MergeAccepted
	}
	settled, err := settleMergeRequest(ctx, s.db, id, status)
	if err != nil {
		return nil, err
	}
	if !settled {
		return s.unsettled(ctx, id)
	}
	return s.GetMergeRequest(ctx, id)
}

// AcceptMergeRequest marks the request accepted and stores the merged segment in one
// transaction, so a request is never accepted without its segment.
func (s *SQLiteStorage) AcceptMergeRequest(ctx context.Context, id uuid.UUID, seg *story.Segment) (*story.MergeRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin accept merge request: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	settled, err := settleMergeRequest(ctx, tx, id, story.MergeAccepted)
	if err != nil {
		return nil, err
	}
	if !settled {
		_ = tx.Rollback()
		return s.unsettled(ctx, id)
	}
	if err := insertSegment(ctx, tx, seg); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit accept merge request: %w", err)
	}
	return s.GetMergeRequest(ctx, id)
}

// settleMergeRequest moves a pending request to status and reports whether this call did it.
func settleMergeRequest(ctx context.Context, db execer, id uuid.UUID, status story.MergeStatus) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE merge_requests SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		string(status), toMillis(time.Now()), id.String(), string(story.MergePending))
	if err != nil {
		return false, fmt.Errorf("resolve merge request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve merge request: %w", err)
	}
	return n > 0, nil
}

// unsettled explains a failed settle: nil, nil when the request is unknown,
// ErrMergeRequestResolved otherwise.
func (s *SQLiteStorage) unsettled(ctx context.Context, id uuid.UUID) (*story.MergeRequest, error) {
	req, err := s.GetMergeRequest(ctx, id)
	if err != nil || req == nil {
		return nil, err
	}
	return nil, pkgstorage.ErrMergeRequestResolved
}
