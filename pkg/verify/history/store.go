// Package history persists completed session summaries for later review.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id       TEXT PRIMARY KEY,
	created_at       TEXT NOT NULL,
	status           TEXT NOT NULL,
	is_live          INTEGER NOT NULL,
	liveness_score   REAL NOT NULL,
	face_match_score REAL,
	captures         TEXT NOT NULL,
	video            TEXT,
	metadata         TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions (created_at DESC);
`

// Store is a sqlite-backed archive of session summaries.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	// sqlite handles one writer at a time.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save archives one completed session summary.
func (s *Store) Save(ctx context.Context, summary *verify.SessionSummary) error {
	if summary == nil || summary.SessionID == "" {
		return verify.NewInvalidRequestError("summary with a session id is required")
	}

	captures, err := json.Marshal(summary.Captures)
	if err != nil {
		return fmt.Errorf("encode captures: %w", err)
	}
	var video any
	if summary.Video != nil {
		encoded, err := json.Marshal(summary.Video)
		if err != nil {
			return fmt.Errorf("encode video: %w", err)
		}
		video = string(encoded)
	}
	var metadata any
	if len(summary.Metadata) > 0 {
		encoded, err := json.Marshal(summary.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = string(encoded)
	}
	var faceMatch any
	if summary.FaceMatchScore != nil {
		faceMatch = *summary.FaceMatchScore
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(session_id, created_at, status, is_live, liveness_score, face_match_score, captures, video, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.SessionID,
		summary.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(summary.Status),
		boolToInt(summary.IsLive),
		summary.LivenessScore,
		faceMatch,
		string(captures),
		video,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", summary.SessionID, err)
	}
	return nil
}

// Get returns one archived summary by session id.
func (s *Store) Get(ctx context.Context, sessionID string) (*verify.SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, created_at, status, is_live, liveness_score, face_match_score, captures, video, metadata
		FROM sessions WHERE session_id = ?`, sessionID)
	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verify.NewNotFoundError(fmt.Sprintf("session %s not found", sessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return summary, nil
}

// List returns the most recent summaries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*verify.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, created_at, status, is_live, liveness_score, face_match_score, captures, video, metadata
		FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*verify.SessionSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*verify.SessionSummary, error) {
	var (
		summary   verify.SessionSummary
		createdAt string
		status    string
		isLive    int
		faceMatch sql.NullFloat64
		captures  string
		video     sql.NullString
		metadata  sql.NullString
	)
	err := row.Scan(
		&summary.SessionID,
		&createdAt,
		&status,
		&isLive,
		&summary.LivenessScore,
		&faceMatch,
		&captures,
		&video,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	summary.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	summary.Status = verify.Status(status)
	summary.IsLive = isLive != 0
	if faceMatch.Valid {
		v := faceMatch.Float64
		summary.FaceMatchScore = &v
	}
	if err := json.Unmarshal([]byte(captures), &summary.Captures); err != nil {
		return nil, fmt.Errorf("decode captures: %w", err)
	}
	if video.Valid && video.String != "" {
		summary.Video = &verify.VideoArtifact{}
		if err := json.Unmarshal([]byte(video.String), summary.Video); err != nil {
			return nil, fmt.Errorf("decode video: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &summary.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &summary, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
