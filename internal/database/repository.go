package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/therealutkarshpriyadarshi/restream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// ErrSessionNotFound is returned when no session has the requested ID
var ErrSessionNotFound = errors.New("broadcast session not found")

// Schema creates the broadcast history table
const Schema = `
CREATE TABLE IF NOT EXISTS broadcast_sessions (
	id                 TEXT PRIMARY KEY,
	state              TEXT NOT NULL,
	source             TEXT NOT NULL DEFAULT '',
	destination        TEXT NOT NULL DEFAULT '',
	resolution         TEXT NOT NULL DEFAULT '',
	frame_rate         INTEGER NOT NULL DEFAULT 0,
	video_bitrate_kbps INTEGER NOT NULL DEFAULT 0,
	audio_bitrate_kbps INTEGER NOT NULL DEFAULT 0,
	loop               BOOLEAN NOT NULL DEFAULT FALSE,
	vertical_mode      BOOLEAN NOT NULL DEFAULT FALSE,
	pid                INTEGER NOT NULL DEFAULT 0,
	exit_reason        TEXT,
	exit_code          INTEGER,
	signal             TEXT,
	error              TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	started_at         TIMESTAMPTZ,
	ended_at           TIMESTAMPTZ,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_broadcast_sessions_created_at ON broadcast_sessions (created_at DESC);
`

const sessionColumns = `
	id, state, source, destination, resolution, frame_rate, video_bitrate_kbps,
	audio_bitrate_kbps, loop, vertical_mode, pid, exit_reason, exit_code, signal,
	error, created_at, started_at, ended_at, updated_at`

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the schema if it does not exist
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Name implements events.Publisher
func (r *Repository) Name() string {
	return "postgres"
}

// Publish implements events.Publisher by upserting the session for the event
func (r *Repository) Publish(ctx context.Context, event models.BroadcastEvent) error {
	if event.BroadcastID == "" {
		return nil
	}
	session := models.SessionFromStatus(event.Status)
	return r.UpsertSession(ctx, &session)
}

// UpsertSession inserts a session or updates it with the latest state
func (r *Repository) UpsertSession(ctx context.Context, s *models.BroadcastSession) error {
	start := time.Now()

	query := `
		INSERT INTO broadcast_sessions (
			id, state, source, destination, resolution, frame_rate, video_bitrate_kbps,
			audio_bitrate_kbps, loop, vertical_mode, pid, exit_reason, exit_code, signal,
			error, created_at, started_at, ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			pid = EXCLUDED.pid,
			exit_reason = EXCLUDED.exit_reason,
			exit_code = EXCLUDED.exit_code,
			signal = EXCLUDED.signal,
			error = EXCLUDED.error,
			started_at = COALESCE(EXCLUDED.started_at, broadcast_sessions.started_at),
			ended_at = EXCLUDED.ended_at,
			updated_at = NOW()
		RETURNING updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		s.ID, string(s.State), s.Source, s.Destination, s.Resolution, s.FrameRate,
		s.VideoBitrate, s.AudioBitrate, s.Loop, s.VerticalMode, s.PID, s.ExitReason,
		s.ExitCode, s.Signal, s.Error, s.CreatedAt, s.StartedAt, s.EndedAt,
	).Scan(&s.UpdatedAt)

	metrics.RecordDatabaseOperation("upsert_session", status(err), time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id string) (*models.BroadcastSession, error) {
	start := time.Now()

	query := `SELECT` + sessionColumns + `
		FROM broadcast_sessions
		WHERE id = $1
	`

	session, err := scanSession(r.db.Pool.QueryRow(ctx, query, id))
	metrics.RecordDatabaseOperation("get_session", status(err), time.Since(start).Seconds())

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// ListSessions returns sessions newest first
func (r *Repository) ListSessions(ctx context.Context, limit, offset int) ([]*models.BroadcastSession, error) {
	start := time.Now()

	query := `SELECT` + sessionColumns + `
		FROM broadcast_sessions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		metrics.RecordDatabaseOperation("list_sessions", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*models.BroadcastSession{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	err = rows.Err()
	metrics.RecordDatabaseOperation("list_sessions", status(err), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*models.BroadcastSession, error) {
	var s models.BroadcastSession
	var state string

	err := row.Scan(
		&s.ID, &state, &s.Source, &s.Destination, &s.Resolution, &s.FrameRate,
		&s.VideoBitrate, &s.AudioBitrate, &s.Loop, &s.VerticalMode, &s.PID,
		&s.ExitReason, &s.ExitCode, &s.Signal, &s.Error, &s.CreatedAt,
		&s.StartedAt, &s.EndedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.State = models.BroadcastState(state)

	return &s, nil
}

func status(err error) string {
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "error"
	}
	return "success"
}
