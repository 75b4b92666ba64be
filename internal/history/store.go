// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package history records which channels were watched.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	tvlog "github.com/ManuGH/livetv/internal/log"
	"github.com/ManuGH/livetv/internal/persistence/sqlite"
	"github.com/rs/zerolog"
)

// MaxLimit caps Recent.
const MaxLimit = 500

// Entry is one watched stream.
type Entry struct {
	ID          int64     `json:"id"`
	PlaylistID  string    `json:"playlistId"`
	ChannelURL  string    `json:"channelUrl"`
	ChannelName string    `json:"channelName"`
	SessionID   string    `json:"sessionId,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
}

const schema = `
CREATE TABLE IF NOT EXISTS watch_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	playlist_id  TEXT NOT NULL,
	channel_url  TEXT NOT NULL,
	channel_name TEXT NOT NULL,
	session_id   TEXT NOT NULL DEFAULT '',
	started_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_watch_history_started ON watch_history(started_at DESC);
`

// Store persists watch history in SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens or creates the history database at path. An existing file is
// integrity-checked first; corruption is logged but does not block startup.
func Open(ctx context.Context, path string) (*Store, error) {
	logger := tvlog.WithComponent("history")

	if _, err := os.Stat(path); err == nil {
		issues, verr := sqlite.VerifyIntegrity(ctx, path, "quick")
		switch {
		case verr != nil:
			logger.Warn().Err(verr).Str(tvlog.FieldEvent, "history.verify_failed").Msg("integrity check could not run")
		case len(issues) > 0:
			logger.Error().Strs("issues", issues).Str(tvlog.FieldEvent, "history.corrupt").Msg("history database reports corruption")
		}
	}

	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}

	logger.Info().Str("path", path).Str(tvlog.FieldEvent, "history.opened").Msg("watch history ready")
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Record appends an entry. A zero StartedAt is set to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ChannelURL == "" {
		return errors.New("history: channel url is required")
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watch_history (playlist_id, channel_url, channel_name, session_id, started_at) VALUES (?, ?, ?, ?, ?)`,
		e.PlaylistID, e.ChannelURL, e.ChannelName, e.SessionID, e.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit is clamped to
// [1, MaxLimit].
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, playlist_id, channel_url, channel_name, session_id, started_at
		 FROM watch_history ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var started int64
		if err := rows.Scan(&e.ID, &e.PlaylistID, &e.ChannelURL, &e.ChannelName, &e.SessionID, &started); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.StartedAt = time.UnixMilli(started).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
