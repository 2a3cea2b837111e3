// Package sqlite implements the session store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/squabble/internal/store"
)

const schema = `
PRAGMA busy_timeout = 5000;
CREATE TABLE IF NOT EXISTS conversation_sessions (
	session_key     TEXT PRIMARY KEY,
	channel         TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	pending         TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_sessions_updated ON conversation_sessions(updated_at);
`

// SessionStore implements store.SessionStore on SQLite. Timestamps are unix nanoseconds.
type SessionStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open creates the database file (and its directory) if needed and applies the schema.
func Open(path string, ttl time.Duration) (*SessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SessionStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *SessionStore) Get(ctx context.Context, key string) (*store.SessionData, error) {
	var (
		d                store.SessionData
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_key, channel, conversation_id, user_id, pending, created_at, updated_at
		 FROM conversation_sessions WHERE session_key = ?`, key,
	).Scan(&d.Key, &d.Channel, &d.ConversationID, &d.UserID, &d.Pending, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Created = time.Unix(0, created)
	d.Updated = time.Unix(0, updated)
	if s.ttl > 0 && s.now().Sub(d.Updated) > s.ttl {
		return nil, nil
	}
	return &d, nil
}

func (s *SessionStore) Save(ctx context.Context, d *store.SessionData) error {
	now := s.now()
	if d.Created.IsZero() {
		d.Created = now
	}
	d.Updated = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_sessions
		   (session_key, channel, conversation_id, user_id, pending, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET pending = excluded.pending, updated_at = excluded.updated_at`,
		d.Key, d.Channel, d.ConversationID, d.UserID, d.Pending, d.Created.UnixNano(), d.Updated.UnixNano(),
	)
	return err
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE session_key = ?`, key)
	return err
}

func (s *SessionStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE updated_at < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SessionStore) Close() error { return s.db.Close() }
