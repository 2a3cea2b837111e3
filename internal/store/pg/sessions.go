// Package pg implements the session store on Postgres. The schema is managed by
// the migrations in the repository's migrations directory.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/squabble/internal/store"
)

// PGSessionStore implements store.SessionStore backed by Postgres.
type PGSessionStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewPGSessionStore(db *sql.DB, ttl time.Duration) *PGSessionStore {
	return &PGSessionStore{db: db, ttl: ttl, now: time.Now}
}

func (s *PGSessionStore) Get(ctx context.Context, key string) (*store.SessionData, error) {
	var d store.SessionData
	err := s.db.QueryRowContext(ctx,
		`SELECT session_key, channel, conversation_id, user_id, pending, created_at, updated_at
		 FROM conversation_sessions WHERE session_key = $1`, key,
	).Scan(&d.Key, &d.Channel, &d.ConversationID, &d.UserID, &d.Pending, &d.Created, &d.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.ttl > 0 && s.now().Sub(d.Updated) > s.ttl {
		return nil, nil
	}
	return &d, nil
}

func (s *PGSessionStore) Save(ctx context.Context, d *store.SessionData) error {
	now := s.now()
	if d.Created.IsZero() {
		d.Created = now
	}
	d.Updated = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_sessions
		   (id, session_key, channel, conversation_id, user_id, pending, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_key) DO UPDATE
		   SET pending = EXCLUDED.pending, updated_at = EXCLUDED.updated_at`,
		uuid.Must(uuid.NewV7()), d.Key, d.Channel, d.ConversationID, d.UserID, d.Pending, d.Created, d.Updated,
	)
	return err
}

func (s *PGSessionStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE session_key = $1`, key)
	return err
}

func (s *PGSessionStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE updated_at < $1`, before)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PGSessionStore) Close() error { return s.db.Close() }
