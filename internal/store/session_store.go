// Package store defines the persistence contracts for conversation sessions.
package store

import (
	"context"
	"time"
)

// PendingBuyIn marks a session whose last agent turn asked for a buy-in amount.
const PendingBuyIn = "buy_in"

// SessionData is the short-term dialogue state of one user in one conversation.
type SessionData struct {
	Key            string    `json:"key"`
	Channel        string    `json:"channel"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Pending        string    `json:"pending,omitempty"` // "" or PendingBuyIn
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
}

// SessionStore persists per-user session state. Implementations must be safe for
// concurrent use across different keys; writes to one key are serialized by the caller.
type SessionStore interface {
	// Get returns the session, or nil (and no error) when absent or expired.
	Get(ctx context.Context, key string) (*SessionData, error)
	Save(ctx context.Context, s *SessionData) error
	Delete(ctx context.Context, key string) error
	// Prune removes sessions last updated before the cutoff and returns how many went.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}
