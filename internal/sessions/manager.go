package sessions

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/squabble/internal/intent"
	"github.com/nextlevelbuilder/squabble/internal/store"
)

// Manager translates between stored sessions and interpreter dialogue state.
// Callers serialize access per key; the Manager itself adds no locking.
type Manager struct {
	store store.SessionStore
}

func NewManager(s store.SessionStore) *Manager {
	return &Manager{store: s}
}

// Store returns the backing store.
func (m *Manager) Store() store.SessionStore { return m.store }

// Ref identifies the session of one user in one conversation.
type Ref struct {
	Channel        string
	Kind           PeerKind
	ConversationID string
	UserID         string
}

func (r Ref) Key() string { return BuildKey(r.Channel, r.Kind, r.ConversationID, r.UserID) }

// State loads the dialogue state. A store failure yields the empty state, so a
// broken backend degrades to "no memory" rather than failing the message.
func (m *Manager) State(ctx context.Context, ref Ref) intent.State {
	s, err := m.store.Get(ctx, ref.Key())
	if err != nil {
		slog.Warn("session load failed", "key", ref.Key(), "error", err)
		return intent.State{}
	}
	if s == nil {
		return intent.State{}
	}
	return intent.State{AwaitingBuyIn: s.Pending == store.PendingBuyIn}
}

// Update records the state that follows a handled intent.
func (m *Manager) Update(ctx context.Context, ref Ref, st intent.State) {
	key := ref.Key()
	d, err := m.store.Get(ctx, key)
	if err != nil {
		slog.Warn("session load failed", "key", key, "error", err)
	}
	if d == nil {
		if !st.AwaitingBuyIn {
			return
		}
		d = &store.SessionData{
			Key:            key,
			Channel:        ref.Channel,
			ConversationID: ref.ConversationID,
			UserID:         ref.UserID,
		}
	}
	d.Pending = ""
	if st.AwaitingBuyIn {
		d.Pending = store.PendingBuyIn
	}
	if err := m.store.Save(ctx, d); err != nil {
		slog.Warn("session save failed", "key", key, "error", err)
	}
}
