package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/squabble/internal/bus"
)

const defaultHistoryWindow = 100

// HistorySource resolves reply references against recent conversation history.
type HistorySource interface {
	History(ctx context.Context, channel, chatID string, limit int) ([]bus.HistoryEntry, error)
	Identity(channel string) string
}

// Classifier decides whether an inbound message is addressed to the agent.
type Classifier struct {
	history HistorySource

	mu       sync.RWMutex
	triggers []string
	hints    []string
	window   int
}

func NewClassifier(history HistorySource, triggers, hints []string, window int) *Classifier {
	c := &Classifier{history: history}
	c.SetRules(triggers, hints, window)
	return c
}

// SetRules replaces trigger and hint phrases (hot reload).
func (c *Classifier) SetRules(triggers, hints []string, window int) {
	if window <= 0 {
		window = defaultHistoryWindow
	}
	c.mu.Lock()
	c.triggers = lowerAll(triggers)
	c.hints = lowerAll(hints)
	c.window = window
	c.mu.Unlock()
}

// ShouldRespond is true for a reply to one of the agent's own messages, or for
// text containing a trigger phrase in any casing.
func (c *Classifier) ShouldRespond(ctx context.Context, msg bus.InboundMessage, text string) bool {
	if msg.ReplyTo != "" && c.repliesToAgent(ctx, msg) {
		return true
	}
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return false
	}
	c.mu.RLock()
	triggers := c.triggers
	c.mu.RUnlock()
	return containsAny(s, triggers)
}

// IsHint reports text that mentions a bot keyword such as "/help" without a trigger.
func (c *Classifier) IsHint(text string) bool {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return false
	}
	c.mu.RLock()
	hints := c.hints
	c.mu.RUnlock()
	return containsAny(s, hints)
}

// repliesToAgent looks the referenced message up in the recent window.
// An unresolvable reference is a plain "no".
func (c *Classifier) repliesToAgent(ctx context.Context, msg bus.InboundMessage) bool {
	self := c.history.Identity(msg.Channel)
	if self == "" {
		return false
	}
	c.mu.RLock()
	window := c.window
	c.mu.RUnlock()

	entries, err := c.history.History(ctx, msg.Channel, msg.ChatID, window)
	if err != nil {
		slog.Debug("reply lookup failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		return false
	}
	for _, e := range entries {
		if e.ID == msg.ReplyTo {
			return strings.EqualFold(e.AuthorID, self)
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
