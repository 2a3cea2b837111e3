// Package channels provides the transport abstraction for chat networks.
// Channels connect an external network (messaging bridge, Telegram, Discord) to the
// dispatcher via the message bus, and expose send, history and identity primitives.
package channels

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/squabble/internal/bus"
)

// Channel defines the interface that all transports must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "bridge", "telegram", "discord").
	Name() string

	// Start connects and begins pushing inbound messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers one text message to a conversation.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// History returns up to limit of the most recent messages in a conversation, newest first.
	History(ctx context.Context, chatID string, limit int) ([]bus.HistoryEntry, error)

	// Identity is the agent's own sender id on this network. Empty until started.
	Identity() string

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool
}

// Conversation is a conversation known to a transport.
type Conversation struct {
	Channel      string               `json:"channel"`
	ID           string               `json:"id"`
	Kind         bus.ConversationKind `json:"kind"`
	Name         string               `json:"name,omitempty"`
	ConsentState string               `json:"consentState,omitempty"`
}

// ConversationFilter narrows ListConversations.
type ConversationFilter struct {
	ConsentStates []string
	Kind          bus.ConversationKind // empty = any
}

// ConversationLister is implemented by transports that can enumerate conversations.
type ConversationLister interface {
	ListConversations(ctx context.Context, filter ConversationFilter) ([]Conversation, error)
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	bus       bus.MessageRouter
	allowList []string
	flood     *FloodGuard

	mu       sync.RWMutex
	running  bool
	identity string
}

// NewBaseChannel creates a new BaseChannel. floodPerMinute <= 0 disables the flood guard.
func NewBaseChannel(name string, msgBus bus.MessageRouter, allowList []string, floodPerMinute int) *BaseChannel {
	c := &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
	}
	if floodPerMinute > 0 {
		c.flood = NewFloodGuard(floodPerMinute, time.Minute)
	}
	return c
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) {
	c.mu.Lock()
	c.running = running
	c.mu.Unlock()
}

// Identity returns the agent's own id on this network.
func (c *BaseChannel) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// SetIdentity records the agent's own id, resolved at Start.
func (c *BaseChannel) SetIdentity(id string) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

// Bus returns the message router reference.
func (c *BaseChannel) Bus() bus.MessageRouter { return c.bus }

// IsAllowed checks if a sender is permitted by the allowlist.
// Empty allowlist means all senders are allowed. Matching is case-insensitive
// so wallet addresses and usernames compare regardless of casing, and a
// leading "@" on allowlist entries is ignored.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}
	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		if strings.EqualFold(senderID, trimmed) || strings.EqualFold(idPart, trimmed) ||
			(userPart != "" && strings.EqualFold(userPart, trimmed)) {
			return true
		}
	}
	return false
}

// HandleMessage applies the allowlist and flood guard, then publishes to the bus.
// This is the standard way for channels to forward received messages.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) bool {
	if !c.IsAllowed(msg.SenderID) {
		return false
	}
	if c.flood != nil && !c.flood.Allow(msg.SenderID) {
		return false
	}
	msg.Channel = c.name
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	if msg.Kind == "" {
		msg.Kind = bus.KindGroup
	}
	c.bus.PublishInbound(msg)
	return true
}

// Truncate shortens a string to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
