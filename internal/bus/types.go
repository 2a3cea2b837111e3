package bus

import (
	"context"
	"time"
)

// ContentType tags the shape of an inbound payload.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentReply    ContentType = "reply"
	ContentReaction ContentType = "reaction"
	ContentOther    ContentType = "other"
)

// ConversationKind distinguishes direct conversations from groups.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// InboundMessage represents a message received from a channel (bridge, Telegram, Discord).
// Payload holds the decoded content: a string for text, usually a map for replies.
type InboundMessage struct {
	Channel     string            `json:"channel"`
	MessageID   string            `json:"message_id"`
	SenderID    string            `json:"sender_id"`
	ChatID      string            `json:"chat_id"`
	Kind        ConversationKind  `json:"kind"`
	ContentType ContentType       `json:"content_type"`
	Payload     interface{}       `json:"payload,omitempty"`
	ReplyTo     string            `json:"reply_to,omitempty"` // id of the message being replied to
	ReceivedAt  time.Time         `json:"received_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HistoryEntry is one message from a conversation's recent history.
type HistoryEntry struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"author_id"`
	Text     string    `json:"text,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

// MessageRouter abstracts inbound/outbound message routing between channels and the dispatcher.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
