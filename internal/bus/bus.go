package bus

import (
	"context"
	"log/slog"
)

const defaultBufferSize = 256

// MessageBus is a buffered in-process queue between channels and the dispatcher.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// New creates a MessageBus with the default buffer size.
func New() *MessageBus {
	return NewWithBuffer(defaultBufferSize)
}

// NewWithBuffer creates a MessageBus whose queues hold up to size messages.
func NewWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
	}
}

// PublishInbound enqueues a message from a channel. It blocks when the queue is full
// so transports apply backpressure instead of dropping messages.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	if len(b.inbound) == cap(b.inbound) {
		slog.Warn("bus: inbound queue full, publisher blocked", "channel", msg.Channel)
	}
	b.inbound <- msg
}

// ConsumeInbound blocks until a message arrives or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a message for asynchronous delivery by the channel manager.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until an outbound message arrives or ctx is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}
