// Package bridge connects the agent to the encrypted messaging network through a
// local sidecar that owns the network session. The sidecar speaks the JSON frames
// in pkg/protocol over a websocket.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
	"github.com/nextlevelbuilder/squabble/internal/config"
	"github.com/nextlevelbuilder/squabble/pkg/protocol"
)

const (
	minBackoff  = time.Second
	maxBackoff  = 30 * time.Second
	callTimeout = 15 * time.Second
)

var errNotConnected = errors.New("bridge: not connected")

// Channel is the messaging-network transport.
type Channel struct {
	*channels.BaseChannel
	config config.BridgeConfig

	mu     sync.RWMutex
	client *rpcClient

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg config.BridgeConfig, msgBus bus.MessageRouter) (*Channel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bridge: url is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("bridge", msgBus, cfg.AllowFrom, cfg.FloodPerMinute),
		config:      cfg,
	}, nil
}

// Start dials the sidecar once, resolves the agent identity and keeps the
// connection alive in the background, reconnecting with backoff.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting bridge channel", "url", c.config.URL)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	client, err := dial(ctx, c.config.URL, c.config.Token)
	if err != nil {
		cancel()
		return err
	}

	c.cancel = cancel
	c.done = make(chan struct{})
	c.SetRunning(true)
	go c.run(runCtx, client)
	return nil
}

// Stop closes the connection and stops reconnecting.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping bridge channel")
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.client != nil {
		c.client.close()
	}
	c.mu.Unlock()
	if c.done != nil {
		select {
		case <-c.done:
		case <-time.After(5 * time.Second):
		}
	}
	return nil
}

func (c *Channel) run(ctx context.Context, client *rpcClient) {
	defer close(c.done)
	backoff := minBackoff
	for {
		if client != nil {
			c.setClient(client)
			go c.resolveIdentity(ctx, client)
			started := time.Now()
			err := client.readLoop(ctx, c.handleEvent)
			c.setClient(nil)
			if ctx.Err() != nil {
				return
			}
			code, reason := closeInfo(err)
			slog.Warn("bridge disconnected", "code", code, "reason", reason)
			if time.Since(started) > maxBackoff {
				backoff = minBackoff
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)

		var err error
		client, err = dial(ctx, c.config.URL, c.config.Token)
		if err != nil {
			slog.Warn("bridge reconnect failed", "error", err, "next_attempt", backoff)
			client = nil
		} else {
			slog.Info("bridge reconnected")
		}
	}
}

func (c *Channel) resolveIdentity(ctx context.Context, client *rpcClient) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	var id protocol.IdentityResult
	if err := client.call(ctx, protocol.MethodIdentityGet, nil, &id); err != nil {
		slog.Warn("bridge identity lookup failed", "error", err)
		return
	}
	c.SetIdentity(id.Address)
	slog.Info("bridge identity", "address", id.Address)
}

func (c *Channel) setClient(client *rpcClient) {
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
}

func (c *Channel) current() (*rpcClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, errNotConnected
	}
	return c.client, nil
}

func (c *Channel) call(ctx context.Context, method string, params, out interface{}) error {
	client, err := c.current()
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}
	return client.call(ctx, method, params, out)
}

// Send delivers one text message to a conversation.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	var res protocol.SendResult
	return c.call(ctx, protocol.MethodConversationSend, protocol.SendParams{
		ConversationID: msg.ChatID,
		Text:           msg.Content,
	}, &res)
}

// History returns up to limit recent messages, newest first.
func (c *Channel) History(ctx context.Context, chatID string, limit int) ([]bus.HistoryEntry, error) {
	var msgs []protocol.Message
	if err := c.call(ctx, protocol.MethodConversationHistory, protocol.HistoryParams{
		ConversationID: chatID,
		Limit:          limit,
	}, &msgs); err != nil {
		return nil, err
	}
	out := make([]bus.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, bus.HistoryEntry{
			ID:       m.ID,
			AuthorID: m.SenderAddress,
			Text:     m.Fallback,
			SentAt:   time.Unix(0, m.SentAtNs),
		})
	}
	return out, nil
}

// ListConversations enumerates conversations known to the sidecar.
func (c *Channel) ListConversations(ctx context.Context, filter channels.ConversationFilter) ([]channels.Conversation, error) {
	params := protocol.ListParams{ConsentStates: filter.ConsentStates}
	switch filter.Kind {
	case bus.KindDirect:
		params.Kind = protocol.KindDirect
	case bus.KindGroup:
		params.Kind = protocol.KindGroup
	}
	var convs []protocol.Conversation
	if err := c.call(ctx, protocol.MethodConversationsList, params, &convs); err != nil {
		return nil, err
	}
	out := make([]channels.Conversation, 0, len(convs))
	for _, cv := range convs {
		out = append(out, channels.Conversation{
			Channel:      c.Name(),
			ID:           cv.ID,
			Kind:         kindOf(cv.Kind),
			Name:         cv.Name,
			ConsentState: cv.ConsentState,
		})
	}
	return out, nil
}

func (c *Channel) handleEvent(ev *protocol.EventFrame) {
	switch ev.Event {
	case protocol.EventMessage:
		var m protocol.Message
		if err := json.Unmarshal(ev.Payload, &m); err != nil {
			slog.Warn("bridge: bad message event", "error", err)
			return
		}
		c.HandleMessage(toInbound(m))
	case protocol.EventReady:
		slog.Info("bridge sidecar ready")
	case protocol.EventClosing:
		slog.Info("bridge sidecar closing")
	}
}

// toInbound maps a sidecar message onto the bus. Reply payloads keep whatever
// shape the sender's client produced; the fallback string rides along for
// clients that send no structured content.
func toInbound(m protocol.Message) bus.InboundMessage {
	msg := bus.InboundMessage{
		MessageID:   m.ID,
		SenderID:    m.SenderAddress,
		ChatID:      m.ConversationID,
		Kind:        kindOf(m.ConversationKind),
		ContentType: contentTypeOf(m.ContentType),
		ReplyTo:     m.ReplyTo,
	}
	if m.SentAtNs > 0 {
		msg.ReceivedAt = time.Unix(0, m.SentAtNs)
	}

	var payload interface{}
	if len(m.Content) > 0 {
		if err := json.Unmarshal(m.Content, &payload); err != nil {
			payload = string(m.Content)
		}
	}
	if m.Fallback != "" {
		switch p := payload.(type) {
		case nil:
			payload = m.Fallback
		case map[string]interface{}:
			if _, ok := p["fallback"]; !ok {
				p["fallback"] = m.Fallback
			}
		}
	}
	msg.Payload = payload
	return msg
}

func kindOf(k string) bus.ConversationKind {
	if k == protocol.KindDirect {
		return bus.KindDirect
	}
	return bus.KindGroup
}

func contentTypeOf(ct string) bus.ContentType {
	switch ct {
	case protocol.ContentText:
		return bus.ContentText
	case protocol.ContentReply:
		return bus.ContentReply
	case protocol.ContentReaction:
		return bus.ContentReaction
	}
	return bus.ContentOther
}
