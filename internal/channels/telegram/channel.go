// Package telegram connects the agent to Telegram via Bot API long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
	"github.com/nextlevelbuilder/squabble/internal/config"
)

const (
	historySize          = 100
	historyConversations = 1000
	maxMessageLen        = 4096
)

// Channel connects to Telegram via the Bot API using long polling.
// The Bot API has no history endpoint, so recent messages are recorded locally.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	config     config.TelegramConfig
	history    *channels.HistoryRecorder
	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when polling goroutine exits
}

// New creates a new Telegram channel from config.
func New(cfg config.TelegramConfig, msgBus bus.MessageRouter) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus, cfg.AllowFrom, cfg.FloodPerMinute),
		bot:         bot,
		config:      cfg,
		history:     channels.NewHistoryRecorder(historySize, historyConversations),
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("fetch telegram bot identity: %w", err)
	}
	c.SetIdentity(strconv.FormatInt(me.ID, 10))

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", me.Username, "id", me.ID)

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()
	return nil
}

// Stop cancels long polling and waits for the polling goroutine to exit.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling did not stop in time")
		}
	}
	return nil
}

// Send delivers a text message and records it so replies to it can be recognized.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}
	text := msg.Content
	if len([]rune(text)) > maxMessageLen {
		text = string([]rune(text)[:maxMessageLen])
	}
	sent, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	c.history.Record(msg.ChatID, bus.HistoryEntry{
		ID:       strconv.Itoa(sent.MessageID),
		AuthorID: c.Identity(),
		Text:     text,
		SentAt:   time.Unix(sent.Date, 0),
	})
	return nil
}

// History returns recently seen messages of a chat, newest first.
func (c *Channel) History(_ context.Context, chatID string, limit int) ([]bus.HistoryEntry, error) {
	return c.history.Recent(chatID, limit), nil
}

func (c *Channel) handleMessage(m *telego.Message) {
	if m.From == nil || m.Text == "" {
		return
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	senderID := strconv.FormatInt(m.From.ID, 10)

	if r := m.ReplyToMessage; r != nil && r.From != nil {
		c.history.Record(chatID, bus.HistoryEntry{
			ID:       strconv.Itoa(r.MessageID),
			AuthorID: strconv.FormatInt(r.From.ID, 10),
			Text:     r.Text,
			SentAt:   time.Unix(r.Date, 0),
		})
	}
	c.history.Record(chatID, bus.HistoryEntry{
		ID:       strconv.Itoa(m.MessageID),
		AuthorID: senderID,
		Text:     m.Text,
		SentAt:   time.Unix(m.Date, 0),
	})

	msg := bus.InboundMessage{
		MessageID:   strconv.Itoa(m.MessageID),
		SenderID:    senderID,
		ChatID:      chatID,
		Kind:        kindOf(m.Chat.Type),
		ContentType: bus.ContentText,
		Payload:     m.Text,
		Metadata:    map[string]string{"username": m.From.Username},
	}
	if r := m.ReplyToMessage; r != nil {
		msg.ContentType = bus.ContentReply
		msg.ReplyTo = strconv.Itoa(r.MessageID)
		msg.Payload = map[string]interface{}{"text": m.Text}
	}

	slog.Debug("telegram message received",
		"chat_id", chatID,
		"chat_type", m.Chat.Type,
		"sender_id", senderID,
		"preview", channels.Truncate(m.Text, 50),
	)
	c.HandleMessage(msg)
}

func kindOf(chatType string) bus.ConversationKind {
	if chatType == telego.ChatTypePrivate {
		return bus.KindDirect
	}
	return bus.KindGroup
}
