// Package discord connects the agent to Discord through the bot gateway.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
	"github.com/nextlevelbuilder/squabble/internal/config"
)

const (
	maxMessageLen = 2000
	// Discord returns at most 100 messages per history request.
	maxHistoryPage = 100
)

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session *discordgo.Session
	config  config.DiscordConfig
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, msgBus bus.MessageRouter) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus, cfg.AllowFrom, cfg.FloodPerMinute),
		session:     session,
		config:      cfg,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.SetIdentity(user.ID)
	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel, split at 2000 characters.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}
	for _, chunk := range splitMessage(msg.Content, maxMessageLen) {
		if _, err := c.session.ChannelMessageSend(msg.ChatID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// History returns the most recent messages in a Discord channel, newest first.
func (c *Channel) History(ctx context.Context, chatID string, limit int) ([]bus.HistoryEntry, error) {
	if limit <= 0 || limit > maxHistoryPage {
		limit = maxHistoryPage
	}
	msgs, err := c.session.ChannelMessages(chatID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord history: %w", err)
	}
	out := make([]bus.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		e := bus.HistoryEntry{ID: m.ID, Text: m.Content, SentAt: m.Timestamp}
		if m.Author != nil {
			e.AuthorID = m.Author.ID
		}
		out = append(out, e)
	}
	return out, nil
}

// handleMessage converts a gateway message into an inbound bus message.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.Identity() || m.Author.Bot {
		return
	}

	kind := bus.KindGroup
	if m.GuildID == "" {
		kind = bus.KindDirect
	}

	msg := bus.InboundMessage{
		MessageID:   m.ID,
		SenderID:    m.Author.ID,
		ChatID:      m.ChannelID,
		Kind:        kind,
		ContentType: bus.ContentText,
		Payload:     c.expandMentions(m),
		Metadata: map[string]string{
			"username":     m.Author.Username,
			"display_name": resolveDisplayName(m),
			"guild_id":     m.GuildID,
		},
	}
	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		msg.ContentType = bus.ContentReply
		msg.ReplyTo = ref.MessageID
		msg.Payload = map[string]interface{}{"content": msg.Payload}
	}

	slog.Debug("discord message received",
		"sender_id", m.Author.ID,
		"channel_id", m.ChannelID,
		"is_dm", kind == bus.KindDirect,
		"preview", channels.Truncate(m.Content, 50),
	)
	c.HandleMessage(msg)
}

// expandMentions rewrites a mention of the bot as "@{botname}" so trigger phrases
// written as Discord mentions still match.
func (c *Channel) expandMentions(m *discordgo.MessageCreate) string {
	text := m.Content
	for _, u := range m.Mentions {
		if u.ID != c.Identity() {
			continue
		}
		name := "@" + strings.ToLower(u.Username)
		text = strings.ReplaceAll(text, "<@"+u.ID+">", name)
		text = strings.ReplaceAll(text, "<@!"+u.ID+">", name)
	}
	return text
}

// resolveDisplayName returns the best available display name for a Discord message author.
// Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// splitMessage breaks content into chunks of at most maxLen bytes, preferring newlines.
func splitMessage(content string, maxLen int) []string {
	var chunks []string
	for len(content) > maxLen {
		cutAt := maxLen
		if idx := strings.LastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, content[:cutAt])
		content = content[cutAt:]
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}
