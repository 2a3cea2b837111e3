package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/squabble/internal/bus"
)

// ErrUnknownChannel is returned when a message names a channel that is not registered.
var ErrUnknownChannel = errors.New("unknown channel")

// preferredOrder decides the default channel for admin sends without an explicit channel.
var preferredOrder = []string{"bridge", "telegram", "discord"}

// Manager manages all registered channels, handling their lifecycle
// and routing outbound messages to the correct channel.
type Manager struct {
	channels     map[string]Channel
	bus          bus.MessageRouter
	dispatchTask *asyncTask
	mu           sync.RWMutex
}

type asyncTask struct {
	cancel context.CancelFunc
}

// NewManager creates a new channel manager.
// Channels are registered externally via RegisterChannel.
func NewManager(msgBus bus.MessageRouter) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

// StartAll starts all registered channels and the outbound dispatch loop.
// A channel that fails to start is logged and skipped.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchTask = &asyncTask{cancel: cancel}
	go m.dispatchOutbound(dispatchCtx)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	started := 0
	for name, channel := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := channel.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
			continue
		}
		started++
	}
	if started == 0 {
		return errors.New("no channel could be started")
	}
	slog.Info("channels started", "count", started)
	return nil
}

// StopAll gracefully stops all channels and the outbound dispatch loop.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dispatchTask != nil {
		m.dispatchTask.cancel()
		m.dispatchTask = nil
	}

	var errs []error
	for name, channel := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// dispatchOutbound delivers messages published to the bus outbound queue.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	slog.Debug("outbound dispatcher started")
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			slog.Debug("outbound dispatcher stopped")
			return
		}
		if err := m.Send(ctx, msg); err != nil {
			slog.Error("error sending message to channel", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// Send delivers a message synchronously through its channel.
// Callers that need ordering between consecutive sends rely on this being synchronous.
func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) error {
	ch, ok := m.GetChannel(msg.Channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, msg.Channel)
	}
	return ch.Send(ctx, msg)
}

// History returns recent messages of a conversation on the named channel.
func (m *Manager) History(ctx context.Context, channel, chatID string, limit int) ([]bus.HistoryEntry, error) {
	ch, ok := m.GetChannel(channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return ch.History(ctx, chatID, limit)
}

// Identity returns the agent's id on the named channel.
func (m *Manager) Identity(channel string) string {
	ch, ok := m.GetChannel(channel)
	if !ok {
		return ""
	}
	return ch.Identity()
}

// ListConversations gathers conversations from every channel that can enumerate them.
// A failing channel is logged and skipped so one transport outage does not hide the rest.
func (m *Manager) ListConversations(ctx context.Context, channel string, filter ConversationFilter) ([]Conversation, error) {
	var out []Conversation
	var lastErr error
	for _, name := range m.GetEnabledChannels() {
		if channel != "" && name != channel {
			continue
		}
		ch, _ := m.GetChannel(name)
		lister, ok := ch.(ConversationLister)
		if !ok {
			continue
		}
		convs, err := lister.ListConversations(ctx, filter)
		if err != nil {
			slog.Warn("list conversations failed", "channel", name, "error", err)
			lastErr = err
			continue
		}
		out = append(out, convs...)
	}
	if out == nil && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// DefaultChannel returns the preferred registered channel name, or "" if none.
func (m *Manager) DefaultChannel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range preferredOrder {
		if _, ok := m.channels[name]; ok {
			return name
		}
	}
	for name := range m.channels {
		return name
	}
	return ""
}

// GetStatus returns the running status of all channels.
func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]interface{})
	for name, channel := range m.channels {
		status[name] = map[string]interface{}{
			"running":  channel.IsRunning(),
			"identity": channel.Identity(),
		}
	}
	return status
}

// GetEnabledChannels returns the sorted names of all registered channels.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
