// Package agent is the message pipeline: it decides whether a message is for the
// agent, interprets it and executes the resulting game command.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/content"
	"github.com/nextlevelbuilder/squabble/internal/intent"
	"github.com/nextlevelbuilder/squabble/internal/sessions"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/squabble/internal/agent")

// Transport is what the dispatcher needs from the channel layer.
type Transport interface {
	Sender
	HistorySource
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Bus         bus.MessageRouter
	Transport   Transport
	Classifier  *Classifier
	Interpreter intent.Interpreter
	Executor    *Executor
	Sessions    *sessions.Manager
	Dedupe      *bus.DedupeCache

	RespondInDirect bool
	HintTrigger     string // trigger phrase quoted in the hint reply
}

// Dispatcher consumes inbound messages and answers each at most once.
type Dispatcher struct {
	cfg   DispatcherConfig
	queue *serialQueue

	mu              sync.RWMutex
	respondInDirect bool
	hintTrigger     string
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Dedupe == nil {
		cfg.Dedupe = bus.NewDedupeCache(20*time.Minute, 5000)
	}
	if cfg.HintTrigger == "" {
		cfg.HintTrigger = "@squabble"
	}
	return &Dispatcher{
		cfg:             cfg,
		queue:           newSerialQueue(),
		respondInDirect: cfg.RespondInDirect,
		hintTrigger:     cfg.HintTrigger,
	}
}

// SetRules updates the hot-reloadable dispatch settings.
func (d *Dispatcher) SetRules(respondInDirect bool, hintTrigger string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.respondInDirect = respondInDirect
	if hintTrigger != "" {
		d.hintTrigger = hintTrigger
	}
}

// Run consumes the bus until ctx is done, then waits for in-flight messages.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("dispatcher started")
	defer d.queue.Wait()
	for {
		msg, ok := d.cfg.Bus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("dispatcher stopped")
			return nil
		}
		d.Submit(ctx, msg)
	}
}

// Submit filters msg and queues it behind earlier messages from the same sender.
func (d *Dispatcher) Submit(ctx context.Context, msg bus.InboundMessage) {
	if !d.accept(msg) {
		return
	}
	key := msg.Channel + ":" + strings.ToLower(msg.SenderID)
	d.queue.Submit(ctx, key, func(ctx context.Context) { d.Handle(ctx, msg) })
}

// Wait blocks until every submitted message has been handled.
func (d *Dispatcher) Wait() { d.queue.Wait() }

func (d *Dispatcher) accept(msg bus.InboundMessage) bool {
	if msg.ChatID == "" {
		slog.Warn("dropping message without conversation", "channel", msg.Channel, "message_id", msg.MessageID)
		return false
	}
	if msg.ContentType == bus.ContentReaction {
		return false
	}
	if self := d.cfg.Transport.Identity(msg.Channel); self != "" && strings.EqualFold(self, msg.SenderID) {
		return false
	}
	if msg.MessageID != "" && d.cfg.Dedupe.IsDuplicate(msg.Channel+"|"+msg.ChatID+"|"+msg.MessageID) {
		slog.Debug("duplicate inbound message", "channel", msg.Channel, "message_id", msg.MessageID)
		return false
	}
	return true
}

// Handle runs the full pipeline for one message. It never panics and sends at
// most one reply beyond what the executor delivers itself.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.InboundMessage) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "squabble.dispatch", trace.WithAttributes(
		attribute.String("squabble.run_id", runID),
		attribute.String("squabble.channel", msg.Channel),
		attribute.String("squabble.conversation", msg.ChatID),
	))
	defer span.End()
	log := slog.With("run_id", runID, "channel", msg.Channel, "chat_id", msg.ChatID, "sender", msg.SenderID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panic", "panic", r)
			span.RecordError(fmt.Errorf("panic: %v", r))
		}
	}()

	text := content.Extract(msg)
	ref := sessions.Ref{
		Channel:        msg.Channel,
		Kind:           sessions.PeerKindOf(msg.Kind),
		ConversationID: msg.ChatID,
		UserID:         msg.SenderID,
	}
	state := d.cfg.Sessions.State(ctx, ref)

	if !d.addressed(ctx, msg, text, state) {
		if d.cfg.Classifier.IsHint(text) {
			log.Info("hint keyword without trigger")
			d.reply(ctx, log, msg, hintText(d.currentHintTrigger()))
		}
		return
	}

	it := d.interpret(ctx, text, state)
	log.Info("intent", "intent", it.String(), "awaiting_buy_in", state.AwaitingBuyIn)
	d.cfg.Sessions.Update(ctx, ref, intent.Next(it))

	res := d.cfg.Executor.Execute(ctx, it, Target{Channel: msg.Channel, ConversationID: msg.ChatID})
	span.SetAttributes(attribute.String("squabble.result", res.Kind.String()))
	if res.Kind == ReplyText {
		d.reply(ctx, log, msg, res.Text)
		return
	}
	log.Debug("executor delivered", "note", res.Note)
}

func (d *Dispatcher) addressed(ctx context.Context, msg bus.InboundMessage, text string, state intent.State) bool {
	if d.cfg.Classifier.ShouldRespond(ctx, msg, text) {
		return true
	}
	// A bare "0.5" or "no buy-in" answers an open question without a trigger.
	// Group chatter like "2 more minutes" must parse as a buy-in to count.
	if state.AwaitingBuyIn {
		if msg.Kind == bus.KindGroup {
			if intent.ParseBuyIn(text).Kind != intent.BuyInInvalid {
				return true
			}
		} else if intent.LooksLikeBuyIn(text) {
			return true
		}
	}
	d.mu.RLock()
	direct := d.respondInDirect
	d.mu.RUnlock()
	return direct && msg.Kind == bus.KindDirect && strings.TrimSpace(text) != ""
}

func (d *Dispatcher) interpret(ctx context.Context, text string, state intent.State) intent.Intent {
	ctx, span := tracer.Start(ctx, "squabble.interpret",
		trace.WithAttributes(attribute.Bool("squabble.awaiting_buy_in", state.AwaitingBuyIn)))
	defer span.End()
	it := d.cfg.Interpreter.Interpret(ctx, text, state)
	span.SetAttributes(attribute.String("squabble.intent", it.Kind.String()))
	return it
}

func (d *Dispatcher) currentHintTrigger() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hintTrigger
}

func (d *Dispatcher) reply(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, text string) {
	if text == "" {
		return
	}
	err := deliver(ctx, d.cfg.Transport, bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: text})
	if err != nil {
		log.Error("reply failed", "error", err)
	}
}
