package agent

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/gameserver"
	"github.com/nextlevelbuilder/squabble/internal/intent"
)

// Unrecognized-intent policies.
const (
	PolicyFallback = "fallback"
	PolicySilent   = "silent"
)

// Sender delivers one text message to a conversation.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// GameAPI is the game server surface the executor drives.
type GameAPI interface {
	CreateGame(ctx context.Context, betAmount, conversationID string) (*gameserver.Game, error)
	Leaderboard(ctx context.Context, conversationID string) (*gameserver.Leaderboard, error)
	LatestGame(ctx context.Context, conversationID string) (*gameserver.Game, error)
}

// Target is the conversation an intent is executed for.
type Target struct {
	Channel        string
	ConversationID string
}

// ExecutorConfig holds the executor's tunables.
type ExecutorConfig struct {
	Name        string
	MinBuyIn    *big.Rat
	GameURLBase string
	Policy      string
	Timeout     time.Duration
}

// Executor performs the side effects of an intent. Every external call is
// attempted once, and failures become a fixed apology in the chat.
type Executor struct {
	game   GameAPI
	sender Sender

	mu  sync.RWMutex
	cfg ExecutorConfig
}

func NewExecutor(game GameAPI, sender Sender, cfg ExecutorConfig) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MinBuyIn == nil {
		cfg.MinBuyIn = big.NewRat(1, 2)
	}
	if cfg.Name == "" {
		cfg.Name = "Squabble"
	}
	return &Executor{game: game, sender: sender, cfg: cfg}
}

// SetRules updates the hot-reloadable settings.
func (e *Executor) SetRules(minBuyIn *big.Rat, policy string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if minBuyIn != nil {
		e.cfg.MinBuyIn = new(big.Rat).Set(minBuyIn)
	}
	e.cfg.Policy = policy
}

func (e *Executor) config() ExecutorConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Execute runs it against the target conversation.
func (e *Executor) Execute(ctx context.Context, it intent.Intent, tgt Target) ExecutionResult {
	cfg := e.config()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("squabble.intent", it.String()))

	switch it.Kind {
	case intent.Help:
		e.send(ctx, tgt, helpText(cfg.Name, formatRat(cfg.MinBuyIn)))
		return Sent("help")

	case intent.StartGame:
		return e.startGame(ctx, cfg, it.BuyIn, tgt)

	case intent.Leaderboard:
		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		lb, err := e.game.Leaderboard(callCtx, tgt.ConversationID)
		if err != nil {
			return e.fail(ctx, tgt, "leaderboard", err)
		}
		return Reply(RenderLeaderboard(lb))

	case intent.LatestGame:
		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		g, err := e.game.LatestGame(callCtx, tgt.ConversationID)
		if err != nil {
			return e.fail(ctx, tgt, "latest game", err)
		}
		e.send(ctx, tgt, msgLatestGame)
		e.send(ctx, tgt, gameURL(cfg.GameURLBase, g.ID))
		return Sent("latest game " + g.ID)

	case intent.NeedsBuyInClarification:
		return Reply(msgAskBuyIn)
	}

	if cfg.Policy == PolicySilent {
		return Sent("unrecognized, silent policy")
	}
	return Reply(msgUnrecognized)
}

func (e *Executor) startGame(ctx context.Context, cfg ExecutorConfig, b intent.BuyIn, tgt Target) ExecutionResult {
	switch b.Kind {
	case intent.BuyInNone:
	case intent.BuyInAmount:
		if b.Amount.Cmp(cfg.MinBuyIn) < 0 {
			e.send(ctx, tgt, belowMinimumText(b.Decimal(), formatRat(cfg.MinBuyIn)))
			return Sent("buy-in below minimum")
		}
	default:
		// Interpreters never produce this; treat it as an unanswered question.
		return Reply(msgAskBuyIn)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	g, err := e.game.CreateGame(callCtx, b.Decimal(), tgt.ConversationID)
	if err != nil {
		return e.fail(ctx, tgt, "create game", err)
	}
	slog.Info("game created", "game_id", g.ID, "buy_in", b.Decimal(), "conversation", tgt.ConversationID)
	e.send(ctx, tgt, msgGameCreated)
	e.send(ctx, tgt, gameURL(cfg.GameURLBase, g.ID))
	return Sent("created game " + g.ID)
}

func (e *Executor) fail(ctx context.Context, tgt Target, op string, err error) ExecutionResult {
	slog.Error("game server call failed", "op", op, "conversation", tgt.ConversationID, "error", err)
	trace.SpanFromContext(ctx).RecordError(err)
	e.send(ctx, tgt, msgApology)
	return Sent(op + " failed")
}

func (e *Executor) send(ctx context.Context, tgt Target, text string) {
	err := deliver(ctx, e.sender, bus.OutboundMessage{Channel: tgt.Channel, ChatID: tgt.ConversationID, Content: text})
	if err != nil {
		slog.Error("send failed", "channel", tgt.Channel, "chat_id", tgt.ConversationID, "error", err)
	}
}

// deliver sends one message under its own span.
func deliver(ctx context.Context, s Sender, msg bus.OutboundMessage) error {
	ctx, span := tracer.Start(ctx, "squabble.send", trace.WithAttributes(
		attribute.String("squabble.channel", msg.Channel),
		attribute.String("squabble.conversation", msg.ChatID),
	))
	defer span.End()
	err := s.Send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send")
	}
	return err
}

func formatRat(r *big.Rat) string {
	return intent.Amount(r).Decimal()
}
