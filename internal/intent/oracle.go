package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/squabble/internal/providers"
)

const oracleInstructions = `You route chat messages for Squabble, a multiplayer word game.
Call exactly one tool for every message:
- show_help: the user asks how to play, what you can do, or only greets you.
- start_game: the user wants a new game. Pass buy_in exactly as written ("0.5", "1 usdc", "no buy-in"). Leave buy_in empty if none was given.
- get_leaderboard: the user asks for rankings, standings or scores.
- get_latest_game: the user asks for the current, last or latest game.
- ask_buy_in: the user wants a game but the stake is unclear or in a currency other than USDC.
If nothing applies, answer with plain text and call no tool.`

// Tool names the oracle may select.
const (
	toolShowHelp    = "show_help"
	toolStartGame   = "start_game"
	toolLeaderboard = "get_leaderboard"
	toolLatestGame  = "get_latest_game"
	toolAskBuyIn    = "ask_buy_in"
)

func oracleTools() []providers.ToolDefinition {
	noArgs := map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	def := func(name, desc string, params map[string]interface{}) providers.ToolDefinition {
		return providers.ToolDefinition{
			Type:     "function",
			Function: providers.ToolFunctionSchema{Name: name, Description: desc, Parameters: params},
		}
	}
	return []providers.ToolDefinition{
		def(toolShowHelp, "Explain the game rules and available commands.", noArgs),
		def(toolStartGame, "Create a new game in this conversation.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"buy_in": map[string]interface{}{
					"type":        "string",
					"description": "Buy-in as written by the user, e.g. \"0.5\", \"2 USDC\" or \"no buy-in\".",
				},
			},
		}),
		def(toolLeaderboard, "Show the leaderboard for this conversation.", noArgs),
		def(toolLatestGame, "Show the most recent game for this conversation.", noArgs),
		def(toolAskBuyIn, "Ask the user for a buy-in amount in USDC.", noArgs),
	}
}

// OracleConfig tunes an OracleInterpreter.
type OracleConfig struct {
	Model          string
	MaxInputTokens int
	Timeout        time.Duration
}

// OracleInterpreter delegates classification to a language model and parses its
// tool selection. Buy-in amounts are always re-parsed locally, so the model never
// decides what reaches the game server. Any provider failure falls back to rules.
type OracleInterpreter struct {
	provider providers.Provider
	rules    *RuleInterpreter
	cfg      OracleConfig
}

func NewOracleInterpreter(p providers.Provider, rules *RuleInterpreter, cfg OracleConfig) *OracleInterpreter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &OracleInterpreter{provider: p, rules: rules, cfg: cfg}
}

// Interpret implements Interpreter.
func (o *OracleInterpreter) Interpret(ctx context.Context, text string, state State) Intent {
	s := o.rules.Normalize(text)
	if state.AwaitingBuyIn {
		if it, ok := ResolvePending(s); ok {
			return it
		}
	}
	if s == "" {
		return Intent{Kind: Help}
	}

	it, err := o.ask(ctx, text)
	if err != nil {
		slog.Warn("oracle interpret failed, using rules", "provider", o.provider.Name(), "error", err)
		return o.rules.Interpret(ctx, text, state)
	}
	return it
}

func (o *OracleInterpreter) ask(ctx context.Context, text string) (Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	input := providers.TruncateTokens(text, o.cfg.MaxInputTokens)
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.Debug("oracle request", "provider", o.provider.Name(), "input_tokens", providers.CountTokens(input))
	}

	resp, err := o.provider.Chat(ctx, providers.ChatRequest{
		Model: o.cfg.Model,
		Messages: []providers.Message{
			{Role: "system", Content: oracleInstructions},
			{Role: "user", Content: input},
		},
		Tools: oracleTools(),
	})
	if err != nil {
		return Intent{}, err
	}
	if len(resp.ToolCalls) == 0 {
		return Intent{}, fmt.Errorf("no tool selected")
	}
	return fromToolCall(resp.ToolCalls[0]), nil
}

func fromToolCall(tc providers.ToolCall) Intent {
	switch tc.Name {
	case toolShowHelp:
		return Intent{Kind: Help}
	case toolLeaderboard:
		return Intent{Kind: Leaderboard}
	case toolLatestGame:
		return Intent{Kind: LatestGame}
	case toolAskBuyIn:
		return Intent{Kind: NeedsBuyInClarification}
	case toolStartGame:
		raw, _ := tc.Arguments["buy_in"].(string)
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return Intent{Kind: NeedsBuyInClarification}
		}
		b := ParseBuyIn(raw)
		if b.Kind == BuyInInvalid {
			return Intent{Kind: NeedsBuyInClarification}
		}
		return Intent{Kind: StartGame, BuyIn: b}
	}
	return Intent{Kind: Unrecognized}
}
