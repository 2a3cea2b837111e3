// Package intent maps canonical message text to structured game commands.
package intent

import (
	"context"
	"fmt"
)

// Kind tags an Intent variant.
type Kind int

const (
	Unrecognized Kind = iota
	Help
	StartGame
	Leaderboard
	LatestGame
	NeedsBuyInClarification
)

var kindNames = map[Kind]string{
	Unrecognized:            "unrecognized",
	Help:                    "help",
	StartGame:               "start_game",
	Leaderboard:             "leaderboard",
	LatestGame:              "latest_game",
	NeedsBuyInClarification: "needs_buy_in",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Intent is the interpreted command. BuyIn is meaningful only for StartGame.
type Intent struct {
	Kind  Kind
	BuyIn BuyIn
}

func (i Intent) String() string {
	if i.Kind == StartGame {
		return fmt.Sprintf("%s{%s}", i.Kind, i.BuyIn)
	}
	return i.Kind.String()
}

// State is the short-term dialogue memory the interpreter consults.
type State struct {
	AwaitingBuyIn bool
}

// Next returns the dialogue state after it has been handled: a buy-in is awaited
// only after Help or a start-game request without a usable amount.
func Next(it Intent) State {
	return State{AwaitingBuyIn: it.Kind == Help || it.Kind == NeedsBuyInClarification}
}

// Interpreter maps canonical text plus dialogue state to an Intent.
// Implementations never fail: unusable input is Unrecognized.
type Interpreter interface {
	Interpret(ctx context.Context, text string, state State) Intent
}
