package intent

import (
	"context"
	"testing"
)

var testTriggers = []string{"@squabble", "@squabble.base.eth"}

func TestRuleInterpreter(t *testing.T) {
	r := NewRuleInterpreter(testTriggers)
	ctx := context.Background()

	tests := []struct {
		name     string
		text     string
		awaiting bool
		want     Kind
		decimal  string
	}{
		{"bare trigger", "@squabble", false, Help, ""},
		{"help", "@squabble help", false, Help, ""},
		{"long trigger is stripped whole", "@squabble.base.eth how to play?", false, Help, ""},
		{"start without amount", "@squabble start game", false, NeedsBuyInClarification, ""},
		{"start with amount", "@squabble start a game 0.5 usdc", false, StartGame, "0.5"},
		{"start with dollar amount", "@squabble create game for $1", false, StartGame, "1"},
		{"start no buy-in", "@squabble start game no buy-in", false, StartGame, "0"},
		{"start with other currency", "@squabble start game 5 eth", false, NeedsBuyInClarification, ""},
		{"start with trailing dollar", "@squabble start a game for 3$", false, StartGame, "3"},
		{"start with dollar before noun", "@squabble start a $5 game", false, StartGame, "5"},
		{"player count is not a buy-in", "@squabble start a game for 2 players", false, NeedsBuyInClarification, ""},
		{"delay is not a buy-in", "@squabble start a game in 10 minutes", false, NeedsBuyInClarification, ""},
		{"friend count is not a buy-in", "@squabble create a game with 4 friends", false, NeedsBuyInClarification, ""},
		{"usdc after number", "@squabble start a game for 2 usdc", false, StartGame, "2"},
		{"leaderboard", "@SQUABBLE Leaderboard please", false, Leaderboard, ""},
		{"latest game", "@squabble what's the latest game?", false, LatestGame, ""},
		{"unrecognized", "@squabble what's the weather", false, Unrecognized, ""},
		{"pending amount", "0.5", true, StartGame, "0.5"},
		{"pending no buy-in", "no buy-in", true, StartGame, "0"},
		{"pending other currency", "5 eth", true, NeedsBuyInClarification, ""},
		{"pending but new command", "@squabble leaderboard", true, Leaderboard, ""},
		{"amount without pending", "0.5", false, Unrecognized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Interpret(ctx, tt.text, State{AwaitingBuyIn: tt.awaiting})
			if got.Kind != tt.want {
				t.Fatalf("Interpret(%q) = %v, want %v", tt.text, got, tt.want)
			}
			if tt.want == StartGame && got.BuyIn.Decimal() != tt.decimal {
				t.Errorf("buy-in = %q, want %q", got.BuyIn.Decimal(), tt.decimal)
			}
		})
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{Help, true},
		{NeedsBuyInClarification, true},
		{StartGame, false},
		{Leaderboard, false},
		{LatestGame, false},
		{Unrecognized, false},
	}
	for _, tt := range tests {
		if got := Next(Intent{Kind: tt.kind}).AwaitingBuyIn; got != tt.want {
			t.Errorf("Next(%v).AwaitingBuyIn = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestSetTriggers(t *testing.T) {
	r := NewRuleInterpreter([]string{"@old"})
	r.SetTriggers([]string{" @New "})
	if got := r.Normalize("@new help"); got != "help" {
		t.Fatalf("Normalize = %q, want %q", got, "help")
	}
}
