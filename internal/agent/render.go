package agent

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/squabble/internal/gameserver"
)

const (
	nameColumns       = 16
	maxLeaderboardRow = 10
)

// User-facing messages.
const (
	msgApology      = "Sorry, something went wrong on my side. Please try again in a moment."
	msgAskBuyIn     = "How much should the buy-in be? Reply with an amount in USDC (e.g. 0.5) or \"no buy-in\"."
	msgUnrecognized = "I didn't catch that. I can start a game, show the leaderboard or the latest game. Say \"help\" for the rules."
	msgNoGames      = "No finished games in this chat yet. Start one and claim the top spot!"
	msgGameCreated  = "🎮 New Squabble game is ready! Tap the link to join:"
	msgLatestGame   = "Here's the latest game in this chat:"
)

func helpText(name, minBuyIn string) string {
	return fmt.Sprintf(`👋 I'm %s, your Squabble host.

Squabble is a fast word game: everyone gets the same letter grid and races to build words before the clock runs out. Highest score takes the pot.

What I can do:
• "start a game for 1 USDC" creates a game with a buy-in (minimum %s USDC)
• "start a game, no buy-in" creates a free game
• "leaderboard" shows the standings in this chat
• "latest game" links the most recent game

Mention me or reply to one of my messages to talk to me.`, name, minBuyIn)
}

func hintText(trigger string) string {
	return fmt.Sprintf("Looking for the game host? Mention %s and say \"help\".", trigger)
}

func belowMinimumText(amount, minimum string) string {
	return fmt.Sprintf("The minimum buy-in is %s USDC, %s USDC is too low. Pick a higher amount or say \"no buy-in\".", minimum, amount)
}

// RenderLeaderboard formats sorted entries as a ranked list, as sent to chat.
func RenderLeaderboard(lb *gameserver.Leaderboard) string {
	if lb == nil || len(lb.Entries) == 0 {
		return msgNoGames
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏆 Leaderboard (%d games played)\n", lb.TotalFinishedGames)
	for i, e := range lb.Entries {
		if i == maxLeaderboardRow {
			fmt.Fprintf(&sb, "…and %d more", len(lb.Entries)-maxLeaderboardRow)
			break
		}
		name := runewidth.FillRight(runewidth.Truncate(e.Name(), nameColumns, "…"), nameColumns)
		fmt.Fprintf(&sb, "%d. %s %d pts · %d/%d wins · %s USDC\n",
			i+1, name, e.Points, e.Wins, e.TotalGames, e.TotalWinnings)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func gameURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/game/" + id
}
