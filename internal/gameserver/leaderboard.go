package gameserver

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// LeaderboardEntry is one player's standing in a conversation.
type LeaderboardEntry struct {
	Address       string `json:"address"`
	DisplayName   string `json:"displayName,omitempty"`
	Username      string `json:"username,omitempty"`
	Points        int    `json:"points"`
	Wins          int    `json:"wins"`
	TotalGames    int    `json:"totalGames"`
	TotalWinnings Amount `json:"totalWinnings"`
}

// Name is the best available label for the player.
func (e LeaderboardEntry) Name() string {
	switch {
	case e.Username != "":
		return e.Username
	case e.DisplayName != "":
		return e.DisplayName
	}
	return shortAddress(e.Address)
}

func shortAddress(a string) string {
	if len(a) <= 10 {
		return a
	}
	return a[:6] + "…" + a[len(a)-4:]
}

// SortLeaderboard orders entries by points then wins, both descending.
// Entries that tie on both keep their server order.
func SortLeaderboard(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].Wins > entries[j].Wins
	})
}

// Amount is a decimal the server may send as a JSON number or string.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = "0"
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// String renders the amount in its shortest decimal form.
func (a Amount) String() string {
	f, err := strconv.ParseFloat(string(a), 64)
	if err != nil {
		if a == "" {
			return "0"
		}
		return string(a)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
