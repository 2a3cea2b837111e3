package intent

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var (
	leaderboardRe = regexp.MustCompile(`\b(leaderboard|leader board|scoreboard|standings|rankings?)\b`)
	latestGameRe  = regexp.MustCompile(`\b(latest|last|current|recent|ongoing)\s+(\w+\s+)?game\b`)
	startGameRe   = regexp.MustCompile(`\b(start|create|begin|new|launch|make|play|host)\b.*\bgames?\b|\bgames?\b.*\b(start|create|begin)\b`)
	helpRe        = regexp.MustCompile(`\b(help|rules|commands|how to play|what can you do)\b`)
	noBuyInInRe   = regexp.MustCompile(`\bno[\s-]*buy[\s-]*ins?\b`)
	numberTokenRe = regexp.MustCompile(`(^|[\s$(])(\d+(?:\.\d+)?|\.\d+)\s*(\$|[a-z]+)?`)
	punctRe       = regexp.MustCompile(`^[\s,:;!?]+|[\s,.:;!?]+$`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// RuleInterpreter classifies text with keyword patterns. It is deterministic and
// safe for concurrent use.
type RuleInterpreter struct {
	mu       sync.RWMutex
	triggers []string // lower-cased, longest first
}

// NewRuleInterpreter creates an interpreter that strips the given trigger phrases
// before matching.
func NewRuleInterpreter(triggers []string) *RuleInterpreter {
	r := &RuleInterpreter{}
	r.SetTriggers(triggers)
	return r
}

// SetTriggers replaces the trigger phrases (hot reload).
func (r *RuleInterpreter) SetTriggers(triggers []string) {
	ts := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			ts = append(ts, t)
		}
	}
	sort.Slice(ts, func(i, j int) bool { return len(ts[i]) > len(ts[j]) })
	r.mu.Lock()
	r.triggers = ts
	r.mu.Unlock()
}

// Interpret implements Interpreter.
func (r *RuleInterpreter) Interpret(_ context.Context, text string, state State) Intent {
	s := r.Normalize(text)

	if state.AwaitingBuyIn {
		if it, ok := ResolvePending(s); ok {
			return it
		}
	}

	switch {
	case s == "":
		return Intent{Kind: Help}
	case leaderboardRe.MatchString(s):
		return Intent{Kind: Leaderboard}
	case latestGameRe.MatchString(s):
		return Intent{Kind: LatestGame}
	case startGameRe.MatchString(s):
		return startGame(s)
	case helpRe.MatchString(s):
		return Intent{Kind: Help}
	}
	return Intent{Kind: Unrecognized}
}

// Normalize lower-cases text, removes trigger phrases and collapses whitespace.
func (r *RuleInterpreter) Normalize(text string) string {
	s := strings.ToLower(text)
	r.mu.RLock()
	for _, t := range r.triggers {
		s = strings.ReplaceAll(s, t, " ")
	}
	r.mu.RUnlock()
	s = spaceRe.ReplaceAllString(s, " ")
	return punctRe.ReplaceAllString(s, "")
}

// ResolvePending interprets normalized text as the answer to "how much is the buy-in?".
// ok is false when the text is not an answer at all and should be classified normally.
func ResolvePending(s string) (Intent, bool) {
	b := ParseBuyIn(s)
	if b.Kind != BuyInInvalid {
		return Intent{Kind: StartGame, BuyIn: b}, true
	}
	if isOtherCurrency(s) || (LooksLikeBuyIn(s) && !startGameRe.MatchString(s)) {
		return Intent{Kind: NeedsBuyInClarification}, true
	}
	return Intent{}, false
}

// startGame extracts the buy-in from a start-game sentence.
func startGame(s string) Intent {
	if noBuyInInRe.MatchString(s) {
		return Intent{Kind: StartGame, BuyIn: NoBuyIn()}
	}
	m := numberTokenRe.FindStringSubmatch(s)
	if m == nil {
		return Intent{Kind: NeedsBuyInClarification}
	}
	// Only a bare number, "$N", "N$" or "N usdc" is a stake. "2 players" is not.
	prefix, unit := m[1], m[3]
	if prefix != "$" && unit != "" && unit != "$" && unit != "usdc" {
		return Intent{Kind: NeedsBuyInClarification}
	}
	r, ok := parseDecimal(m[2])
	if !ok {
		return Intent{Kind: NeedsBuyInClarification}
	}
	return Intent{Kind: StartGame, BuyIn: Amount(r)}
}
