package agent

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/gameserver"
	"github.com/nextlevelbuilder/squabble/internal/intent"
	"github.com/nextlevelbuilder/squabble/internal/sessions"
)

const agentID = "0xagent"

type fakeTransport struct {
	mu      sync.Mutex
	sent    []bus.OutboundMessage
	sendErr error
	history []bus.HistoryEntry
	histErr error
}

func (f *fakeTransport) Send(_ context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) History(context.Context, string, string, int) ([]bus.HistoryEntry, error) {
	return f.history, f.histErr
}

func (f *fakeTransport) Identity(string) string { return agentID }

func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Content
	}
	return out
}

type fakeGame struct {
	mu        sync.Mutex
	creates   []string
	createErr error
	lb        *gameserver.Leaderboard
	lbErr     error
	latest    *gameserver.Game
}

func (g *fakeGame) CreateGame(_ context.Context, bet, _ string) (*gameserver.Game, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates = append(g.creates, bet)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &gameserver.Game{ID: "g1"}, nil
}

func (g *fakeGame) Leaderboard(context.Context, string) (*gameserver.Leaderboard, error) {
	return g.lb, g.lbErr
}

func (g *fakeGame) LatestGame(context.Context, string) (*gameserver.Game, error) {
	if g.latest == nil {
		return nil, &gameserver.HTTPError{StatusCode: 404}
	}
	return g.latest, nil
}

var triggers = []string{"@squabble", "@squabble.base.eth"}

func newTestDispatcher(tr *fakeTransport, game *fakeGame) *Dispatcher {
	exec := NewExecutor(game, tr, ExecutorConfig{
		MinBuyIn:    big.NewRat(1, 2),
		GameURLBase: "https://play.example",
		Policy:      PolicyFallback,
		Timeout:     time.Second,
	})
	return NewDispatcher(DispatcherConfig{
		Bus:         bus.New(),
		Transport:   tr,
		Classifier:  NewClassifier(tr, triggers, []string{"/help"}, 100),
		Interpreter: intent.NewRuleInterpreter(triggers),
		Executor:    exec,
		Sessions:    sessions.NewManager(sessions.NewMemoryStore(time.Hour, 100)),
	})
}

func textMsg(id, sender, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel: "bridge", MessageID: id, SenderID: sender, ChatID: "conv1",
		Kind: bus.KindGroup, ContentType: bus.ContentText, Payload: text,
	}
}

func TestClassifier(t *testing.T) {
	tr := &fakeTransport{history: []bus.HistoryEntry{
		{ID: "m1", AuthorID: agentID},
		{ID: "m2", AuthorID: "0xsomeone"},
	}}
	c := NewClassifier(tr, triggers, []string{"/help"}, 100)
	ctx := context.Background()

	tests := []struct {
		name    string
		replyTo string
		text    string
		want    bool
	}{
		{"trigger lower", "", "@squabble start", true},
		{"trigger mixed case", "", "hey @SqUaBbLe", true},
		{"trigger as substring", "", "yo@squabble.base.ethereum", true},
		{"no trigger", "", "start a game", false},
		{"empty", "", "   ", false},
		{"reply to agent", "m1", "sure", true},
		{"reply to agent with empty text", "m1", "", true},
		{"reply to someone else", "m2", "sure", false},
		{"reply outside window", "m9", "sure", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := textMsg("x", "0xuser", tt.text)
			msg.ReplyTo = tt.replyTo
			if got := c.ShouldRespond(ctx, msg, tt.text); got != tt.want {
				t.Fatalf("ShouldRespond(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}

	t.Run("history failure is not a reply", func(t *testing.T) {
		c := NewClassifier(&fakeTransport{histErr: errors.New("offline")}, triggers, nil, 0)
		msg := textMsg("x", "0xuser", "sure")
		msg.ReplyTo = "m1"
		if c.ShouldRespond(ctx, msg, "sure") {
			t.Fatal("unresolvable reply treated as addressed")
		}
	})

	if !c.IsHint("type /HELP") || c.IsHint("hello") {
		t.Fatal("IsHint mismatch")
	}
}

func TestExecutorMinimumBuyIn(t *testing.T) {
	ctx := context.Background()
	tgt := Target{Channel: "bridge", ConversationID: "conv1"}

	t.Run("below minimum makes no call", func(t *testing.T) {
		tr, game := &fakeTransport{}, &fakeGame{}
		e := NewExecutor(game, tr, ExecutorConfig{MinBuyIn: big.NewRat(1, 2)})
		res := e.Execute(ctx, intent.Intent{Kind: intent.StartGame, BuyIn: intent.Amount(big.NewRat(2, 5))}, tgt)
		if res.Kind != DirectlySent || len(game.creates) != 0 {
			t.Fatalf("result %v, creates %v", res, game.creates)
		}
		if texts := tr.texts(); len(texts) != 1 || !strings.Contains(texts[0], "minimum") {
			t.Fatalf("sent %q", texts)
		}
	})

	t.Run("at minimum creates once", func(t *testing.T) {
		tr, game := &fakeTransport{}, &fakeGame{}
		e := NewExecutor(game, tr, ExecutorConfig{MinBuyIn: big.NewRat(1, 2), GameURLBase: "https://play.example/"})
		res := e.Execute(ctx, intent.Intent{Kind: intent.StartGame, BuyIn: intent.Amount(big.NewRat(1, 2))}, tgt)
		if res.Kind != DirectlySent || len(game.creates) != 1 || game.creates[0] != "0.5" {
			t.Fatalf("result %v, creates %v", res, game.creates)
		}
		texts := tr.texts()
		if len(texts) != 2 || texts[1] != "https://play.example/game/g1" {
			t.Fatalf("sent %q", texts)
		}
	})
}

func TestExecutorResults(t *testing.T) {
	ctx := context.Background()
	tgt := Target{Channel: "bridge", ConversationID: "conv1"}

	t.Run("leaderboard is a reply", func(t *testing.T) {
		game := &fakeGame{lb: &gameserver.Leaderboard{TotalFinishedGames: 3, Entries: []gameserver.LeaderboardEntry{
			{Username: "cat", Points: 20, Wins: 1, TotalGames: 2, TotalWinnings: "1.5"},
		}}}
		tr := &fakeTransport{}
		res := NewExecutor(game, tr, ExecutorConfig{}).Execute(ctx, intent.Intent{Kind: intent.Leaderboard}, tgt)
		if res.Kind != ReplyText || !strings.Contains(res.Text, "1. cat") || !strings.Contains(res.Text, "1/2 wins") {
			t.Fatalf("result = %+v", res)
		}
		if len(tr.texts()) != 0 {
			t.Fatal("executor sent directly for a reply result")
		}
	})

	t.Run("empty leaderboard", func(t *testing.T) {
		res := NewExecutor(&fakeGame{lb: &gameserver.Leaderboard{}}, &fakeTransport{}, ExecutorConfig{}).
			Execute(ctx, intent.Intent{Kind: intent.Leaderboard}, tgt)
		if res.Text != msgNoGames {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("leaderboard failure apologizes", func(t *testing.T) {
		tr := &fakeTransport{}
		res := NewExecutor(&fakeGame{lbErr: errors.New("down")}, tr, ExecutorConfig{}).
			Execute(ctx, intent.Intent{Kind: intent.Leaderboard}, tgt)
		if res.Kind != DirectlySent || len(tr.texts()) != 1 || tr.texts()[0] != msgApology {
			t.Fatalf("result %+v, sent %q", res, tr.texts())
		}
	})

	t.Run("latest game sends announcement then url", func(t *testing.T) {
		tr := &fakeTransport{}
		e := NewExecutor(&fakeGame{latest: &gameserver.Game{ID: "g7"}}, tr, ExecutorConfig{GameURLBase: "https://p"})
		e.Execute(ctx, intent.Intent{Kind: intent.LatestGame}, tgt)
		if texts := tr.texts(); len(texts) != 2 || texts[0] != msgLatestGame || texts[1] != "https://p/game/g7" {
			t.Fatalf("sent %q", texts)
		}
	})

	t.Run("unrecognized policy", func(t *testing.T) {
		e := NewExecutor(&fakeGame{}, &fakeTransport{}, ExecutorConfig{Policy: PolicyFallback})
		if res := e.Execute(ctx, intent.Intent{}, tgt); res.Kind != ReplyText {
			t.Fatalf("fallback policy result = %+v", res)
		}
		e.SetRules(nil, PolicySilent)
		if res := e.Execute(ctx, intent.Intent{}, tgt); res.Kind != DirectlySent {
			t.Fatalf("silent policy result = %+v", res)
		}
	})
}

func TestDispatcherScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("start without buy-in asks for amount", func(t *testing.T) {
		tr, game := &fakeTransport{}, &fakeGame{}
		d := newTestDispatcher(tr, game)
		d.Handle(ctx, textMsg("1", "0xuser", "@squabble start game"))
		if texts := tr.texts(); len(texts) != 1 || texts[0] != msgAskBuyIn {
			t.Fatalf("sent %q", texts)
		}
	})

	t.Run("no buy-in follow-up creates a free game", func(t *testing.T) {
		tr, game := &fakeTransport{}, &fakeGame{}
		d := newTestDispatcher(tr, game)
		d.Handle(ctx, textMsg("1", "0xuser", "@squabble start game"))
		d.Handle(ctx, textMsg("2", "0xuser", "no buy-in"))
		if len(game.creates) != 1 || game.creates[0] != "0" {
			t.Fatalf("creates = %v", game.creates)
		}
		texts := tr.texts()
		if len(texts) != 3 || texts[1] != msgGameCreated || !strings.HasSuffix(texts[2], "/game/g1") {
			t.Fatalf("sent %q", texts)
		}
	})

	t.Run("follow-up from another user is ignored", func(t *testing.T) {
		tr, game := &fakeTransport{}, &fakeGame{}
		d := newTestDispatcher(tr, game)
		d.Handle(ctx, textMsg("1", "0xuser", "@squabble start game"))
		d.Handle(ctx, textMsg("2", "0xother", "no buy-in"))
		if len(game.creates) != 0 || len(tr.texts()) != 1 {
			t.Fatalf("creates %v, sent %q", game.creates, tr.texts())
		}
	})

	t.Run("group chatter while awaiting buy-in is ignored", func(t *testing.T) {
		tr, game := &fakeTransport{}, &fakeGame{}
		d := newTestDispatcher(tr, game)
		d.Handle(ctx, textMsg("1", "0xuser", "@squabble start game"))
		d.Handle(ctx, textMsg("2", "0xuser", "2 more minutes"))
		d.Handle(ctx, textMsg("3", "0xuser", "10 players"))
		if len(game.creates) != 0 || len(tr.texts()) != 1 {
			t.Fatalf("creates %v, sent %q", game.creates, tr.texts())
		}
		d.Handle(ctx, textMsg("4", "0xuser", "0.5"))
		if len(game.creates) != 1 || game.creates[0] != "0.5" {
			t.Fatalf("creates = %v", game.creates)
		}
	})

	t.Run("direct follow-up in another currency is clarified", func(t *testing.T) {
		tr, game := &fakeTransport{}, &fakeGame{}
		d := newTestDispatcher(tr, game)
		start := textMsg("1", "0xuser", "@squabble start game")
		start.Kind = bus.KindDirect
		d.Handle(ctx, start)
		follow := textMsg("2", "0xuser", "5 eth")
		follow.Kind = bus.KindDirect
		d.Handle(ctx, follow)
		if texts := tr.texts(); len(game.creates) != 0 || len(texts) != 2 || texts[1] != msgAskBuyIn {
			t.Fatalf("creates %v, sent %q", game.creates, texts)
		}
	})

	t.Run("create failure sends one apology", func(t *testing.T) {
		tr := &fakeTransport{}
		game := &fakeGame{createErr: &gameserver.HTTPError{StatusCode: 500}}
		d := newTestDispatcher(tr, game)
		d.Handle(ctx, textMsg("1", "0xuser", "@squabble start game 1 usdc"))
		if len(game.creates) != 1 {
			t.Fatalf("creates = %v, want exactly one attempt", game.creates)
		}
		if texts := tr.texts(); len(texts) != 1 || texts[0] != msgApology {
			t.Fatalf("sent %q", texts)
		}
	})

	t.Run("reply to non-agent message is ignored", func(t *testing.T) {
		tr := &fakeTransport{history: []bus.HistoryEntry{{ID: "m1", AuthorID: "0xsomeone"}}}
		game := &fakeGame{}
		d := newTestDispatcher(tr, game)
		msg := textMsg("1", "0xuser", "nice one")
		msg.ContentType = bus.ContentReply
		msg.ReplyTo = "m1"
		msg.Payload = map[string]interface{}{"content": "nice one"}
		d.Handle(ctx, msg)
		if len(tr.texts()) != 0 || len(game.creates) != 0 {
			t.Fatalf("sent %q", tr.texts())
		}
	})

	t.Run("hint keyword gets a hint", func(t *testing.T) {
		tr := &fakeTransport{}
		d := newTestDispatcher(tr, &fakeGame{})
		d.Handle(ctx, textMsg("1", "0xuser", "/help"))
		if texts := tr.texts(); len(texts) != 1 || !strings.Contains(texts[0], "@squabble") {
			t.Fatalf("sent %q", texts)
		}
	})

	t.Run("help is sent directly once", func(t *testing.T) {
		tr := &fakeTransport{}
		d := newTestDispatcher(tr, &fakeGame{})
		d.Handle(ctx, textMsg("1", "0xuser", "@squabble"))
		if texts := tr.texts(); len(texts) != 1 || !strings.Contains(texts[0], "0.5 USDC") {
			t.Fatalf("sent %q", texts)
		}
	})
}

func TestDispatcherSubmitFilters(t *testing.T) {
	ctx := context.Background()
	tr, game := &fakeTransport{}, &fakeGame{}
	d := newTestDispatcher(tr, game)

	d.Submit(ctx, textMsg("1", "0xuser", "@squabble start game 1"))
	d.Submit(ctx, textMsg("1", "0xuser", "@squabble start game 1")) // duplicate
	d.Submit(ctx, textMsg("2", agentID, "@squabble start game 1"))  // self
	reaction := textMsg("3", "0xuser", "@squabble start game 1")
	reaction.ContentType = bus.ContentReaction
	d.Submit(ctx, reaction)
	noChat := textMsg("4", "0xuser", "@squabble start game 1")
	noChat.ChatID = ""
	d.Submit(ctx, noChat)
	d.Wait()

	if len(game.creates) != 1 {
		t.Fatalf("creates = %v, want 1", game.creates)
	}
}

func TestSerialQueueOrder(t *testing.T) {
	q := newSerialQueue()
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 50; i++ {
		i := i
		q.Submit(context.Background(), "k", func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Wait()
	for i, v := range got {
		if v != i {
			t.Fatalf("job %d ran at position %d", v, i)
		}
	}
	if len(got) != 50 {
		t.Fatalf("ran %d jobs", len(got))
	}
}
