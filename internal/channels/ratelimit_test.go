package channels

import (
	"fmt"
	"testing"
	"time"
)

func TestFloodGuardRollover(t *testing.T) {
	g := NewFloodGuard(3, 10*time.Second)
	start := time.Unix(1000, 0)
	now := start
	g.now = func() time.Time { return now }

	steps := []struct {
		at   time.Duration
		want bool
	}{
		{0, true},
		{2 * time.Second, true},
		{4 * time.Second, true},
		{9 * time.Second, false}, // fourth in window
		{10 * time.Second, true}, // window restarts at 10s
		{15 * time.Second, true},
		{19 * time.Second, true},
		{19*time.Second + 999*time.Millisecond, false},
		{20 * time.Second, true}, // window started at 10s, not extended by rejects
	}
	for i, s := range steps {
		now = start.Add(s.at)
		if got := g.Allow("0xuser"); got != s.want {
			t.Fatalf("step %d at %v: Allow = %v, want %v", i, s.at, got, s.want)
		}
	}
}

func TestFloodGuardCapEviction(t *testing.T) {
	fill := func(g *FloodGuard) {
		for i := 0; i < maxTrackedKeys; i++ {
			g.Allow(fmt.Sprintf("sender-%d", i))
		}
	}

	t.Run("stale senders are pruned first", func(t *testing.T) {
		g := NewFloodGuard(1, time.Minute)
		now := time.Unix(0, 0)
		g.now = func() time.Time { return now }
		fill(g)

		now = now.Add(30 * time.Second)
		g.Allow("fresh")
		now = now.Add(31 * time.Second) // first batch stale, "fresh" is not
		if !g.Allow("newcomer") {
			t.Fatal("newcomer rejected")
		}
		if len(g.entries) != 2 {
			t.Fatalf("tracked = %d, want 2 after pruning", len(g.entries))
		}
		if g.Allow("fresh") {
			t.Fatal("fresh sender lost its count during pruning")
		}
	})

	t.Run("hard eviction keeps the map bounded", func(t *testing.T) {
		g := NewFloodGuard(1, time.Minute)
		now := time.Unix(0, 0)
		g.now = func() time.Time { return now }
		fill(g)

		if !g.Allow("newcomer") {
			t.Fatal("newcomer rejected at cap")
		}
		if len(g.entries) != maxTrackedKeys {
			t.Fatalf("tracked = %d, want %d", len(g.entries), maxTrackedKeys)
		}
	})
}
