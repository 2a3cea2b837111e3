package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/squabble/internal/store"
)

// Pruner deletes sessions idle longer than ttl on a cron schedule.
type Pruner struct {
	store    store.SessionStore
	schedule string
	ttl      time.Duration
	now      func() time.Time
}

func NewPruner(s store.SessionStore, schedule string, ttl time.Duration) (*Pruner, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid prune schedule %q", schedule)
	}
	return &Pruner{store: s, schedule: schedule, ttl: ttl, now: time.Now}, nil
}

// Run blocks until ctx is done, pruning at every tick of the schedule.
func (p *Pruner) Run(ctx context.Context) error {
	for {
		next, err := gronx.NextTickAfter(p.schedule, p.now(), false)
		if err != nil {
			return fmt.Errorf("next prune tick: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		p.PruneOnce(ctx)
	}
}

// PruneOnce removes sessions last updated more than ttl ago.
func (p *Pruner) PruneOnce(ctx context.Context) int {
	n, err := p.store.Prune(ctx, p.now().Add(-p.ttl))
	if err != nil {
		slog.Warn("session prune failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("sessions pruned", "count", n)
	}
	return n
}
