package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is what the session sweeper needs from the session registry.
type Sweeper interface {
	Sweep(cutoff time.Time) int
}

// SessionSweeper periodically drops checkout sessions that have been idle for
// longer than ttl. Sessions with a flow in progress are never dropped.
type SessionSweeper struct {
	sessions Sweeper
	interval time.Duration
	ttl      time.Duration
	onTick   []func(ctx context.Context) // extra periodic housekeeping, e.g. pool stats
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSessionSweeper(sessions Sweeper, interval, ttl time.Duration, logger *zerolog.Logger, onTick ...func(ctx context.Context)) *SessionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionSweeper{sessions: sessions, interval: interval, ttl: ttl, onTick: onTick, log: logger, now: time.Now}
}

func (w *SessionSweeper) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *SessionSweeper) tick(ctx context.Context) {
	if n := w.sessions.Sweep(w.now().Add(-w.ttl)); n > 0 {
		w.log.Info().Int("removed", n).Msg("session-sweeper: dropped idle checkouts")
	}
	for _, fn := range w.onTick {
		fn(ctx)
	}
}
