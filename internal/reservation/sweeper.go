package reservation

import (
	"context"
	"log"
	"time"
)

// SessionPruner removes expired session rows; satisfied by the
// session repository. Optional — the sweeper runs without it.
type SessionPruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper runs the periodic expiry pass: stale reservations move to
// expired (with queue promotion) and lapsed session rows are pruned.
// It is the only long-running task in the process besides the event
// consumer; all per-request work stays in the handlers.
type Sweeper struct {
	engine   *Engine
	sessions SessionPruner // optional
	interval time.Duration
}

// NewSweeper builds a Sweeper. interval defaults to one minute.
func NewSweeper(engine *Engine, sessions SessionPruner, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{engine: engine, sessions: sessions, interval: interval}
}

// Run blocks until ctx is cancelled, sweeping once per interval. An
// immediate first pass clears anything that expired while the process
// was down.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now().UTC()
	expired, err := s.engine.ExpireStale(ctx, now)
	if err != nil {
		log.Printf("sweeper: expire pass failed: %v", err)
	} else if expired > 0 {
		log.Printf("sweeper: expired %d reservation(s)", expired)
	}
	if s.sessions != nil {
		pruned, err := s.sessions.DeleteExpired(ctx, now)
		if err != nil {
			log.Printf("sweeper: session prune failed: %v", err)
		} else if pruned > 0 {
			log.Printf("sweeper: pruned %d expired session(s)", pruned)
		}
	}
}
