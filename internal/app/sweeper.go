package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// IdleEvicter drops in-memory sessions untouched since before a cutoff.
type IdleEvicter interface {
	EvictIdle(now time.Time) int
}

// IdleSessionSweeper periodically evicts idle interview sessions so memory
// stays bounded by active users.
type IdleSessionSweeper struct {
	sessions IdleEvicter
	interval time.Duration
	now      func() time.Time
}

// NewIdleSessionSweeper returns nil when sessions is nil.
func NewIdleSessionSweeper(sessions IdleEvicter, interval time.Duration) *IdleSessionSweeper {
	if sessions == nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &IdleSessionSweeper{sessions: sessions, interval: interval, now: time.Now}
}

// Run sweeps until ctx is done.
func (s *IdleSessionSweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("idle session sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *IdleSessionSweeper) sweepOnce(ctx context.Context) int {
	_, span := otel.Tracer("sessions.sweeper").Start(ctx, "IdleSessionSweeper.sweepOnce")
	defer span.End()

	n := s.sessions.EvictIdle(s.now())
	span.SetAttributes(attribute.Int("sessions.evicted", n))
	if n > 0 {
		slog.Info("evicted idle sessions", slog.Int("count", n))
	}
	return n
}
