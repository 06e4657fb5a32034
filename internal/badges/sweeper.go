package badges

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sweepTimeout bounds one expiry sweep against the store.
const sweepTimeout = 2 * time.Minute

// Sweeper periodically removes expired badges so a lapsed sale badge
// disappears without waiting for the next rule evaluation run.
type Sweeper struct {
	engine   *Engine
	logger   *slog.Logger
	interval time.Duration

	stop      chan struct{} // Signal to stop sweep goroutine
	done      chan struct{} // Signal sweep has stopped
	closeOnce sync.Once
}

// NewSweeper starts the expiry sweep goroutine. Call Close to stop it.
func NewSweeper(engine *Engine, interval time.Duration, logger *slog.Logger) *Sweeper {
	sweeper := &Sweeper{
		engine:   engine,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go sweeper.run()

	return sweeper
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (s *Sweeper) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
	})

	return nil
}

// run sweeps on every tick until Close signals stop.
func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.logger.Info("Stopping badge expiry sweeper")

			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs one expiry pass. Failures are logged, not fatal; the next tick
// retries.
func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	correlationID := uuid.New().String()

	removals, err := s.engine.RemoveExpiredBadges(ctx, correlationID)
	if err != nil {
		s.logger.Error("Badge expiry sweep failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		return
	}

	if len(removals) == 0 {
		return
	}

	badgeCount := 0
	for _, removal := range removals {
		badgeCount += len(removal.Badges)
	}

	s.logger.Info("Badge expiry sweep removed badges",
		slog.String("correlation_id", correlationID),
		slog.Int("products", len(removals)),
		slog.Int("badges", badgeCount),
	)
}
