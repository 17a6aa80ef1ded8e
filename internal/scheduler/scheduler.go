// Package scheduler periodically enqueues signals whose scrape interval has
// elapsed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/dispatcher"
	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/metrics"
	"github.com/JakeFAU/pulseflow/internal/queue"
	"github.com/JakeFAU/pulseflow/internal/store"
)

// DefaultTick is the interval between sweeps.
const DefaultTick = time.Minute

// SignalLister returns signals due at now.
type SignalLister interface {
	ListDueSignals(ctx context.Context, now time.Time) ([]store.Signal, error)
}

// Enqueuer accepts scrape requests. dispatcher.ErrInFlight marks a request
// dropped because the signal is already being processed.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.Request) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Scheduler sweeps for due signals.
type Scheduler struct {
	signals SignalLister
	enqueue Enqueuer
	clock   Clock
	tick    time.Duration
	logger  *zap.Logger
}

// New constructs a Scheduler. A non-positive tick selects DefaultTick.
func New(signals SignalLister, enqueue Enqueuer, clock Clock, tick time.Duration, logger *zap.Logger) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		signals: signals,
		enqueue: enqueue,
		clock:   clock,
		tick:    tick,
		logger:  logging.OrNop(logger).Named("scheduler"),
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("dispatched due signals", zap.Int("count", n))
	}
}

// Sweep enqueues every due signal once and returns how many were accepted.
// Signals already in flight are skipped silently.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.signals.ListDueSignals(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due signals: %w", err)
	}

	dispatched := 0
	var errs []error
	for _, signal := range due {
		if ctx.Err() != nil {
			break
		}
		err := s.enqueue.Enqueue(ctx, queue.Request{SignalID: signal.ID, RequestedAt: now})
		switch {
		case err == nil:
			dispatched++
		case errors.Is(err, dispatcher.ErrInFlight):
			s.logger.Debug("signal still in flight", zap.String("signal_id", signal.ID))
		default:
			errs = append(errs, fmt.Errorf("enqueue %s: %w", signal.ID, err))
		}
	}
	metrics.ObserveDispatched(dispatched)
	return dispatched, errors.Join(errs...)
}
