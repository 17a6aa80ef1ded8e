// Package dispatcher manages worker fan-out over the request queue and keeps
// at most one pending run per signal through a lease.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/lease"
	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/queue"
	"github.com/JakeFAU/pulseflow/internal/worker"
)

// ErrInFlight is returned by Enqueue when the signal already has a queued or
// running request.
var ErrInFlight = errors.New("signal already in flight")

// Lease guards a signal against concurrent runs. Implementations shared
// between replicas must let any holder of the key release it.
type Lease interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
	Held(ctx context.Context, key string) (bool, error)
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLease replaces the default process-local lease.
func WithLease(l Lease) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.lease = l
		}
	}
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   queue.Queue
	workers []*worker.Worker
	lease   Lease
	logger  *zap.Logger
}

// New creates a Dispatcher running size workers against runner.
func New(q queue.Queue, runner worker.Runner, size int, logger *zap.Logger, opts ...Option) *Dispatcher {
	if size < 1 {
		size = 1
	}
	logger = logging.OrNop(logger)
	d := &Dispatcher{
		queue:  q,
		lease:  lease.NewMemory(),
		logger: logger.Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := 0; i < size; i++ {
		d.workers = append(d.workers, worker.New(i+1, q, runner, d.release, logger))
	}
	return d
}

// Run starts all workers and blocks until the context finishes or the queue
// closes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue forwards req to the queue unless its signal is already in flight.
func (d *Dispatcher) Enqueue(ctx context.Context, req queue.Request) error {
	acquired, err := d.lease.Acquire(ctx, req.SignalID)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		d.logger.Debug("dropping duplicate request", zap.String("signal_id", req.SignalID))
		return ErrInFlight
	}

	if err := d.queue.Enqueue(ctx, req); err != nil {
		d.release(req)
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// InFlight reports whether signalID has a queued or running request. Lease
// lookup errors are logged and reported as not in flight.
func (d *Dispatcher) InFlight(signalID string) bool {
	held, err := d.lease.Held(context.Background(), signalID)
	if err != nil {
		d.logger.Warn("lease lookup failed", zap.String("signal_id", signalID), zap.Error(err))
		return false
	}
	return held
}

func (d *Dispatcher) release(req queue.Request) {
	if err := d.lease.Release(context.Background(), req.SignalID); err != nil {
		d.logger.Warn("lease release failed", zap.String("signal_id", req.SignalID), zap.Error(err))
	}
}
