// Package worker implements the pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/metrics"
	"github.com/JakeFAU/pulseflow/internal/pipeline"
	"github.com/JakeFAU/pulseflow/internal/queue"
	"github.com/JakeFAU/pulseflow/internal/retry"
)

// dequeueBackoff spaces out retries after a transport error.
const dequeueBackoff = time.Second

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error)
}

// DoneFunc is called after every processed request, whatever its outcome.
type DoneFunc func(req queue.Request)

// Worker consumes queue requests and runs the pipeline for each.
type Worker struct {
	id     int
	queue  queue.Queue
	runner Runner
	done   DoneFunc
	logger *zap.Logger
}

// New constructs a Worker. done may be nil.
func New(id int, q queue.Queue, runner Runner, done DoneFunc, logger *zap.Logger) *Worker {
	return &Worker{
		id:     id,
		queue:  q,
		runner: runner,
		done:   done,
		logger: logging.OrNop(logger).Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming requests until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			if retry.Pause(ctx, dequeueBackoff) != nil {
				return
			}
			continue
		}
		w.logger.Debug("dequeued request", zap.String("signal_id", req.SignalID))
		w.process(ctx, req)
	}
}

func (w *Worker) process(ctx context.Context, req queue.Request) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	if w.done != nil {
		defer w.done(req)
	}

	outcome, err := w.runner.Run(ctx, pipeline.Request{SignalID: req.SignalID, DryRun: req.DryRun})
	if err != nil {
		w.logger.Error("pipeline run failed",
			zap.String("signal_id", req.SignalID),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("pipeline run completed",
		zap.String("signal_id", req.SignalID),
		zap.String("status", string(outcome.Status)),
		zap.String("pulse_id", outcome.PulseID),
		zap.Duration("queued_for", time.Since(req.RequestedAt)),
	)
}
