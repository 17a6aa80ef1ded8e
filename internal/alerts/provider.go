// Package alerts delivers change notifications by email and webhook.
package alerts

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/apperr"
	"github.com/JakeFAU/pulseflow/internal/changes"
	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/metrics"
	"github.com/JakeFAU/pulseflow/internal/retry"
)

// Channel is a delivery medium.
type Channel string

// Supported channels.
const (
	ChannelEmail   Channel = "EMAIL"
	ChannelWebhook Channel = "WEBHOOK"
)

// Signal identifies the monitored source an alert is about.
type Signal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Options describes one alert delivery.
type Options struct {
	Destination string
	Signal      Signal
	Change      changes.Result
	PulseID     string
	DryRun      bool
}

// DeliveryResult reports a delivery attempt.
type DeliveryResult struct {
	Success      bool      `json:"success"`
	Channel      Channel   `json:"channel"`
	Destination  string    `json:"destination"`
	DeliveredAt  time.Time `json:"deliveredAt"`
	DryRun       bool      `json:"dryRun"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Provider sends alerts over one channel.
type Provider interface {
	Channel() Channel
	ValidateDestination(destination string) bool
	Send(ctx context.Context, opts Options) (DeliveryResult, error)
}

// SendFunc performs a single delivery attempt. Errors tagged with a
// non-retryable apperr.Kind end the retry loop; untagged errors are retried.
type SendFunc func(ctx context.Context, opts Options) (DeliveryResult, error)

type wrapped struct {
	channel    Channel
	validate   func(string) bool
	send       SendFunc
	maxRetries int
	sleep      retry.SleepFunc
	now        func() time.Time
	logger     *zap.Logger
}

// Option customizes a wrapped provider.
type Option func(*wrapped)

// WithMaxRetries sets the attempt ceiling.
func WithMaxRetries(n int) Option {
	return func(w *wrapped) {
		if n > 0 {
			w.maxRetries = n
		}
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(w *wrapped) { w.sleep = sleep }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(w *wrapped) { w.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *wrapped) { w.logger = logging.OrNop(logger) }
}

// Wrap adds destination validation, dry run and retry with backoff to send.
func Wrap(channel Channel, validate func(string) bool, send SendFunc, opts ...Option) Provider {
	w := &wrapped{
		channel:    channel,
		validate:   validate,
		send:       send,
		maxRetries: retry.DefaultAttempts,
		sleep:      retry.Pause,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named("alerts").With(zap.String("channel", string(channel)))
	return w
}

func (w *wrapped) Channel() Channel { return w.channel }

func (w *wrapped) ValidateDestination(destination string) bool {
	return w.validate(destination)
}

func (w *wrapped) Send(ctx context.Context, opts Options) (DeliveryResult, error) {
	failed := DeliveryResult{Channel: w.channel, Destination: opts.Destination}

	if !w.validate(opts.Destination) {
		metrics.ObserveAlert(string(w.channel), "invalid")
		err := apperr.New(apperr.KindInvalidDestination, "Invalid %s destination: %s",
			strings.ToLower(string(w.channel)), opts.Destination)
		failed.ErrorMessage = err.Error()
		return failed, err
	}

	if opts.DryRun {
		w.logger.Info("dry run; alert not sent", zap.String("destination", opts.Destination))
		metrics.ObserveAlert(string(w.channel), "dry_run")
		return DeliveryResult{
			Success:     true,
			Channel:     w.channel,
			Destination: opts.Destination,
			DeliveredAt: w.now(),
			DryRun:      true,
		}, nil
	}

	policy := retry.Policy{
		Attempts:  w.maxRetries,
		Sleep:     w.sleep,
		Retryable: func(err error) bool { return apperr.KindOf(err).Retryable() },
		OnRetry: func(attempt int, err error, delay time.Duration) {
			w.logger.Warn("alert attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", w.maxRetries),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
		},
	}
	result, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (DeliveryResult, error) {
		res, err := w.send(ctx, opts)
		if err != nil && apperr.KindOf(err) == "" && isRateLimit(err) {
			return res, apperr.Wrap(apperr.KindRateLimit, err, "Alert rate limit exceeded: %s", err.Error())
		}
		return res, err
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			last := w.mapDeliveryError(exhausted.Last)
			err = apperr.Wrap(apperr.KindDeliveryFailed, last,
				"Alert delivery failed after %d retries: %s", exhausted.Attempts, last.Error())
		}
		metrics.ObserveAlert(string(w.channel), "failed")
		failed.ErrorMessage = err.Error()
		return failed, err
	}

	metrics.ObserveAlert(string(w.channel), "sent")
	if result.DeliveredAt.IsZero() {
		result.DeliveredAt = w.now()
	}
	result.Success = true
	result.Channel = w.channel
	result.Destination = opts.Destination
	return result, nil
}

func (w *wrapped) mapDeliveryError(err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	kind := apperr.KindEmailError
	if w.channel == ChannelWebhook {
		kind = apperr.KindWebhookError
	}
	return apperr.Wrap(kind, err, "Alert delivery failed: %s", err.Error())
}

func isRateLimit(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests")
}
