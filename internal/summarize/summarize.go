// Package summarize condenses scraped content through an LLM.
package summarize

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/apperr"
	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/metrics"
	"github.com/JakeFAU/pulseflow/internal/retry"
)

// Limits applied to summarization input and output.
const (
	DefaultMaxSummaryLength = 500
	MaxInputLength          = 30000
	MinContentLength        = 50
)

// DryRunPlaceholder is returned instead of a generated summary on dry runs.
const DryRunPlaceholder = "[DRY RUN] Summary would be generated here. Content received and validated."

// Request describes one summarization.
type Request struct {
	Content     string
	ContentType ContentType
	// MaxLength is the target summary length in characters.
	MaxLength  int
	DryRun     bool
	MaxRetries int
}

// Summary is a generated summary.
type Summary struct {
	Text        string    `json:"summary"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	TokensUsed  int       `json:"tokensUsed,omitempty"`
	DryRun      bool      `json:"dryRun"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Summarizer is the collaborator used by the pipeline.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (Summary, error)
	Available() bool
}

// Generation is the raw output of a model call.
type Generation struct {
	Text       string
	TokensUsed int
}

// Generator performs a single model call for a fully built prompt.
type Generator interface {
	Name() string
	Model() string
	Available() bool
	Generate(ctx context.Context, prompt string) (Generation, error)
}

// Service adds validation, dry run and retry to a Generator.
type Service struct {
	gen    Generator
	sleep  retry.SleepFunc
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithSleep replaces the backoff sleep.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(s *Service) { s.sleep = sleep }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(logger) }
}

// New wraps gen. A nil gen yields a Service that is never available.
func New(gen Generator, opts ...Option) *Service {
	s := &Service{gen: gen, sleep: retry.Pause, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("summarize")
	return s
}

// Available reports whether the underlying generator is configured.
func (s *Service) Available() bool {
	return s != nil && s.gen != nil && s.gen.Available()
}

// Summarize validates req.Content and asks the generator for a summary.
// Auth errors end the attempt loop at once; anything else is retried.
func (s *Service) Summarize(ctx context.Context, req Request) (Summary, error) {
	if !s.Available() {
		name := "LLM"
		if s != nil && s.gen != nil {
			name = s.gen.Name()
		}
		metrics.ObserveSummary("unavailable")
		return Summary{}, apperr.New(apperr.KindProviderUnavailable,
			"LLM provider %s is not available (missing API key)", name)
	}

	content, err := s.validate(req.Content)
	if err != nil {
		metrics.ObserveSummary("invalid")
		return Summary{}, err
	}

	if req.DryRun {
		s.logger.Info("dry run; summary not generated",
			zap.Int("content_length", utf8.RuneCountInString(content)),
			zap.String("provider", s.gen.Name()),
			zap.String("model", s.gen.Model()),
		)
		metrics.ObserveSummary("dry_run")
		return Summary{
			Text:        DryRunPlaceholder,
			Provider:    s.gen.Name(),
			Model:       s.gen.Model(),
			DryRun:      true,
			GeneratedAt: s.now(),
		}, nil
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = ContentGeneric
	}
	maxLength := req.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxSummaryLength
	}
	prompt := BuildPrompt(content, contentType, maxLength)

	attempts := req.MaxRetries
	if attempts <= 0 {
		attempts = retry.DefaultAttempts
	}
	policy := retry.Policy{
		Attempts:  attempts,
		Sleep:     s.sleep,
		Classify:  mapAPIError,
		Retryable: func(err error) bool { return apperr.KindOf(err).Retryable() },
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.logger.Warn("summarize attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
		},
	}
	gen, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (Generation, error) {
		return s.gen.Generate(ctx, prompt)
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			err = apperr.Wrap(apperr.KindSummarizeFailed, exhausted.Last,
				"Summarization failed after %d retries: %s", exhausted.Attempts, exhausted.Last.Error())
		}
		metrics.ObserveSummary("failed")
		return Summary{}, err
	}

	metrics.ObserveSummary("success")
	return Summary{
		Text:        gen.Text,
		Provider:    s.gen.Name(),
		Model:       s.gen.Model(),
		TokensUsed:  gen.TokensUsed,
		GeneratedAt: s.now(),
	}, nil
}

func (s *Service) validate(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if utf8.RuneCountInString(trimmed) < MinContentLength {
		return "", apperr.New(apperr.KindContentTooShort,
			"Content too short for summarization (min %d chars)", MinContentLength)
	}
	if utf8.RuneCountInString(trimmed) > MaxInputLength {
		s.logger.Debug("content truncated",
			zap.Int("from", utf8.RuneCountInString(content)),
			zap.Int("to", MaxInputLength),
		)
		trimmed = string([]rune(trimmed)[:MaxInputLength])
	}
	return trimmed, nil
}

func mapAPIError(err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "rate limit", "quota", "429", "too many requests"):
		return apperr.Wrap(apperr.KindRateLimit, err, "LLM rate limit exceeded: %s", msg)
	case containsAny(lower, "api key", "unauthorized", "401", "invalid key", "authentication"):
		return apperr.Wrap(apperr.KindAuthError, err, "LLM authentication error: %s", msg)
	case strings.Contains(lower, "empty"):
		return apperr.Wrap(apperr.KindEmptyResponse, err, "LLM returned empty response")
	default:
		return apperr.Wrap(apperr.KindAPIError, err, "LLM API error: %s", msg)
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
