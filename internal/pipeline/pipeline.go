// Package pipeline runs one scrape cycle for a signal: scrape, summarize,
// store, detect changes and fan out alerts.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/alerts"
	"github.com/JakeFAU/pulseflow/internal/archive"
	"github.com/JakeFAU/pulseflow/internal/changes"
	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/metrics"
	"github.com/JakeFAU/pulseflow/internal/publisher"
	"github.com/JakeFAU/pulseflow/internal/scraper"
	"github.com/JakeFAU/pulseflow/internal/store"
	"github.com/JakeFAU/pulseflow/internal/summarize"
)

// Status is the final state of a run.
type Status string

// Run statuses.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StepName identifies a pipeline state.
type StepName string

// Pipeline states in execution order.
const (
	StepFetchSignal   StepName = "FETCH_SIGNAL"
	StepExecuteScrape StepName = "EXECUTE_SCRAPE"
	StepSummarize     StepName = "SUMMARIZE"
	StepStorePulse    StepName = "STORE_PULSE"
	StepDetectChanges StepName = "DETECT_CHANGES"
	StepSendAlerts    StepName = "SEND_ALERTS"
	StepDone          StepName = "DONE"
)

// Step states.
const (
	StepCompleted = "completed"
	StepSkipped   = "skipped"
	StepFailed    = "failed"
)

// Step records what happened in one state.
type Step struct {
	Name     StepName      `json:"name"`
	State    string        `json:"state"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"durationNs"`
}

// AlertOutcome reports delivery to one destination.
type AlertOutcome struct {
	DestinationID string        `json:"destinationId"`
	Channel       store.Channel `json:"channel"`
	Destination   string        `json:"destination"`
	Success       bool          `json:"success"`
	DryRun        bool          `json:"dryRun"`
	Error         string        `json:"error,omitempty"`
}

// Outcome summarizes a run.
type Outcome struct {
	Status    Status           `json:"status"`
	Reason    string           `json:"reason,omitempty"`
	SignalID  string           `json:"signalId"`
	PulseID   string           `json:"pulseId,omitempty"`
	ItemCount int              `json:"itemCount"`
	Provider  scraper.Strategy `json:"provider,omitempty"`
	DryRun    bool             `json:"dryRun"`
	Error     string           `json:"error,omitempty"`
	Summary   *string          `json:"summary,omitempty"`
	Change    *changes.Result  `json:"change,omitempty"`
	Alerts    []AlertOutcome   `json:"alerts,omitempty"`
	Steps     []Step           `json:"steps"`
}

// Request triggers one run.
type Request struct {
	SignalID string
	DryRun   bool
}

// ProviderResolver picks the provider for a signal.
type ProviderResolver interface {
	ForSignal(strategy scraper.Strategy, rawURL string) (scraper.Provider, error)
}

// ScrapeExecutor runs a provider with blocking, robots, rate limit and retry.
type ScrapeExecutor interface {
	Execute(ctx context.Context, p scraper.Provider, opts scraper.Options) (scraper.Result, error)
}

// IDGenerator creates record identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Hasher fingerprints stored payloads.
type Hasher interface {
	Hash(data []byte) string
}

// Deps are the collaborators of a Pipeline. Summarizer, Publisher and
// Archive are optional.
type Deps struct {
	Store      store.Repository
	Resolver   ProviderResolver
	Executor   ScrapeExecutor
	Summarizer summarize.Summarizer
	Alerts     map[store.Channel]alerts.Provider
	Publisher  publisher.Publisher
	Archive    archive.Store
	IDs        IDGenerator
	Clock      Clock
	Hasher     Hasher
	Logger     *zap.Logger
}

// Config tunes a Pipeline.
type Config struct {
	Changes          changes.Options
	MaxSummaryLength int
	SummaryRetries   int
}

// Pipeline executes runs. It is safe for concurrent use across signals.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and builds a Pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Resolver == nil:
		return nil, errors.New("pipeline: provider resolver is required")
	case deps.Executor == nil:
		return nil, errors.New("pipeline: executor is required")
	case deps.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	case deps.Hasher == nil:
		return nil, errors.New("pipeline: hasher is required")
	}
	if cfg.MaxSummaryLength <= 0 {
		cfg.MaxSummaryLength = summarize.DefaultMaxSummaryLength
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logging.OrNop(deps.Logger).Named("pipeline")}, nil
}

type run struct {
	outcome Outcome
	started time.Time
	clock   Clock
}

func (r *run) step(name StepName, state, detail string) {
	now := r.clock.Now()
	r.outcome.Steps = append(r.outcome.Steps, Step{Name: name, State: state, Detail: detail, Duration: now.Sub(r.started)})
	r.started = now
}

// Run executes the pipeline for req.SignalID. Only a missing signal or a
// storage failure returns an error; scrape, summary and alert failures are
// recorded in the Outcome.
func (p *Pipeline) Run(ctx context.Context, req Request) (Outcome, error) {
	r := &run{
		outcome: Outcome{SignalID: req.SignalID, DryRun: req.DryRun, Steps: []Step{}},
		started: p.deps.Clock.Now(),
		clock:   p.deps.Clock,
	}
	logger := p.logger.With(zap.String("signal_id", req.SignalID), zap.Bool("dry_run", req.DryRun))

	signal, err := p.deps.Store.FindSignal(ctx, req.SignalID)
	if err != nil {
		r.step(StepFetchSignal, StepFailed, err.Error())
		r.outcome.Status = StatusFailed
		r.outcome.Error = err.Error()
		metrics.ObservePipelineRun(string(StatusFailed))
		if errors.Is(err, store.ErrNotFound) {
			return r.outcome, fmt.Errorf("signal %s: %w", req.SignalID, err)
		}
		return r.outcome, fmt.Errorf("fetch signal %s: %w", req.SignalID, err)
	}
	r.step(StepFetchSignal, StepCompleted, "")

	if !signal.IsActive {
		r.outcome.Status = StatusSkipped
		r.outcome.Reason = "Signal is inactive"
		r.step(StepDone, StepSkipped, r.outcome.Reason)
		metrics.ObservePipelineRun(string(StatusSkipped))
		logger.Info("signal inactive; skipping")
		return r.outcome, nil
	}

	result, scrapeErr := p.scrape(ctx, signal, req.DryRun)
	if scrapeErr != nil {
		r.outcome.Error = scrapeErr.Error()
		r.step(StepExecuteScrape, StepFailed, scrapeErr.Error())
		logger.Warn("scrape failed", zap.Error(scrapeErr))
	} else {
		r.outcome.ItemCount = len(result.Items)
		r.outcome.Provider = result.Provider
		r.step(StepExecuteScrape, StepCompleted, fmt.Sprintf("%d items", len(result.Items)))
	}

	r.outcome.Summary = p.summarize(ctx, r, result, scrapeErr, req.DryRun, logger)

	pulse, err := p.storePulse(ctx, r, signal, result, scrapeErr, req.DryRun)
	if err != nil {
		r.outcome.Status = StatusFailed
		r.outcome.Error = err.Error()
		metrics.ObservePipelineRun(string(StatusFailed))
		return r.outcome, err
	}
	if pulse.ID != "" {
		r.outcome.PulseID = pulse.ID
		p.archiveSnapshot(ctx, pulse, logger)
	}

	if scrapeErr == nil && len(result.Items) > 0 {
		change, err := p.detect(ctx, signal.ID, pulse.ID, result.Items, logger)
		if err != nil {
			r.step(StepDetectChanges, StepFailed, err.Error())
			r.outcome.Status = StatusFailed
			r.outcome.Error = err.Error()
			metrics.ObservePipelineRun(string(StatusFailed))
			return r.outcome, err
		}
		r.outcome.Change = &change
		r.step(StepDetectChanges, StepCompleted, change.Summary)

		if change.HasChanges {
			outcomes, err := p.sendAlerts(ctx, signal, pulse, change, req.DryRun, logger)
			r.outcome.Alerts = outcomes
			if err != nil {
				r.step(StepSendAlerts, StepFailed, err.Error())
				r.outcome.Status = StatusFailed
				r.outcome.Error = err.Error()
				metrics.ObservePipelineRun(string(StatusFailed))
				return r.outcome, err
			}
			r.step(StepSendAlerts, StepCompleted, fmt.Sprintf("%d destinations", len(outcomes)))
		} else {
			r.step(StepSendAlerts, StepSkipped, "no changes")
		}
	} else {
		r.step(StepDetectChanges, StepSkipped, "no items")
		r.step(StepSendAlerts, StepSkipped, "no changes")
	}

	if pulse.ID != "" {
		p.publish(ctx, pulse, len(result.Items), r.outcome.Change, logger)
	}

	r.outcome.Status = StatusSuccess
	if scrapeErr != nil {
		r.outcome.Status = StatusFailed
	}
	r.step(StepDone, StepCompleted, string(r.outcome.Status))
	metrics.ObservePipelineRun(string(r.outcome.Status))
	logger.Info("pipeline finished",
		zap.String("status", string(r.outcome.Status)),
		zap.String("pulse_id", r.outcome.PulseID),
		zap.Int("items", r.outcome.ItemCount),
		zap.Int("alerts", len(r.outcome.Alerts)),
	)
	return r.outcome, nil
}

func (p *Pipeline) scrape(ctx context.Context, signal store.Signal, dryRun bool) (scraper.Result, error) {
	provider, err := p.deps.Resolver.ForSignal(signal.Strategy, signal.URL)
	if err != nil {
		return scraper.Result{}, fmt.Errorf("resolve provider: %w", err)
	}
	opts := scraper.Options{URL: signal.URL, DryRun: dryRun}
	if signal.Selector != nil {
		opts.Selector = *signal.Selector
	}
	return p.deps.Executor.Execute(ctx, provider, opts)
}

func (p *Pipeline) summarize(
	ctx context.Context,
	r *run,
	result scraper.Result,
	scrapeErr error,
	dryRun bool,
	logger *zap.Logger,
) *string {
	s := p.deps.Summarizer
	if scrapeErr != nil || len(result.Items) == 0 || s == nil || !s.Available() {
		r.step(StepSummarize, StepSkipped, "")
		return nil
	}
	summary, err := s.Summarize(ctx, summarize.Request{
		Content:     SummaryContent(result.Items),
		ContentType: summarize.ContentTypeForStrategy(string(result.Provider)),
		MaxLength:   p.cfg.MaxSummaryLength,
		DryRun:      dryRun,
		MaxRetries:  p.cfg.SummaryRetries,
	})
	if err != nil {
		logger.Warn("summarization failed; storing pulse without summary", zap.Error(err))
		r.step(StepSummarize, StepFailed, err.Error())
		return nil
	}
	r.step(StepSummarize, StepCompleted, summary.Model)
	return &summary.Text
}

// SummaryContent joins item titles and content into summarizer input.
func SummaryContent(items []scraper.Item) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		text := item.Title
		if item.Content != "" {
			text += "\n" + item.Content
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

func (p *Pipeline) storePulse(
	ctx context.Context,
	r *run,
	signal store.Signal,
	result scraper.Result,
	scrapeErr error,
	dryRun bool,
) (store.Pulse, error) {
	if dryRun {
		r.step(StepStorePulse, StepSkipped, "dry run")
		return store.Pulse{}, nil
	}
	raw, status, err := rawData(result, scrapeErr)
	if err != nil {
		r.step(StepStorePulse, StepFailed, err.Error())
		return store.Pulse{}, err
	}
	id, err := p.deps.IDs.NewID()
	if err != nil {
		r.step(StepStorePulse, StepFailed, err.Error())
		return store.Pulse{}, fmt.Errorf("pulse id: %w", err)
	}
	now := p.deps.Clock.Now()
	pulse := store.Pulse{
		ID:          id,
		SignalID:    signal.ID,
		RawData:     raw,
		Summary:     r.outcome.Summary,
		Status:      status,
		ContentHash: p.deps.Hasher.Hash([]byte(raw)),
		CreatedAt:   now,
	}
	if err := p.deps.Store.SavePulse(ctx, pulse, now); err != nil {
		r.step(StepStorePulse, StepFailed, err.Error())
		return store.Pulse{}, fmt.Errorf("store pulse: %w", err)
	}
	r.step(StepStorePulse, StepCompleted, string(status))
	return pulse, nil
}

func rawData(result scraper.Result, scrapeErr error) (string, store.PulseStatus, error) {
	if scrapeErr != nil {
		data, err := json.Marshal(map[string]string{"error": scrapeErr.Error()})
		if err != nil {
			return "", "", fmt.Errorf("encode pulse error: %w", err)
		}
		return string(data), store.PulseFailed, nil
	}
	items := result.Items
	if items == nil {
		items = []scraper.Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", "", fmt.Errorf("encode pulse items: %w", err)
	}
	return string(data), store.PulseSuccess, nil
}

func (p *Pipeline) detect(
	ctx context.Context,
	signalID, pulseID string,
	items []scraper.Item,
	logger *zap.Logger,
) (changes.Result, error) {
	var previous []changes.Item
	prev, err := p.deps.Store.FindLatestSuccessPulse(ctx, signalID, pulseID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		previous = []changes.Item{}
	case err != nil:
		return changes.Result{}, fmt.Errorf("load previous pulse: %w", err)
	default:
		var prevItems []scraper.Item
		if err := json.Unmarshal([]byte(prev.RawData), &prevItems); err != nil {
			logger.Warn("previous pulse is unreadable; using empty baseline",
				zap.String("previous_pulse_id", prev.ID), zap.Error(err))
		}
		previous = scraper.Comparables(prevItems)
	}
	return changes.Detect(previous, scraper.Comparables(items), p.cfg.Changes), nil
}

func (p *Pipeline) sendAlerts(
	ctx context.Context,
	signal store.Signal,
	pulse store.Pulse,
	change changes.Result,
	dryRun bool,
	logger *zap.Logger,
) ([]AlertOutcome, error) {
	dests, err := p.deps.Store.FindActiveDestinations(ctx, signal.ID)
	if err != nil {
		return nil, fmt.Errorf("load destinations: %w", err)
	}
	details, err := json.Marshal(change.Details)
	if err != nil {
		return nil, fmt.Errorf("encode change details: %w", err)
	}

	outcomes := make([]AlertOutcome, len(dests))
	errs := make([]error, len(dests))
	var wg sync.WaitGroup
	for i, dest := range dests {
		wg.Add(1)
		go func(i int, dest store.AlertDestination) {
			defer wg.Done()
			outcomes[i], errs[i] = p.deliver(ctx, signal, pulse, change, string(details), dest, dryRun, logger)
		}(i, dest)
	}
	wg.Wait()
	return outcomes, errors.Join(errs...)
}

func (p *Pipeline) deliver(
	ctx context.Context,
	signal store.Signal,
	pulse store.Pulse,
	change changes.Result,
	details string,
	dest store.AlertDestination,
	dryRun bool,
	logger *zap.Logger,
) (AlertOutcome, error) {
	out := AlertOutcome{DestinationID: dest.ID, Channel: dest.Channel, Destination: dest.Destination, DryRun: dryRun}

	var (
		result alerts.DeliveryResult
		err    error
	)
	provider, ok := p.deps.Alerts[dest.Channel]
	if !ok || provider == nil {
		err = fmt.Errorf("no alert provider for channel %s", dest.Channel)
	} else {
		result, err = provider.Send(ctx, alerts.Options{
			Destination: dest.Destination,
			Signal:      alerts.Signal{ID: signal.ID, Name: signal.Name, URL: signal.URL},
			Change:      change,
			PulseID:     pulse.ID,
			DryRun:      dryRun,
		})
	}
	if err != nil {
		out.Error = err.Error()
		logger.Warn("alert delivery failed",
			zap.String("destination_id", dest.ID),
			zap.String("channel", string(dest.Channel)),
			zap.Error(err),
		)
	} else {
		out.Success = result.Success
	}

	if pulse.ID == "" {
		return out, nil
	}
	alertID, idErr := p.deps.IDs.NewID()
	if idErr != nil {
		return out, fmt.Errorf("alert id: %w", idErr)
	}
	record := store.Alert{
		ID:            alertID,
		PulseID:       pulse.ID,
		DestinationID: dest.ID,
		Channel:       dest.Channel,
		ChangeType:    string(change.Type()),
		ChangeSummary: change.Summary,
		ChangeDetails: details,
		Status:        store.AlertSent,
		CreatedAt:     p.deps.Clock.Now(),
	}
	if err != nil {
		msg := err.Error()
		record.Status = store.AlertFailed
		record.ErrorMessage = &msg
	} else {
		delivered := result.DeliveredAt
		if delivered.IsZero() {
			delivered = record.CreatedAt
		}
		record.DeliveredAt = &delivered
	}
	if err := p.deps.Store.CreateAlert(ctx, record); err != nil {
		return out, fmt.Errorf("store alert for destination %s: %w", dest.ID, err)
	}
	return out, nil
}

func (p *Pipeline) archiveSnapshot(ctx context.Context, pulse store.Pulse, logger *zap.Logger) {
	if p.deps.Archive == nil || pulse.Status != store.PulseSuccess {
		return
	}
	uri, err := p.deps.Archive.Put(ctx, archive.Snapshot{
		SignalID:  pulse.SignalID,
		PulseID:   pulse.ID,
		CreatedAt: pulse.CreatedAt,
		Data:      []byte(pulse.RawData),
	})
	if err != nil {
		logger.Warn("archive snapshot failed", zap.String("pulse_id", pulse.ID), zap.Error(err))
		return
	}
	if err := p.deps.Store.SetArchiveURI(ctx, pulse.ID, uri); err != nil {
		logger.Warn("record archive uri failed", zap.String("pulse_id", pulse.ID), zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, pulse store.Pulse, itemCount int, change *changes.Result, logger *zap.Logger) {
	if p.deps.Publisher == nil {
		return
	}
	event := publisher.PulseCreated{
		PulseID:     pulse.ID,
		SignalID:    pulse.SignalID,
		Status:      string(pulse.Status),
		ItemCount:   itemCount,
		ContentHash: pulse.ContentHash,
		HasChanges:  change != nil && change.HasChanges,
		CreatedAt:   pulse.CreatedAt,
	}
	if _, err := p.deps.Publisher.PublishPulseCreated(ctx, event); err != nil {
		logger.Warn("publish pulse event failed", zap.String("pulse_id", pulse.ID), zap.Error(err))
	}
}
