package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/pulseflow/internal/scraper"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// PulseStatus is the outcome recorded on a pulse.
type PulseStatus string

// Pulse statuses.
const (
	PulseSuccess PulseStatus = "SUCCESS"
	PulseFailed  PulseStatus = "FAILED"
)

// AlertStatus tracks delivery of one alert.
type AlertStatus string

// Alert statuses.
const (
	AlertPending AlertStatus = "PENDING"
	AlertSent    AlertStatus = "SENT"
	AlertFailed  AlertStatus = "FAILED"
)

// Channel is an alert delivery medium.
type Channel string

// Channels.
const (
	ChannelEmail   Channel = "EMAIL"
	ChannelWebhook Channel = "WEBHOOK"
)

// Signal is a monitored source.
type Signal struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	URL             string           `json:"url"`
	Selector        *string          `json:"selector,omitempty"`
	Strategy        scraper.Strategy `json:"strategy"`
	IntervalMinutes int              `json:"intervalMinutes"`
	IsActive        bool             `json:"isActive"`
	LastScrapedAt   *time.Time       `json:"lastScrapedAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Due reports whether the signal should be scraped at now.
func (s Signal) Due(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.LastScrapedAt == nil {
		return true
	}
	interval := time.Duration(s.IntervalMinutes) * time.Minute
	return !s.LastScrapedAt.Add(interval).After(now)
}

// SignalStatus filters signal listings by activation.
type SignalStatus string

// Signal listing filters.
const (
	SignalStatusAll      SignalStatus = "all"
	SignalStatusActive   SignalStatus = "active"
	SignalStatusInactive SignalStatus = "inactive"
)

// Listing bounds.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// SignalFilter narrows ListSignals. Search matches name or URL without
// regard to case.
type SignalFilter struct {
	Search string
	Status SignalStatus
	Page   int
	Limit  int
}

// Normalize fills defaults: page 1, DefaultPageSize, status all. Limits above
// MaxPageSize are capped.
func (f SignalFilter) Normalize() SignalFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Status == "" {
		f.Status = SignalStatusAll
	}
	return f
}

// Offset is the number of rows skipped before the page.
func (f SignalFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// SignalPage is one page of signals, newest first.
type SignalPage struct {
	Signals    []Signal `json:"signals"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
}

// NewSignalPage assembles a page for a normalized filter.
func NewSignalPage(signals []Signal, total int, f SignalFilter) SignalPage {
	if signals == nil {
		signals = []Signal{}
	}
	return SignalPage{
		Signals:    signals,
		Total:      total,
		Page:       f.Page,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}
}

// Pulse is one immutable scrape snapshot. RawData holds the JSON item list,
// or {"error": "..."} for failed scrapes.
type Pulse struct {
	ID          string      `json:"id"`
	SignalID    string      `json:"signalId"`
	RawData     string      `json:"rawData"`
	Summary     *string     `json:"summary,omitempty"`
	Status      PulseStatus `json:"status"`
	ContentHash string      `json:"contentHash,omitempty"`
	ArchiveURI  string      `json:"archiveUri,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// AlertDestination is where a signal's alerts are delivered.
type AlertDestination struct {
	ID          string  `json:"id"`
	SignalID    string  `json:"signalId"`
	Channel     Channel `json:"channel"`
	Destination string  `json:"destination"`
	IsActive    bool    `json:"isActive"`
}

// Alert records one delivery attempt for a pulse.
type Alert struct {
	ID            string      `json:"id"`
	PulseID       string      `json:"pulseId"`
	DestinationID string      `json:"destinationId"`
	Channel       Channel     `json:"channel"`
	ChangeType    string      `json:"changeType"`
	ChangeSummary string      `json:"changeSummary"`
	ChangeDetails string      `json:"changeDetails"`
	Status        AlertStatus `json:"status"`
	DeliveredAt   *time.Time  `json:"deliveredAt,omitempty"`
	ErrorMessage  *string     `json:"errorMessage,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Repository persists the pipeline's records.
type Repository interface {
	// FindSignal returns ErrNotFound for unknown ids.
	FindSignal(ctx context.Context, id string) (Signal, error)
	// ListDueSignals returns active signals whose interval has elapsed at now.
	ListDueSignals(ctx context.Context, now time.Time) ([]Signal, error)
	// ListSignals pages through signals newest first.
	ListSignals(ctx context.Context, filter SignalFilter) (SignalPage, error)
	CreateSignal(ctx context.Context, signal Signal) error
	// UpdateSignal replaces the mutable fields of an existing signal:
	// name, URL, selector, strategy, interval and activation.
	UpdateSignal(ctx context.Context, signal Signal) error
	// SetSignalActive flips activation and returns the stored signal.
	SetSignalActive(ctx context.Context, id string, active bool) (Signal, error)
	// DeleteSignal removes the signal with its pulses, alerts and
	// destinations.
	DeleteSignal(ctx context.Context, id string) error
	// SavePulse creates pulse and sets the signal's lastScrapedAt in one unit.
	SavePulse(ctx context.Context, pulse Pulse, scrapedAt time.Time) error
	// SetArchiveURI attaches an archive location to an existing pulse.
	SetArchiveURI(ctx context.Context, pulseID, uri string) error
	// FindLatestSuccessPulse returns the newest SUCCESS pulse of signalID
	// other than excludingID, or ErrNotFound.
	FindLatestSuccessPulse(ctx context.Context, signalID, excludingID string) (Pulse, error)
	FindPulse(ctx context.Context, id string) (Pulse, error)
	// ListPulses returns up to limit pulses of signalID, newest first.
	ListPulses(ctx context.Context, signalID string, limit int) ([]Pulse, error)
	FindActiveDestinations(ctx context.Context, signalID string) ([]AlertDestination, error)
	// ListDestinations returns every destination of signalID, active or not.
	ListDestinations(ctx context.Context, signalID string) ([]AlertDestination, error)
	CreateDestination(ctx context.Context, dest AlertDestination) error
	// DeleteDestination removes a destination owned by signalID.
	DeleteDestination(ctx context.Context, signalID, id string) error
	CreateAlert(ctx context.Context, alert Alert) error
	ListAlerts(ctx context.Context, pulseID string) ([]Alert, error)
	Close() error
}
