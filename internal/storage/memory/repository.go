// Package memory provides an in-process store.Repository for development
// and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/pulseflow/internal/store"
)

// Repository keeps every record in maps guarded by one mutex.
type Repository struct {
	mu           sync.RWMutex
	signals      map[string]store.Signal
	pulses       map[string]store.Pulse
	pulseOrder   []string
	destinations map[string]store.AlertDestination
	alerts       map[string][]store.Alert
}

var _ store.Repository = (*Repository)(nil)

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		signals:      make(map[string]store.Signal),
		pulses:       make(map[string]store.Pulse),
		destinations: make(map[string]store.AlertDestination),
		alerts:       make(map[string][]store.Alert),
	}
}

// CreateSignal stores a new signal.
func (r *Repository) CreateSignal(_ context.Context, signal store.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.signals[signal.ID]; exists {
		return errors.New("signal already exists")
	}
	r.signals[signal.ID] = signal
	return nil
}

// FindSignal fetches a signal by ID.
func (r *Repository) FindSignal(_ context.Context, id string) (store.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	signal, ok := r.signals[id]
	if !ok {
		return store.Signal{}, store.ErrNotFound
	}
	return signal, nil
}

// ListSignals filters and pages signals, newest first with ID as tiebreak.
func (r *Repository) ListSignals(_ context.Context, filter store.SignalFilter) (store.SignalPage, error) {
	f := filter.Normalize()
	search := strings.ToLower(strings.TrimSpace(f.Search))

	r.mu.RLock()
	var matched []store.Signal
	for _, signal := range r.signals {
		if !matchesStatus(signal, f.Status) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(signal.Name), search) &&
			!strings.Contains(strings.ToLower(signal.URL), search) {
			continue
		}
		matched = append(matched, signal)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	return store.NewSignalPage(matched[start:end], total, f), nil
}

func matchesStatus(signal store.Signal, status store.SignalStatus) bool {
	switch status {
	case store.SignalStatusActive:
		return signal.IsActive
	case store.SignalStatusInactive:
		return !signal.IsActive
	default:
		return true
	}
}

// UpdateSignal replaces the mutable fields of a stored signal.
func (r *Repository) UpdateSignal(_ context.Context, signal store.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.signals[signal.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Name = signal.Name
	existing.URL = signal.URL
	existing.Selector = signal.Selector
	existing.Strategy = signal.Strategy
	existing.IntervalMinutes = signal.IntervalMinutes
	existing.IsActive = signal.IsActive
	r.signals[signal.ID] = existing
	return nil
}

// SetSignalActive flips activation.
func (r *Repository) SetSignalActive(_ context.Context, id string, active bool) (store.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	signal, ok := r.signals[id]
	if !ok {
		return store.Signal{}, store.ErrNotFound
	}
	signal.IsActive = active
	r.signals[id] = signal
	return signal, nil
}

// DeleteSignal removes the signal and everything hanging off it.
func (r *Repository) DeleteSignal(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.signals[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.signals, id)

	kept := r.pulseOrder[:0]
	for _, pulseID := range r.pulseOrder {
		if r.pulses[pulseID].SignalID == id {
			delete(r.pulses, pulseID)
			delete(r.alerts, pulseID)
			continue
		}
		kept = append(kept, pulseID)
	}
	r.pulseOrder = kept

	for destID, dest := range r.destinations {
		if dest.SignalID == id {
			delete(r.destinations, destID)
		}
	}
	return nil
}

// ListDueSignals returns due signals ordered by ID.
func (r *Repository) ListDueSignals(_ context.Context, now time.Time) ([]store.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Signal
	for _, signal := range r.signals {
		if signal.Due(now) {
			out = append(out, signal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SavePulse stores pulse and stamps the signal under one lock.
func (r *Repository) SavePulse(_ context.Context, pulse store.Pulse, scrapedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	signal, ok := r.signals[pulse.SignalID]
	if !ok {
		return store.ErrNotFound
	}
	if _, exists := r.pulses[pulse.ID]; exists {
		return errors.New("pulse already exists")
	}
	r.pulses[pulse.ID] = pulse
	r.pulseOrder = append(r.pulseOrder, pulse.ID)
	signal.LastScrapedAt = pointerTime(scrapedAt)
	r.signals[signal.ID] = signal
	return nil
}

// SetArchiveURI records where a pulse snapshot was archived.
func (r *Repository) SetArchiveURI(_ context.Context, pulseID, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pulse, ok := r.pulses[pulseID]
	if !ok {
		return store.ErrNotFound
	}
	pulse.ArchiveURI = uri
	r.pulses[pulseID] = pulse
	return nil
}

// FindLatestSuccessPulse walks pulses newest first. Ties on CreatedAt are
// broken by insertion order.
func (r *Repository) FindLatestSuccessPulse(_ context.Context, signalID, excludingID string) (store.Pulse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		best  store.Pulse
		found bool
	)
	for i := len(r.pulseOrder) - 1; i >= 0; i-- {
		p := r.pulses[r.pulseOrder[i]]
		if p.SignalID != signalID || p.ID == excludingID || p.Status != store.PulseSuccess {
			continue
		}
		if !found || p.CreatedAt.After(best.CreatedAt) {
			best, found = p, true
		}
	}
	if !found {
		return store.Pulse{}, store.ErrNotFound
	}
	return best, nil
}

// FindPulse fetches a pulse by ID.
func (r *Repository) FindPulse(_ context.Context, id string) (store.Pulse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pulse, ok := r.pulses[id]
	if !ok {
		return store.Pulse{}, store.ErrNotFound
	}
	return pulse, nil
}

// ListPulses returns a signal's newest pulses first.
func (r *Repository) ListPulses(_ context.Context, signalID string, limit int) ([]store.Pulse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Pulse
	for i := len(r.pulseOrder) - 1; i >= 0; i-- {
		p := r.pulses[r.pulseOrder[i]]
		if p.SignalID == signalID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDestinations lists every destination of a signal ordered by ID.
func (r *Repository) ListDestinations(_ context.Context, signalID string) ([]store.AlertDestination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.AlertDestination
	for _, d := range r.destinations {
		if d.SignalID == signalID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteDestination removes a destination and its alerts.
func (r *Repository) DeleteDestination(_ context.Context, signalID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dest, ok := r.destinations[id]
	if !ok || dest.SignalID != signalID {
		return store.ErrNotFound
	}
	delete(r.destinations, id)
	for pulseID, alerts := range r.alerts {
		kept := alerts[:0]
		for _, a := range alerts {
			if a.DestinationID != id {
				kept = append(kept, a)
			}
		}
		r.alerts[pulseID] = kept
	}
	return nil
}

// CreateDestination stores an alert destination.
func (r *Repository) CreateDestination(_ context.Context, dest store.AlertDestination) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.destinations[dest.ID]; exists {
		return errors.New("destination already exists")
	}
	r.destinations[dest.ID] = dest
	return nil
}

// FindActiveDestinations lists a signal's active destinations ordered by ID.
func (r *Repository) FindActiveDestinations(_ context.Context, signalID string) ([]store.AlertDestination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.AlertDestination
	for _, d := range r.destinations {
		if d.SignalID == signalID && d.IsActive {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateAlert appends an alert row.
func (r *Repository) CreateAlert(_ context.Context, alert store.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alert.PulseID] = append(r.alerts[alert.PulseID], alert)
	return nil
}

// ListAlerts returns the alerts recorded for a pulse.
func (r *Repository) ListAlerts(_ context.Context, pulseID string) ([]store.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	alerts := r.alerts[pulseID]
	out := make([]store.Alert, len(alerts))
	copy(out, alerts)
	return out, nil
}

// Close is a no-op.
func (r *Repository) Close() error { return nil }

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
