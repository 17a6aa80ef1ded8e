// Package publisher emits pulse lifecycle events to downstream consumers.
package publisher

import (
	"context"
	"errors"
	"time"
)

// EventPulseCreated is emitted after a pulse is stored.
const EventPulseCreated = "pulse.created"

// Publisher announces stored pulses and returns the broker message id.
type Publisher interface {
	PublishPulseCreated(ctx context.Context, ev PulseCreated) (string, error)
}

// PulseCreated announces a stored pulse.
type PulseCreated struct {
	Event       string    `json:"event"`
	PulseID     string    `json:"pulseId"`
	SignalID    string    `json:"signalId"`
	Status      string    `json:"status"`
	ItemCount   int       `json:"itemCount"`
	ContentHash string    `json:"contentHash,omitempty"`
	HasChanges  bool      `json:"hasChanges"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Normalize fills the event name and checks the ids consumers key on.
func (e PulseCreated) Normalize() (PulseCreated, error) {
	if e.PulseID == "" || e.SignalID == "" {
		return e, errors.New("pulse event requires pulse and signal ids")
	}
	if e.Event == "" {
		e.Event = EventPulseCreated
	}
	return e, nil
}

// Attributes are the message attributes subscribers filter on.
func (e PulseCreated) Attributes() map[string]string {
	return map[string]string{
		"event":    e.Event,
		"signalId": e.SignalID,
		"status":   e.Status,
	}
}
