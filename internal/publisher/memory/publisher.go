// Package memory keeps pulse events in process memory for local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/pulseflow/internal/publisher"
)

// Publisher records every PulseCreated event it accepts.
type Publisher struct {
	mu     sync.RWMutex
	events []publisher.PulseCreated
	err    error
}

var _ publisher.Publisher = (*Publisher)(nil)

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes later publishes return err. Nil restores normal behavior.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// PublishPulseCreated records ev and returns an id derived from the pulse.
func (p *Publisher) PublishPulseCreated(_ context.Context, ev publisher.PulseCreated) (string, error) {
	ev, err := ev.Normalize()
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, ev)
	return fmt.Sprintf("%s/%s", ev.Event, ev.PulseID), nil
}

// Events returns the recorded events in publish order.
func (p *Publisher) Events() []publisher.PulseCreated {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]publisher.PulseCreated(nil), p.events...)
}

// ForSignal returns the events recorded for one signal.
func (p *Publisher) ForSignal(signalID string) []publisher.PulseCreated {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []publisher.PulseCreated
	for _, ev := range p.events {
		if ev.SignalID == signalID {
			out = append(out, ev)
		}
	}
	return out
}
