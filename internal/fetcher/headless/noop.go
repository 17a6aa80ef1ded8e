package headless

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when rendering is disabled.
var ErrUnavailable = errors.New("headless renderer not configured")

// Noop is a renderer that always fails.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render returns ErrUnavailable.
func (Noop) Render(context.Context, string) (string, error) {
	return "", ErrUnavailable
}
