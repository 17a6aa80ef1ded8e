// Package lease holds per-signal run exclusions. The memory lease serves a
// single process; the Redis lease is shared by every replica consuming the
// same queue.
package lease

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long a lease outlives a crashed worker.
const DefaultTTL = 15 * time.Minute

// Memory is a process-local lease set.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an empty Memory lease set.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// Acquire takes the lease for key, returning false when it is already held.
func (m *Memory) Acquire(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return false, nil
	}
	m.held[key] = struct{}{}
	return true, nil
}

// Release drops the lease for key. Releasing a free key is a no-op.
func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
	return nil
}

// Held reports whether key is leased.
func (m *Memory) Held(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok, nil
}
