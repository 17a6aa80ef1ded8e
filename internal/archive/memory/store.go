// Package memory keeps archived snapshots in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/pulseflow/internal/archive"
)

// Store holds snapshots by key and returns memory:// URIs.
type Store struct {
	prefix string

	mu    sync.RWMutex
	snaps map[string]archive.Snapshot
}

var _ archive.Store = (*Store)(nil)

// New creates an empty Store that keys snapshots under prefix.
func New(prefix string) *Store {
	return &Store{prefix: prefix, snaps: make(map[string]archive.Snapshot)}
}

// Put records snap. A pulse that is already stored keeps its first copy.
func (s *Store) Put(_ context.Context, snap archive.Snapshot) (string, error) {
	key, err := archive.KeyFor(s.prefix, snap)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snaps[key]; !ok {
		snap.Data = append([]byte(nil), snap.Data...)
		s.snaps[key] = snap
	}
	return "memory://" + key, nil
}

// ForPulse returns the snapshot archived for pulseID.
func (s *Store) ForPulse(pulseID string) (archive.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.snaps {
		if snap.PulseID == pulseID {
			snap.Data = append([]byte(nil), snap.Data...)
			return snap, true
		}
	}
	return archive.Snapshot{}, false
}

// Len reports the number of stored snapshots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}
