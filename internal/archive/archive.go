// Package archive stores raw pulse snapshots in blob storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContentType is the media type of archived snapshots.
const ContentType = "application/json"

// Snapshot is the raw item list of one successful pulse.
type Snapshot struct {
	SignalID  string
	PulseID   string
	CreatedAt time.Time
	Data      []byte
}

// Validate rejects snapshots that cannot be addressed.
func (s Snapshot) Validate() error {
	switch {
	case strings.TrimSpace(s.SignalID) == "":
		return errors.New("snapshot signal id is required")
	case strings.TrimSpace(s.PulseID) == "":
		return errors.New("snapshot pulse id is required")
	case s.CreatedAt.IsZero():
		return errors.New("snapshot time is required")
	}
	return nil
}

// Store persists a snapshot and returns the URI it can be read back from.
type Store interface {
	Put(ctx context.Context, snap Snapshot) (string, error)
}

// Key builds the object path for a pulse snapshot, partitioned by UTC day.
func Key(prefix, signalID, pulseID string, at time.Time) string {
	at = at.UTC()
	key := fmt.Sprintf("signals/%s/%04d/%02d/%02d/%s.json", signalID, at.Year(), at.Month(), at.Day(), pulseID)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// KeyFor validates snap and returns its object path under prefix.
func KeyFor(prefix string, snap Snapshot) (string, error) {
	if err := snap.Validate(); err != nil {
		return "", err
	}
	return Key(prefix, snap.SignalID, snap.PulseID, snap.CreatedAt), nil
}
