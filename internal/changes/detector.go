// Package changes compares two item snapshots and classifies what changed.
package changes

import (
	"fmt"
	"strings"
)

// Type classifies a detected change.
type Type string

// Change types.
const (
	TypeNewItems Type = "NEW_ITEMS"
	TypeRemoved  Type = "REMOVED"
	TypeUpdated  Type = "UPDATED"
	TypeMixed    Type = "MIXED"
)

// Item is the normalized unit compared across snapshots. ID is the stable
// identity, usually the item URL.
type Item struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content *string `json:"content,omitempty"`
	URL     *string `json:"url,omitempty"`
	Author  *string `json:"author,omitempty"`
}

// UpdatedItem is a current item whose content differs from the previous snapshot.
type UpdatedItem struct {
	Item            Item    `json:"item"`
	PreviousContent *string `json:"previousContent,omitempty"`
}

// Stats holds raw counts regardless of threshold gating.
type Stats struct {
	AddedCount    int `json:"addedCount"`
	RemovedCount  int `json:"removedCount"`
	UpdatedCount  int `json:"updatedCount"`
	PreviousTotal int `json:"previousTotal"`
	CurrentTotal  int `json:"currentTotal"`
}

// Details itemizes a comparison.
type Details struct {
	Added   []Item        `json:"added"`
	Removed []Item        `json:"removed"`
	Updated []UpdatedItem `json:"updated"`
	Stats   Stats         `json:"stats"`
}

// Result is the outcome of Detect. ChangeType is nil when nothing qualifies.
type Result struct {
	HasChanges bool    `json:"hasChanges"`
	ChangeType *Type   `json:"changeType"`
	Summary    string  `json:"summary"`
	Details    Details `json:"details"`
}

// Options controls which differences count as a change.
type Options struct {
	// MinNewItems is the number of added items needed to report a change.
	// Zero or less reports a change on every comparison.
	MinNewItems    int
	DetectRemovals bool
	DetectUpdates  bool
}

// DefaultOptions reports new items only.
func DefaultOptions() Options {
	return Options{MinNewItems: 1}
}

// Detect compares previous against current. Items are matched by ID; with
// duplicate IDs the last occurrence wins for lookups, while every current
// occurrence missing from previous counts as added.
func Detect(previous, current []Item, opts Options) Result {
	previousByID := indexByID(previous)
	currentByID := indexByID(current)

	added := []Item{}
	for _, item := range current {
		if _, ok := previousByID[item.ID]; !ok {
			added = append(added, item)
		}
	}

	removed := []Item{}
	if opts.DetectRemovals {
		for _, item := range previous {
			if _, ok := currentByID[item.ID]; !ok {
				removed = append(removed, item)
			}
		}
	}

	updated := []UpdatedItem{}
	if opts.DetectUpdates {
		for _, item := range current {
			prev, ok := previousByID[item.ID]
			if ok && !sameContent(prev.Content, item.Content) {
				updated = append(updated, UpdatedItem{Item: item, PreviousContent: prev.Content})
			}
		}
	}

	addedQualifies := len(added) >= opts.MinNewItems
	removedQualifies := len(removed) > 0
	updatedQualifies := len(updated) > 0

	result := Result{
		HasChanges: addedQualifies || removedQualifies || updatedQualifies,
		Details: Details{
			Added:   added,
			Removed: removed,
			Updated: updated,
			Stats: Stats{
				AddedCount:    len(added),
				RemovedCount:  len(removed),
				UpdatedCount:  len(updated),
				PreviousTotal: len(previous),
				CurrentTotal:  len(current),
			},
		},
	}

	var qualifying []Type
	var parts []string
	if addedQualifies && len(added) > 0 {
		qualifying = append(qualifying, TypeNewItems)
		parts = append(parts, fmt.Sprintf("%d new %s detected", len(added), plural(len(added), "item")))
	}
	if removedQualifies {
		qualifying = append(qualifying, TypeRemoved)
		parts = append(parts, fmt.Sprintf("%d %s removed", len(removed), plural(len(removed), "item")))
	}
	if updatedQualifies {
		qualifying = append(qualifying, TypeUpdated)
		parts = append(parts, fmt.Sprintf("%d %s updated", len(updated), plural(len(updated), "item")))
	}

	switch len(qualifying) {
	case 0:
		result.Summary = "No changes detected"
	case 1:
		changeType := qualifying[0]
		result.ChangeType = &changeType
		result.Summary = strings.Join(parts, ", ")
	default:
		changeType := TypeMixed
		result.ChangeType = &changeType
		result.Summary = strings.Join(parts, ", ")
	}
	return result
}

// Type returns the change type or "" when there is none.
func (r Result) Type() Type {
	if r.ChangeType == nil {
		return ""
	}
	return *r.ChangeType
}

func indexByID(items []Item) map[string]Item {
	out := make(map[string]Item, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out
}

func sameContent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
