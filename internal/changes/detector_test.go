package changes

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func items(ids ...string) []Item {
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, Item{ID: id, Title: "title " + id})
	}
	return out
}

func TestDetect_NewItemAgainstEmptyBaseline(t *testing.T) {
	t.Parallel()

	result := Detect(nil, []Item{{ID: "1"}}, DefaultOptions())
	require.True(t, result.HasChanges)
	require.Equal(t, TypeNewItems, result.Type())
	require.Equal(t, "1 new item detected", result.Summary)
}

func TestDetect_ContentUpdate(t *testing.T) {
	t.Parallel()

	previous := []Item{{ID: "1", Content: str("A")}}
	current := []Item{{ID: "1", Content: str("B")}}
	result := Detect(previous, current, Options{MinNewItems: 1, DetectUpdates: true})

	require.True(t, result.HasChanges)
	require.Equal(t, TypeUpdated, result.Type())
	require.Len(t, result.Details.Updated, 1)
	require.Equal(t, "A", *result.Details.Updated[0].PreviousContent)
	require.Equal(t, "1 item updated", result.Summary)
}

func TestDetect_MixedAddAndRemove(t *testing.T) {
	t.Parallel()

	result := Detect(items("1", "2"), items("1", "3"), Options{MinNewItems: 1, DetectRemovals: true})
	require.Equal(t, TypeMixed, result.Type())
	require.Len(t, result.Details.Added, 1)
	require.Len(t, result.Details.Removed, 1)
	require.Equal(t, "1 new item detected, 1 item removed", result.Summary)

	want := Stats{AddedCount: 1, RemovedCount: 1, PreviousTotal: 2, CurrentTotal: 2}
	if diff := cmp.Diff(want, result.Details.Stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestDetect_IdenticalSnapshots(t *testing.T) {
	t.Parallel()

	snapshot := []Item{{ID: "a", Content: str("x")}, {ID: "b"}}
	result := Detect(snapshot, snapshot, Options{MinNewItems: 1, DetectRemovals: true, DetectUpdates: true})
	require.False(t, result.HasChanges)
	require.Nil(t, result.ChangeType)
	require.Equal(t, "No changes detected", result.Summary)
}

func TestDetect_DisjointSnapshotsRespectThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		current     []Item
		minNewItems int
		want        bool
	}{
		{"below threshold", items("x", "y"), 3, false},
		{"at threshold", items("x", "y", "z"), 3, true},
		{"above threshold", items("x", "y", "z", "w"), 3, true},
		{"zero threshold", items("x"), 0, true},
		{"empty current", nil, 1, false},
		{"empty current with zero threshold", nil, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := Detect(items("p", "q"), tc.current, Options{MinNewItems: tc.minNewItems})
			require.Len(t, result.Details.Added, len(tc.current))
			require.Equal(t, tc.want, result.HasChanges)
		})
	}
}

func TestDetect_ZeroThresholdWithoutNewItemsHasNoType(t *testing.T) {
	t.Parallel()

	result := Detect(items("p"), nil, Options{MinNewItems: 0})
	require.True(t, result.HasChanges)
	require.Nil(t, result.ChangeType)
	require.Equal(t, "No changes detected", result.Summary)
}

func TestDetect_BelowThresholdStillReportsAdded(t *testing.T) {
	t.Parallel()

	result := Detect(nil, items("1", "2"), Options{MinNewItems: 5})
	require.False(t, result.HasChanges)
	require.Equal(t, "No changes detected", result.Summary)
	require.Equal(t, 2, result.Details.Stats.AddedCount)
}

func TestDetect_RemovalsAndUpdatesAreOptIn(t *testing.T) {
	t.Parallel()

	previous := []Item{{ID: "1", Content: str("old")}, {ID: "2"}}
	current := []Item{{ID: "1", Content: str("new")}}
	result := Detect(previous, current, DefaultOptions())
	require.False(t, result.HasChanges)
	require.Empty(t, result.Details.Removed)
	require.Empty(t, result.Details.Updated)
}

func TestDetect_NilContentDiffersFromEmptyString(t *testing.T) {
	t.Parallel()

	previous := []Item{{ID: "1"}}
	current := []Item{{ID: "1", Content: str("")}}
	result := Detect(previous, current, Options{MinNewItems: 1, DetectUpdates: true})
	require.Equal(t, TypeUpdated, result.Type())
	require.Nil(t, result.Details.Updated[0].PreviousContent)
}

func TestDetect_DuplicateIDsCountTwice(t *testing.T) {
	t.Parallel()

	current := []Item{{ID: "dup", Title: "first"}, {ID: "dup", Title: "second"}}
	result := Detect(nil, current, DefaultOptions())
	require.Len(t, result.Details.Added, 2)
	require.Equal(t, "2 new items detected", result.Summary)
}

func TestDetect_PluralSummaries(t *testing.T) {
	t.Parallel()

	previous := []Item{{ID: "1", Content: str("a")}, {ID: "2", Content: str("b")}, {ID: "3"}, {ID: "4"}}
	current := []Item{{ID: "1", Content: str("c")}, {ID: "2", Content: str("d")}, {ID: "5"}, {ID: "6"}}
	result := Detect(previous, current, Options{MinNewItems: 1, DetectRemovals: true, DetectUpdates: true})
	require.Equal(t, "2 new items detected, 2 items removed, 2 items updated", result.Summary)
	require.Equal(t, TypeMixed, result.Type())
}

func TestDetect_IsDeterministic(t *testing.T) {
	t.Parallel()

	previous := []Item{{ID: "1", Content: str("a")}, {ID: "2"}}
	current := []Item{{ID: "1", Content: str("b")}, {ID: "3"}}
	opts := Options{MinNewItems: 1, DetectRemovals: true, DetectUpdates: true}
	first := Detect(previous, current, opts)
	second := Detect(previous, current, opts)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated detection differs (-first +second):\n%s", diff)
	}
}
