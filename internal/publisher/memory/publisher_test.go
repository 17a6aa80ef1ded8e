package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pulseflow/internal/publisher"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	pub := New()
	id, err := pub.PublishPulseCreated(ctx, publisher.PulseCreated{PulseID: "p1", SignalID: "a"})
	require.NoError(t, err)
	require.Equal(t, "pulse.created/p1", id)
	_, err = pub.PublishPulseCreated(ctx, publisher.PulseCreated{PulseID: "p2", SignalID: "b", HasChanges: true})
	require.NoError(t, err)

	events := pub.Events()
	require.Len(t, events, 2)
	require.Equal(t, publisher.EventPulseCreated, events[0].Event)

	forB := pub.ForSignal("b")
	require.Len(t, forB, 1)
	require.True(t, forB[0].HasChanges)

	events[0].PulseID = "modified"
	require.Equal(t, "p1", pub.Events()[0].PulseID)
}

func TestPublisherRejectsAnonymousEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.PublishPulseCreated(context.Background(), publisher.PulseCreated{PulseID: "p1"})
	require.Error(t, err)
	require.Empty(t, pub.Events())
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	pub := New()
	pub.FailWith(errors.New("broker down"))
	_, err := pub.PublishPulseCreated(ctx, publisher.PulseCreated{PulseID: "p1", SignalID: "a"})
	require.EqualError(t, err, "broker down")
	require.Empty(t, pub.Events())

	pub.FailWith(nil)
	_, err = pub.PublishPulseCreated(ctx, publisher.PulseCreated{PulseID: "p1", SignalID: "a"})
	require.NoError(t, err)
}
