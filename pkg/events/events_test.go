package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventGCCompleted, Repo: "main", Message: "swept 3 blobs"})

	select {
	case ev := <-sub:
		require.Equal(t, EventGCCompleted, ev.Type)
		require.Equal(t, "main", ev.Repo)
		require.False(t, ev.Timestamp.IsZero(), "Publish must stamp a timestamp when the caller left it zero")
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the published event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())
}

func TestSubscribeToFiltersOtherEventTypes(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.SubscribeTo(EventDivergenceDetected)
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventGCCompleted})
	b.Publish(&Event{Type: EventDivergenceDetected, Series: "brussels"})

	select {
	case ev := <-sub:
		require.Equal(t, EventDivergenceDetected, ev.Type)
		require.Equal(t, "brussels", ev.Series)
	case <-time.After(time.Second):
		t.Fatal("filtered subscriber never received the matching event")
	}

	select {
	case ev := <-sub:
		t.Fatalf("filtered subscriber received an unwanted event: %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDroppedCountsBackpressure(t *testing.T) {
	b := NewBrokerSize(10, 1)
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		b.Publish(&Event{Type: EventGCCompleted})
	}

	require.Eventually(t, func() bool {
		return b.Dropped(sub) > 0
	}, time.Second, 10*time.Millisecond, "a subscriber with a full buffer must accumulate a drop count")
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	b.Publish(&Event{Type: EventMergeCompleted})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case ev := <-sub:
			require.Equal(t, EventMergeCompleted, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("a subscriber never received the published event")
		}
	}
}
