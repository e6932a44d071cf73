package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	var out []Event
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPublishPreservesOrder(t *testing.T) {
	got := make(chan Event, 10)
	id := SubscribeEvent("test.order", func(ev Event) { got <- ev })
	defer UnsubscribeEvent(id)

	for i := range 5 {
		PublishEvent("test.order", i)
	}

	events := collect(t, got, 5)
	for i, ev := range events {
		assert.Equal(t, i, ev.Data)
		assert.Equal(t, "system", ev.Source)
	}
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	got := make(chan Event, 10)
	id := SubscribeEvent("test.panic", func(ev Event) {
		if ev.Data == "bad" {
			panic("boom")
		}
		got <- ev
	})
	defer UnsubscribeEvent(id)

	PublishEventWithSource("test.panic", "bad", "test")
	PublishEventWithSource("test.panic", "good", "test")

	events := collect(t, got, 1)
	assert.Equal(t, "good", events[0].Data)
}

func TestUnsubscribe(t *testing.T) {
	id := SubscribeEvent("test.unsub", func(Event) {})
	require.Equal(t, 1, CountEventSubscribers("test.unsub"))
	assert.Contains(t, ListEventTopics(), "test.unsub")

	assert.True(t, UnsubscribeEvent(id))
	assert.False(t, UnsubscribeEvent(id))
	assert.Equal(t, 0, CountEventSubscribers("test.unsub"))

	// Publishing with no subscribers is a no-op.
	PublishEvent("test.unsub", nil)
}
