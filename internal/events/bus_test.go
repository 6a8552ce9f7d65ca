package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCloudEventEnvelope(t *testing.T) {
	ev := NewCloudEvent("tengen.review.queued", "/callback/review", "chat-1", map[string]interface{}{
		"task_id": "42",
	})

	assert.Equal(t, "1.0", ev.SpecVersion)
	assert.Equal(t, "tengen.review.queued", ev.Type)
	assert.Equal(t, "chat-1", ev.Subject)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Time.IsZero())

	data, err := ev.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"specversion":"1.0"`)
	assert.Contains(t, string(data), `"task_id":"42"`)
}

func TestEventBusTypedSubscription(t *testing.T) {
	bus := NewEventBus()
	queued := bus.Subscribe("tengen.review.queued")
	defer bus.Unsubscribe(queued)

	bus.Emit("tengen.review.queued", "/review", "chat-1", nil)
	bus.Emit("tengen.review.complete", "/review", "chat-1", nil)

	select {
	case ev := <-queued:
		assert.Equal(t, "tengen.review.queued", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the queued event")
	}

	select {
	case ev := <-queued:
		t.Fatalf("unexpected second event: %s", ev.Type)
	default:
	}
}

func TestEventBusAllSubscription(t *testing.T) {
	bus := NewEventBus()
	all := bus.Subscribe()
	defer bus.Unsubscribe(all)

	bus.Emit("tengen.review.queued", "/review", "chat-1", nil)
	bus.Emit("tengen.review.complete", "/review", "chat-1", nil)

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-all:
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	assert.Equal(t, []string{"tengen.review.queued", "tengen.review.complete"}, got)
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("tengen.review.queued")
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)
}
