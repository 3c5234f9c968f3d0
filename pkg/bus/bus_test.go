package bus

import (
	"testing"
	"time"

	"github.com/mothershiphq/mothership/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := New()
	sub := b.Subscribe("rift-1")
	defer b.Unsubscribe("rift-1", sub)

	b.Publish("rift-1", Message{Envelope: protocol.Envelope{Type: protocol.TypeHeartbeat}})

	select {
	case msg := <-sub:
		assert.Equal(t, protocol.TypeHeartbeat, msg.Envelope.Type)
	case <-time.After(time.Second):
		t.Fatal("expected message, got none")
	}
}

func TestPublishIsolatedPerRift(t *testing.T) {
	b := New()
	subA := b.Subscribe("rift-a")
	subB := b.Subscribe("rift-b")
	defer b.Unsubscribe("rift-a", subA)
	defer b.Unsubscribe("rift-b", subB)

	b.Publish("rift-a", Message{Envelope: protocol.Envelope{Type: protocol.TypeFileUpdate}})

	select {
	case <-subA:
	case <-time.After(time.Second):
		t.Fatal("rift-a subscriber should have received message")
	}

	select {
	case <-subB:
		t.Fatal("rift-b subscriber should not receive rift-a traffic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeRemovesEmptyTopic(t *testing.T) {
	b := New()
	sub := b.Subscribe("rift-1")
	require.Equal(t, 1, b.SubscriberCount("rift-1"))
	require.Equal(t, 1, b.ActiveTopics())

	b.Unsubscribe("rift-1", sub)
	assert.Equal(t, 0, b.SubscriberCount("rift-1"))
	assert.Equal(t, 0, b.ActiveTopics())
}

func TestPublishToUnknownRiftIsNoop(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() {
		b.Publish("nonexistent", Message{Envelope: protocol.Envelope{Type: protocol.TypeHeartbeat}})
	})
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()
	sub := b.Subscribe("rift-1")
	defer b.Unsubscribe("rift-1", sub)

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish("rift-1", Message{Envelope: protocol.Envelope{Type: protocol.TypeHeartbeat}})
	}
	// Publish must return without blocking even once the buffer fills.
	assert.LessOrEqual(t, len(sub), subscriberBuffer)
}
