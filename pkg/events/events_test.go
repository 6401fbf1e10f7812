package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_PublishReachesSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventSubscriptionRegistered, SubscriptionID: 7})

	for _, sub := range []Subscriber{first, second} {
		select {
		case ev := <-sub:
			assert.Equal(t, EventSubscriptionRegistered, ev.Type)
			assert.Equal(t, uint32(7), ev.SubscriptionID)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	_, ok := <-sub
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroker_PublishNeverBlocks(t *testing.T) {
	b := NewBroker()
	// Not started: the feed fills up and further events are dropped.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(&Event{Type: EventDeliveryCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a saturated feed")
	}
}

func TestBroker_NilIsSilent(t *testing.T) {
	var b *Broker
	require.NotPanics(t, func() {
		b.Publish(&Event{Type: EventBrokerShutdown})
	})
}

func TestBroker_StopTwice(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	require.NotPanics(t, b.Stop)
}
