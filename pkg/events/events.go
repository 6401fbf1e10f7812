package events

import (
	"sync"
	"time"
)

// EventType represents the type of broker activity
type EventType string

const (
	EventSubscriptionRegistered EventType = "subscription.registered"
	EventSubscriptionRejected   EventType = "subscription.rejected"
	EventSubscriptionRemoved    EventType = "subscription.removed"
	EventDeliveryCompleted      EventType = "delivery.completed"
	EventDeliveryRejected       EventType = "delivery.rejected"
	EventDeliveryFailed         EventType = "delivery.failed"
	EventWatcherStarted         EventType = "watcher.started"
	EventWatcherStopped         EventType = "watcher.stopped"
	EventBrokerShutdown         EventType = "broker.shutdown"
)

// Event represents one piece of broker activity
type Event struct {
	Type           EventType
	Timestamp      time.Time
	SubscriptionID uint32
	PID            uint32
	Message        string
	Metadata       map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans activity events out to subscribers. Publish never blocks the
// caller; events are dropped when the feed or a subscriber is saturated.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. It is safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues an event for distribution. A nil Broker discards it.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
		// Feed saturated, drop
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
