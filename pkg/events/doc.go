/*
Package events provides an in-memory feed of burrow broker activity.

The notify server publishes one Event for every registration, removal,
delivery pass and watcher start or stop. Tools subscribe to the feed to
trace what the broker is doing without touching its registry.

# Architecture

	┌──────────────────── ACTIVITY FEED ───────────────────────┐
	│                                                            │
	│  notify.Server loop ──Publish──► eventCh (buffer: 100)     │
	│                                      │                     │
	│                               broadcast loop               │
	│                                      │                     │
	│              ┌───────────────────────┼──────────────┐      │
	│              ▼                       ▼              ▼      │
	│        Subscriber (50)        Subscriber (50)    ...       │
	└────────────────────────────────────────────────────────────┘

Publish is non-blocking. The broker loop must never wait on an observer,
so a saturated feed or a slow subscriber loses events instead.

# Event Types

  - subscription.registered / subscription.rejected / subscription.removed
  - delivery.completed / delivery.rejected / delivery.failed
  - watcher.started / watcher.stopped
  - broker.shutdown

# Usage

	feed := events.NewBroker()
	feed.Start()
	defer feed.Stop()

	sub := feed.Subscribe()
	defer feed.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			fmt.Printf("%s id=%d %s\n", ev.Type, ev.SubscriptionID, ev.Message)
		}
	}()

A nil *Broker is a valid, silent feed, so the server can publish
unconditionally.
*/
package events
