// In-process event bus. In-process subscribers (the priority manager,
// metrics) are invoked synchronously on the orchestrator goroutine within
// the tick that produced the events. External consumers (ML collaborator,
// telemetry) attach buffered feed channels with non-blocking delivery: a
// slow or absent reader loses events, it never stalls the tick.

package sim

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Subscriber receives events synchronously during tick delivery.
// Handlers run on the orchestrator goroutine and must not block.
type Subscriber interface {
	HandleEvent(ev Event)
}

// EventBus distributes domain events collected during a tick.
type EventBus struct {
	subscribers []Subscriber
	feeds       []chan Event
	feedBuffer  int

	// Dropped counts events discarded because a feed buffer was full.
	// Atomic: written during Publish, read from telemetry goroutines.
	Dropped atomic.Int64
}

// NewEventBus creates a bus whose external feeds buffer feedBuffer events.
func NewEventBus(feedBuffer int) *EventBus {
	return &EventBus{feedBuffer: feedBuffer}
}

// Subscribe registers a synchronous in-process subscriber.
// Not safe to call concurrently with Publish; wire subscribers up before
// the orchestrator starts ticking.
func (b *EventBus) Subscribe(s Subscriber) {
	b.subscribers = append(b.subscribers, s)
}

// SubscribeFeed returns a buffered channel carrying a copy of the event
// stream for an external consumer. Delivery is one-way and non-blocking.
func (b *EventBus) SubscribeFeed() <-chan Event {
	ch := make(chan Event, b.feedBuffer)
	b.feeds = append(b.feeds, ch)
	return ch
}

// Publish delivers events in order: synchronous subscribers first, then
// non-blocking fan-out to external feeds.
func (b *EventBus) Publish(events []Event) {
	for _, ev := range events {
		for _, s := range b.subscribers {
			s.HandleEvent(ev)
		}
		for _, feed := range b.feeds {
			select {
			case feed <- ev:
			default:
				b.Dropped.Add(1)
				logrus.Debugf("event feed full, dropping %s from tick %d", ev.Type(), ev.Tick())
			}
		}
	}
}
