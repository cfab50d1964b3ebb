// Package events is a lakota-scoped pub/sub bus: a buffered fan-out
// goroutine carrying the lifecycle notifications a Repo's maintenance
// operations emit, with subscriptions that can filter by EventType and
// that count rather than silently discard what backpressure drops.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType names one lakota lifecycle notification.
type EventType string

const (
	EventDivergenceDetected EventType = "divergence.detected"
	EventMergeCompleted     EventType = "merge.completed"
	EventDefragCompleted    EventType = "defrag.completed"
	EventGCCompleted        EventType = "gc.completed"
	EventPushCompleted      EventType = "push.completed"
	EventPullCompleted      EventType = "pull.completed"
)

// Event is one notification describing a repo/collection/series lifecycle
// transition.
type Event struct {
	ID         string
	Type       EventType
	Timestamp  time.Time
	Message    string
	Repo       string
	Collection string
	Series     string
	Metadata   map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

const (
	defaultQueueSize      = 100
	defaultSubscriberSize = 50
)

// subscription pairs a subscriber channel with an optional EventType filter
// and a drop counter: a maintenance watcher that only cares about
// EventDivergenceDetected shouldn't be handed (and shouldn't have to
// discard) every defrag/gc notification, and an operator should be able to
// tell a quiet subscriber apart from one that is falling behind.
type subscription struct {
	ch      Subscriber
	filter  map[EventType]bool
	dropped atomic.Int64
}

func (s *subscription) wants(t EventType) bool {
	if len(s.filter) == 0 {
		return true
	}
	return s.filter[t]
}

// Broker manages event subscriptions and distribution.
type Broker struct {
	mu            sync.RWMutex
	subscribers   map[Subscriber]*subscription
	eventCh       chan *Event
	stopCh        chan struct{}
	subscriberCap int
}

// NewBroker creates a broker with the default queue and subscriber buffer
// sizes.
func NewBroker() *Broker {
	return NewBrokerSize(defaultQueueSize, defaultSubscriberSize)
}

// NewBrokerSize creates a broker whose internal event queue holds queueSize
// events and whose subscriber channels hold subscriberSize events each,
// letting a maintenance scheduler with many watched series size the bus to
// its own fan-out.
func NewBrokerSize(queueSize, subscriberSize int) *Broker {
	return &Broker{
		subscribers:   make(map[Subscriber]*subscription),
		eventCh:       make(chan *Event, queueSize),
		stopCh:        make(chan struct{}),
		subscriberCap: subscriberSize,
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a subscription that receives every event type.
func (b *Broker) Subscribe() Subscriber {
	return b.subscribe(nil)
}

// SubscribeTo creates a subscription that only receives the given event
// types, so a watcher interested solely in divergence doesn't compete for
// its own buffer space with gc/defrag traffic it will just throw away.
func (b *Broker) SubscribeTo(types ...EventType) Subscriber {
	filter := make(map[EventType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}
	return b.subscribe(filter)
}

func (b *Broker) subscribe(filter map[EventType]bool) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, b.subscriberCap)
	b.subscribers[sub] = &subscription{ch: sub, filter: filter}
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers whose filter accepts it.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
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

	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped reports how many events have been discarded for sub because its
// buffer was full at broadcast time. It returns 0 for an unknown or already
// unsubscribed channel.
func (b *Broker) Dropped(sub Subscriber) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.subscribers[sub]
	if !ok {
		return 0
	}
	return s.dropped.Load()
}
