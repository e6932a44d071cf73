// Package bus is a small in-process pub/sub for lifecycle notifications.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/roelfdiedericks/wamcp/internal/logging"
)

// Topics published by the session host.
const (
	TopicSessionState  = "session.state.changed"
	TopicOutboxDrained = "outbox.drained"
)

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// events for it are dropped.
const subscriberBuffer = 64

// Event represents a notification broadcast to subscribers (pub/sub pattern)
type Event struct {
	Topic     string    // Event topic, e.g. "session.state.changed"
	Data      any       // Optional payload data
	Timestamp time.Time // When the event was published
	Source    string    // Origin: "whatsapp", "config", "system", etc.
}

// EventHandler processes an event (no return value - fire and forget)
type EventHandler func(Event)

// SubscriptionID uniquely identifies an event subscription
type SubscriptionID uint64

// subscription delivers events to one handler in publish order.
type subscription struct {
	id      SubscriptionID
	topic   string
	handler EventHandler
	events  chan Event
}

func (s *subscription) run() {
	for ev := range s.events {
		s.deliver(ev)
	}
}

func (s *subscription) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			L_error("bus: event handler panic", "topic", s.topic, "subscriptionID", s.id, "panic", r)
		}
	}()
	s.handler(ev)
}

var (
	// eventSubscriptions maps topics to their subscribers
	eventSubscriptions   = make(map[string][]*subscription)
	eventSubscriptionsMu sync.RWMutex

	// nextSubscriptionID generates unique subscription IDs
	nextSubscriptionID uint64
)

// SubscribeEvent registers a handler for an event topic. Each subscriber has
// its own delivery goroutine, so handlers see events in publish order and a
// slow handler never blocks the publisher.
func SubscribeEvent(topic string, handler EventHandler) SubscriptionID {
	sub := &subscription{
		id:      SubscriptionID(atomic.AddUint64(&nextSubscriptionID, 1)),
		topic:   topic,
		handler: handler,
		events:  make(chan Event, subscriberBuffer),
	}
	go sub.run()

	eventSubscriptionsMu.Lock()
	eventSubscriptions[topic] = append(eventSubscriptions[topic], sub)
	eventSubscriptionsMu.Unlock()

	L_debug("bus: event subscribed", "topic", topic, "subscriptionID", sub.id)
	return sub.id
}

// UnsubscribeEvent removes a subscription by its ID. Events already queued
// for it are still delivered.
// Returns true if the subscription was found and removed.
func UnsubscribeEvent(id SubscriptionID) bool {
	eventSubscriptionsMu.Lock()
	defer eventSubscriptionsMu.Unlock()

	for topic, subs := range eventSubscriptions {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			eventSubscriptions[topic] = append(subs[:i:i], subs[i+1:]...)
			if len(eventSubscriptions[topic]) == 0 {
				delete(eventSubscriptions, topic)
			}
			close(sub.events)
			L_debug("bus: event unsubscribed", "topic", topic, "subscriptionID", id)
			return true
		}
	}
	return false
}

// PublishEvent broadcasts an event to all subscribers of the topic.
func PublishEvent(topic string, data any) {
	PublishEventWithSource(topic, data, "system")
}

// PublishEventWithSource broadcasts an event with source information.
// It never blocks: a subscriber whose buffer is full misses the event.
func PublishEventWithSource(topic string, data any, source string) {
	event := Event{
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}

	// The read lock is held across the sends so UnsubscribeEvent cannot close
	// a channel mid-publish.
	eventSubscriptionsMu.RLock()
	defer eventSubscriptionsMu.RUnlock()

	subs := eventSubscriptions[topic]
	if len(subs) == 0 {
		L_trace("bus: event published (no subscribers)", "topic", topic)
		return
	}

	L_debug("bus: event published", "topic", topic, "subscribers", len(subs), "source", source)

	for _, sub := range subs {
		select {
		case sub.events <- event:
		default:
			L_warn("bus: subscriber lagging, event dropped", "topic", topic, "subscriptionID", sub.id)
		}
	}
}

// ListEventTopics returns all topics with active subscriptions
func ListEventTopics() []string {
	eventSubscriptionsMu.RLock()
	defer eventSubscriptionsMu.RUnlock()

	topics := make([]string, 0, len(eventSubscriptions))
	for topic := range eventSubscriptions {
		topics = append(topics, topic)
	}
	return topics
}

// CountEventSubscribers returns the number of subscribers for a topic
func CountEventSubscribers(topic string) int {
	eventSubscriptionsMu.RLock()
	defer eventSubscriptionsMu.RUnlock()

	return len(eventSubscriptions[topic])
}
