// Package bus provides a small topic-keyed publish/subscribe registry.
// Settings changes and sidebar lifecycle events flow through it so live
// readers (websocket pushers, open sidebars) see updates without polling.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/hbruyere/pagemate/internal/logging"
)

// Well-known topics.
const (
	TopicSettingsChanged = "settings.changed"
	TopicSidebarOpened   = "sidebar.opened"
	TopicSidebarToggle   = "sidebar.toggle"
)

// Event is a notification broadcast to subscribers.
type Event struct {
	Topic     string
	Data      any
	Timestamp time.Time
	Source    string // origin: "options", "watcher", "action", "system"
}

// EventHandler processes an event. No return value, fire and forget.
type EventHandler func(Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

var (
	subscriptions   = make(map[string][]subscription)
	subscriptionsMu sync.RWMutex

	nextSubscriptionID uint64
)

// Subscribe registers a handler for a topic and returns an ID usable
// with Unsubscribe.
func Subscribe(topic string, handler EventHandler) SubscriptionID {
	id := SubscriptionID(atomic.AddUint64(&nextSubscriptionID, 1))

	subscriptionsMu.Lock()
	defer subscriptionsMu.Unlock()

	subscriptions[topic] = append(subscriptions[topic], subscription{
		id:      id,
		handler: handler,
	})

	L_debug("bus: subscribed", "topic", topic, "subscriptionID", id)
	return id
}

// Unsubscribe removes a subscription by its ID.
// Returns true if the subscription was found and removed.
func Unsubscribe(id SubscriptionID) bool {
	subscriptionsMu.Lock()
	defer subscriptionsMu.Unlock()

	for topic, subs := range subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				subscriptions[topic] = append(subs[:i], subs[i+1:]...)
				if len(subscriptions[topic]) == 0 {
					delete(subscriptions, topic)
				}
				L_debug("bus: unsubscribed", "topic", topic, "subscriptionID", id)
				return true
			}
		}
	}
	return false
}

// Publish broadcasts an event to all subscribers of the topic.
// Handlers run synchronously in publish order: a settings write must be
// observed by every live reader before the next write lands, which is
// what makes the store's last-write-wins merge observable as such.
func Publish(topic string, data any) {
	PublishWithSource(topic, data, "system")
}

// PublishWithSource broadcasts an event with origin information.
func PublishWithSource(topic string, data any, source string) {
	event := Event{
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}

	subscriptionsMu.RLock()
	subs := subscriptions[topic]
	// Copy to avoid holding the lock during handler execution.
	subsCopy := make([]subscription, len(subs))
	copy(subsCopy, subs)
	subscriptionsMu.RUnlock()

	if len(subsCopy) == 0 {
		L_trace("bus: published (no subscribers)", "topic", topic)
		return
	}

	L_debug("bus: published", "topic", topic, "subscribers", len(subsCopy), "source", source)

	for _, sub := range subsCopy {
		func(s subscription) {
			defer func() {
				if r := recover(); r != nil {
					L_error("bus: handler panic", "topic", topic, "subscriptionID", s.id, "panic", r)
				}
			}()
			s.handler(event)
		}(sub)
	}
}

// CountSubscribers returns the number of subscribers for a topic.
func CountSubscribers(topic string) int {
	subscriptionsMu.RLock()
	defer subscriptionsMu.RUnlock()

	return len(subscriptions[topic])
}
