// Package broker implements the routing fabric: a topic-keyed pub/sub
// registry bridging a client socket and its attached farm's socket.
// There is no broadcast - every topic has at most one subscriber, every
// publish targets that one expected subscriber, and a publish to a topic
// with no subscriber is a silent no-op.
package broker

import (
	"fmt"
	"sync"
)

// Subscriber is anything that can receive a routed message - in
// production, a *session.Session; in tests, a recording fake.
type Subscriber interface {
	Deliver(message []byte)
}

// Broker is the core's view of the transport's pub/sub fabric. The
// concrete wiring of Broker to actual websocket frames lives in the
// wsserver package; this type is transport-agnostic so the routing rules
// can be tested without a socket.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]Subscriber
}

// New returns an empty Broker.
func New() *Broker {
	return &Broker{topics: make(map[string]Subscriber)}
}

// ClientTopic returns the topic name client-bound traffic for the given
// client session id is published on.
func ClientTopic(clientSessionID int64) string {
	return fmt.Sprintf("client_%d", clientSessionID)
}

// FarmTopic returns the topic name farm-bound traffic for the given farm
// session id is published on.
func FarmTopic(farmSessionID int64) string {
	return fmt.Sprintf("arduino_%d", farmSessionID)
}

// Subscribe attaches sub as the (sole) subscriber of topic, replacing any
// previous subscriber. A farm or client resubscribing under a fresh
// session id simply claims a new topic name; it never needs to evict a
// prior subscriber explicitly.
func (b *Broker) Subscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = sub
}

// Unsubscribe removes sub as topic's subscriber, but only if it is still
// the current one - guards against a stale unsubscribe racing a fresh
// Subscribe to the same topic name.
func (b *Broker) Unsubscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[topic] == sub {
		delete(b.topics, topic)
	}
}

// Publish delivers message to topic's subscriber, if any. Returns whether
// a subscriber was found. There is no retry and no durable queue: a
// publish to an unsubscribed topic is dropped.
func (b *Broker) Publish(topic string, message []byte) bool {
	b.mu.RLock()
	sub, ok := b.topics[topic]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	sub.Deliver(message)
	return true
}
