// Package pubsub fans messages out to in-process topic subscribers.
package pubsub

import "sync"

// Broker delivers every message published on a topic to each of the topic's
// current subscribers, in publish order. Publishing never waits on
// subscribers and nothing is acknowledged.
type Broker[T any] struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription[T]]struct{}
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{topics: make(map[string]map[*Subscription[T]]struct{})}
}

// Subscription receives a topic's messages until Unsubscribe.
type Subscription[T any] struct {
	topic  string
	broker *Broker[T]
	box    *Mailbox[T]
	once   sync.Once
}

func (b *Broker[T]) Subscribe(topic string) *Subscription[T] {
	s := &Subscription[T]{topic: topic, broker: b, box: NewMailbox[T]()}
	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription[T]]struct{})
		b.topics[topic] = subs
	}
	subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish enqueues msg for every subscriber of topic and returns how many
// subscribers it reached.
func (b *Broker[T]) Publish(topic string, msg T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for s := range b.topics[topic] {
		if s.box.Put(msg) {
			n++
		}
	}
	return n
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Broker[T]) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (s *Subscription[T]) Topic() string { return s.topic }

// C yields messages in publish order. It is closed after Unsubscribe.
func (s *Subscription[T]) C() <-chan T { return s.box.C() }

// Unsubscribe detaches the subscription and drops undelivered messages.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		if subs, ok := b.topics[s.topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(b.topics, s.topic)
			}
		}
		b.mu.Unlock()
		s.box.Discard()
	})
}
