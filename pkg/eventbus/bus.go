// Package eventbus implements the topic-classified publish/subscribe
// router that decouples trade outcomes from the components reacting to
// them. Delivery is fire-and-forget: the publisher never blocks, there
// is no acknowledgment and no retained history.
package eventbus

import (
	"sync"

	"go.uber.org/zap"
)

// Topic classifies envelopes for routing.
type Topic string

// The topics the exchange publishes on. The bus also routes arbitrary
// string topics; these are just the well-known ones.
const (
	TopicPriceSim    Topic = "psasystem"
	TopicEnergy      Topic = "energy"
	TopicOrderStatus Topic = "orderstatus"
	TopicFills       Topic = "fills"
)

// Envelope is the unit transported by the bus: a topic plus an opaque
// payload. Created at publish time, discarded after delivery.
type Envelope struct {
	Topic   Topic
	Payload any
}

// Bus routes envelopes to every subscriber of their topic. Subscriber
// handles are channels owned by the subscriber; sends are non-blocking,
// so a subscriber that cannot keep up loses envelopes rather than
// stalling publishers.
type Bus struct {
	log *zap.SugaredLogger

	mu   sync.RWMutex
	subs map[Topic][]chan Envelope
}

func New(log *zap.SugaredLogger) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[Topic][]chan Envelope),
	}
}

// Subscribe registers ch for envelopes published on topic. Subscribing
// the same channel to the same topic twice is a no-op. A channel may be
// subscribed to any number of topics.
func (b *Bus) Subscribe(topic Topic, ch chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.subs[topic] {
		if existing == ch {
			return
		}
	}
	b.subs[topic] = append(b.subs[topic], ch)
}

// Unsubscribe removes ch from topic. Unknown pairs are ignored. The
// subscriber list is rebuilt rather than shifted in place so a Publish
// iterating a previously read slice never observes the mutation.
func (b *Bus) Unsubscribe(topic Topic, ch chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, existing := range subs {
		if existing == ch {
			next := make([]chan Envelope, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[topic] = next
			return
		}
	}
}

// Publish delivers env to every subscriber currently registered for its
// topic. Subscribers registered after the call miss the envelope. A full
// subscriber buffer drops the envelope for that subscriber only. The
// read lock is held across the sends; they are non-blocking, so the
// publisher still never stalls.
func (b *Bus) Publish(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[env.Topic] {
		select {
		case ch <- env:
		default:
			b.log.Debugw("eventbus_drop", "topic", env.Topic)
		}
	}
}
