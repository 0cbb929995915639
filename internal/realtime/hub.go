package realtime

import (
	"context"
	"fmt"
	"sync"

	"tableservice-platform/internal/metrics"
)

// Message is one event addressed to one channel. Payload is the JSON
// encoding of Event, shared by every subscriber.
type Message struct {
	Channel string
	Event   Event
	Payload []byte
}

// Broadcaster publishes messages on a named transport.
type Broadcaster interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
}

// Hub is the in-process pub/sub transport behind the websocket endpoint.
// Publishing never blocks: a subscriber whose buffer is full is dropped and
// must resubscribe.
type Hub struct {
	Metrics *metrics.Metrics

	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

func (h *Hub) Name() string { return "hub" }

type Subscription struct {
	Channel string
	C       <-chan Message

	ch   chan Message
	hub  *Hub
	once sync.Once
}

func (h *Hub) Subscribe(channel string) *Subscription {
	ch := make(chan Message, h.buffer)
	sub := &Subscription{Channel: channel, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	set, ok := h.subs[channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[channel] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	h.Metrics.SubscriberAdded()
	return sub
}

// Close detaches the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set, ok := h.subs[s.Channel]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.Channel)
			}
		}
		close(s.ch)
		h.mu.Unlock()
		h.Metrics.SubscriberRemoved()
	})
}

func (h *Hub) Publish(_ context.Context, msg Message) error {
	var slow []*Subscription

	h.mu.RLock()
	for sub := range h.subs[msg.Channel] {
		select {
		case sub.ch <- msg:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		sub.Close()
	}
	if len(slow) > 0 {
		return fmt.Errorf("dropped %d lagging subscriber(s) on %s", len(slow), msg.Channel)
	}
	return nil
}

// Subscribers counts live subscriptions on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
