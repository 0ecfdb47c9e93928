// Package relay fans messages out to subscribers of a topic. Page
// channels and the approval launcher both listen through it.
package relay

import (
	"sync"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 16

// Subscription receives messages published to its topic until cancelled
type Subscription struct {
	C <-chan []byte

	hub   *Hub
	topic string
	id    uint64
	once  sync.Once
}

// Cancel stops delivery and closes C
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.hub.unsubscribe(s.topic, s.id) })
}

// Hub is a topic-keyed publish/subscribe fan-out. Publish never blocks:
// a subscriber whose queue is full misses the message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan []byte
	nextID uint64
	buffer int
}

// NewHub creates a Hub; buffer <= 0 selects DefaultBuffer
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[string]map[uint64]chan []byte), buffer: buffer}
}

// Subscribe registers a new subscriber on topic
func (h *Hub) Subscribe(topic string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ch := make(chan []byte, h.buffer)
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]chan []byte)
	}
	h.subs[topic][h.nextID] = ch

	return &Subscription{C: ch, hub: h, topic: topic, id: h.nextID}
}

func (h *Hub) unsubscribe(topic string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[topic]
	ch, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.subs, topic)
	}
	close(ch)
}

// Publish delivers msg to every subscriber of topic and returns how many
// received it
func (h *Hub) Publish(topic string, msg []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, ch := range h.subs[topic] {
		select {
		case ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of live subscribers on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
