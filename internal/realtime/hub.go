package realtime

import (
	"sort"
	"sync"

	"github.com/ammar1510/rideshare/internal/logger"
)

var log = logger.New("realtime")

// Handler receives change events. It runs on the publisher's goroutine and
// may call back into stores.
type Handler func(Event)

// Upstream is the source of change events for a whole collection. The hub
// listens on a collection while at least one topic of it has consumers.
type Upstream interface {
	Listen(c Collection) error
	Unlisten(c Collection) error
}

type consumer struct {
	id uint64
	fn Handler
}

// Hub keeps one reference-counted subscription per topic and fans events out
// to its consumers.
type Hub struct {
	mu          sync.RWMutex
	topics      map[Topic][]consumer
	collections map[Collection]int
	upstream    Upstream
	nextID      uint64
}

// NewHub creates a hub. upstream may be nil when events are published
// in-process only.
func NewHub(upstream Upstream) *Hub {
	return &Hub{
		topics:      make(map[Topic][]consumer),
		collections: make(map[Collection]int),
		upstream:    upstream,
	}
}

// Subscribe registers fn for events matching topic
func (h *Hub) Subscribe(topic Topic, fn Handler) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.collections[topic.Collection] == 0 && h.upstream != nil {
		if err := h.upstream.Listen(topic.Collection); err != nil {
			return nil, err
		}
		log.Debug("Listening on %s", topic.Collection)
	}
	h.collections[topic.Collection]++

	h.nextID++
	id := h.nextID
	h.topics[topic] = append(h.topics[topic], consumer{id: id, fn: fn})

	return &Subscription{hub: h, topic: topic, id: id}, nil
}

func (h *Hub) remove(topic Topic, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	consumers := h.topics[topic]
	for i, c := range consumers {
		if c.id != id {
			continue
		}
		consumers = append(consumers[:i:i], consumers[i+1:]...)
		if len(consumers) == 0 {
			delete(h.topics, topic)
		} else {
			h.topics[topic] = consumers
		}

		h.collections[topic.Collection]--
		if h.collections[topic.Collection] == 0 {
			delete(h.collections, topic.Collection)
			if h.upstream != nil {
				if err := h.upstream.Unlisten(topic.Collection); err != nil {
					log.Warn("Failed to unlisten %s: %v", topic.Collection, err)
				}
			}
		}
		return
	}
}

// Publish delivers e to every consumer whose topic matches, in subscription
// order. Handlers run after the hub lock is released.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	var targets []consumer
	for topic, consumers := range h.topics {
		if topic.Matches(e) {
			targets = append(targets, consumers...)
		}
	}
	h.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
	for _, c := range targets {
		c.fn(e)
	}
}

// Stats describes the current subscriptions
type Stats struct {
	Topics      int `json:"topics"`
	Consumers   int `json:"consumers"`
	Collections int `json:"collections"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{Topics: len(h.topics), Collections: len(h.collections)}
	for _, consumers := range h.topics {
		s.Consumers += len(consumers)
	}
	return s
}

// Subscription is one consumer's registration on a topic
type Subscription struct {
	hub   *Hub
	topic Topic
	id    uint64
	once  sync.Once
}

// Unsubscribe releases the registration. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.hub.remove(s.topic, s.id) })
}

// Group is a set of subscriptions released together
type Group []*Subscription

// SubscribeAll registers fn on every topic. On error the subscriptions made
// so far are released.
func (h *Hub) SubscribeAll(topics []Topic, fn Handler) (Group, error) {
	g := make(Group, 0, len(topics))
	for _, t := range topics {
		sub, err := h.Subscribe(t, fn)
		if err != nil {
			g.Unsubscribe()
			return nil, err
		}
		g = append(g, sub)
	}
	return g, nil
}

func (g Group) Unsubscribe() {
	for _, s := range g {
		s.Unsubscribe()
	}
}
