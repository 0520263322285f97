package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ritzau/bazel-sync/pkg/logging"
)

// subscriberBuffer is how many events a slow subscriber may lag behind
// before events are dropped for it
const subscriberBuffer = 64

// Hub is the in-process Publisher behind the SSE endpoint.
//
// A new subscriber to project_model first receives the latest model update.
// A new subscriber to sync_progress first receives the latest step of every
// operation still running; finished operations are not replayed.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	seq    map[string]uint64
	model  *Event // latest model update
	active map[string]Event // operation -> latest step
	closed bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		seq:    make(map[string]uint64),
		active: make(map[string]Event),
	}
}

// Subscribe registers a subscriber and queues the replay for its topic
func (h *Hub) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if !IsTopic(topic) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	sub := &subscriber{
		topic:  topic,
		events: make(chan Event, subscriberBuffer),
		closed: make(chan struct{}),
		hub:    h,
	}
	for _, e := range h.replayLocked(topic) {
		select {
		case sub.events <- e:
		default:
			logging.Warn("replay exceeds subscriber buffer", "topic", topic)
		}
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*subscriber]struct{})
	}
	h.subs[topic][sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closed:
		}
	}()

	return sub, nil
}

func (h *Hub) replayLocked(topic string) []Event {
	switch topic {
	case TopicProjectModel:
		if h.model != nil {
			return []Event{*h.model}
		}
	case TopicSyncProgress:
		ops := make([]string, 0, len(h.active))
		for op := range h.active {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		out := make([]Event, 0, len(ops))
		for _, op := range ops {
			out = append(out, h.active[op])
		}
		return out
	}
	return nil
}

// PublishProgress sends a progress report to sync_progress subscribers
func (h *Hub) PublishProgress(p SyncProgress) error {
	return h.publish(TopicSyncProgress, p.State, p, func(e Event) {
		if p.Done() {
			delete(h.active, p.Operation)
		} else {
			h.active[p.Operation] = e
		}
	})
}

// PublishModel sends a model update to project_model subscribers
func (h *Hub) PublishModel(u ModelUpdate) error {
	return h.publish(TopicProjectModel, EventModelUpdated, u, func(e Event) {
		h.model = &e
	})
}

func (h *Hub) publish(topic, eventType string, payload any, retain func(Event)) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	h.seq[topic]++
	event := Event{Topic: topic, Type: eventType, Data: data, Seq: h.seq[topic]}
	retain(event)

	for sub := range h.subs[topic] {
		select {
		case sub.events <- event:
		default:
			logging.Warn("subscriber lagging, dropping event", "topic", topic, "seq", event.Seq)
		}
	}
	return nil
}

// Close ends every subscription. Later publishes fail with ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, subs := range h.subs {
		for sub := range subs {
			sub.closeLocked()
		}
	}
	h.subs = nil
	return nil
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.subs[sub.topic]; subs != nil {
		delete(subs, sub)
	}
	sub.closeLocked()
}

type subscriber struct {
	topic  string
	events chan Event
	closed chan struct{}
	hub    *Hub
}

func (s *subscriber) Topic() string {
	return s.topic
}

func (s *subscriber) Events() <-chan Event {
	return s.events
}

func (s *subscriber) Close() error {
	s.hub.remove(s)
	return nil
}

// closeLocked closes the channels once; the hub mutex must be held
func (s *subscriber) closeLocked() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
		close(s.events)
	}
}

// WriteSSE writes event as one Server-Sent Events frame, using the event
// type as the SSE event name and the sequence number as its id
func WriteSSE(w io.Writer, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Type, data)
	return err
}
