// Package msg carries build events from a meta model to archive handlers
// and websocket clients.
package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Topic classifies a Msg.
type Topic int

const (
	// Phase messages carry a PhaseEvent after each build phase.
	Phase Topic = iota
	// Summary messages carry the summary of a completed build.
	Summary
)

func (t Topic) String() string {
	switch t {
	case Phase:
		return "phase"
	case Summary:
		return "summary"
	}
	return "unknown"
}

// Publisher is an interface for objects that allow subscription to their events
type Publisher interface {
	Subscribe(uuid.UUID, ...Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a single event.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

// ErrClosed is returned when subscribing to a closed Hub.
var ErrClosed = errors.New("publisher is closed")

const subscriberBuffer = 50

// Hub fans messages out to subscribers by topic. Each subscriber owns one
// channel for all of its topics, so it sees messages in publish order.
// Slow subscribers lose messages instead of blocking the publisher.
type Hub struct {
	mux         sync.Mutex
	pid         uuid.UUID
	channels    map[uuid.UUID]chan Msg
	subscribers map[Topic]map[uuid.UUID]struct{}
	closed      bool
}

// NewPublisher returns a Hub that stamps messages with pid.
func NewPublisher(pid uuid.UUID) *Hub {
	return &Hub{
		pid:         pid,
		channels:    make(map[uuid.UUID]chan Msg),
		subscribers: make(map[Topic]map[uuid.UUID]struct{}),
	}
}

// PID returns the sender id of published messages.
func (h *Hub) PID() uuid.UUID {
	return h.pid
}

// Subscribe returns the channel of pid and adds topics to it. Later calls
// with the same pid return the same channel.
func (h *Hub) Subscribe(pid uuid.UUID, topics ...Topic) (<-chan Msg, error) {
	h.mux.Lock()
	defer h.mux.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if len(topics) == 0 {
		return nil, errors.New("subscribe needs at least one topic")
	}
	ch, ok := h.channels[pid]
	if !ok {
		ch = make(chan Msg, subscriberBuffer)
		h.channels[pid] = ch
	}
	for _, topic := range topics {
		subs, ok := h.subscribers[topic]
		if !ok {
			subs = make(map[uuid.UUID]struct{})
			h.subscribers[topic] = subs
		}
		subs[pid] = struct{}{}
	}
	return ch, nil
}

// Unsubscribe removes pid from every topic and closes its channel.
func (h *Hub) Unsubscribe(pid uuid.UUID) {
	h.mux.Lock()
	defer h.mux.Unlock()
	h.drop(pid)
}

func (h *Hub) drop(pid uuid.UUID) {
	ch, ok := h.channels[pid]
	if !ok {
		return
	}
	for _, subs := range h.subscribers {
		delete(subs, pid)
	}
	delete(h.channels, pid)
	close(ch)
}

// Publish sends payload to every subscriber of topic and reports how many
// subscribers received it.
func (h *Hub) Publish(topic Topic, payload interface{}) int {
	h.mux.Lock()
	defer h.mux.Unlock()
	if h.closed {
		return 0
	}
	m := New(h.pid, topic, payload)
	delivered := 0
	for pid := range h.subscribers[topic] {
		select {
		case h.channels[pid] <- m:
			delivered++
		default:
		}
	}
	return delivered
}

// Close unsubscribes everyone. Later publishes are dropped.
func (h *Hub) Close() {
	h.mux.Lock()
	defer h.mux.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for pid := range h.channels {
		h.drop(pid)
	}
}
