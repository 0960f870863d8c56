// Package notification provides an async broadcast hub layered over the
// synchronous player emitter, for external observers.
package notification

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/ricglz/Groovemin/internal/app/playback"
)

// subscriberBuffer is each subscriber's channel capacity. A subscriber
// that falls further behind loses events.
const subscriberBuffer = 16

// Notification pairs a player event with a hub-wide sequence number so
// subscribers can detect dropped events.
type Notification struct {
	SequenceNo uint64
	Event      playback.Event
}

// Manager manages notification subscriptions and broadcasting. Publish
// never blocks: a full subscriber buffer drops the event for that
// subscriber only.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]chan Notification
	closed      bool

	sequenceNoMu sync.Mutex
	sequenceNo   uint64
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscribers: make(map[string]chan Notification),
	}
}

// Subscribe adds a subscriber and returns its ID and receive channel.
// The channel is closed by Unsubscribe or Close.
func (m *Manager) Subscribe() (string, <-chan Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Notification, subscriberBuffer)
	if m.closed {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.subscribers[id]
	if !ok {
		return
	}
	delete(m.subscribers, id)
	close(ch)
}

// Publish broadcasts an event to all subscribers. Slow subscribers have
// the event dropped rather than stalling the publisher; sends happen
// under the read lock so channels close safely.
func (m *Manager) Publish(evt playback.Event) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	n := Notification{SequenceNo: m.sequenceNo, Event: evt}
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}
	for id, ch := range m.subscribers {
		select {
		case ch <- n:
		default:
			zlog.Debug().Msgf("notification dropped, subscriber too slow: id=%s seq=%d type=%s",
				id, n.SequenceNo, evt.Type)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Close removes all subscriptions and closes their channels. Later
// publishes are dropped and later subscribes get a closed channel.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
}
