package playback

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// EventType represents a playback event type.
type EventType int

const (
	EventPlay            EventType = iota // An entry started rendering
	EventPause                            // Playback was paused
	EventResume                           // Playback was resumed
	EventStop                             // Playback stopped (explicitly or queue ran dry)
	EventFinishedPlaying                  // An entry finished (naturally or skipped)
	EventEntryAdded                       // An entry was added to the queue
	EventError                            // An entry or the transport failed fatally
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventStop:
		return "stop"
	case EventFinishedPlaying:
		return "finished_playing"
	case EventEntryAdded:
		return "entry_added"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type   EventType
	Player *Player // Emitting player (nil for queue-side events)
	Entry  *Entry  // Affected entry (nil for some events)
	Err    error   // Set for EventError
	At     time.Time
}

// Listener receives events. Listeners run synchronously on the emitting
// goroutine and must not block.
type Listener func(Event)

// Emitter dispatches events to registered listeners, in registration
// order, synchronously. A panicking listener is logged and skipped so it
// never breaks dispatch or the emitting operation.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[EventType][]Listener
	catchAll  []Listener
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[EventType][]Listener)}
}

// On registers a listener for one event type.
func (em *Emitter) On(t EventType, fn Listener) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.listeners[t] = append(em.listeners[t], fn)
}

// OnAll registers a listener for every event type. Catch-all listeners
// run after the type-specific ones.
func (em *Emitter) OnAll(fn Listener) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.catchAll = append(em.catchAll, fn)
}

// Emit dispatches the event to all matching listeners.
func (em *Emitter) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	em.mu.RLock()
	typed := append([]Listener(nil), em.listeners[ev.Type]...)
	catchAll := append([]Listener(nil), em.catchAll...)
	em.mu.RUnlock()

	for _, fn := range typed {
		em.dispatch(fn, ev)
	}
	for _, fn := range catchAll {
		em.dispatch(fn, ev)
	}
}

func (em *Emitter) dispatch(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Interface("panic", r).Msgf("event listener panicked on %s", ev.Type)
		}
	}()
	fn(ev)
}
