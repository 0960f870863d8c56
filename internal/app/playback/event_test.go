package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_RegistrationOrder(t *testing.T) {
	em := NewEmitter()
	var order []string

	em.On(EventPlay, func(Event) { order = append(order, "first") })
	em.On(EventPlay, func(Event) { order = append(order, "second") })
	em.OnAll(func(Event) { order = append(order, "catch-all") })

	em.Emit(Event{Type: EventPlay})
	assert.Equal(t, []string{"first", "second", "catch-all"}, order)

	order = nil
	em.Emit(Event{Type: EventPause})
	assert.Equal(t, []string{"catch-all"}, order, "typed listeners only fire for their type")
}

func TestEmitter_PanicIsolation(t *testing.T) {
	em := NewEmitter()
	var reached []string

	em.On(EventError, func(Event) { reached = append(reached, "before") })
	em.On(EventError, func(Event) { panic("listener bug") })
	em.On(EventError, func(Event) { reached = append(reached, "after") })

	require.NotPanics(t, func() {
		em.Emit(Event{Type: EventError})
	})
	assert.Equal(t, []string{"before", "after"}, reached,
		"a panicking listener must not break the others")
}

func TestEmitter_StampsTime(t *testing.T) {
	em := NewEmitter()
	var got Event

	em.On(EventStop, func(ev Event) { got = ev })
	em.Emit(Event{Type: EventStop})

	assert.False(t, got.At.IsZero())
	assert.WithinDuration(t, time.Now(), got.At, time.Second)
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "play", EventPlay.String())
	assert.Equal(t, "finished_playing", EventFinishedPlaying.String())
	assert.Equal(t, "entry_added", EventEntryAdded.String())
	assert.Equal(t, "unknown", EventType(99).String())
}
