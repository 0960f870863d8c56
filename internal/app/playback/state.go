// Package playback provides the playback engine: entries with async
// readiness, the queue, the player state machine and its event fan-out.
package playback

// State represents the player state.
type State int

const (
	StateStopped State = iota // No entry playing, advance loop idle
	StatePlaying              // Entry is rendering
	StatePaused               // Entry is rendering but paused
	StateWaiting              // Between entries, awaiting readiness
	StateDead                 // Player killed, no further operations
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateWaiting:
		return "waiting"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// RepeatMode controls what happens to an entry after it finishes.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota // Finished entries are discarded
	RepeatOnce                   // Repeat the current entry once, then revert to RepeatNone
	RepeatAll                    // Re-append finished entries to the queue tail
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatOnce:
		return "once"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}
