package playback

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

// ErrIndexOutOfRange is returned for queue positions that do not exist.
var ErrIndexOutOfRange = errors.New("playback: queue index out of range")

// Queue is an ordered list of entries. The head entry is always being
// prepared: adding to an empty queue, adding to the front, and popping
// with prefetch all trigger the new head's readiness pipeline.
type Queue struct {
	ctx     context.Context
	opts    EntryOptions
	emitter *Emitter

	mu      sync.RWMutex
	entries []*Entry
}

// NewQueue creates an empty queue. Entries built through the queue share
// the context and options.
func NewQueue(ctx context.Context, emitter *Emitter, opts EntryOptions) *Queue {
	if ctx == nil {
		ctx = context.Background()
	}
	if emitter == nil {
		emitter = NewEmitter()
	}
	return &Queue{ctx: ctx, opts: opts, emitter: emitter}
}

// Emitter returns the event emitter the queue publishes on.
func (q *Queue) Emitter() *Emitter { return q.emitter }

// NewEntry builds an entry with the queue's shared options.
func (q *Queue) NewEntry(desc media.Descriptor, requester media.Requester, origin media.Origin) (*Entry, error) {
	return NewEntry(q.ctx, desc, requester, origin, q.opts)
}

// Add appends the entry and emits EventEntryAdded. If the entry ends up
// at the head its preparation starts.
func (q *Queue) Add(e *Entry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()

	q.emitter.Emit(Event{Type: EventEntryAdded, Entry: e})
	if q.Peek() == e {
		e.Ready()
	}
}

// AddToFront prepends the entry and emits EventEntryAdded. The new head
// starts preparing.
func (q *Queue) AddToFront(e *Entry) {
	q.mu.Lock()
	q.entries = append([]*Entry{e}, q.entries...)
	q.mu.Unlock()

	q.emitter.Emit(Event{Type: EventEntryAdded, Entry: e})
	if q.Peek() == e {
		e.Ready()
	}
}

// pushFront re-inserts an entry at the head without events or prefetch.
// Used when an advance was abandoned and for snapshot restore.
func (q *Queue) pushFront(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([]*Entry{e}, q.entries...)
}

// ImportMany builds and adds one entry per descriptor. Descriptors that
// cannot become entries are counted and skipped, never abort the batch.
// Only the entry that lands at the head prefetches.
func (q *Queue) ImportMany(descs []media.Descriptor, requester media.Requester, origin media.Origin) ([]*Entry, int) {
	var added []*Entry
	bad := 0
	for _, d := range descs {
		e, err := q.NewEntry(d, requester, origin)
		if err != nil {
			bad++
			zlog.Warn().Err(err).Msgf("skipping unusable item %q", d.Title)
			continue
		}
		q.Add(e)
		added = append(added, e)
	}
	if bad > 0 {
		zlog.Info().Msgf("import skipped %d unusable items", bad)
	}
	return added, bad
}

// Peek returns the head entry without removing it, nil when empty.
func (q *Queue) Peek() *Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0]
}

// PopNext removes and returns the head entry, nil when empty. When
// prefetchNext is set the new head's preparation starts before return.
func (q *Queue) PopNext(prefetchNext bool) *Entry {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return nil
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	var next *Entry
	if prefetchNext && len(q.entries) > 0 {
		next = q.entries[0]
	}
	q.mu.Unlock()

	if next != nil {
		next.Ready()
	}
	return e
}

// RemoveAt removes and returns the entry at the 0-based index.
func (q *Queue) RemoveAt(i int) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.entries) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", i, len(q.entries))
	}
	e := q.entries[i]
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return e, nil
}

// Clear drops all queued entries. Downloaded files are left in place.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

// Shuffle randomizes the order of the queued entries.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	rand.Shuffle(len(q.entries), func(i, j int) {
		q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	})
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Entries returns a copy of the queued entries in order.
func (q *Queue) Entries() []*Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// CountFor returns how many queued entries the requester owns.
func (q *Queue) CountFor(requesterID string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, e := range q.entries {
		if e.Requester().ID == requesterID {
			n++
		}
	}
	return n
}

// HasSourceURL reports whether any queued entry resolves the same source.
func (q *Queue) HasSourceURL(url string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, e := range q.entries {
		if e.Descriptor().SourceURL == url {
			return true
		}
	}
	return false
}

// hasFilename reports whether any queued entry will render the file.
func (q *Queue) hasFilename(fn string) bool {
	if fn == "" {
		return false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, e := range q.entries {
		if e.Descriptor().Filename == fn {
			return true
		}
	}
	return false
}

// EstimateWaitUntil estimates how long until the entry at the 1-based
// position starts: the durations of everything queued before it, plus
// the current entry's remaining time when one is playing. Entries whose
// duration is still unknown count as zero, so this is a lower bound.
func (q *Queue) EstimateWaitUntil(position int, p *Player) time.Duration {
	q.mu.RLock()
	n := position - 1
	if n < 0 {
		n = 0
	}
	if n > len(q.entries) {
		n = len(q.entries)
	}
	var total time.Duration
	for _, e := range q.entries[:n] {
		total += e.Descriptor().EstimatedDuration()
	}
	q.mu.RUnlock()

	if p != nil {
		total += p.RemainingTime()
	}
	return total
}
