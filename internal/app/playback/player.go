package playback

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrInvalidState is returned when an operation is illegal in the
	// player's current state.
	ErrInvalidState = errors.New("playback: operation invalid in current state")
	// ErrTransport marks renderer failures.
	ErrTransport = errors.New("playback: transport error")
)

// PlayerConfig carries the player's tunables.
type PlayerConfig struct {
	Volume          float64       // initial volume 0..1, 0.5 when unset
	MaxRetries      int           // readiness attempts per entry, 3 when unset
	RetryBaseDelay  time.Duration // backoff base, doubles per attempt, 1s when unset
	RetainDownloads bool          // keep downloaded files after playback
	WarningMarkers  []string      // transport errors containing these are skippable
}

func (c *PlayerConfig) applyDefaults() {
	if c.Volume <= 0 {
		c.Volume = 0.5
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
}

// Player drives one queue through a renderer. One mutex guards every
// state transition; the advance loop runs on its own goroutine and owns
// the player while the state is StateWaiting.
type Player struct {
	ID       string
	cfg      PlayerConfig
	queue    *Queue
	renderer Renderer
	emitter  *Emitter
	ctx      context.Context
	cancel   context.CancelFunc

	mu          sync.Mutex
	state       State
	repeat      RepeatMode
	current     *Entry
	volume      float64
	renderGen   uint64
	votes       map[string]struct{}
	playStart   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
}

// NewPlayer creates a stopped player over the queue and renderer. The
// emitter must be the one the queue publishes on.
func NewPlayer(ctx context.Context, id string, cfg PlayerConfig, queue *Queue, renderer Renderer, emitter *Emitter) *Player {
	cfg.applyDefaults()
	if id == "" {
		id = uuid.New().String()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	p := &Player{
		ID:       id,
		cfg:      cfg,
		queue:    queue,
		renderer: renderer,
		emitter:  emitter,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateStopped,
		volume:   cfg.Volume,
		votes:    make(map[string]struct{}),
	}
	renderer.SetVolume(p.volume)
	return p
}

// Queue returns the player's queue.
func (p *Player) Queue() *Queue { return p.queue }

// Emitter returns the player's event emitter.
func (p *Player) Emitter() *Emitter { return p.emitter }

// State returns the current player state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current returns the entry being played or awaited, nil if none.
func (p *Player) Current() *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Repeat returns the active repeat mode.
func (p *Player) Repeat() RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repeat
}

// SetRepeat changes the repeat mode.
func (p *Player) SetRepeat(m RepeatMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repeat = m
}

// Volume returns the current volume.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume clamps v to 0..1 and applies it to the renderer live.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	p.renderer.SetVolume(v)
}

// Play starts the advance loop. Calling it while already playing is a
// no-op; while paused it resumes; while an advance is in flight it
// changes nothing.
func (p *Player) Play() error {
	p.mu.Lock()
	switch p.state {
	case StateDead:
		p.mu.Unlock()
		return errors.Wrap(ErrInvalidState, "player is dead")
	case StatePlaying, StateWaiting:
		p.mu.Unlock()
		return nil
	case StatePaused:
		p.mu.Unlock()
		return p.Resume()
	}
	p.state = StateWaiting
	p.mu.Unlock()

	go p.advance()
	return nil
}

// Pause pauses playback. Pausing while already paused is a no-op; any
// other non-playing state is an error.
func (p *Player) Pause() error {
	p.mu.Lock()
	switch p.state {
	case StatePlaying:
		if err := p.renderer.Pause(); err != nil {
			p.mu.Unlock()
			return errors.Mark(errors.Wrap(err, "pause transport"), ErrTransport)
		}
		p.pausedAt = time.Now()
		p.state = StatePaused
		entry := p.current
		p.mu.Unlock()
		p.emit(EventPause, entry, nil)
		return nil
	case StatePaused:
		p.mu.Unlock()
		return nil
	default:
		st := p.state
		p.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "cannot pause from %s", st)
	}
}

// Resume resumes paused playback. Any other state is an error.
func (p *Player) Resume() error {
	p.mu.Lock()
	if p.state != StatePaused {
		st := p.state
		p.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "cannot resume from %s", st)
	}
	if err := p.renderer.Resume(); err != nil {
		p.mu.Unlock()
		return errors.Mark(errors.Wrap(err, "resume transport"), ErrTransport)
	}
	p.pausedTotal += time.Since(p.pausedAt)
	p.pausedAt = time.Time{}
	p.state = StatePlaying
	entry := p.current
	p.mu.Unlock()
	p.emit(EventResume, entry, nil)
	return nil
}

// Stop aborts the current render, clears the current entry and halts the
// advance loop. The queue keeps its entries.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.state == StateDead {
		p.mu.Unlock()
		return errors.Wrap(ErrInvalidState, "player is dead")
	}
	hadRender := p.state == StatePlaying || p.state == StatePaused
	p.renderGen++
	p.current = nil
	p.clearProgressLocked()
	p.state = StateStopped
	p.mu.Unlock()

	if hadRender {
		p.renderer.Abort()
	}
	p.emit(EventStop, nil, nil)
	return nil
}

// Skip aborts the current render and lets the completion path advance.
func (p *Player) Skip() error {
	p.mu.Lock()
	if p.state == StateDead {
		p.mu.Unlock()
		return errors.Wrap(ErrInvalidState, "player is dead")
	}
	if p.current == nil || (p.state != StatePlaying && p.state != StatePaused) {
		st := p.state
		p.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "cannot skip from %s", st)
	}
	entry := p.current
	p.renderGen++
	p.mu.Unlock()

	p.renderer.Abort()
	p.finish(entry, nil, true)
	return nil
}

// Kill stops everything and marks the player dead. Dead players reject
// all further operations.
func (p *Player) Kill() {
	p.mu.Lock()
	if p.state == StateDead {
		p.mu.Unlock()
		return
	}
	hadRender := p.state == StatePlaying || p.state == StatePaused
	p.state = StateDead
	p.current = nil
	p.renderGen++
	p.clearProgressLocked()
	p.mu.Unlock()

	if hadRender {
		p.renderer.Abort()
	}
	p.queue.Clear()
	p.cancel()
}

// Progress returns how long the current entry has been playing,
// excluding paused time.
func (p *Player) Progress() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressLocked()
}

func (p *Player) progressLocked() time.Duration {
	switch p.state {
	case StatePlaying:
		return time.Since(p.playStart) - p.pausedTotal
	case StatePaused:
		return p.pausedAt.Sub(p.playStart) - p.pausedTotal
	default:
		return 0
	}
}

func (p *Player) clearProgressLocked() {
	p.playStart = time.Time{}
	p.pausedAt = time.Time{}
	p.pausedTotal = 0
}

// RemainingTime returns how much of the current entry is left, zero when
// nothing plays or the duration is unknown.
func (p *Player) RemainingTime() time.Duration {
	p.mu.Lock()
	current := p.current
	if current == nil || (p.state != StatePlaying && p.state != StatePaused) {
		p.mu.Unlock()
		return 0
	}
	progress := p.progressLocked()
	p.mu.Unlock()

	remaining := current.Descriptor().EstimatedDuration() - progress
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// VoteSkip records a skip vote. Returns the vote count and whether the
// vote was new; repeat votes from the same voter do not count twice.
func (p *Player) VoteSkip(voterID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.votes[voterID]; dup {
		return len(p.votes), false
	}
	p.votes[voterID] = struct{}{}
	return len(p.votes), true
}

// Votes returns the current skip vote count.
func (p *Player) Votes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.votes)
}

// ResetVotes clears the skip votes. The advance loop also resets them
// whenever the current entry changes.
func (p *Player) ResetVotes() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.votes = make(map[string]struct{})
}

// advance pops entries and renders them until the queue runs dry or the
// player leaves StateWaiting. Exactly one advance owns the player at a
// time: only the transitions into StateWaiting spawn it.
func (p *Player) advance() {
	for {
		p.mu.Lock()
		if p.state != StateWaiting {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		entry := p.queue.PopNext(true)
		if entry == nil {
			p.mu.Lock()
			if p.state != StateWaiting {
				p.mu.Unlock()
				return
			}
			p.state = StateStopped
			p.mu.Unlock()
			p.emit(EventStop, nil, nil)
			return
		}

		p.mu.Lock()
		if p.state != StateWaiting {
			p.mu.Unlock()
			p.queue.pushFront(entry)
			return
		}
		p.current = entry
		p.votes = make(map[string]struct{})
		p.mu.Unlock()

		if err := p.awaitReady(entry); err != nil {
			p.mu.Lock()
			abandoned := p.state != StateWaiting || p.current != entry
			if !abandoned {
				p.current = nil
			}
			p.mu.Unlock()
			if abandoned {
				return
			}
			zlog.Error().Err(err).Msgf("player %s giving up on %q", p.ID, entry.Descriptor().Title)
			p.emit(EventError, entry, err)
			continue
		}

		p.mu.Lock()
		if p.state != StateWaiting || p.current != entry {
			p.mu.Unlock()
			p.queue.pushFront(entry)
			return
		}
		source := entry.PlaybackSource()
		p.renderGen++
		gen := p.renderGen
		err := p.renderer.Open(p.ctx, source, func(rerr error) {
			p.renderDone(entry, gen, rerr)
		})
		if err != nil {
			p.current = nil
			p.mu.Unlock()
			if p.isWarningError(err) {
				zlog.Warn().Err(err).Msgf("player %s transport warning on %q, skipping", p.ID, entry.Descriptor().Title)
				continue
			}
			terr := errors.Mark(errors.Wrap(err, "open transport"), ErrTransport)
			p.emit(EventError, entry, terr)
			_ = p.Stop()
			return
		}
		p.state = StatePlaying
		p.playStart = time.Now()
		p.pausedAt = time.Time{}
		p.pausedTotal = 0
		p.mu.Unlock()

		p.emit(EventPlay, entry, nil)
		return
	}
}

// awaitReady waits for the entry's readiness, retrying failed
// preparations with exponential backoff. The entry never retries on its
// own; each retry here is a fresh Ready call that re-arms it.
func (p *Player) awaitReady(entry *Entry) error {
	delay := p.cfg.RetryBaseDelay
	for attempt := 1; ; attempt++ {
		select {
		case res := <-entry.Ready():
			if res.Err == nil {
				return nil
			}
			if attempt >= p.cfg.MaxRetries {
				return res.Err
			}
			zlog.Warn().Err(res.Err).Msgf("player %s: %q not ready, retry %d/%d in %s",
				p.ID, entry.Descriptor().Title, attempt, p.cfg.MaxRetries, delay)
			select {
			case <-time.After(delay):
			case <-p.ctx.Done():
				return errors.Wrap(p.ctx.Err(), "player closed")
			}
			delay *= 2
		case <-p.ctx.Done():
			return errors.Wrap(p.ctx.Err(), "player closed")
		}
	}
}

// renderDone is the renderer's completion callback. Stale callbacks from
// aborted renders are dropped by generation check.
func (p *Player) renderDone(entry *Entry, gen uint64, rerr error) {
	p.mu.Lock()
	if p.state == StateDead || p.renderGen != gen || p.current != entry {
		p.mu.Unlock()
		return
	}
	p.renderGen++
	p.mu.Unlock()

	p.finish(entry, rerr, false)
}

// finish is the shared completion path for natural ends and skips:
// repeat handling, the finished event, file cleanup, then advancing.
func (p *Player) finish(entry *Entry, rerr error, skipped bool) {
	p.mu.Lock()
	p.current = nil
	p.clearProgressLocked()

	requeueFront, requeueTail := false, false
	switch p.repeat {
	case RepeatOnce:
		requeueFront = !skipped
		p.repeat = RepeatNone
	case RepeatAll:
		requeueTail = true
	}
	if p.state == StatePlaying || p.state == StatePaused {
		p.state = StateWaiting
	}
	proceed := p.state == StateWaiting
	p.mu.Unlock()

	switch {
	case requeueFront:
		p.queue.AddToFront(entry)
	case requeueTail:
		p.queue.Add(entry)
	}

	p.emit(EventFinishedPlaying, entry, rerr)

	if !requeueFront && !requeueTail {
		p.maybeDeleteFile(entry)
	}

	if rerr != nil {
		if p.isWarningError(rerr) {
			zlog.Warn().Err(rerr).Msgf("player %s transport warning on %q, continuing", p.ID, entry.Descriptor().Title)
		} else {
			terr := errors.Mark(rerr, ErrTransport)
			p.emit(EventError, entry, terr)
			_ = p.Stop()
			return
		}
	}

	if !proceed {
		return
	}
	go p.advance()
}

// isWarningError reports whether the transport error matches one of the
// configured skippable markers.
func (p *Player) isWarningError(err error) bool {
	msg := err.Error()
	for _, marker := range p.cfg.WarningMarkers {
		if marker != "" && strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// maybeDeleteFile removes the entry's downloaded file unless retention
// is configured, the entry is a stream, or another queued entry renders
// the same file.
func (p *Player) maybeDeleteFile(entry *Entry) {
	if p.cfg.RetainDownloads {
		return
	}
	fn := entry.LocalFile()
	if fn == "" {
		return
	}
	if p.queue.hasFilename(fn) {
		zlog.Debug().Msgf("keeping %s, still referenced by the queue", fn)
		return
	}
	go deleteFile(fn)
}

// deleteFile unlinks with retries; renderers can hold the handle briefly
// after the completion callback.
func deleteFile(fn string) {
	for i := 0; i < 30; i++ {
		err := os.Remove(fn)
		if err == nil || os.IsNotExist(err) {
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	zlog.Warn().Msgf("could not delete %s", fn)
}

func (p *Player) emit(t EventType, entry *Entry, err error) {
	p.emitter.Emit(Event{Type: t, Player: p, Entry: entry, Err: err})
}
