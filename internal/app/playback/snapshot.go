package playback

import (
	"time"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

// EntrySnapshot is the persisted form of one entry.
type EntrySnapshot struct {
	SourceURL       string    `json:"source_url"`
	Title           string    `json:"title"`
	DurationSeconds float64   `json:"duration_seconds"`
	LiveStream      bool      `json:"live_stream,omitempty"`
	ExtractorKind   string    `json:"extractor_kind,omitempty"`
	Filename        string    `json:"filename,omitempty"`
	Thumbnail       string    `json:"thumbnail,omitempty"`
	WebpageURL      string    `json:"webpage_url,omitempty"`
	Downloaded      bool      `json:"downloaded,omitempty"`
	RequesterID     string    `json:"requester_id,omitempty"`
	RequesterName   string    `json:"requester_name,omitempty"`
	RequesterKind   string    `json:"requester_kind,omitempty"`
	ChannelID       string    `json:"channel_id,omitempty"`
	SessionID       string    `json:"session_id,omitempty"`
	AddedAt         time.Time `json:"added_at"`
}

// Snapshot is the persisted form of a player: its settings and its
// entries, the interrupted current entry first.
type Snapshot struct {
	Version  int             `json:"version"`
	PlayerID string          `json:"player_id"`
	Volume   float64         `json:"volume"`
	Repeat   string          `json:"repeat,omitempty"`
	Entries  []EntrySnapshot `json:"entries"`
}

// Snapshot captures the entry for persistence.
func (e *Entry) Snapshot() EntrySnapshot {
	e.mu.Lock()
	desc := e.desc
	downloaded := e.state == readinessReady
	e.mu.Unlock()

	return EntrySnapshot{
		SourceURL:       desc.SourceURL,
		Title:           desc.Title,
		DurationSeconds: desc.Duration.Seconds(),
		LiveStream:      desc.LiveStream,
		ExtractorKind:   desc.ExtractorKind,
		Filename:        desc.Filename,
		Thumbnail:       desc.Thumbnail,
		WebpageURL:      desc.WebpageURL,
		Downloaded:      downloaded,
		RequesterID:     e.requester.ID,
		RequesterName:   e.requester.DisplayName,
		RequesterKind:   string(e.requester.Kind),
		ChannelID:       e.origin.ChannelID,
		SessionID:       e.origin.SessionID,
		AddedAt:         e.addedAt,
	}
}

func (s EntrySnapshot) descriptor() media.Descriptor {
	return media.Descriptor{
		SourceURL:     s.SourceURL,
		Title:         s.Title,
		Duration:      time.Duration(s.DurationSeconds * float64(time.Second)),
		LiveStream:    s.LiveStream,
		ExtractorKind: s.ExtractorKind,
		Filename:      s.Filename,
		Thumbnail:     s.Thumbnail,
		WebpageURL:    s.WebpageURL,
	}
}

func (s EntrySnapshot) requester() media.Requester {
	return media.Requester{
		ID:          s.RequesterID,
		DisplayName: s.RequesterName,
		Kind:        media.RequesterKind(s.RequesterKind),
	}
}

func (s EntrySnapshot) origin() media.Origin {
	return media.Origin{ChannelID: s.ChannelID, SessionID: s.SessionID}
}

// Snapshot captures the player and its queue for persistence. An entry
// being played or awaited is stored at the head so a restore resumes
// from it.
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	current := p.current
	volume := p.volume
	repeat := p.repeat
	p.mu.Unlock()

	var entries []EntrySnapshot
	if current != nil {
		entries = append(entries, current.Snapshot())
	}
	for _, e := range p.queue.Entries() {
		entries = append(entries, e.Snapshot())
	}
	return Snapshot{
		Version:  1,
		PlayerID: p.ID,
		Volume:   volume,
		Repeat:   repeat.String(),
		Entries:  entries,
	}
}

// Restore rebuilds entries from a snapshot and appends them silently: no
// events, no prefetch. Unusable snapshots are counted and skipped.
func (q *Queue) Restore(snaps []EntrySnapshot) (restored, bad int) {
	for _, s := range snaps {
		e, err := q.NewEntry(s.descriptor(), s.requester(), s.origin())
		if err != nil {
			bad++
			continue
		}
		q.mu.Lock()
		q.entries = append(q.entries, e)
		q.mu.Unlock()
		restored++
	}
	return restored, bad
}

// ParseRepeatMode maps a persisted repeat mode name back to the mode.
// Unknown names fall back to RepeatNone.
func ParseRepeatMode(s string) RepeatMode {
	switch s {
	case "once":
		return RepeatOnce
	case "all":
		return RepeatAll
	default:
		return RepeatNone
	}
}
