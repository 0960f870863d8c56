// Package media provides the resource descriptor domain types.
package media

import "time"

// Descriptor represents a playable media resource.
// Contains only information produced by resolution; readiness state
// (download progress, local file lifecycle) lives in the playback entry.
type Descriptor struct {
	SourceURL     string        // URL or search query handed to the resolver
	Title         string        // Human-readable title
	Duration      time.Duration // Media duration (0 = unknown/unresolved)
	LiveStream    bool          // True for live/endless sources
	ExtractorKind string        // Resolver backend that produced this ("generic" for direct URLs)
	Filename      string        // Local media path; empty until the download finishes, URL for streams
	Thumbnail     string        // Artwork URL (optional)
	WebpageURL    string        // Canonical page URL (optional)
}

// DurationKnown reports whether the resolver produced a duration.
func (d *Descriptor) DurationKnown() bool {
	return d.Duration > 0
}

// EstimatedDuration returns the duration used in wait-time math.
// Unknown durations count as zero, so estimates are lower bounds.
func (d *Descriptor) EstimatedDuration() time.Duration {
	if d.LiveStream {
		return 0
	}
	return d.Duration
}

// RequesterKind represents the type of requester.
type RequesterKind string

const (
	RequesterKindUser     RequesterKind = "USER"
	RequesterKindAutoplay RequesterKind = "AUTOPLAY"
	RequesterKindSystem   RequesterKind = "SYSTEM"
)

// Requester represents who asked for an entry to be queued.
type Requester struct {
	ID          string        // Stable identity (drives quotas and vote dedup)
	DisplayName string        // Display name
	Kind        RequesterKind // Type of requester
}

// Origin carries where an enqueue came from. Kept with the entry and
// surfaced in events and persistence, never interpreted by the engine.
type Origin struct {
	ChannelID string
	SessionID string
}
