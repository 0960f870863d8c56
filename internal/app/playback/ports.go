package playback

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

// ErrNoSnapshot is returned by Persister.Load when the player has no
// saved state.
var ErrNoSnapshot = errors.New("no snapshot for player")

// Resolver turns queries into descriptors and transfers media.
type Resolver interface {
	// Probe resolves a URL or search query into descriptors without
	// transferring media. Playlists expand into multiple descriptors.
	Probe(ctx context.Context, query string) ([]media.Descriptor, error)

	// Download transfers the media behind the descriptor into destDir and
	// returns the local filename.
	Download(ctx context.Context, desc media.Descriptor, destDir string) (string, error)
}

// ContentProber answers lightweight questions about a remote URL.
// Used to verify that a cached file still matches the remote content.
type ContentProber interface {
	ContentLength(ctx context.Context, url string) (int64, error)
}

// Renderer plays local files or stream URLs on an output device.
type Renderer interface {
	// Open starts rendering the source. onDone fires exactly once, after
	// Open has returned, when the render ends on its own or dies
	// mid-render; it does not fire for Abort.
	Open(ctx context.Context, source string, onDone func(err error)) error

	Pause() error
	Resume() error

	// Abort stops the current render without invoking its onDone.
	Abort()

	// SetVolume sets the output volume, 0 (silent) to 1 (full).
	SetVolume(v float64)

	Close() error
}

// Persister stores and restores player snapshots.
type Persister interface {
	Save(playerID string, snap Snapshot) error
	Load(playerID string) (Snapshot, error)
	WriteNowPlaying(playerID string, text string) error
}
