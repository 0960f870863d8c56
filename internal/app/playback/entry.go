package playback

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

// readiness is the internal preparation state of an entry.
type readiness int

const (
	readinessNotStarted readiness = iota
	readinessInProgress
	readinessReady
	readinessFailed
)

// Result is delivered to every Ready observer when preparation settles.
type Result struct {
	Entry *Entry
	Err   error
}

// EntryOptions carries the shared dependencies entries prepare with.
type EntryOptions struct {
	Resolver Resolver
	Prober   ContentProber // optional: skips remote size verification when nil
	CacheDir string        // download destination; empty disables caching
}

// Entry is one queued item. It owns the async readiness pipeline: the
// first Ready call starts preparation, later calls while in flight only
// register as observers, and a failed preparation re-arms on the next
// Ready call. The entry itself never retries.
type Entry struct {
	ID        string
	ctx       context.Context
	opts      EntryOptions
	requester media.Requester
	origin    media.Origin
	addedAt   time.Time

	mu      sync.Mutex
	desc    media.Descriptor
	state   readiness
	lastErr error
	waiters []chan Result
}

// NewEntry creates an entry for the descriptor. The context bounds the
// entry's downloads, not any single caller.
func NewEntry(ctx context.Context, desc media.Descriptor, requester media.Requester, origin media.Origin, opts EntryOptions) (*Entry, error) {
	if desc.SourceURL == "" {
		return nil, errors.New("entry requires a source URL")
	}
	if opts.Resolver == nil {
		return nil, errors.New("entry requires a resolver")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Entry{
		ID:        uuid.New().String(),
		ctx:       ctx,
		opts:      opts,
		requester: requester,
		origin:    origin,
		addedAt:   time.Now(),
		desc:      desc,
	}, nil
}

// Descriptor returns a copy of the entry's descriptor.
func (e *Entry) Descriptor() media.Descriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.desc
}

// Requester returns who queued the entry.
func (e *Entry) Requester() media.Requester { return e.requester }

// Origin returns where the enqueue came from.
func (e *Entry) Origin() media.Origin { return e.origin }

// AddedAt returns when the entry was created.
func (e *Entry) AddedAt() time.Time { return e.addedAt }

// IsStream reports whether the entry renders from a remote URL instead
// of a downloaded file.
func (e *Entry) IsStream() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.desc.LiveStream
}

// IsReady reports whether preparation has completed successfully.
func (e *Entry) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == readinessReady
}

// LastError returns the most recent preparation failure, nil if none.
func (e *Entry) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// PlaybackSource returns what the renderer should open: the local file
// for downloaded entries, the media URL for streams. Empty until ready.
func (e *Entry) PlaybackSource() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != readinessReady {
		return ""
	}
	return e.desc.Filename
}

// LocalFile returns the downloaded file path, empty for streams and
// unprepared entries.
func (e *Entry) LocalFile() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.desc.LiveStream || e.state != readinessReady {
		return ""
	}
	return e.desc.Filename
}

// Ready returns a future for the entry's readiness. The returned channel
// receives exactly one Result. If the entry is already prepared the
// result is immediate; if preparation is in flight the caller only joins
// the observer list; otherwise (not started, or failed earlier) a new
// preparation starts. Observers are resolved in registration order.
func (e *Entry) Ready() <-chan Result {
	ch := make(chan Result, 1)

	e.mu.Lock()
	switch e.state {
	case readinessReady:
		e.mu.Unlock()
		ch <- Result{Entry: e}
		return ch
	case readinessInProgress:
		e.waiters = append(e.waiters, ch)
		e.mu.Unlock()
		return ch
	default: // readinessNotStarted, readinessFailed
		e.waiters = append(e.waiters, ch)
		e.state = readinessInProgress
		e.lastErr = nil
		e.mu.Unlock()
		go e.prepare()
		return ch
	}
}

// prepare runs one preparation attempt and resolves all observers.
func (e *Entry) prepare() {
	err := e.doPrepare()

	e.mu.Lock()
	waiters := e.waiters
	e.waiters = nil
	if err != nil {
		e.state = readinessFailed
		e.lastErr = err
		zlog.Warn().Err(err).Msgf("entry %s preparation failed: %s", e.ID, e.desc.Title)
	} else {
		e.state = readinessReady
		e.lastErr = nil
		zlog.Debug().Msgf("entry %s ready: %s", e.ID, e.desc.Filename)
	}
	e.mu.Unlock()

	res := Result{Entry: e, Err: err}
	for _, ch := range waiters {
		e.deliver(ch, res)
	}
}

// deliver resolves one observer. A broken observer never blocks the rest.
func (e *Entry) deliver(ch chan Result, res Result) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Interface("panic", r).Msgf("entry %s observer rejected resolution", e.ID)
		}
	}()
	ch <- res
}

func (e *Entry) doPrepare() error {
	if e.IsStream() {
		return e.prepareStream()
	}

	if fn, ok := e.cachedFile(); ok {
		zlog.Debug().Msgf("entry %s reusing cached file %s", e.ID, fn)
		e.setFilename(fn)
		return nil
	}

	desc := e.Descriptor()
	fn, err := e.opts.Resolver.Download(e.ctx, desc, e.opts.CacheDir)
	if err != nil {
		if errors.Is(err, media.ErrDownload) || errors.Is(err, media.ErrExtraction) {
			return err
		}
		return errors.Mark(errors.Wrap(err, "download"), media.ErrExtraction)
	}

	// Direct URLs get a content-hash suffix so distinct resources with
	// the same basename cannot collide in the cache.
	if desc.ExtractorKind == extractorGeneric {
		fn, err = hashRename(fn)
		if err != nil {
			return errors.Mark(errors.Wrap(err, "finalize download"), media.ErrDownload)
		}
	}

	e.setFilename(fn)
	return nil
}

// prepareStream refreshes the transport URL for a stream entry. When the
// probe fails but a direct URL is already known, that URL is kept.
func (e *Entry) prepareStream() error {
	desc := e.Descriptor()

	descs, err := e.opts.Resolver.Probe(e.ctx, desc.SourceURL)
	if err == nil && len(descs) > 0 && descs[0].Filename != "" {
		e.setFilename(descs[0].Filename)
		return nil
	}

	if desc.Filename != "" {
		zlog.Warn().Err(err).Msgf("entry %s stream probe failed, keeping known URL", e.ID)
		return nil
	}
	if err == nil {
		err = errors.New("probe returned no playable URL")
	}
	return errors.Mark(errors.Wrap(err, "stream probe"), media.ErrExtraction)
}

const extractorGeneric = "generic"

// cachedFile looks for an already-downloaded file that can serve this
// entry. Direct URLs carry a content-hash suffix in the cache, so the
// comparison strips it and re-verifies the remote size; other extractors
// match on exact basename first, then extension-insensitively.
func (e *Entry) cachedFile() (string, bool) {
	desc := e.Descriptor()
	if e.opts.CacheDir == "" || desc.Filename == "" {
		return "", false
	}

	dirEntries, err := os.ReadDir(e.opts.CacheDir)
	if err != nil {
		return "", false
	}

	base := filepath.Base(desc.Filename)

	if desc.ExtractorKind == extractorGeneric {
		want := strings.TrimSuffix(base, filepath.Ext(base))
		for _, de := range dirEntries {
			name := de.Name()
			stem := name
			if i := strings.LastIndex(name, "-"); i >= 0 {
				stem = name[:i]
			}
			if stem != want {
				continue
			}
			full := filepath.Join(e.opts.CacheDir, name)
			if !e.remoteSizeMatches(full, desc.SourceURL) {
				return "", false
			}
			return full, true
		}
		return "", false
	}

	for _, de := range dirEntries {
		if de.Name() == base {
			return filepath.Join(e.opts.CacheDir, de.Name()), true
		}
	}
	want := strings.TrimSuffix(base, filepath.Ext(base))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == want {
			return filepath.Join(e.opts.CacheDir, name), true
		}
	}
	return "", false
}

// remoteSizeMatches compares the cached file's size against the remote
// Content-Length. Unknown remote sizes count as a match.
func (e *Entry) remoteSizeMatches(localPath, url string) bool {
	if e.opts.Prober == nil {
		return true
	}
	size, err := e.opts.Prober.ContentLength(e.ctx, url)
	if err != nil || size <= 0 {
		return true
	}
	fi, err := os.Stat(localPath)
	if err != nil {
		return false
	}
	return fi.Size() == size
}

func (e *Entry) setFilename(fn string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.desc.Filename = fn
}

// hashRename inserts the last 8 hex chars of the file's content hash
// before the extension. When the destination already exists the fresh
// download is discarded in its favor.
func hashRename(fn string) (string, error) {
	suffix, err := contentHashSuffix(fn)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(fn)
	hashed := strings.TrimSuffix(fn, ext) + "-" + suffix + ext

	if _, err := os.Stat(hashed); err == nil {
		if err := os.Remove(fn); err != nil {
			return "", err
		}
		return hashed, nil
	}
	if err := os.Rename(fn, hashed); err != nil {
		return "", err
	}
	return hashed, nil
}

func contentHashSuffix(fn string) (string, error) {
	f, err := os.Open(fn)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return sum[len(sum)-8:], nil
}
