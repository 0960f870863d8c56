package playback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

// fakeResolver counts calls and can be told to fail or delay downloads.
type fakeResolver struct {
	mu         sync.Mutex
	downloads  int
	probes     int
	failures   int // fail this many downloads before succeeding
	delay      time.Duration
	destDir    string // when set, downloads create a real file here
	probeDescs []media.Descriptor
	probeErr   error
}

func (r *fakeResolver) Probe(ctx context.Context, query string) ([]media.Descriptor, error) {
	r.mu.Lock()
	r.probes++
	descs, err := r.probeDescs, r.probeErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return descs, nil
}

func (r *fakeResolver) Download(ctx context.Context, desc media.Descriptor, destDir string) (string, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	r.mu.Lock()
	r.downloads++
	n := r.downloads
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	dir := r.destDir
	r.mu.Unlock()

	if fail {
		return "", errors.Mark(errors.New("download blew up"), media.ErrDownload)
	}
	if dir != "" {
		fn := filepath.Join(dir, fmt.Sprintf("media-%d.mp3", n))
		if err := os.WriteFile(fn, []byte("audio"), 0o644); err != nil {
			return "", err
		}
		return fn, nil
	}
	return fmt.Sprintf("/nonexistent/media-%d.mp3", n), nil
}

func (r *fakeResolver) downloadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.downloads
}

// fakeProber returns a fixed remote content length.
type fakeProber struct {
	size int64
	err  error
}

func (p *fakeProber) ContentLength(ctx context.Context, url string) (int64, error) {
	return p.size, p.err
}

func testDescriptor(url string) media.Descriptor {
	return media.Descriptor{
		SourceURL:     url,
		Title:         "Test Song",
		Duration:      3 * time.Minute,
		ExtractorKind: "youtube",
	}
}

func TestNewEntry_RequiresSourceURL(t *testing.T) {
	_, err := NewEntry(context.Background(), media.Descriptor{}, media.Requester{}, media.Origin{}, EntryOptions{Resolver: &fakeResolver{}})
	assert.Error(t, err)
}

func TestEntry_ReadyResolvesAllObservers(t *testing.T) {
	resolver := &fakeResolver{delay: 50 * time.Millisecond}
	e, err := NewEntry(context.Background(), testDescriptor("https://example.com/a"), media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver})
	require.NoError(t, err)

	const observers = 8
	results := make(chan Result, observers)
	var wg sync.WaitGroup
	for i := 0; i < observers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- <-e.Ready()
		}()
	}
	wg.Wait()
	close(results)

	count := 0
	for res := range results {
		require.NoError(t, res.Err)
		assert.Same(t, e, res.Entry)
		count++
	}
	assert.Equal(t, observers, count)

	// concurrent observers share a single preparation
	assert.Equal(t, 1, resolver.downloadCount())
	assert.True(t, e.IsReady())
}

func TestEntry_ReadyImmediateWhenPrepared(t *testing.T) {
	resolver := &fakeResolver{}
	e, err := NewEntry(context.Background(), testDescriptor("https://example.com/a"), media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver})
	require.NoError(t, err)

	res := <-e.Ready()
	require.NoError(t, res.Err)

	select {
	case res := <-e.Ready():
		require.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("prepared entry did not resolve immediately")
	}
	assert.Equal(t, 1, resolver.downloadCount())
}

func TestEntry_FailureClearsObserversAndRearms(t *testing.T) {
	resolver := &fakeResolver{failures: 1}
	e, err := NewEntry(context.Background(), testDescriptor("https://example.com/a"), media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver})
	require.NoError(t, err)

	first := <-e.Ready()
	require.Error(t, first.Err)
	assert.True(t, errors.Is(first.Err, media.ErrDownload))
	assert.False(t, e.IsReady())
	assert.Error(t, e.LastError())

	// the entry did not retry on its own
	assert.Equal(t, 1, resolver.downloadCount())

	// a new Ready call re-arms and succeeds
	second := <-e.Ready()
	require.NoError(t, second.Err)
	assert.Equal(t, 2, resolver.downloadCount())
	assert.True(t, e.IsReady())
	assert.NoError(t, e.LastError())
}

func TestEntry_StreamRefreshesURL(t *testing.T) {
	resolver := &fakeResolver{
		probeDescs: []media.Descriptor{{SourceURL: "https://radio.example/live", Filename: "https://cdn.example/live.m3u8"}},
	}
	desc := media.Descriptor{SourceURL: "https://radio.example/live", Title: "Radio", LiveStream: true}
	e, err := NewEntry(context.Background(), desc, media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver})
	require.NoError(t, err)

	res := <-e.Ready()
	require.NoError(t, res.Err)
	assert.Equal(t, "https://cdn.example/live.m3u8", e.PlaybackSource())
	assert.Equal(t, 0, resolver.downloadCount())
	assert.Empty(t, e.LocalFile(), "streams have no local file")
}

func TestEntry_StreamKeepsKnownURLOnProbeFailure(t *testing.T) {
	resolver := &fakeResolver{probeErr: errors.New("probe failed")}
	desc := media.Descriptor{
		SourceURL:  "https://radio.example/live",
		LiveStream: true,
		Filename:   "https://radio.example/direct",
	}
	e, err := NewEntry(context.Background(), desc, media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver})
	require.NoError(t, err)

	res := <-e.Ready()
	require.NoError(t, res.Err)
	assert.Equal(t, "https://radio.example/direct", e.PlaybackSource())
}

func TestEntry_StreamFailsWithoutAnyURL(t *testing.T) {
	resolver := &fakeResolver{probeErr: errors.New("probe failed")}
	desc := media.Descriptor{SourceURL: "https://radio.example/live", LiveStream: true}
	e, err := NewEntry(context.Background(), desc, media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver})
	require.NoError(t, err)

	res := <-e.Ready()
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, media.ErrExtraction))
}

func TestEntry_CacheReuseExactBasename(t *testing.T) {
	cacheDir := t.TempDir()
	cached := filepath.Join(cacheDir, "Test Song.mp3")
	require.NoError(t, os.WriteFile(cached, []byte("audio"), 0o644))

	resolver := &fakeResolver{}
	desc := testDescriptor("https://example.com/a")
	desc.Filename = "Test Song.mp3" // expected name from the probe
	e, err := NewEntry(context.Background(), desc, media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver, CacheDir: cacheDir})
	require.NoError(t, err)

	res := <-e.Ready()
	require.NoError(t, res.Err)
	assert.Equal(t, cached, e.LocalFile())
	assert.Equal(t, 0, resolver.downloadCount())
}

func TestEntry_CacheReuseExtensionInsensitive(t *testing.T) {
	cacheDir := t.TempDir()
	cached := filepath.Join(cacheDir, "Test Song.opus")
	require.NoError(t, os.WriteFile(cached, []byte("audio"), 0o644))

	resolver := &fakeResolver{}
	desc := testDescriptor("https://example.com/a")
	desc.Filename = "Test Song.mp3"
	e, err := NewEntry(context.Background(), desc, media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver, CacheDir: cacheDir})
	require.NoError(t, err)

	res := <-e.Ready()
	require.NoError(t, res.Err)
	assert.Equal(t, cached, e.LocalFile())
	assert.Equal(t, 0, resolver.downloadCount())
}

func TestEntry_GenericCacheVerifiesRemoteSize(t *testing.T) {
	cacheDir := t.TempDir()
	// hash-suffixed cached copy whose size no longer matches the remote
	cached := filepath.Join(cacheDir, "direct-deadbeef.mp3")
	require.NoError(t, os.WriteFile(cached, []byte("stale"), 0o644))

	resolver := &fakeResolver{destDir: cacheDir}
	desc := media.Descriptor{
		SourceURL:     "https://files.example/direct.mp3",
		Title:         "direct",
		ExtractorKind: "generic",
		Filename:      "direct.mp3",
	}
	prober := &fakeProber{size: 9999}
	e, err := NewEntry(context.Background(), desc, media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver, Prober: prober, CacheDir: cacheDir})
	require.NoError(t, err)

	res := <-e.Ready()
	require.NoError(t, res.Err)
	assert.Equal(t, 1, resolver.downloadCount(), "stale cache entry must be redownloaded")
}

func TestEntry_GenericCacheHitWhenSizeMatches(t *testing.T) {
	cacheDir := t.TempDir()
	cached := filepath.Join(cacheDir, "direct-deadbeef.mp3")
	content := []byte("audio-bytes")
	require.NoError(t, os.WriteFile(cached, content, 0o644))

	resolver := &fakeResolver{}
	desc := media.Descriptor{
		SourceURL:     "https://files.example/direct.mp3",
		Title:         "direct",
		ExtractorKind: "generic",
		Filename:      "direct.mp3",
	}
	prober := &fakeProber{size: int64(len(content))}
	e, err := NewEntry(context.Background(), desc, media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver, Prober: prober, CacheDir: cacheDir})
	require.NoError(t, err)

	res := <-e.Ready()
	require.NoError(t, res.Err)
	assert.Equal(t, cached, e.LocalFile())
	assert.Equal(t, 0, resolver.downloadCount())
}

func TestEntry_GenericDownloadGetsHashSuffix(t *testing.T) {
	cacheDir := t.TempDir()
	resolver := &fakeResolver{destDir: cacheDir}
	desc := media.Descriptor{
		SourceURL:     "https://files.example/direct.mp3",
		Title:         "direct",
		ExtractorKind: "generic",
	}
	e, err := NewEntry(context.Background(), desc, media.Requester{}, media.Origin{}, EntryOptions{Resolver: resolver, CacheDir: cacheDir})
	require.NoError(t, err)

	res := <-e.Ready()
	require.NoError(t, res.Err)

	fn := e.LocalFile()
	assert.Regexp(t, `media-1-[0-9a-f]{8}\.mp3$`, fn)
	_, statErr := os.Stat(fn)
	assert.NoError(t, statErr)
}

func TestHashRename_KeepsExistingDestination(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(fn, []byte("audio"), 0o644))

	suffix, err := contentHashSuffix(fn)
	require.NoError(t, err)
	existing := filepath.Join(dir, "song-"+suffix+".mp3")
	require.NoError(t, os.WriteFile(existing, []byte("audio"), 0o644))

	got, err := hashRename(fn)
	require.NoError(t, err)
	assert.Equal(t, existing, got)

	// the fresh duplicate was discarded
	_, statErr := os.Stat(fn)
	assert.True(t, os.IsNotExist(statErr))
}
