// Package speaker renders media on the local audio device through beep.
package speaker

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	zlog "github.com/rs/zerolog/log"
)

const resampleQuality = 4

// render is one in-flight playback on the device.
type render struct {
	ctrl   *beep.Ctrl
	stream beep.StreamSeekCloser
	onDone func(err error)
}

// Renderer plays one source at a time on the audio device. Opening a new
// source displaces the previous one without firing its completion
// callback, same as an abort.
type Renderer struct {
	sampleRate beep.SampleRate
	mixer      *beep.Mixer
	volume     *effects.Volume

	httpClient *http.Client

	mu      sync.Mutex
	current *render
}

// New initializes the audio device and returns a renderer for it.
func New(sampleRate int) (*Renderer, error) {
	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(time.Second/4)); err != nil {
		return nil, errors.Wrap(err, "failed to initialize audio device")
	}

	mixer := &beep.Mixer{}
	vol := &effects.Volume{
		Streamer: mixer,
		Base:     2,
		Volume:   0,
		Silent:   false,
	}
	speaker.Play(vol)

	return &Renderer{
		sampleRate: sr,
		mixer:      mixer,
		volume:     vol,
		// Streams are long-lived, so no overall timeout.
		httpClient: &http.Client{},
	}, nil
}

// Open starts rendering the source, a local file or a stream URL. onDone
// fires exactly once when the render ends on its own or dies mid-render;
// it does not fire for Abort or for a displacing Open.
func (r *Renderer) Open(ctx context.Context, source string, onDone func(err error)) error {
	stream, format, err := r.decode(ctx, source)
	if err != nil {
		return err
	}

	var out beep.Streamer = stream
	if format.SampleRate != r.sampleRate {
		out = beep.Resample(resampleQuality, format.SampleRate, r.sampleRate, stream)
	}

	ctrl := &beep.Ctrl{Streamer: out}
	rend := &render{ctrl: ctrl, stream: stream, onDone: onDone}

	seq := beep.Seq(ctrl, beep.Callback(func() {
		go r.renderEnded(rend)
	}))

	r.mu.Lock()
	prev := r.current
	r.current = rend
	r.mu.Unlock()

	speaker.Lock()
	r.mixer.Clear()
	r.mixer.Add(seq)
	speaker.Unlock()

	if prev != nil {
		prev.stream.Close()
	}
	return nil
}

// renderEnded handles the device finishing a render. The mixer dropped
// aborted renders before their callback could fire, so reaching here with
// a stale render only happens on an Open/finish race.
func (r *Renderer) renderEnded(rend *render) {
	r.mu.Lock()
	if r.current != rend {
		r.mu.Unlock()
		return
	}
	r.current = nil
	r.mu.Unlock()

	err := rend.stream.Err()
	if cerr := rend.stream.Close(); cerr != nil {
		zlog.Debug().Err(cerr).Msg("closing finished stream")
	}
	if rend.onDone != nil {
		rend.onDone(err)
	}
}

// Pause suspends the current render. No-op when nothing is rendering.
func (r *Renderer) Pause() error {
	return r.setPaused(true)
}

// Resume continues a paused render. No-op when nothing is rendering.
func (r *Renderer) Resume() error {
	return r.setPaused(false)
}

func (r *Renderer) setPaused(paused bool) error {
	r.mu.Lock()
	rend := r.current
	r.mu.Unlock()
	if rend == nil {
		return nil
	}

	speaker.Lock()
	rend.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// Abort stops the current render without invoking its onDone.
func (r *Renderer) Abort() {
	r.mu.Lock()
	rend := r.current
	r.current = nil
	r.mu.Unlock()

	if rend == nil {
		return
	}

	speaker.Lock()
	r.mixer.Clear()
	speaker.Unlock()

	if err := rend.stream.Close(); err != nil {
		zlog.Debug().Err(err).Msg("closing aborted stream")
	}
}

// SetVolume sets the output volume. 0 is silent, 1 is full; the scale in
// between is exponential.
func (r *Renderer) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}

	speaker.Lock()
	defer speaker.Unlock()

	if v == 0 {
		r.volume.Silent = true
		return
	}
	r.volume.Silent = false
	r.volume.Volume = v*2 - 2
}

// Close aborts any render and silences the device.
func (r *Renderer) Close() error {
	r.Abort()
	speaker.Clear()
	return nil
}

// decode opens the source and picks a decoder. Local files decode by
// extension; remote URLs are fetched and decoded as MP3, which is what
// the stream probes hand out.
func (r *Renderer) decode(ctx context.Context, source string) (beep.StreamSeekCloser, beep.Format, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return r.decodeStream(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "failed to open media file")
	}

	switch strings.ToLower(filepath.Ext(source)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	case ".flac":
		return flac.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, errors.Newf("unsupported media extension %q", filepath.Ext(source))
	}
}

func (r *Renderer) decodeStream(ctx context.Context, url string) (beep.StreamSeekCloser, beep.Format, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "failed to create request")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "failed to fetch stream")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, beep.Format{}, errors.Newf("stream returned status %s", resp.Status)
	}

	return mp3.Decode(resp.Body)
}
