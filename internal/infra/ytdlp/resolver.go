// Package ytdlp implements media resolution and transfer over yt-dlp.
package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

const (
	// Audio-only first; the same selector runs at probe and download time
	// so the predicted filename extension matches the transferred file.
	defaultFormat = "bestaudio/best"

	// Cache files are named by extractor and id, not title, so the name
	// survives title edits and restricted-filename munging.
	outputTemplate = "%(extractor)s-%(id)s.%(ext)s"

	progressInterval = 500 * time.Millisecond
)

// Resolver resolves queries into descriptors and transfers media through
// the yt-dlp backend. Safe for concurrent use; every call spawns its own
// subprocess.
type Resolver struct {
	format string
}

// NewResolver creates a resolver with the default audio format selector.
func NewResolver() *Resolver {
	return &Resolver{format: defaultFormat}
}

// Probe resolves a URL or search query into descriptors without
// transferring media. Playlist URLs expand into one descriptor per item.
// Plain text queries are searched and return the single best match.
func (r *Resolver) Probe(ctx context.Context, query string) ([]media.Descriptor, error) {
	target := query
	if !looksLikeURL(query) {
		target = "ytsearch1:" + query
	}

	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()

	res, err := cmd.Run(ctx, "--dump-json", "-f", r.format, target)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "probe failed for %q", query), media.ErrExtraction)
	}

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	descs := make([]media.Descriptor, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		info, err := parseInfo(line)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "parse probe output"), media.ErrExtraction)
		}
		descs = append(descs, descriptorFrom(info))
	}
	if len(descs) == 0 {
		return nil, errors.Mark(errors.Newf("no results for %q", query), media.ErrExtraction)
	}
	return descs, nil
}

// Download transfers the media behind the descriptor into destDir and
// returns the local filename.
func (r *Resolver) Download(ctx context.Context, desc media.Descriptor, destDir string) (string, error) {
	dl := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		ForceOverwrites().
		RestrictFilenames().
		Output(filepath.Join(destDir, outputTemplate))

	dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		if update.TotalBytes > 0 {
			pct := float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
			zlog.Debug().Msgf("downloading %s: %.1f%%", desc.Title, pct)
		}
	})

	res, err := dl.Run(ctx, "-f", r.format, "--no-playlist", desc.SourceURL)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "download failed for %s", desc.SourceURL), media.ErrDownload)
	}

	info, err := res.GetExtractedInfo()
	if err == nil && len(info) > 0 && info[0].Filename != nil && *info[0].Filename != "" {
		return *info[0].Filename, nil
	}

	// The backend reported success without a filename; fall back to the
	// name predicted at probe time.
	if desc.Filename != "" {
		return filepath.Join(destDir, filepath.Base(desc.Filename)), nil
	}
	return "", errors.Mark(errors.New("download produced no filename"), media.ErrDownload)
}

// probeInfo is the subset of the backend's info dict the engine needs.
type probeInfo struct {
	ID         string  `mapstructure:"id"`
	Title      string  `mapstructure:"title"`
	URL        string  `mapstructure:"url"`
	WebpageURL string  `mapstructure:"webpage_url"`
	Duration   float64 `mapstructure:"duration"`
	IsLive     bool    `mapstructure:"is_live"`
	Extractor  string  `mapstructure:"extractor"`
	Ext        string  `mapstructure:"ext"`
	Thumbnail  string  `mapstructure:"thumbnail"`
}

// parseInfo decodes one JSON line of probe output. The info dict's value
// types vary across extractors, so decoding is weakly typed.
func parseInfo(line string) (*probeInfo, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, err
	}

	var info probeInfo
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &info,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return &info, nil
}

func descriptorFrom(info *probeInfo) media.Descriptor {
	d := media.Descriptor{
		SourceURL:     info.WebpageURL,
		Title:         info.Title,
		Duration:      time.Duration(info.Duration * float64(time.Second)),
		LiveStream:    info.IsLive,
		ExtractorKind: strings.ToLower(info.Extractor),
		Thumbnail:     info.Thumbnail,
		WebpageURL:    info.WebpageURL,
	}
	if d.SourceURL == "" {
		d.SourceURL = info.URL
	}
	if d.LiveStream {
		d.Filename = info.URL
	} else {
		d.Filename = expectedFilename(info)
	}
	return d
}

// expectedFilename predicts the basename Download will produce, so cache
// lookups can run before anything is transferred. A wrong prediction only
// costs a redundant download.
func expectedFilename(info *probeInfo) string {
	ext := info.Ext
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s-%s.%s", restrict(info.Extractor), restrict(info.ID), ext)
}

// restrict mirrors the backend's restricted-filenames mode closely enough
// for extractor names and ids.
func restrict(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	return b.String()
}

func looksLikeURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
