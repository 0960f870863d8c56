// Package webprobe answers lightweight questions about remote media URLs.
package webprobe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Prober issues HEAD requests against candidate media URLs.
type Prober struct {
	httpClient *http.Client
}

// Info is the subset of response headers the enqueue path cares about.
type Info struct {
	ContentType   string
	ContentLength int64
}

// New creates a new prober.
func New() *Prober {
	return &Prober{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Head fetches the response headers for a URL without the body.
func (p *Prober) Head(ctx context.Context, url string) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("unexpected status %s", resp.Status)
	}

	return &Info{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// ContentLength reports the remote size for cache verification.
// Zero or negative means unknown.
func (p *Prober) ContentLength(ctx context.Context, url string) (int64, error) {
	info, err := p.Head(ctx, url)
	if err != nil {
		return 0, err
	}
	return info.ContentLength, nil
}

// Verdict classifies whether a direct URL is acceptable to download.
type Verdict int

const (
	// VerdictAllow means the URL points at downloadable media.
	VerdictAllow Verdict = iota
	// VerdictStream means the URL serves an HTML page, which usually
	// wraps a live stream.
	VerdictStream
	// VerdictReject means the content type cannot be played.
	VerdictReject
)

// Classify applies the content-type gate for direct URLs. application/*
// and image/* bodies are rejected unless they are ogg or raw octet
// streams; text/html is handed back as a stream candidate.
func Classify(contentType string) Verdict {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return VerdictAllow
	}
	if strings.HasPrefix(ct, "application/") || strings.HasPrefix(ct, "image/") {
		if strings.Contains(ct, "/ogg") || strings.Contains(ct, "/octet-stream") {
			return VerdictAllow
		}
		return VerdictReject
	}
	if strings.HasPrefix(ct, "text/html") {
		return VerdictStream
	}
	return VerdictAllow
}
