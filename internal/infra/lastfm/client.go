// Package lastfm provides a client for the Last.fm track charts.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Client is a Last.fm API client. Results are cached for the lifetime
// of the process; charts move slowly enough for that.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	cacheMu sync.RWMutex
	cache   map[string][]Track
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey string
}

// Track is one charted track.
type Track struct {
	Name   string
	Artist string
}

type topTracksResponse struct {
	Tracks struct {
		Track []struct {
			Name   string `json:"name"`
			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"track"`
	} `json:"tracks"`
}

type apiError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    "https://ws.audioscrobbler.com/2.0/",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      make(map[string][]Track),
	}, nil
}

// TopTracksByTag retrieves the top tracks for a tag.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) TopTracksByTag(ctx context.Context, tag string, limit int) ([]Track, error) {
	if tag == "" {
		return nil, errors.New("tag name is required")
	}

	params := url.Values{}
	params.Set("method", "tag.getTopTracks")
	params.Set("tag", tag)
	params.Set("limit", fmt.Sprintf("%d", clampLimit(limit)))

	return c.topTracks(ctx, "tag:"+tag, params)
}

// ChartTopTracks retrieves the global top tracks.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) ChartTopTracks(ctx context.Context, limit int) ([]Track, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", fmt.Sprintf("%d", clampLimit(limit)))

	return c.topTracks(ctx, "chart", params)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func (c *Client) topTracks(ctx context.Context, cacheKey string, params url.Values) ([]Track, error) {
	c.cacheMu.RLock()
	if tracks, ok := c.cache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("using cached last.fm tracks: key=%s", cacheKey)
		return tracks, nil
	}
	c.cacheMu.RUnlock()

	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		return nil, errors.Errorf("last.fm API error %d: %s", apiErr.Code, apiErr.Message)
	}

	var response topTracksResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}

	tracks := make([]Track, 0, len(response.Tracks.Track))
	for _, t := range response.Tracks.Track {
		tracks = append(tracks, Track{
			Name:   t.Name,
			Artist: t.Artist.Name,
		})
	}

	c.cacheMu.Lock()
	c.cache[cacheKey] = tracks
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("cached last.fm tracks: key=%s count=%d", cacheKey, len(tracks))

	return tracks, nil
}
