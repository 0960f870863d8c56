// Package spotify expands Spotify URLs into plain search queries.
// Spotify resources are never resolved or downloaded directly; tracks,
// albums and playlists turn into "artist title" text the resolver can
// search for.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

// Client is a Spotify Web API client for public catalog reads.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// New creates a new Spotify client using client-credentials auth.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	authCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := authCfg.Client(ctx)

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     spotify.New(httpClient),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// IsSpotifyURL reports whether the input points at a Spotify resource.
func IsSpotifyURL(input string) bool {
	input = strings.TrimSpace(input)
	return strings.HasPrefix(input, "spotify:") || strings.Contains(input, "open.spotify.com")
}

// Expand resolves a Spotify URL or URI into search queries. A track gives
// one query; albums and playlists give one query per item.
func (c *Client) Expand(ctx context.Context, input string) ([]string, error) {
	kind, id, err := parseResource(input)
	if err != nil {
		return nil, errors.Mark(err, media.ErrResolution)
	}

	var queries []string
	switch kind {
	case kindTrack:
		queries, err = c.expandTrack(ctx, id)
	case kindAlbum:
		queries, err = c.expandAlbum(ctx, id)
	case kindPlaylist:
		queries, err = c.expandPlaylist(ctx, id)
	}
	if err != nil {
		return nil, errors.Mark(err, media.ErrResolution)
	}
	if len(queries) == 0 {
		return nil, errors.Mark(errors.Newf("spotify %s %s has no playable tracks", kind, id), media.ErrResolution)
	}
	return queries, nil
}

func (c *Client) expandTrack(ctx context.Context, id string) ([]string, error) {
	var t *spotify.FullTrack
	err := c.retry(func() error {
		result, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		t = result
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	return []string{searchQuery(t.Name, t.Artists)}, nil
}

func (c *Client) expandAlbum(ctx context.Context, id string) ([]string, error) {
	var queries []string
	offset := 0
	limit := 50

	for {
		var page *spotify.SimpleTrackPage
		err := c.retry(func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(id),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get album tracks")
		}

		for _, t := range page.Tracks {
			queries = append(queries, searchQuery(t.Name, t.Artists))
		}

		if len(page.Tracks) < limit {
			break
		}
		offset += limit
	}

	return queries, nil
}

func (c *Client) expandPlaylist(ctx context.Context, id string) ([]string, error) {
	var queries []string
	offset := 0
	limit := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(id),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Episodes have no track payload.
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				t := item.Track.Track
				queries = append(queries, searchQuery(t.Name, t.Artists))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return queries, nil
}

// searchQuery builds the text the resolver searches with.
func searchQuery(name string, artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return name
	}
	return artists[0].Name + " " + name
}

// retry retries an operation with a growing delay between attempts.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// resourceKind is the type of Spotify resource behind a URL.
type resourceKind string

const (
	kindTrack    resourceKind = "track"
	kindAlbum    resourceKind = "album"
	kindPlaylist resourceKind = "playlist"
)

// parseResource splits a Spotify URL or URI into resource kind and ID.
func parseResource(input string) (resourceKind, string, error) {
	input = strings.TrimSpace(input)

	for _, kind := range []resourceKind{kindTrack, kindAlbum, kindPlaylist} {
		if id := extractID(input, string(kind)); id != "" {
			return kind, id, nil
		}
	}
	return "", "", errors.Newf("unsupported spotify resource: %s", input)
}

// extractID extracts the resource ID from a Spotify URL or URI. Returns
// empty when the input is not that kind of resource.
func extractID(input, kind string) string {
	// URI format: spotify:KIND:ID
	if strings.HasPrefix(input, "spotify:"+kind+":") {
		return strings.TrimPrefix(input, "spotify:"+kind+":")
	}

	// URL format: https://open.spotify.com/KIND/ID or
	// https://open.spotify.com/intl-XX/KIND/ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/"+kind+"/") {
		parts := strings.Split(input, "/"+kind+"/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	return ""
}
