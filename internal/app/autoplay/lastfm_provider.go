package autoplay

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/ricglz/Groovemin/internal/infra/lastfm"
)

type LastFMProviderConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	// Tag narrows the chart to one genre tag; empty means the global
	// chart.
	Tag   string `yaml:"tag" mapstructure:"tag"`
	Limit int    `yaml:"limit" mapstructure:"limit" default:"50" validate:"min=1,max=100"`
}

// chartLister is the slice of the Last.fm client this provider uses.
type chartLister interface {
	TopTracksByTag(ctx context.Context, tag string, limit int) ([]lastfm.Track, error)
	ChartTopTracks(ctx context.Context, limit int) ([]lastfm.Track, error)
}

// LastFMProvider serves sources from the Last.fm charts. Candidates are
// plain "artist - title" search queries for the resolver, not URLs.
type LastFMProvider struct {
	config *LastFMProviderConfig
	client chartLister
}

// NewLastFMProvider creates a new LastFMProvider.
func NewLastFMProvider(settings map[string]any) (*LastFMProvider, error) {
	var config LastFMProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("lastfm provider config: tag=%q limit=%d", config.Tag, config.Limit)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, err
	}
	return &LastFMProvider{config: &config, client: client}, nil
}

// GetCandidates returns up to count chart tracks in random order as
// search queries, skipping excluded ones.
func (p *LastFMProvider) GetCandidates(ctx context.Context, count int, exclude map[string]bool) ([]string, error) {
	if count <= 0 {
		return []string{}, nil
	}

	var tracks []lastfm.Track
	var err error
	if p.config.Tag != "" {
		tracks, err = p.client.TopTracksByTag(ctx, p.config.Tag, p.config.Limit)
	} else {
		tracks, err = p.client.ChartTopTracks(ctx, p.config.Limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch last.fm chart")
	}

	available := make([]string, 0, len(tracks))
	for _, t := range tracks {
		query := fmt.Sprintf("%s - %s", t.Artist, t.Name)
		if !exclude[query] {
			available = append(available, query)
		}
	}
	rand.Shuffle(len(available), func(i, j int) {
		available[i], available[j] = available[j], available[i]
	})

	if count > len(available) {
		count = len(available)
	}
	return available[:count], nil
}

// Name returns the provider name.
func (p *LastFMProvider) Name() string {
	return "lastfm"
}
