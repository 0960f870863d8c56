package autoplay

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricglz/Groovemin/internal/infra/lastfm"
)

type fakeChartLister struct {
	tagCalls   int
	chartCalls int
	lastTag    string
	tracks     []lastfm.Track
	err        error
}

func (f *fakeChartLister) TopTracksByTag(ctx context.Context, tag string, limit int) ([]lastfm.Track, error) {
	f.tagCalls++
	f.lastTag = tag
	return f.tracks, f.err
}

func (f *fakeChartLister) ChartTopTracks(ctx context.Context, limit int) ([]lastfm.Track, error) {
	f.chartCalls++
	return f.tracks, f.err
}

func chartTracks() []lastfm.Track {
	return []lastfm.Track{
		{Name: "One", Artist: "Alpha"},
		{Name: "Two", Artist: "Beta"},
		{Name: "Three", Artist: "Gamma"},
	}
}

func TestLastFMProvider_GetCandidates_Chart(t *testing.T) {
	lister := &fakeChartLister{tracks: chartTracks()}
	p := &LastFMProvider{config: &LastFMProviderConfig{Limit: 50}, client: lister}

	got, err := p.GetCandidates(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alpha - One", "Beta - Two", "Gamma - Three"}, got)
	assert.Equal(t, 1, lister.chartCalls)
	assert.Equal(t, 0, lister.tagCalls)
}

func TestLastFMProvider_GetCandidates_Tag(t *testing.T) {
	lister := &fakeChartLister{tracks: chartTracks()}
	p := &LastFMProvider{config: &LastFMProviderConfig{Tag: "rock", Limit: 50}, client: lister}

	_, err := p.GetCandidates(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, lister.tagCalls)
	assert.Equal(t, "rock", lister.lastTag)
	assert.Equal(t, 0, lister.chartCalls)
}

func TestLastFMProvider_GetCandidates_Exclude(t *testing.T) {
	lister := &fakeChartLister{tracks: chartTracks()}
	p := &LastFMProvider{config: &LastFMProviderConfig{Limit: 50}, client: lister}

	got, err := p.GetCandidates(context.Background(), 10, map[string]bool{"Beta - Two": true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alpha - One", "Gamma - Three"}, got)
}

func TestLastFMProvider_GetCandidates_CapsAtCount(t *testing.T) {
	lister := &fakeChartLister{tracks: chartTracks()}
	p := &LastFMProvider{config: &LastFMProviderConfig{Limit: 50}, client: lister}

	got, err := p.GetCandidates(context.Background(), 2, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLastFMProvider_GetCandidates_ZeroCount(t *testing.T) {
	lister := &fakeChartLister{tracks: chartTracks()}
	p := &LastFMProvider{config: &LastFMProviderConfig{Limit: 50}, client: lister}

	got, err := p.GetCandidates(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, lister.chartCalls)
}

func TestLastFMProvider_GetCandidates_Error(t *testing.T) {
	lister := &fakeChartLister{err: errors.New("rate limited")}
	p := &LastFMProvider{config: &LastFMProviderConfig{Limit: 50}, client: lister}

	_, err := p.GetCandidates(context.Background(), 5, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestNewLastFMProvider_Validation(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
	}{
		{
			name:     "valid",
			settings: map[string]any{"api_key": "key", "tag": "jazz"},
			wantErr:  false,
		},
		{
			name:     "missing api key",
			settings: map[string]any{"tag": "jazz"},
			wantErr:  true,
		},
		{
			name:     "limit out of range",
			settings: map[string]any{"api_key": "key", "limit": 500},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewLastFMProvider(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 50, p.config.Limit)
		})
	}
}
