package autoplay

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves a fixed list, honoring count and exclude, and
// records what it was asked for.
type fakeProvider struct {
	name        string
	urls        []string
	err         error
	calls       int
	lastExclude map[string]bool
}

func (p *fakeProvider) GetCandidates(ctx context.Context, count int, exclude map[string]bool) ([]string, error) {
	p.calls++
	p.lastExclude = exclude
	if p.err != nil {
		return nil, p.err
	}

	result := make([]string, 0, count)
	for _, u := range p.urls {
		if len(result) >= count {
			break
		}
		if !exclude[u] {
			result = append(result, u)
		}
	}
	return result, nil
}

func (p *fakeProvider) Name() string {
	return p.name
}

func TestChain_GetCandidates_AccumulatesAcrossProviders(t *testing.T) {
	first := &fakeProvider{name: "file", urls: []string{"a", "b"}}
	second := &fakeProvider{name: "static", urls: []string{"c", "d"}}

	chain := NewChain([]ProviderWithMetadata{
		{Provider: first, DisplayName: "House Playlist"},
		{Provider: second, DisplayName: "Fallback"},
	})

	candidates, err := chain.GetCandidates(context.Background(), 3, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, Candidate{URL: "a", DisplayName: "House Playlist"}, candidates[0])
	assert.Equal(t, Candidate{URL: "b", DisplayName: "House Playlist"}, candidates[1])
	assert.Equal(t, Candidate{URL: "c", DisplayName: "Fallback"}, candidates[2])

	assert.True(t, second.lastExclude["a"], "earlier candidates should be excluded for later providers")
	assert.True(t, second.lastExclude["b"])
}

func TestChain_GetCandidates_StopsAtCount(t *testing.T) {
	first := &fakeProvider{name: "file", urls: []string{"a", "b", "c"}}
	second := &fakeProvider{name: "static", urls: []string{"d"}}

	chain := NewChain([]ProviderWithMetadata{
		{Provider: first, DisplayName: "first"},
		{Provider: second, DisplayName: "second"},
	})

	candidates, err := chain.GetCandidates(context.Background(), 2, nil)
	require.NoError(t, err)

	assert.Len(t, candidates, 2)
	assert.Equal(t, 0, second.calls, "later providers should not run once count is reached")
}

func TestChain_GetCandidates_SkipsFailedProvider(t *testing.T) {
	broken := &fakeProvider{name: "file", err: errors.New("file missing")}
	working := &fakeProvider{name: "static", urls: []string{"a"}}

	chain := NewChain([]ProviderWithMetadata{
		{Provider: broken, DisplayName: "broken"},
		{Provider: working, DisplayName: "working"},
	})

	candidates, err := chain.GetCandidates(context.Background(), 1, nil)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "a", candidates[0].URL)
	assert.Equal(t, "working", candidates[0].DisplayName)
}

func TestChain_GetCandidates_AllProvidersFail(t *testing.T) {
	chain := NewChain([]ProviderWithMetadata{
		{Provider: &fakeProvider{name: "file", err: errors.New("boom")}, DisplayName: "one"},
		{Provider: &fakeProvider{name: "static", urls: nil}, DisplayName: "two"},
	})

	candidates, err := chain.GetCandidates(context.Background(), 2, nil)

	assert.Error(t, err)
	assert.Nil(t, candidates)
}

func TestChain_GetCandidates_CallerExcludePassedThrough(t *testing.T) {
	provider := &fakeProvider{name: "file", urls: []string{"a", "b"}}
	chain := NewChain([]ProviderWithMetadata{{Provider: provider, DisplayName: "p"}})

	exclude := map[string]bool{"a": true}
	candidates, err := chain.GetCandidates(context.Background(), 2, exclude)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "b", candidates[0].URL)
	assert.True(t, provider.lastExclude["a"])
	assert.False(t, exclude["b"], "the caller's exclude set must not be mutated")
}

// removableProvider is a fakeProvider that also supports removal.
type removableProvider struct {
	fakeProvider
	removed   []string
	removeErr error
}

func (p *removableProvider) Remove(url string) error {
	if p.removeErr != nil {
		return p.removeErr
	}
	p.removed = append(p.removed, url)
	return nil
}

func TestChain_Remove(t *testing.T) {
	removable := &removableProvider{fakeProvider: fakeProvider{name: "file"}}
	plain := &fakeProvider{name: "static", urls: []string{"a"}}

	chain := NewChain([]ProviderWithMetadata{
		{Provider: plain, DisplayName: "plain"},
		{Provider: removable, DisplayName: "removable"},
	})

	err := chain.Remove("dead-url")
	require.NoError(t, err)
	assert.Equal(t, []string{"dead-url"}, removable.removed)
}

func TestChain_Remove_PropagatesError(t *testing.T) {
	removable := &removableProvider{
		fakeProvider: fakeProvider{name: "file"},
		removeErr:    errors.New("disk full"),
	}
	chain := NewChain([]ProviderWithMetadata{{Provider: removable, DisplayName: "p"}})

	err := chain.Remove("dead-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
