package autoplay

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Candidate represents a source offered for enqueueing together with the
// display name of the provider that produced it.
type Candidate struct {
	URL         string
	DisplayName string
}

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// Chain tries multiple providers in order until enough candidates are found.
type Chain struct {
	providers []ProviderWithMetadata
}

// NewChain creates a new provider chain.
func NewChain(providers []ProviderWithMetadata) *Chain {
	return &Chain{
		providers: providers,
	}
}

// GetCandidates retrieves candidates from the providers in order, stopping
// once count is reached. A candidate produced by one provider is excluded
// from the next, on top of the caller's exclude set.
func (c *Chain) GetCandidates(ctx context.Context, count int, exclude map[string]bool) ([]Candidate, error) {
	var all []Candidate
	currentExclude := make(map[string]bool, len(exclude))
	for k, v := range exclude {
		currentExclude[k] = v
	}

	for i, pm := range c.providers {
		if len(all) >= count {
			break
		}

		zlog.Debug().Msgf("trying autoplay provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		urls, err := pm.Provider.GetCandidates(ctx, count-len(all), currentExclude)
		if err != nil {
			zlog.Warn().Msgf("autoplay provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			continue
		}

		if len(urls) == 0 {
			zlog.Debug().Msgf("autoplay provider returned no candidates: provider=%s", pm.DisplayName)
			continue
		}

		for _, u := range urls {
			all = append(all, Candidate{
				URL:         u,
				DisplayName: pm.DisplayName,
			})
			currentExclude[u] = true
		}

		zlog.Info().Msgf("autoplay provider returned candidates: provider=%s count=%d total_so_far=%d",
			pm.DisplayName, len(urls), len(all))
	}

	if len(all) == 0 {
		return nil, errors.New("all providers failed to return candidates")
	}

	return all, nil
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "provider_chain"
}

// Remover is implemented by providers that can drop a source for good,
// such as the file provider scrubbing a dead URL from its list.
type Remover interface {
	Remove(url string) error
}

// Remove drops url from every provider that supports removal.
func (c *Chain) Remove(url string) error {
	for _, pm := range c.providers {
		r, ok := pm.Provider.(Remover)
		if !ok {
			continue
		}
		if err := r.Remove(url); err != nil {
			return errors.Wrapf(err, "failed to remove %s from provider %s", url, pm.DisplayName)
		}
	}
	return nil
}
