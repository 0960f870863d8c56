package autoplay

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/ricglz/Groovemin/internal/infra/config"
)

// NewChainFromConfig creates a provider chain from configuration.
func NewChainFromConfig(cfg *config.Config) (*Chain, error) {
	if len(cfg.Autoplay.Providers) == 0 {
		return nil, errors.New("no autoplay providers configured")
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Autoplay.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating autoplay provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "file":
			provider, err = NewFileProvider(pcfg.Settings)

		case "static":
			provider, err = NewStaticProvider(pcfg.Settings)

		case "lastfm":
			provider, err = NewLastFMProvider(pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("registered autoplay provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewChain(providers), nil
}
