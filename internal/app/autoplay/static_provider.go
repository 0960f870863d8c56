package autoplay

import (
	"context"
	"math/rand"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

type StaticProviderConfig struct {
	URLs []string `yaml:"urls" mapstructure:"urls" validate:"required,min=1"`
}

// StaticProvider serves sources from a fixed list configured inline.
type StaticProvider struct {
	config *StaticProviderConfig
}

// NewStaticProvider creates a new StaticProvider.
func NewStaticProvider(settings map[string]any) (*StaticProvider, error) {
	var config StaticProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("static provider config: %d urls", len(config.URLs))
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &StaticProvider{config: &config}, nil
}

// GetCandidates returns up to count sources from the list in random
// order, skipping excluded ones.
func (p *StaticProvider) GetCandidates(ctx context.Context, count int, exclude map[string]bool) ([]string, error) {
	if count <= 0 {
		return []string{}, nil
	}

	available := make([]string, 0, len(p.config.URLs))
	for _, u := range p.config.URLs {
		if !exclude[u] {
			available = append(available, u)
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
func (p *StaticProvider) Name() string {
	return "static"
}
