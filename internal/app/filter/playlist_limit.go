package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

// PlaylistLimitConfig represents the configuration for PlaylistLimitFilter.
type PlaylistLimitConfig struct {
	// DenyPlaylists rejects any request that expands to more than one
	// entry.
	DenyPlaylists bool `yaml:"deny_playlists" mapstructure:"deny_playlists"`
	// MaxItems is the most entries one playlist may import. 0 means no
	// limit.
	MaxItems int `yaml:"max_items" mapstructure:"max_items" default:"0" validate:"gte=0"`
}

// PlaylistLimitFilter gates playlist imports.
type PlaylistLimitFilter struct {
	config *PlaylistLimitConfig
}

// NewPlaylistLimitFilter creates a new playlist limit filter.
func NewPlaylistLimitFilter() *PlaylistLimitFilter {
	return &PlaylistLimitFilter{}
}

func (f *PlaylistLimitFilter) Name() string {
	return "playlist_limit_filter"
}

func (f *PlaylistLimitFilter) Description() string {
	return "Gates whether and how large playlist imports may be"
}

func (f *PlaylistLimitFilter) ReturnCodes() []string {
	return []string{"playlist_not_allowed", "playlist_limit_exceeded"}
}

func (f *PlaylistLimitFilter) ValidateConfig(settings map[string]any) error {
	var config PlaylistLimitConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	f.config = &config
	zlog.Info().Msgf("playlist limit filter config: %+v", config)
	return nil
}

func (f *PlaylistLimitFilter) AppliesTo(kind media.RequesterKind) bool {
	// Apply to user requests only
	return kind == media.RequesterKindUser
}

func (f *PlaylistLimitFilter) Check(ctx context.Context, req Request, desc media.Descriptor) Result {
	if f.config == nil || req.PlaylistSize <= 1 {
		return Accept()
	}

	if f.config.DenyPlaylists {
		return Reject("playlist_not_allowed")
	}
	if f.config.MaxItems > 0 && req.PlaylistSize > f.config.MaxItems {
		return Reject("playlist_limit_exceeded")
	}
	return Accept()
}

func init() {
	Register("playlist_limit_filter", func() Filter {
		return &PlaylistLimitFilter{}
	})
}
