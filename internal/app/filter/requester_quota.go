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

// RequesterQuotaConfig represents the configuration for RequesterQuotaFilter.
type RequesterQuotaConfig struct {
	// MaxQueued is the most entries one requester may have queued at
	// once. 0 means no limit.
	MaxQueued int `yaml:"max_queued" mapstructure:"max_queued" default:"0" validate:"gte=0"`
}

// RequesterQuotaFilter caps how many entries a single requester can hold
// in the queue. A playlist request counts with its full size, so it
// cannot sidestep the quota.
type RequesterQuotaFilter struct {
	config *RequesterQuotaConfig
}

// NewRequesterQuotaFilter creates a new requester quota filter.
func NewRequesterQuotaFilter() *RequesterQuotaFilter {
	return &RequesterQuotaFilter{}
}

func (f *RequesterQuotaFilter) Name() string {
	return "requester_quota_filter"
}

func (f *RequesterQuotaFilter) Description() string {
	return "Caps how many queued entries one requester can hold"
}

func (f *RequesterQuotaFilter) ReturnCodes() []string {
	return []string{"requester_quota_exceeded"}
}

func (f *RequesterQuotaFilter) ValidateConfig(settings map[string]any) error {
	var config RequesterQuotaConfig

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
	zlog.Info().Msgf("requester quota filter config: %+v", config)
	return nil
}

func (f *RequesterQuotaFilter) AppliesTo(kind media.RequesterKind) bool {
	// Apply to user requests only
	return kind == media.RequesterKindUser
}

func (f *RequesterQuotaFilter) Check(ctx context.Context, req Request, desc media.Descriptor) Result {
	if f.config == nil || f.config.MaxQueued == 0 || req.Queue == nil {
		return Accept()
	}

	incoming := req.PlaylistSize
	if incoming < 1 {
		incoming = 1
	}

	if req.Queue.CountFor(req.Requester.ID)+incoming > f.config.MaxQueued {
		return Reject("requester_quota_exceeded")
	}
	return Accept()
}

func init() {
	Register("requester_quota_filter", func() Filter {
		return &RequesterQuotaFilter{}
	})
}
