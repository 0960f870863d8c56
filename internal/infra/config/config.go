// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Data      DataConfig              `yaml:"data"`
	Player    PlayerConfig            `yaml:"player"`
	Downloads DownloadsConfig         `yaml:"downloads"`
	Autoplay  AutoplayConfig          `yaml:"autoplay"`
	Filters   map[string]FilterConfig `yaml:"filters"`
	Spotify   SpotifyConfig           `yaml:"spotify"`
}

// DataConfig represents where per-player state lives.
type DataConfig struct {
	Dir string `yaml:"dir" default:"data"`
}

// PlayerConfig represents playback tunables.
type PlayerConfig struct {
	Volume           float64  `yaml:"volume" default:"0.5" validate:"gte=0,lte=1"`
	SkipsRequired    int      `yaml:"skips_required" default:"4" validate:"gte=1"`
	SkipRatio        float64  `yaml:"skip_ratio" default:"0.5" validate:"gte=0,lte=1"`
	MaxRetries       int      `yaml:"max_retries" default:"3" validate:"gte=1,lte=10"`
	RetryBaseDelayMs int      `yaml:"retry_base_delay_ms" default:"1000" validate:"gte=0,lte=60000"`
	WarningMarkers   []string `yaml:"warning_markers"`
}

// RetryBaseDelay returns the retry base delay as a duration.
func (c PlayerConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// DownloadsConfig represents the media cache configuration.
type DownloadsConfig struct {
	CacheDir string `yaml:"cache_dir" default:"audio_cache"`
	Retain   bool   `yaml:"retain"`
}

// AutoplayConfig represents queue refill configuration.
type AutoplayConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Providers []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single autoplay provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings" validate:"required"`
}

// FilterConfig represents an admission filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// SpotifyConfig represents Spotify API configuration. Optional: when
// disabled, Spotify URLs are rejected at enqueue.
type SpotifyConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("GROOVEMIN_SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("GROOVEMIN_SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Spotify.Enabled {
		if c.Spotify.ClientID == "" {
			return errors.New("spotify is enabled but client_id is missing")
		}
		if c.Spotify.ClientSecret == "" {
			return errors.New("spotify is enabled but client_secret is missing")
		}
	}

	if c.Autoplay.Enabled && len(c.Autoplay.Providers) == 0 {
		return errors.New("autoplay is enabled but no providers are configured")
	}

	return nil
}

// IsFilterEnabled checks if an admission filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings block for a filter, nil if absent.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
