package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "volume above one",
			mutate: func(c *Config) {
				c.Player.Volume = 1.5
			},
			wantErr: true,
			errMsg:  "Volume",
		},
		{
			name: "negative volume",
			mutate: func(c *Config) {
				c.Player.Volume = -0.1
			},
			wantErr: true,
			errMsg:  "Volume",
		},
		{
			name: "zero skips required",
			mutate: func(c *Config) {
				c.Player.SkipsRequired = 0
			},
			wantErr: true,
			errMsg:  "SkipsRequired",
		},
		{
			name: "skip ratio above one",
			mutate: func(c *Config) {
				c.Player.SkipRatio = 2
			},
			wantErr: true,
			errMsg:  "SkipRatio",
		},
		{
			name: "max retries too large",
			mutate: func(c *Config) {
				c.Player.MaxRetries = 100
			},
			wantErr: true,
			errMsg:  "MaxRetries",
		},
		{
			name: "invalid market length",
			mutate: func(c *Config) {
				c.Spotify.Market = "JAPAN"
			},
			wantErr: true,
			errMsg:  "Market",
		},
		{
			name: "spotify enabled without client id",
			mutate: func(c *Config) {
				c.Spotify.Enabled = true
				c.Spotify.ClientSecret = "test-client-secret"
			},
			wantErr: true,
			errMsg:  "client_id",
		},
		{
			name: "spotify enabled without client secret",
			mutate: func(c *Config) {
				c.Spotify.Enabled = true
				c.Spotify.ClientID = "test-client-id"
			},
			wantErr: true,
			errMsg:  "client_secret",
		},
		{
			name: "spotify enabled with credentials",
			mutate: func(c *Config) {
				c.Spotify.Enabled = true
				c.Spotify.ClientID = "test-client-id"
				c.Spotify.ClientSecret = "test-client-secret"
			},
			wantErr: false,
		},
		{
			name: "autoplay enabled without providers",
			mutate: func(c *Config) {
				c.Autoplay.Enabled = true
			},
			wantErr: true,
			errMsg:  "providers",
		},
		{
			name: "autoplay provider missing type",
			mutate: func(c *Config) {
				c.Autoplay.Enabled = true
				c.Autoplay.Providers = []ProviderConfig{
					{DisplayName: "Local", Settings: map[string]any{}},
				}
			},
			wantErr: true,
			errMsg:  "Type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	content := `
data:
  dir: /var/lib/groovemin
player:
  volume: 0.3
  skips_required: 2
downloads:
  cache_dir: /tmp/cache
  retain: true
filters:
  duration_limit:
    enabled: true
    settings:
      max_duration_seconds: 600
spotify:
  enabled: true
  client_id: abc
  client_secret: def
  market: JP
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/groovemin", cfg.Data.Dir)
	assert.Equal(t, 0.3, cfg.Player.Volume)
	assert.Equal(t, 2, cfg.Player.SkipsRequired)
	assert.Equal(t, 3, cfg.Player.MaxRetries, "unset values fall back to defaults")
	assert.Equal(t, time.Second, cfg.Player.RetryBaseDelay())
	assert.Equal(t, "/tmp/cache", cfg.Downloads.CacheDir)
	assert.True(t, cfg.Downloads.Retain)
	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.True(t, cfg.IsFilterEnabled("duration_limit"))
	assert.False(t, cfg.IsFilterEnabled("requester_quota"))
	assert.Equal(t, 600, cfg.FilterSettings("duration_limit")["max_duration_seconds"])
	assert.Nil(t, cfg.FilterSettings("requester_quota"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("player: [not a map"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	content := `
spotify:
  enabled: true
  client_id: from-file
  client_secret: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("GROOVEMIN_SPOTIFY_CLIENT_ID", "from-env")
	t.Setenv("GROOVEMIN_SPOTIFY_CLIENT_SECRET", "also-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Spotify.ClientID)
	assert.Equal(t, "also-from-env", cfg.Spotify.ClientSecret)
}
