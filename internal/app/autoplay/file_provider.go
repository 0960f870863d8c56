package autoplay

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

type FileProviderConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// FileProvider serves sources from a newline-delimited URL file. Lines
// starting with # are comments. Sources are handed out in shuffled order
// without repeats until the whole file has been served once, then the
// rotation starts over.
type FileProvider struct {
	mu      sync.Mutex
	config  *FileProviderConfig
	lines   []string // raw file lines, comments and blanks preserved
	urls    []string // parsed sources in file order
	pending []string // not yet served this rotation
	loaded  bool
}

// NewFileProvider creates a new FileProvider.
func NewFileProvider(settings map[string]any) (*FileProvider, error) {
	var config FileProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("file provider config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &FileProvider{config: &config}, nil
}

// GetCandidates returns up to count sources from the rotation, skipping
// excluded ones. Excluded sources still burn their slot in the current
// rotation; they come back on the next pass.
func (p *FileProvider) GetCandidates(ctx context.Context, count int, exclude map[string]bool) ([]string, error) {
	if count <= 0 {
		return []string{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		if err := p.load(); err != nil {
			return nil, err
		}
	}

	result := make([]string, 0, count)
	refilled := false
	for len(result) < count {
		if len(p.pending) == 0 {
			if refilled || len(p.urls) == 0 {
				break
			}
			p.refill()
			refilled = true
		}

		url := p.pending[0]
		p.pending = p.pending[1:]
		if exclude[url] {
			continue
		}
		result = append(result, url)
	}

	return result, nil
}

// Remove drops a permanently failing source from the rotation and
// rewrites the file without it. Comment and blank lines are preserved.
func (p *FileProvider) Remove(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		if err := p.load(); err != nil {
			return err
		}
	}

	found := false
	kept := make([]string, 0, len(p.lines))
	for _, line := range p.lines {
		if strings.TrimSpace(line) == url {
			found = true
			continue
		}
		kept = append(kept, line)
	}
	if !found {
		zlog.Debug().Msgf("source not in autoplay file: url=%s", url)
		return nil
	}
	p.lines = kept
	p.urls = removeAll(p.urls, url)
	p.pending = removeAll(p.pending, url)

	if err := p.write(); err != nil {
		return err
	}

	zlog.Info().Msgf("removed source from autoplay file: url=%s remaining=%d", url, len(p.urls))
	return nil
}

// Name returns the provider name.
func (p *FileProvider) Name() string {
	return "file"
}

func (p *FileProvider) load() error {
	data, err := os.ReadFile(p.config.Path)
	if err != nil {
		return errors.Wrap(err, "failed to read autoplay file")
	}

	p.lines = strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	p.urls = p.urls[:0]
	for _, line := range p.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		p.urls = append(p.urls, trimmed)
	}
	p.pending = nil
	p.loaded = true

	zlog.Info().Msgf("loaded autoplay file: path=%s sources=%d", p.config.Path, len(p.urls))
	return nil
}

func (p *FileProvider) refill() {
	p.pending = append([]string(nil), p.urls...)
	rand.Shuffle(len(p.pending), func(i, j int) {
		p.pending[i], p.pending[j] = p.pending[j], p.pending[i]
	})
}

func (p *FileProvider) write() error {
	tmp, err := os.CreateTemp(filepath.Dir(p.config.Path), filepath.Base(p.config.Path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	if _, err := tmp.WriteString(strings.Join(p.lines, "\n")); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to write autoplay file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), p.config.Path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to replace autoplay file")
	}
	return nil
}

func removeAll(list []string, url string) []string {
	kept := list[:0]
	for _, u := range list {
		if u != url {
			kept = append(kept, u)
		}
	}
	return kept
}
