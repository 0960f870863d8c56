// Package statefile persists player snapshots as per-player JSON files.
package statefile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/ricglz/Groovemin/internal/app/playback"
)

const (
	queueFile      = "queue.json"
	nowPlayingFile = "current.txt"
)

// Store is a file-backed snapshot store. Operations on the same player
// are serialized; different players never contend.
type Store struct {
	dir   string
	locks lockSet
}

// New creates a store rooted at dir. The directory is created on first
// write, not here.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes the snapshot to <dir>/<playerID>/queue.json. The write is
// atomic: a temp file is renamed over the previous snapshot.
func (s *Store) Save(playerID string, snap playback.Snapshot) error {
	unlock := s.locks.acquire("queue:" + playerID)
	defer unlock()

	dir := s.playerDir(playerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create state directory")
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}

	tmp, err := os.CreateTemp(dir, queueFile+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to write snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, queueFile)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to replace snapshot")
	}
	return nil
}

// Load reads the player's snapshot. Returns ErrNoSnapshot when the player
// has never been saved.
func (s *Store) Load(playerID string) (playback.Snapshot, error) {
	unlock := s.locks.acquire("queue:" + playerID)
	defer unlock()

	data, err := os.ReadFile(filepath.Join(s.playerDir(playerID), queueFile))
	if err != nil {
		if os.IsNotExist(err) {
			return playback.Snapshot{}, playback.ErrNoSnapshot
		}
		return playback.Snapshot{}, errors.Wrap(err, "failed to read snapshot")
	}

	var snap playback.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return playback.Snapshot{}, errors.Wrap(err, "failed to decode snapshot")
	}
	return snap, nil
}

// WriteNowPlaying writes the now-playing text to <dir>/<playerID>/current.txt
// for external consumers like stream overlays.
func (s *Store) WriteNowPlaying(playerID string, text string) error {
	unlock := s.locks.acquire("nowplaying:" + playerID)
	defer unlock()

	dir := s.playerDir(playerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create state directory")
	}
	if err := os.WriteFile(filepath.Join(dir, nowPlayingFile), []byte(text), 0o644); err != nil {
		return errors.Wrap(err, "failed to write now playing file")
	}
	return nil
}

func (s *Store) playerDir(playerID string) string {
	// Player IDs come from callers; keep them from escaping the root.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(playerID)
	return filepath.Join(s.dir, safe)
}

// lockSet hands out one mutex per key.
type lockSet struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// acquire locks the key's mutex and returns its unlock function.
func (s *lockSet) acquire(key string) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
