// Package registry tracks one player per target ID.
package registry

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/ricglz/Groovemin/internal/app/playback"
)

var ErrUnknownPlayer = errors.New("unknown player")

// Factory builds a fully wired player for a target ID.
type Factory func(ctx context.Context, id string) (*playback.Player, error)

// Registry manages players with thread-safe access. Creation for the
// same ID is serialized by a per-key lock so concurrent callers share
// one player instead of racing two into existence.
type Registry struct {
	mu        sync.RWMutex
	players   map[string]*playback.Player
	creating  keyedMutex
	factory   Factory
	persister playback.Persister
}

// New creates a new player registry.
func New(factory Factory, persister playback.Persister) *Registry {
	return &Registry{
		players:   make(map[string]*playback.Player),
		factory:   factory,
		persister: persister,
	}
}

// Get retrieves a player by ID.
func (r *Registry) Get(id string) (*playback.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.players[id]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	return p, nil
}

// GetOrCreate returns the player for id, building it when absent. With
// deserialize set, a saved snapshot is loaded into the fresh player's
// queue before it is published.
func (r *Registry) GetOrCreate(ctx context.Context, id string, deserialize bool) (*playback.Player, error) {
	release := r.creating.acquire(id)
	defer release()

	r.mu.RLock()
	p, ok := r.players[id]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := r.factory(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create player %s", id)
	}

	if deserialize {
		r.restore(p)
	}

	r.mu.Lock()
	r.players[id] = p
	r.mu.Unlock()

	zlog.Info().Msgf("created player: id=%s deserialize=%t", id, deserialize)
	return p, nil
}

// Remove kills a player and drops it from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	p, ok := r.players[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownPlayer
	}
	delete(r.players, id)
	r.mu.Unlock()

	p.Kill()
	zlog.Info().Msgf("removed player: id=%s", id)
	return nil
}

// Each calls fn for every registered player. fn runs outside the
// registry lock.
func (r *Registry) Each(fn func(p *playback.Player)) {
	r.mu.RLock()
	players := make([]*playback.Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	r.mu.RUnlock()

	for _, p := range players {
		fn(p)
	}
}

// Count returns the number of registered players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

func (r *Registry) restore(p *playback.Player) {
	snap, err := r.persister.Load(p.ID)
	if err != nil {
		if errors.Is(err, playback.ErrNoSnapshot) {
			zlog.Debug().Msgf("no snapshot for player: id=%s", p.ID)
		} else {
			zlog.Warn().Msgf("failed to load player snapshot: id=%s error=%v", p.ID, err)
		}
		return
	}

	if snap.Version != 1 {
		zlog.Warn().Msgf("unsupported snapshot version, starting empty: id=%s version=%d", p.ID, snap.Version)
		return
	}

	restored, bad := p.Queue().Restore(snap.Entries)
	p.SetVolume(snap.Volume)
	p.SetRepeat(playback.ParseRepeatMode(snap.Repeat))
	if bad > 0 {
		zlog.Warn().Msgf("skipped unusable snapshot entries: id=%s bad=%d", p.ID, bad)
	}
	zlog.Info().Msgf("restored player queue: id=%s entries=%d", p.ID, restored)
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) acquire(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
