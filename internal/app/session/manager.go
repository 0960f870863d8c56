// Package session wires the playback engine to resolvers, admission
// filters, persistence, notifications, and autoplay.
package session

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/ricglz/Groovemin/internal/app/autoplay"
	"github.com/ricglz/Groovemin/internal/app/filter"
	"github.com/ricglz/Groovemin/internal/app/notification"
	"github.com/ricglz/Groovemin/internal/app/playback"
	"github.com/ricglz/Groovemin/internal/app/registry"
	"github.com/ricglz/Groovemin/internal/domain/media"
	"github.com/ricglz/Groovemin/internal/infra/config"
	"github.com/ricglz/Groovemin/internal/infra/spotify"
	"github.com/ricglz/Groovemin/internal/infra/webprobe"
)

var ErrSpotifyDisabled = errors.New("spotify support is not configured")

const (
	// autoplayBatch is how many candidates one refill fetches; they are
	// tried in order until one enqueues.
	autoplayBatch = 5
	// refillTimeout bounds the resolver work one refill may do.
	refillTimeout = 2 * time.Minute
)

// Expander expands aggregator URLs into plain search queries.
type Expander interface {
	Expand(ctx context.Context, input string) ([]string, error)
}

// Manager owns the glue around the playback engine: it admits enqueue
// requests, reacts to player events, and keeps players fed and saved.
type Manager struct {
	config    *config.Config
	resolver  playback.Resolver
	expander  Expander
	inspector *webprobe.Prober
	persister playback.Persister
	registry  *registry.Registry
	hub       *notification.Manager
	autoplay  *autoplay.Chain
	filters   *filter.Chain

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a session manager. expander and inspector may be
// nil; the Spotify path and the content gate are then disabled.
func NewManager(
	cfg *config.Config,
	resolver playback.Resolver,
	expander Expander,
	inspector *webprobe.Prober,
	factory registry.Factory,
	persister playback.Persister,
) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config:    cfg,
		resolver:  resolver,
		expander:  expander,
		inspector: inspector,
		persister: persister,
		hub:       notification.NewManager(),
		filters:   filter.NewChain(),
		ctx:       ctx,
		cancel:    cancel,
	}

	if cfg.Autoplay.Enabled {
		chain, err := autoplay.NewChainFromConfig(cfg)
		if err != nil {
			cancel()
			return nil, errors.Wrap(err, "failed to create autoplay chain")
		}
		m.autoplay = chain
	}

	m.registry = registry.New(m.wirePlayer(factory), persister)
	m.setupFilters()

	return m, nil
}

// setupFilters initializes the admission chain from config. Filters with
// broken settings are skipped, not fatal.
func (m *Manager) setupFilters() {
	for _, name := range []string{
		"playlist_limit_filter",
		"duration_limit_filter",
		"requester_quota_filter",
		"duplicate_media_filter",
	} {
		if !m.config.IsFilterEnabled(name) {
			continue
		}

		factory, ok := filter.GetRegistered()[name]
		if !ok {
			zlog.Error().Msgf("filter enabled in config but not registered: %s", name)
			continue
		}

		f := factory()
		if err := f.ValidateConfig(m.config.FilterSettings(name)); err != nil {
			zlog.Error().Msgf("failed to validate %s config: %v", name, err)
			continue
		}
		m.filters.Add(f)
	}
}

// wirePlayer attaches the manager's subscriptions to every player the
// factory builds: notification fan-out, persistence flushes, the
// now-playing file, and autoplay refill.
func (m *Manager) wirePlayer(inner registry.Factory) registry.Factory {
	return func(ctx context.Context, id string) (*playback.Player, error) {
		p, err := inner(ctx, id)
		if err != nil {
			return nil, err
		}

		em := p.Emitter()
		em.OnAll(m.hub.Publish)
		em.OnAll(func(evt playback.Event) { m.onPlayerEvent(p, evt) })
		return p, nil
	}
}

// Player returns the player for id, creating and restoring it on first
// use.
func (m *Manager) Player(ctx context.Context, id string) (*playback.Player, error) {
	return m.registry.GetOrCreate(ctx, id, true)
}

// Subscribe registers an external observer on the notification hub.
func (m *Manager) Subscribe() (string, <-chan notification.Notification) {
	return m.hub.Subscribe()
}

// Unsubscribe removes an external observer.
func (m *Manager) Unsubscribe(id string) {
	m.hub.Unsubscribe(id)
}

// Filters returns the active admission chain.
func (m *Manager) Filters() *filter.Chain {
	return m.filters
}

// EnqueueRequest describes one enqueue attempt.
type EnqueueRequest struct {
	PlayerID  string
	Requester media.Requester
	Origin    media.Origin
	Query     string
	// SingleOnly rejects queries that expand to a playlist instead of
	// importing them.
	SingleOnly bool
	// Shuffle randomizes playlist order before import.
	Shuffle bool
}

// EnqueueResult reports what an enqueue attempt did.
type EnqueueResult struct {
	Entries []*playback.Entry
	// RejectedCode is the first admission return code that turned items
	// away, empty when everything was admitted.
	RejectedCode string
	// RejectedCount counts items admission turned away.
	RejectedCount int
	// BadCount counts playlist items that could not become entries.
	BadCount int
}

// EnqueueQuery resolves a query and adds the results to the player's
// queue: Spotify URLs are expanded into search queries first, generic
// URLs pass the content gate, and every item runs the admission chain.
// A stopped player starts playing when anything lands in the queue.
func (m *Manager) EnqueueQuery(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	player, err := m.registry.GetOrCreate(ctx, req.PlayerID, true)
	if err != nil {
		return nil, err
	}

	descs, err := m.resolveQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	if req.SingleOnly && len(descs) > 1 {
		return nil, &media.WrongEntryKindError{URL: req.Query}
	}

	if req.Shuffle && len(descs) > 1 {
		rand.Shuffle(len(descs), func(i, j int) {
			descs[i], descs[j] = descs[j], descs[i]
		})
	}

	queue := player.Queue()
	freq := filter.Request{
		PlayerID:     req.PlayerID,
		Requester:    req.Requester,
		Queue:        queue,
		PlaylistSize: len(descs),
	}

	result := &EnqueueResult{}
	admitted := make([]media.Descriptor, 0, len(descs))
	for _, desc := range descs {
		verdict := m.filters.Execute(ctx, freq, desc)
		if !verdict.Accepted {
			result.RejectedCount++
			if result.RejectedCode == "" {
				result.RejectedCode = verdict.Code
			}
			zlog.Info().Msgf("enqueue rejected: player=%s requester=%s title=%q code=%s",
				req.PlayerID, req.Requester.DisplayName, desc.Title, verdict.Code)
			continue
		}
		admitted = append(admitted, desc)
	}

	if len(admitted) == 0 {
		return result, nil
	}

	entries, bad := queue.ImportMany(admitted, req.Requester, req.Origin)
	result.Entries = entries
	result.BadCount = bad

	zlog.Info().Msgf("enqueued: player=%s requester=%s entries=%d rejected=%d bad=%d",
		req.PlayerID, req.Requester.DisplayName, len(entries), result.RejectedCount, bad)

	if len(entries) > 0 && player.State() == playback.StateStopped {
		go func() {
			if err := player.Play(); err != nil {
				zlog.Debug().Msgf("play after enqueue: %v", err)
			}
		}()
	}

	return result, nil
}

// resolveQuery turns a query into concrete descriptors.
func (m *Manager) resolveQuery(ctx context.Context, query string) ([]media.Descriptor, error) {
	if spotify.IsSpotifyURL(query) {
		return m.resolveSpotify(ctx, query)
	}

	descs, err := m.resolver.Probe(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]media.Descriptor, 0, len(descs))
	for _, desc := range descs {
		gated, err := m.gateContent(ctx, desc)
		if err != nil {
			if len(descs) == 1 {
				return nil, err
			}
			zlog.Warn().Msgf("dropping playlist item: title=%q error=%v", desc.Title, err)
			continue
		}
		out = append(out, gated)
	}
	if len(out) == 0 {
		return nil, errors.Mark(errors.Newf("nothing playable behind %q", query), media.ErrResolution)
	}
	return out, nil
}

// resolveSpotify expands a Spotify URL into search queries and probes
// each one. Items without a playable result are dropped, not fatal.
func (m *Manager) resolveSpotify(ctx context.Context, query string) ([]media.Descriptor, error) {
	if m.expander == nil {
		return nil, ErrSpotifyDisabled
	}

	queries, err := m.expander.Expand(ctx, query)
	if err != nil {
		return nil, err
	}

	descs := make([]media.Descriptor, 0, len(queries))
	for _, q := range queries {
		found, err := m.resolver.Probe(ctx, q)
		if err != nil || len(found) == 0 {
			zlog.Warn().Msgf("no playable result for spotify item: query=%q error=%v", q, err)
			continue
		}
		descs = append(descs, found[0])
	}
	if len(descs) == 0 {
		return nil, errors.Mark(errors.Newf("no playable results behind %s", query), media.ErrResolution)
	}
	return descs, nil
}

// gateContent applies the content-type gate to generic URLs: HTML pages
// become stream entries, binary-but-not-audio types are rejected.
func (m *Manager) gateContent(ctx context.Context, desc media.Descriptor) (media.Descriptor, error) {
	if desc.ExtractorKind != "generic" || desc.LiveStream || m.inspector == nil {
		return desc, nil
	}

	info, err := m.inspector.Head(ctx, desc.SourceURL)
	if err != nil {
		// The resolver already understood the URL; a failed HEAD alone
		// is not grounds to reject it.
		zlog.Warn().Msgf("content probe failed, keeping entry: url=%s error=%v", desc.SourceURL, err)
		return desc, nil
	}

	switch webprobe.Classify(info.ContentType) {
	case webprobe.VerdictReject:
		return desc, errors.Mark(
			errors.Newf("content type %q is not playable: %s", info.ContentType, desc.SourceURL),
			media.ErrResolution)
	case webprobe.VerdictStream:
		desc.LiveStream = true
		desc.Filename = desc.SourceURL
		return desc, nil
	default:
		return desc, nil
	}
}

// VoteSkip registers a skip vote. listeners is how many people can
// currently vote; the threshold is the smaller of the configured
// absolute count and ceil(ratio * listeners), at least one. When the
// threshold is reached the current entry is skipped.
func (m *Manager) VoteSkip(playerID, voterID string, listeners int) (remaining int, fired bool, err error) {
	player, err := m.registry.Get(playerID)
	if err != nil {
		return 0, false, err
	}

	votes, _ := player.VoteSkip(voterID)

	if listeners < 1 {
		listeners = 1
	}
	needed := m.config.Player.SkipsRequired
	if byRatio := int(math.Ceil(m.config.Player.SkipRatio * float64(listeners))); byRatio < needed {
		needed = byRatio
	}
	if needed < 1 {
		needed = 1
	}

	remaining = needed - votes
	if remaining > 0 {
		return remaining, false, nil
	}

	if err := player.Skip(); err != nil {
		return 0, false, err
	}
	zlog.Info().Msgf("vote skip fired: player=%s votes=%d needed=%d", playerID, votes, needed)
	return 0, true, nil
}

// EnsurePlaying brings a player up: restore its queue, top it up from
// autoplay when empty, and start playback when there is anything to
// play.
func (m *Manager) EnsurePlaying(ctx context.Context, playerID string) (*playback.Player, error) {
	p, err := m.registry.GetOrCreate(ctx, playerID, true)
	if err != nil {
		return nil, err
	}

	if m.autoplay != nil && p.Queue().Len() == 0 {
		m.refill(p)
	}
	if p.Queue().Len() > 0 {
		if err := p.Play(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Close saves every player and shuts the engine down.
func (m *Manager) Close() {
	m.cancel()

	m.registry.Each(func(p *playback.Player) {
		m.saveSnapshot(p)
		p.Kill()
	})
	m.hub.Close()
}

// onPlayerEvent fans one player's events out to persistence, the
// now-playing file, and autoplay.
func (m *Manager) onPlayerEvent(p *playback.Player, evt playback.Event) {
	zlog.Debug().Msgf("player event: player=%s type=%s", p.ID, evt.Type)

	switch evt.Type {
	case playback.EventPlay:
		m.writeNowPlaying(p, evt.Entry)
		m.saveSnapshot(p)

	case playback.EventEntryAdded:
		m.saveSnapshot(p)

	case playback.EventFinishedPlaying:
		m.saveSnapshot(p)
		if m.autoplay != nil && p.Queue().Len() == 0 {
			go m.refill(p)
		}

	case playback.EventPause:
		if evt.Entry != nil {
			m.writeNowPlayingText(p, fmt.Sprintf("[paused] %s", evt.Entry.Descriptor().Title))
		}

	case playback.EventResume:
		m.writeNowPlaying(p, evt.Entry)

	case playback.EventStop:
		m.writeNowPlayingText(p, "")
		m.saveSnapshot(p)

	case playback.EventError:
		zlog.Error().Err(evt.Err).Msgf("player error: player=%s", p.ID)
		m.saveSnapshot(p)
	}
}

// refill asks the autoplay chain for candidates and enqueues the first
// one that resolves. Sources that fail to resolve are dropped from
// their provider so they are not retried forever.
func (m *Manager) refill(p *playback.Player) {
	ctx, cancel := context.WithTimeout(m.ctx, refillTimeout)
	defer cancel()

	if p.State() == playback.StateDead || p.Queue().Len() > 0 {
		return
	}

	exclude := make(map[string]bool)
	if current := p.Current(); current != nil {
		exclude[current.Descriptor().SourceURL] = true
	}

	candidates, err := m.autoplay.GetCandidates(ctx, autoplayBatch, exclude)
	if err != nil {
		zlog.Warn().Msgf("autoplay refill failed: player=%s error=%v", p.ID, err)
		return
	}

	for _, c := range candidates {
		res, err := m.EnqueueQuery(ctx, EnqueueRequest{
			PlayerID: p.ID,
			Requester: media.Requester{
				ID:          "autoplay",
				DisplayName: c.DisplayName,
				Kind:        media.RequesterKindAutoplay,
			},
			Query:      c.URL,
			SingleOnly: true,
		})
		if err != nil {
			zlog.Warn().Msgf("autoplay candidate failed: url=%s error=%v", c.URL, err)
			if errors.Is(err, media.ErrExtraction) || errors.Is(err, media.ErrResolution) {
				if rerr := m.autoplay.Remove(c.URL); rerr != nil {
					zlog.Error().Msgf("failed to drop bad autoplay source: url=%s error=%v", c.URL, rerr)
				}
			}
			continue
		}
		if len(res.Entries) == 0 {
			continue
		}

		zlog.Info().Msgf("autoplay queued: player=%s url=%s provider=%s", p.ID, c.URL, c.DisplayName)
		return
	}

	zlog.Warn().Msgf("autoplay refill found nothing playable: player=%s", p.ID)
}

func (m *Manager) saveSnapshot(p *playback.Player) {
	if err := m.persister.Save(p.ID, p.Snapshot()); err != nil {
		zlog.Error().Msgf("failed to save player snapshot: player=%s error=%v", p.ID, err)
	}
}

func (m *Manager) writeNowPlaying(p *playback.Player, e *playback.Entry) {
	if e == nil {
		m.writeNowPlayingText(p, "")
		return
	}
	desc := e.Descriptor()
	text := desc.Title
	if r := e.Requester(); r.DisplayName != "" {
		text = fmt.Sprintf("%s requested by %s", desc.Title, r.DisplayName)
	}
	m.writeNowPlayingText(p, text)
}

func (m *Manager) writeNowPlayingText(p *playback.Player, text string) {
	if err := m.persister.WriteNowPlaying(p.ID, text); err != nil {
		zlog.Error().Msgf("failed to write now playing: player=%s error=%v", p.ID, err)
	}
}
