// Package main provides the groovemin entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/ricglz/Groovemin/internal/app/filter"
	"github.com/ricglz/Groovemin/internal/app/playback"
	"github.com/ricglz/Groovemin/internal/app/session"
	"github.com/ricglz/Groovemin/internal/domain/media"
	"github.com/ricglz/Groovemin/internal/infra/config"
	"github.com/ricglz/Groovemin/internal/infra/logger"
	"github.com/ricglz/Groovemin/internal/infra/speaker"
	"github.com/ricglz/Groovemin/internal/infra/spotify"
	"github.com/ricglz/Groovemin/internal/infra/statefile"
	"github.com/ricglz/Groovemin/internal/infra/webprobe"
	"github.com/ricglz/Groovemin/internal/infra/ytdlp"
)

// sampleRate is the output rate of the audio device; sources at other
// rates are resampled.
const sampleRate = 44100

var (
	app        = kingpin.New("groovemin", "Self-hosted music playback daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/groovemin.yaml").String()
	verbosity  = app.Flag("verbose", "Increase log verbosity (-v: debug, -vv: trace)").Short('v').Counter()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	playerID   = app.Flag("player", "Player ID to operate on").Default("main").String()

	playCmd     = app.Command("play", "Enqueue a query and play until the queue drains")
	playQuery   = playCmd.Arg("query", "URL or search terms").Required().Strings()
	playShuffle = playCmd.Flag("shuffle", "Shuffle playlist order before import").Bool()

	probeCmd   = app.Command("probe", "Resolve a query and print what it would enqueue")
	probeQuery = probeCmd.Arg("query", "URL or search terms").Required().Strings()

	listFiltersCmd = app.Command("list-filters", "List available admission filters and exit")

	daemonCmd = app.Command("daemon", "Run the playback daemon (default)").Default()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  logger.LevelFromVerbosity(*verbosity),
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	var runErr error
	switch command {
	case daemonCmd.FullCommand():
		runErr = runDaemon(cfg)
	case playCmd.FullCommand():
		runErr = runPlay(cfg, strings.Join(*playQuery, " "))
	case probeCmd.FullCommand():
		runErr = runProbe(strings.Join(*probeQuery, " "))
	}
	if runErr != nil {
		zlog.Error().Msgf("Command failed: %v", runErr)
		os.Exit(1)
	}
}

// buildManager wires the full playback stack from config. The caller
// owns the returned renderer and must close it after the manager.
func buildManager(ctx context.Context, cfg *config.Config) (*session.Manager, *speaker.Renderer, error) {
	if err := validateFilterConfig(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid filter config: %w", err)
	}

	resolver := ytdlp.NewResolver()
	inspector := webprobe.New()
	persister := statefile.New(cfg.Data.Dir)

	var expander session.Expander
	if cfg.Spotify.Enabled {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Spotify client: %w", err)
		}
		expander = client
	}

	renderer, err := speaker.New(sampleRate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audio device: %w", err)
	}

	// One local audio device serves every player.
	factory := func(ctx context.Context, id string) (*playback.Player, error) {
		em := playback.NewEmitter()
		queue := playback.NewQueue(ctx, em, playback.EntryOptions{
			Resolver: resolver,
			Prober:   inspector,
			CacheDir: cfg.Downloads.CacheDir,
		})
		return playback.NewPlayer(ctx, id, playback.PlayerConfig{
			Volume:          cfg.Player.Volume,
			MaxRetries:      cfg.Player.MaxRetries,
			RetryBaseDelay:  cfg.Player.RetryBaseDelay(),
			RetainDownloads: cfg.Downloads.Retain,
			WarningMarkers:  cfg.Player.WarningMarkers,
		}, queue, renderer, em), nil
	}

	mgr, err := session.NewManager(cfg, resolver, expander, inspector, factory, persister)
	if err != nil {
		renderer.Close()
		return nil, nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	return mgr, renderer, nil
}

// runDaemon restores the player and keeps it running until a signal
// arrives.
func runDaemon(cfg *config.Config) error {
	ctx := context.Background()

	mgr, renderer, err := buildManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer renderer.Close()

	player, err := mgr.EnsurePlaying(ctx, *playerID)
	if err != nil {
		mgr.Close()
		return fmt.Errorf("failed to start player: %w", err)
	}
	zlog.Info().Msgf("Daemon running: player=%s state=%s queued=%d",
		*playerID, player.State(), player.Queue().Len())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog.Info().Msg("Received shutdown signal...")

	mgr.Close()
	zlog.Info().Msg("Daemon stopped")
	return nil
}

// runPlay enqueues one query and blocks until the queue drains or a
// signal arrives.
func runPlay(cfg *config.Config, query string) error {
	ctx := context.Background()

	mgr, renderer, err := buildManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer renderer.Close()
	defer mgr.Close()

	subID, events := mgr.Subscribe()
	defer mgr.Unsubscribe(subID)

	res, err := mgr.EnqueueQuery(ctx, session.EnqueueRequest{
		PlayerID:  *playerID,
		Requester: cliRequester(),
		Query:     query,
		Shuffle:   *playShuffle,
	})
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	if len(res.Entries) == 0 {
		if res.RejectedCode != "" {
			return fmt.Errorf("request rejected: %s", res.RejectedCode)
		}
		return fmt.Errorf("nothing playable behind %q", query)
	}
	zlog.Info().Msgf("Queued %d entries (rejected: %d, failed: %d)",
		len(res.Entries), res.RejectedCount, res.BadCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			zlog.Info().Msg("Interrupted")
			return nil
		case n, ok := <-events:
			if !ok {
				return nil
			}
			switch n.Event.Type {
			case playback.EventPlay:
				if n.Event.Entry != nil {
					zlog.Info().Msgf("Now playing: %s", n.Event.Entry.Descriptor().Title)
				}
			case playback.EventError:
				zlog.Warn().Msgf("Playback error: %v", n.Event.Err)
			case playback.EventStop:
				zlog.Info().Msg("Queue drained")
				return nil
			}
		}
	}
}

// probeReport is the printable shape of one resolved item.
type probeReport struct {
	Title     string `yaml:"title"`
	URL       string `yaml:"url"`
	Duration  string `yaml:"duration,omitempty"`
	Live      bool   `yaml:"live,omitempty"`
	Extractor string `yaml:"extractor,omitempty"`
}

// runProbe resolves a query without touching the queue or the audio
// device and prints the result.
func runProbe(query string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	resolver := ytdlp.NewResolver()
	descs, err := resolver.Probe(ctx, query)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	reports := make([]probeReport, 0, len(descs))
	for _, d := range descs {
		report := probeReport{
			Title:     d.Title,
			URL:       d.SourceURL,
			Live:      d.LiveStream,
			Extractor: d.ExtractorKind,
		}
		if d.DurationKnown() {
			report.Duration = d.Duration.String()
		}
		reports = append(reports, report)
	}

	out, err := yaml.Marshal(reports)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

// cliRequester identifies enqueues made from this terminal.
func cliRequester() media.Requester {
	name := "cli"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return media.Requester{
		ID:          "cli:" + name,
		DisplayName: name,
		Kind:        media.RequesterKindUser,
	}
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, factory := range filter.GetRegistered() {
		f := factory()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-25s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// validateFilterConfig validates filter configurations up front so a
// typo fails the start instead of silently dropping the filter.
func validateFilterConfig(cfg *config.Config) error {
	registered := filter.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}

		factory, exists := registered[filterName]
		if !exists {
			return fmt.Errorf("unknown filter: %s", filterName)
		}

		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return fmt.Errorf("filter %s: %w", filterName, err)
		}
	}

	return nil
}
