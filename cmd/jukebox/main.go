// Command jukebox is the main entry point for the jukebox Discord music bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jukebox/internal/app"
	"github.com/MrWong99/jukebox/internal/config"
	discordbot "github.com/MrWong99/jukebox/internal/discord"
	"github.com/MrWong99/jukebox/internal/observe"
	"github.com/MrWong99/jukebox/internal/resilience"
	"github.com/MrWong99/jukebox/pkg/audio"
	discordaudio "github.com/MrWong99/jukebox/pkg/audio/discord"
	"github.com/MrWong99/jukebox/pkg/resolve"
	"github.com/MrWong99/jukebox/pkg/resolve/spotify"
	"github.com/MrWong99/jukebox/pkg/resolve/ytdlp"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "jukebox: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "jukebox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("jukebox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to init telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Resolver chain ────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinSources(reg, cfg.Resolver)

	resolver, err := buildResolver(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build resolver", "err", err)
		return 1
	}

	// ── Discord ───────────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:    cfg.Discord.Token,
		GuildID:  cfg.Discord.GuildID,
		DJRoleID: cfg.Discord.DJRoleID,
	})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}
	slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

	platform := discordaudio.New(bot.Session(),
		discordaudio.WithFFmpegPath(cfg.Playback.FFmpegPath),
		discordaudio.WithStreamOptions(audio.StreamOptions{
			Reconnect:         cfg.Playback.ReconnectDelayMax > 0,
			ReconnectDelayMax: cfg.Playback.ReconnectDelayMax,
			Volume:            cfg.Playback.Volume,
		}),
	)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, &app.Providers{
		Resolver: resolver,
		Audio:    platform,
		Bot:      bot,
		Messages: bot.Session(),
	}, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		_ = bot.Close()
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "log_level", d.NewLogLevel)
		}
		application.Apply(d)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP: probes and metrics ──────────────────────────────────────────────
	mux := http.NewServeMux()
	application.Health().Register(mux)
	mux.Handle("GET /metrics", provider.MetricsHandler())
	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics, "/healthz", "/readyz", "/metrics")(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return application.Run(gctx)
	})

	slog.Info("jukebox ready, press Ctrl+C to shut down")

	exit := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	slog.Info("goodbye")
	return exit
}

// ── Resolver wiring ───────────────────────────────────────────────────────────

// spotifyHosts are the link hosts routed to the Spotify resolver.
var spotifyHosts = []string{"open.spotify.com", "play.spotify.com"}

// registerBuiltinSources wires the resolver source factories into reg. Each
// factory receives one resolver.sources entry; settings shared by all
// sources come from rc.
func registerBuiltinSources(reg *config.Registry, rc config.ResolverConfig) {
	reg.RegisterSource("ytdlp", func(entry config.SourceEntry) (resolve.Resolver, error) {
		opts := []ytdlp.Option{
			ytdlp.WithExecutable(rc.YtDlpPath),
			ytdlp.WithPlaylistLimit(rc.PlaylistLimit),
			ytdlp.WithTimeout(rc.Timeout),
			ytdlp.WithLogger(slog.Default().With("source", entry.Label())),
		}
		if entry.SearchPrefix != "" {
			opts = append(opts, ytdlp.WithSearchPrefix(entry.SearchPrefix))
		}
		if rc.Proxy != "" {
			opts = append(opts, ytdlp.WithProxy(rc.Proxy))
		}
		return ytdlp.New(opts...), nil
	})

	for _, name := range config.ValidSourceNames {
		slog.Debug("registered resolver source", "name", name)
	}
}

// buildResolver assembles the resolution stack: the configured sources as a
// fallback chain behind circuit breakers, a result cache in front of it, and
// a Spotify route when credentials are configured.
func buildResolver(ctx context.Context, cfg *config.Config, reg *config.Registry) (resolve.Resolver, error) {
	sources := cfg.Resolver.Sources
	if len(sources) == 0 {
		return nil, errors.New("no resolver sources configured")
	}

	breaker := func(name string) resilience.FallbackConfig {
		return resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
			Name: name,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("resolver source breaker changed state", "source", name, "from", from, "to", to)
			},
		}}
	}

	var chain *resilience.ResolverFallback
	for _, entry := range sources {
		r, err := reg.CreateSource(entry)
		if errors.Is(err, config.ErrSourceNotRegistered) {
			slog.Warn("unknown resolver source, skipping", "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		if chain == nil {
			chain = resilience.NewResolverFallback(r, entry.Label(), breaker(entry.Label()))
		} else {
			chain.AddFallback(entry.Label(), r)
		}
		slog.Info("resolver source created", "source", entry.Label())
	}
	if chain == nil {
		return nil, errors.New("none of the configured resolver sources is available")
	}

	var search resolve.Resolver = chain
	if cfg.Resolver.CacheSize > 0 {
		search = resolve.NewCached(chain, cfg.Resolver.CacheSize, cfg.Resolver.CacheTTL)
	}

	if !cfg.Spotify.Enabled() {
		return search, nil
	}
	catalog := spotify.NewClient(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
	slog.Info("spotify links enabled", "item_limit", cfg.Spotify.ItemLimit)
	return resolve.NewRouter(search, resolve.Route{
		Name:     "spotify",
		Match:    resolve.HostMatcher(spotifyHosts...),
		Resolver: spotify.New(catalog, search, cfg.Spotify.ItemLimit, slog.Default().With("source", "spotify")),
	}), nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         jukebox · startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	for i, s := range cfg.Resolver.Sources {
		printRow(fmt.Sprintf("Source %d", i+1), s.Label())
	}
	if cfg.Spotify.Enabled() {
		printRow("Spotify", "enabled")
	} else {
		printRow("Spotify", "(disabled)")
	}
	if cfg.Discord.GuildID != "" {
		printRow("Commands", "guild "+cfg.Discord.GuildID)
	} else {
		printRow("Commands", "global")
	}
	if cfg.Discord.DJRoleID != "" {
		printRow("DJ role", cfg.Discord.DJRoleID)
	} else {
		printRow("DJ role", "(everyone)")
	}
	if cfg.Playback.IdleTimeout > 0 {
		printRow("Idle timeout", cfg.Playback.IdleTimeout.String())
	} else {
		printRow("Idle timeout", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
