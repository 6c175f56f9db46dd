// Package app wires the jukebox subsystems into a running application.
//
// The App struct owns the full lifecycle: New connects the playback manager,
// the announcer and the slash commands to the bot, Run blocks while the bot
// serves interactions, and Shutdown tears everything down in order.
//
// For testing, inject doubles through [Providers] and the functional options
// (WithStore, WithMetrics). When an option is not provided, New creates real
// implementations.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/jukebox/internal/config"
	"github.com/MrWong99/jukebox/internal/discord"
	"github.com/MrWong99/jukebox/internal/discord/commands"
	"github.com/MrWong99/jukebox/internal/health"
	"github.com/MrWong99/jukebox/internal/observe"
	"github.com/MrWong99/jukebox/internal/player"
	"github.com/MrWong99/jukebox/internal/queue"
	"github.com/MrWong99/jukebox/pkg/audio"
	"github.com/MrWong99/jukebox/pkg/resolve"
)

// Bot is the chat side of the jukebox. [*discord.Bot] implements it.
type Bot interface {
	Router() *discord.CommandRouter
	Permissions() *discord.PermissionChecker
	UserVoiceChannel(guildID, userID string) (string, error)
	OnVoiceLeft(fn func(guildID string))
	Connected() bool
	Run(ctx context.Context) error
	Close() error
}

// VoicePlatform is an [audio.Platform] that can tell voice disconnects it
// caused apart from external ones. [*discordaudio.Platform] implements it.
type VoicePlatform interface {
	audio.Platform
	Live(guildID string) bool
	Release(guildID string) error
}

// Providers holds the externally built subsystems. Populated by main.go from
// the config registry and the Discord session.
type Providers struct {
	// Resolver turns /play queries into tracks. Required.
	Resolver resolve.Resolver

	// Audio joins voice channels. Required.
	Audio VoicePlatform

	// Bot receives slash commands. Required.
	Bot Bot

	// Messages posts playback announcements. Nil disables them.
	Messages discord.MessageSender
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store    *queue.Store
	metrics  *observe.Metrics
	manager  *player.Manager
	notifier *discord.Notifier
	health   *health.Handler
	voice    *voiceWatcher

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects the guild queue store.
func WithStore(s *queue.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together and registers the
// slash commands on the bot's router. Commands reach Discord when Run is
// called.
func New(_ context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Resolver == nil || providers.Audio == nil || providers.Bot == nil {
		return nil, errors.New("app: resolver, audio platform and bot are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.store == nil {
		a.store = queue.NewStore()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Announcements ─────────────────────────────────────────────────
	var notifier player.Notifier = player.NopNotifier{}
	var binder commands.ChannelBinder
	if providers.Messages != nil {
		a.notifier = discord.NewNotifier(providers.Messages, slog.Default())
		notifier = a.notifier
		binder = a.notifier
	}

	// ── 2. Playback ──────────────────────────────────────────────────────
	a.manager = player.New(player.Config{
		Store:       a.store,
		Resolver:    providers.Resolver,
		Notifier:    notifier,
		Metrics:     a.metrics,
		IdleTimeout: idleTimeout(cfg.Playback.IdleTimeout),
	})

	// ── 3. Commands ──────────────────────────────────────────────────────
	bot := providers.Bot
	commands.NewMusicCommands(commands.MusicConfig{
		Player:    a.manager,
		Platform:  providers.Audio,
		Voice:     bot,
		Perms:     bot.Permissions(),
		Announcer: binder,
		Metrics:   a.metrics,
	}).Register(bot.Router())

	// ── 4. External voice disconnects ────────────────────────────────────
	a.voice = &voiceWatcher{manager: a.manager, platform: providers.Audio}
	bot.OnVoiceLeft(a.voice.left)

	// ── 5. Readiness ─────────────────────────────────────────────────────
	a.health = health.New(
		health.Flag("discord", bot.Connected, "gateway disconnected"),
		health.Binary("ffmpeg", cfg.Playback.FFmpegPath),
		health.Binary("yt-dlp", cfg.Resolver.YtDlpPath),
	)

	return a, nil
}

// idleTimeout maps the configured value to the player's: negative disables
// the timer, which the player expresses as zero.
func idleTimeout(d time.Duration) time.Duration {
	return max(d, 0)
}

// Manager returns the playback manager.
func (a *App) Manager() *player.Manager { return a.manager }

// Health returns the probe handler.
func (a *App) Health() *health.Handler { return a.health }

// Apply hot-applies a configuration change. Fields that need a restart are
// only logged.
func (a *App) Apply(d config.ConfigDiff) {
	if d.IdleTimeoutChanged {
		a.manager.SetIdleTimeout(idleTimeout(d.NewIdleTimeout))
		slog.Info("idle timeout updated", "idle_timeout", d.NewIdleTimeout)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run registers the slash commands and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running")
	if err := a.providers.Bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: bot: %w", err)
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown leaves every voice channel, flushes pending announcements and
// closes the bot. It respects the context deadline for the playback part.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "guilds", a.manager.ActiveGuilds())

		if err := a.manager.Close(ctx); err != nil {
			slog.Warn("player close error", "err", err)
			shutdownErr = err
		}
		if a.notifier != nil {
			a.notifier.Close()
		}
		if err := a.providers.Bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
			shutdownErr = errors.Join(shutdownErr, err)
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
