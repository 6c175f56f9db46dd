// Package config provides the configuration schema, loader, hot-reload watcher
// and resolver source registry for the jukebox bot.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Environment variables that override secrets from the YAML file.
const (
	EnvDiscordToken        = "JUKEBOX_DISCORD_TOKEN"
	EnvSpotifyClientID     = "JUKEBOX_SPOTIFY_CLIENT_ID"
	EnvSpotifyClientSecret = "JUKEBOX_SPOTIFY_CLIENT_SECRET"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Resolver ResolverConfig `yaml:"resolver"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Playback PlaybackConfig `yaml:"playback"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DiscordConfig holds the bot credentials and command scope.
type DiscordConfig struct {
	// Token is the bot token. Overridden by JUKEBOX_DISCORD_TOKEN.
	Token string `yaml:"token"`

	// GuildID restricts slash command registration to one guild.
	// Empty registers the commands globally.
	GuildID string `yaml:"guild_id"`

	// DJRoleID gates /skip, /pause, /resume and /stop. Empty allows everyone.
	DJRoleID string `yaml:"dj_role_id"`
}

// ResolverConfig configures query resolution.
type ResolverConfig struct {
	// YtDlpPath is the yt-dlp executable.
	YtDlpPath string `yaml:"ytdlp_path"`

	// Sources lists search backends in fallback order.
	Sources []SourceEntry `yaml:"sources"`

	// PlaylistLimit caps the number of entries expanded from one playlist.
	PlaylistLimit int `yaml:"playlist_limit"`

	// Timeout bounds a single lookup.
	Timeout time.Duration `yaml:"timeout"`

	// CacheSize is the number of queries kept in the result cache. Zero after
	// defaults are applied means the default; negative disables caching.
	CacheSize int `yaml:"cache_size"`

	// CacheTTL must stay below the lifetime of resolved stream URLs.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Proxy is passed to yt-dlp.
	Proxy string `yaml:"proxy"`
}

// SourceEntry is one search backend of the fallback chain.
type SourceEntry struct {
	// Name selects the factory registered in [Registry], e.g. "ytdlp".
	Name string `yaml:"name"`

	// SearchPrefix is the search scheme for free-text queries, e.g. "scsearch1:".
	SearchPrefix string `yaml:"search_prefix"`
}

// Label identifies the source in logs and circuit breaker names.
func (s SourceEntry) Label() string {
	if s.SearchPrefix == "" {
		return s.Name
	}
	return s.Name + "/" + s.SearchPrefix
}

// SpotifyConfig enables Spotify link expansion when both credentials are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// ItemLimit caps the number of tracks read from an album or playlist.
	ItemLimit int `yaml:"item_limit"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// PlaybackConfig configures the voice output pipeline.
type PlaybackConfig struct {
	// FFmpegPath is the ffmpeg executable.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// ReconnectDelayMax caps ffmpeg's reconnect back-off on dropped streams.
	ReconnectDelayMax time.Duration `yaml:"reconnect_delay_max"`

	// Volume scales output; 1.0 leaves it unchanged.
	Volume float64 `yaml:"volume"`

	// IdleTimeout leaves the voice channel after this long with nothing
	// playing and an empty queue. Negative disables. Hot-reloadable.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}
