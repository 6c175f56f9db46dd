package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidSourceNames lists the resolver source names known to the bot.
// Used by [Validate] to warn about unrecognised names.
var ValidSourceNames = []string{"ytdlp"}

// Defaults applied by [ApplyDefaults] to unset fields.
const (
	DefaultListenAddr        = ":8080"
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultYtDlpPath         = "yt-dlp"
	DefaultPlaylistLimit     = 50
	DefaultResolveTimeout    = 20 * time.Second
	DefaultCacheSize         = 256
	DefaultCacheTTL          = 30 * time.Minute
	DefaultSpotifyItemLimit  = 100
	DefaultFFmpegPath        = "ffmpeg"
	DefaultReconnectDelayMax = 5 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
)

// DefaultSources is the fallback chain used when resolver.sources is empty:
// YouTube search first, SoundCloud search second.
func DefaultSources() []SourceEntry {
	return []SourceEntry{
		{Name: "ytdlp", SearchPrefix: "ytsearch1:"},
		{Name: "ytdlp", SearchPrefix: "scsearch1:"},
	}
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	return load(r, os.LookupEnv)
}

func load(r io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg, lookup)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets with non-empty environment values.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.Discord.Token, EnvDiscordToken)
	set(&cfg.Spotify.ClientID, EnvSpotifyClientID)
	set(&cfg.Spotify.ClientSecret, EnvSpotifyClientSecret)
}

// ApplyDefaults fills unset fields of cfg in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	r := &cfg.Resolver
	if r.YtDlpPath == "" {
		r.YtDlpPath = DefaultYtDlpPath
	}
	if len(r.Sources) == 0 {
		r.Sources = DefaultSources()
	}
	if r.PlaylistLimit == 0 {
		r.PlaylistLimit = DefaultPlaylistLimit
	}
	if r.Timeout == 0 {
		r.Timeout = DefaultResolveTimeout
	}
	if r.CacheSize == 0 {
		r.CacheSize = DefaultCacheSize
	}
	if r.CacheTTL == 0 {
		r.CacheTTL = DefaultCacheTTL
	}

	if cfg.Spotify.ItemLimit == 0 {
		cfg.Spotify.ItemLimit = DefaultSpotifyItemLimit
	}

	p := &cfg.Playback
	if p.FFmpegPath == "" {
		p.FFmpegPath = DefaultFFmpegPath
	}
	if p.ReconnectDelayMax == 0 {
		p.ReconnectDelayMax = DefaultReconnectDelayMax
	}
	if p.Volume == 0 {
		p.Volume = 1.0
	}
	if p.IdleTimeout == 0 {
		p.IdleTimeout = DefaultIdleTimeout
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, fmt.Errorf("discord.token is required (or set %s)", EnvDiscordToken))
	}

	for i, src := range cfg.Resolver.Sources {
		prefix := fmt.Sprintf("resolver.sources[%d]", i)
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateSourceName(src.Name)
	}
	if cfg.Resolver.PlaylistLimit < 0 {
		errs = append(errs, fmt.Errorf("resolver.playlist_limit %d must not be negative", cfg.Resolver.PlaylistLimit))
	}
	if cfg.Resolver.Timeout < 0 {
		errs = append(errs, fmt.Errorf("resolver.timeout %s must not be negative", cfg.Resolver.Timeout))
	}
	if cfg.Resolver.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("resolver.cache_ttl %s must not be negative", cfg.Resolver.CacheTTL))
	}

	if (cfg.Spotify.ClientID == "") != (cfg.Spotify.ClientSecret == "") {
		errs = append(errs, errors.New("spotify.client_id and spotify.client_secret must be set together"))
	}
	if cfg.Spotify.ItemLimit < 0 {
		errs = append(errs, fmt.Errorf("spotify.item_limit %d must not be negative", cfg.Spotify.ItemLimit))
	}

	if cfg.Playback.Volume < 0 || cfg.Playback.Volume > 2 {
		errs = append(errs, fmt.Errorf("playback.volume %.2f is out of range [0, 2]", cfg.Playback.Volume))
	}
	if cfg.Playback.ReconnectDelayMax < 0 {
		errs = append(errs, fmt.Errorf("playback.reconnect_delay_max %s must not be negative", cfg.Playback.ReconnectDelayMax))
	}

	return errors.Join(errs...)
}

// validateSourceName logs a warning if name is not in [ValidSourceNames].
func validateSourceName(name string) {
	if slices.Contains(ValidSourceNames, name) {
		return
	}
	slog.Warn("unknown resolver source name, may be a typo or a custom source",
		"name", name,
		"known", ValidSourceNames,
	)
}
