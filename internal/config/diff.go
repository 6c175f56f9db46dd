package config

import (
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Hot-reloadable fields are reported individually; everything else that
// changed is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	IdleTimeoutChanged bool
	NewIdleTimeout     time.Duration

	// RestartRequired names the sections whose changes only take effect
	// after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.IdleTimeoutChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Playback.IdleTimeout != new.Playback.IdleTimeout {
		d.IdleTimeoutChanged = true
		d.NewIdleTimeout = new.Playback.IdleTimeout
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.ShutdownTimeout != new.Server.ShutdownTimeout {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Discord != new.Discord {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if !resolverEqual(old.Resolver, new.Resolver) {
		d.RestartRequired = append(d.RestartRequired, "resolver")
	}
	if old.Spotify != new.Spotify {
		d.RestartRequired = append(d.RestartRequired, "spotify")
	}
	oldPlayback, newPlayback := old.Playback, new.Playback
	oldPlayback.IdleTimeout, newPlayback.IdleTimeout = 0, 0
	if oldPlayback != newPlayback {
		d.RestartRequired = append(d.RestartRequired, "playback")
	}

	return d
}

func resolverEqual(a, b ResolverConfig) bool {
	if !slices.Equal(a.Sources, b.Sources) {
		return false
	}
	return a.YtDlpPath == b.YtDlpPath &&
		a.PlaylistLimit == b.PlaylistLimit &&
		a.Timeout == b.Timeout &&
		a.CacheSize == b.CacheSize &&
		a.CacheTTL == b.CacheTTL &&
		a.Proxy == b.Proxy
}
