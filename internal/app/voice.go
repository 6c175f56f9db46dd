package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/jukebox/internal/player"
)

// voiceLeftTimeout bounds the cleanup after an external voice disconnect.
const voiceLeftTimeout = 5 * time.Second

// voiceWatcher reacts to the bot losing its voice connection without having
// asked for it (kicked, moved out, channel deleted).
type voiceWatcher struct {
	manager  *player.Manager
	platform VoicePlatform
}

// left is called for every voice leave of the bot. Leaves the platform
// initiated itself (stop, idle timeout, shutdown) have already released the
// sink and are ignored.
func (w *voiceWatcher) left(guildID string) {
	if !w.platform.Live(guildID) {
		return
	}
	slog.Info("voice connection lost, keeping queue", "guild_id", guildID)

	ctx, cancel := context.WithTimeout(context.Background(), voiceLeftTimeout)
	defer cancel()
	if err := w.manager.Detach(ctx, guildID); err != nil {
		slog.Warn("detach after voice loss failed", "guild_id", guildID, "err", err)
	}
	if err := w.platform.Release(guildID); err != nil {
		slog.Debug("release after voice loss", "guild_id", guildID, "err", err)
	}
}
