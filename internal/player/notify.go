package player

import "github.com/MrWong99/jukebox/pkg/track"

// Notifier receives playback events for announcing them in chat.
//
// Methods are called on the guild's actor goroutine. They must return quickly
// and must not call back into the [Manager]; hand slow work (network sends)
// to another goroutine.
type Notifier interface {
	// NowPlaying fires when a track has been handed to the sink.
	NowPlaying(guildID string, t track.Track)

	// Added fires after tracks were appended to the queue.
	Added(guildID string, tracks []track.Track, skipped int)

	// PlaybackFailed fires when a track could not be started or ended with
	// an error. Playback continues with the next track.
	PlaybackFailed(guildID string, t track.Track, err error)

	// QueueFinished fires when the last queued track has ended.
	QueueFinished(guildID string)

	// IdleDisconnect fires when the sink was disconnected after the idle
	// timeout.
	IdleDisconnect(guildID string)
}

// NopNotifier discards every event.
type NopNotifier struct{}

// NowPlaying implements [Notifier].
func (NopNotifier) NowPlaying(string, track.Track) {}

// Added implements [Notifier].
func (NopNotifier) Added(string, []track.Track, int) {}

// PlaybackFailed implements [Notifier].
func (NopNotifier) PlaybackFailed(string, track.Track, error) {}

// QueueFinished implements [Notifier].
func (NopNotifier) QueueFinished(string) {}

// IdleDisconnect implements [Notifier].
func (NopNotifier) IdleDisconnect(string) {}
