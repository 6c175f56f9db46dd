// Package audio defines the interfaces between the playback sequencer and the
// voice output layer.
//
// The two primary abstractions are:
//
//   - [Platform]: joins a voice channel and returns a [Sink].
//   - [Sink]: renders one track at a time and reports when it has finished.
//
// Implementations are provided by platform-specific adapter packages (e.g.,
// audio/discord).
package audio

import (
	"context"
)

// Sink is an attached voice output. It plays at most one stream at a time.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Submit starts playback of the stream at locator. onComplete is invoked
	// exactly once for every successful Submit: with nil when the stream
	// ended normally or was stopped, or with a non-nil error when playback
	// failed. onComplete runs on a goroutine owned by the sink, never on the
	// caller's goroutine, and must not block.
	//
	// Submit returns an error without invoking onComplete if playback could
	// not be started at all (sink disconnected, another stream active, …).
	Submit(locator string, onComplete func(error)) error

	// Stop ends the current stream. The pending onComplete (if any) fires
	// promptly. Stop on an idle sink is a no-op.
	Stop() error

	// Pause suspends the current stream; Resume continues it.
	Pause() error
	Resume() error

	// IsPlaying reports whether a stream is active and not paused.
	IsPlaying() bool

	// IsPaused reports whether a stream is active but suspended.
	IsPaused() bool

	// Disconnect stops any playback and leaves the voice channel. It is safe
	// to call more than once; subsequent calls return nil.
	Disconnect() error
}

// Platform is the entry point for a voice provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins channelID in guildID and returns an attached [Sink]. ctx
	// governs the connection attempt only.
	Connect(ctx context.Context, guildID, channelID string) (Sink, error)
}
