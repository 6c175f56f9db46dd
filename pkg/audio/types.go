package audio

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSinkClosed is returned by [Sink] methods after Disconnect.
	ErrSinkClosed = errors.New("audio: sink is disconnected")

	// ErrSinkBusy is returned by [Sink.Submit] while another stream is active.
	ErrSinkBusy = errors.New("audio: sink is already playing")

	// ErrNotPlaying is returned by Pause and Resume when no stream is active.
	ErrNotPlaying = errors.New("audio: nothing is playing")
)

// PlaybackError describes a stream that ended because of a failure rather than
// reaching its end. Sinks pass it to the completion callback.
type PlaybackError struct {
	// Locator is the stream that failed.
	Locator string

	// Err is the underlying cause.
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("audio: playback of %q failed: %v", e.Locator, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// StreamOptions configures how a sink opens a remote stream.
type StreamOptions struct {
	// Reconnect enables automatic reconnection when the remote stream drops.
	Reconnect bool

	// ReconnectDelayMax caps the back-off between reconnect attempts.
	ReconnectDelayMax time.Duration

	// Volume scales the output; 1.0 leaves it unchanged.
	Volume float64
}

// DefaultStreamOptions returns reconnect-on-interruption settings suitable for
// short-lived signed media URLs.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		Reconnect:         true,
		ReconnectDelayMax: 5 * time.Second,
		Volume:            1.0,
	}
}
