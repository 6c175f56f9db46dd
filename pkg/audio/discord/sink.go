package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/jukebox/pkg/audio"
)

var _ audio.Sink = (*Sink)(nil)

// voiceLink is the part of *discordgo.VoiceConnection the sink drives.
type voiceLink struct {
	send       chan<- []byte
	speaking   func(bool) error
	disconnect func() error
}

// Sink plays one stream at a time into a Discord voice connection.
//
// Each submission decodes the locator to PCM (ffmpeg by default), encodes it
// to Opus and pushes 20 ms packets to the connection. The send loop runs on
// its own goroutine, which is also where the completion callback fires.
type Sink struct {
	guildID string
	link    voiceLink
	source  pcmSource
	log     *slog.Logger

	mu     sync.Mutex
	active *stream
	closed bool

	// enc is reused across streams; only the active stream touches it.
	enc *opusEncoder

	disconnectOnce sync.Once
	disconnectErr  error

	// release unregisters the sink from its Platform.
	release func()
}

// stream is one submitted locator.
type stream struct {
	locator string
	cancel  context.CancelFunc
	enc     *opusEncoder

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func newSink(guildID string, link voiceLink, source pcmSource, log *slog.Logger) *Sink {
	return &Sink{
		guildID: guildID,
		link:    link,
		source:  source,
		log:     log.With("guild_id", guildID),
	}
}

// Submit implements [audio.Sink].
func (s *Sink) Submit(locator string, onComplete func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrSinkClosed
	}
	if s.active != nil {
		return audio.ErrSinkBusy
	}
	if s.enc == nil {
		enc, err := newOpusEncoder()
		if err != nil {
			return err
		}
		s.enc = enc
	}

	ctx, cancel := context.WithCancel(context.Background())
	pcm, wait, err := s.source(ctx, locator)
	if err != nil {
		cancel()
		return &audio.PlaybackError{Locator: locator, Err: err}
	}
	st := &stream{locator: locator, cancel: cancel, enc: s.enc}
	s.active = st
	go s.play(ctx, st, pcm, wait, onComplete)
	return nil
}

// play pumps one stream until it ends or is cancelled.
func (s *Sink) play(ctx context.Context, st *stream, pcm io.ReadCloser, wait func() error, onComplete func(error)) {
	s.setSpeaking(true)
	sendErr := s.pump(ctx, st, pcm)
	_ = pcm.Close()
	waitErr := wait()

	var err error
	switch {
	case ctx.Err() != nil:
		// Stopped or disconnected.
	case sendErr != nil:
		err = &audio.PlaybackError{Locator: st.locator, Err: sendErr}
	case waitErr != nil:
		err = &audio.PlaybackError{Locator: st.locator, Err: waitErr}
	}
	st.cancel()

	s.mu.Lock()
	if s.active == st {
		s.active = nil
	}
	s.mu.Unlock()

	s.setSpeaking(false)
	if err != nil {
		s.log.Warn("discord: stream ended with error", "err", err)
	}
	onComplete(err)
}

// pump reads whole PCM frames, encodes them and sends them until EOF.
func (s *Sink) pump(ctx context.Context, st *stream, pcm io.Reader) error {
	frame := make([]byte, pcmFrameBytes)
	for {
		if err := st.waitResumed(ctx); err != nil {
			return nil
		}
		n, err := io.ReadFull(pcm, frame)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			clear(frame[n:])
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read pcm: %w", err)
		}

		pkt, encErr := st.enc.encode(frame)
		if encErr != nil {
			return encErr
		}
		select {
		case s.link.send <- pkt:
		case <-ctx.Done():
			return nil
		}
		if n < pcmFrameBytes {
			return nil
		}
	}
}

// Stop implements [audio.Sink]. It returns without waiting for the stream
// to wind down; the completion callback reports the end.
func (s *Sink) Stop() error {
	s.mu.Lock()
	st := s.active
	s.mu.Unlock()
	if st != nil {
		st.cancel()
	}
	return nil
}

// Pause implements [audio.Sink].
func (s *Sink) Pause() error {
	st := s.current()
	if st == nil {
		return audio.ErrNotPlaying
	}
	st.setPaused(true)
	s.setSpeaking(false)
	return nil
}

// Resume implements [audio.Sink].
func (s *Sink) Resume() error {
	st := s.current()
	if st == nil {
		return audio.ErrNotPlaying
	}
	s.setSpeaking(true)
	st.setPaused(false)
	return nil
}

// IsPlaying implements [audio.Sink].
func (s *Sink) IsPlaying() bool {
	st := s.current()
	return st != nil && !st.isPaused()
}

// IsPaused implements [audio.Sink].
func (s *Sink) IsPaused() bool {
	st := s.current()
	return st != nil && st.isPaused()
}

// Disconnect implements [audio.Sink].
func (s *Sink) Disconnect() error {
	s.mu.Lock()
	s.closed = true
	st := s.active
	s.mu.Unlock()
	if st != nil {
		st.cancel()
	}
	s.disconnectOnce.Do(func() {
		if s.release != nil {
			s.release()
		}
		if s.link.disconnect != nil {
			s.disconnectErr = s.link.disconnect()
		}
	})
	return s.disconnectErr
}

func (s *Sink) current() *stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Sink) setSpeaking(b bool) {
	if s.link.speaking == nil {
		return
	}
	if err := s.link.speaking(b); err != nil {
		s.log.Debug("discord: speaking update failed", "speaking", b, "err", err)
	}
}

func (st *stream) setPaused(p bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.paused == p {
		return
	}
	st.paused = p
	if p {
		st.resume = make(chan struct{})
	} else {
		close(st.resume)
	}
}

func (st *stream) isPaused() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.paused
}

// waitResumed blocks while the stream is paused.
func (st *stream) waitResumed(ctx context.Context) error {
	st.mu.Lock()
	ch := st.resume
	paused := st.paused
	st.mu.Unlock()
	if !paused {
		return ctx.Err()
	}
	select {
	case <-ch:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
