package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/jukebox/pkg/audio"
	"github.com/MrWong99/jukebox/pkg/track"
)

// mailboxSize bounds the number of pending jobs per guild. Posters block
// when it is full.
const mailboxSize = 64

// guildPlayer is the actor for one guild. Every field below the channels is
// owned by the run goroutine.
type guildPlayer struct {
	id      string
	m       *Manager
	log     *slog.Logger
	mailbox chan func()
	quit    chan struct{}

	sink    audio.Sink
	state   State
	current track.Track

	// gen identifies the submission whose completion is awaited.
	gen uint64

	idleTimer *time.Timer
	idleGen   uint64
}

func newGuildPlayer(m *Manager, guildID string) *guildPlayer {
	return &guildPlayer{
		id:      guildID,
		m:       m,
		log:     m.log.With("guild_id", guildID),
		mailbox: make(chan func(), mailboxSize),
		quit:    make(chan struct{}),
	}
}

func (p *guildPlayer) run() {
	defer p.m.wg.Done()
	for {
		select {
		case job := <-p.mailbox:
			job()
		case <-p.quit:
			p.disarmIdle()
			return
		}
	}
}

// post delivers job to the actor from any goroutine. It gives up silently
// once the actor has stopped.
func (p *guildPlayer) post(job func()) {
	select {
	case p.mailbox <- job:
	case <-p.quit:
	}
}

func (p *guildPlayer) enqueue(tracks []track.Track, skipped int) Enqueued {
	startNow := p.state == Idle && p.sink != nil && p.m.store.Len(p.id) == 0
	n := p.m.store.Append(p.id, tracks...)
	out := Enqueued{Tracks: tracks, Skipped: skipped, Position: n - len(tracks) + 1}
	p.m.notifier.Added(p.id, tracks, skipped)

	if p.state == Idle && p.sink != nil {
		p.advance()
		if startNow {
			out.Position = 0
		}
	}
	p.recordDepth()
	return out
}

// advance starts the next queued track. Tracks that fail to submit count as
// completed with an error and the loop moves on.
func (p *guildPlayer) advance() {
	for {
		if p.sink == nil {
			p.setIdle()
			return
		}
		t, ok := p.m.store.PopFront(p.id)
		if !ok {
			p.setIdle()
			p.m.notifier.QueueFinished(p.id)
			p.armIdle()
			return
		}
		p.recordDepth()

		p.gen++
		gen := p.gen
		p.current = t
		p.state = Playing
		p.disarmIdle()

		err := p.sink.Submit(t.StreamLocator, func(err error) {
			p.post(func() { p.complete(gen, err) })
		})
		if err == nil {
			p.m.metrics.TracksPlayed.Add(context.Background(), 1)
			p.log.Info("player: now playing", "title", t.Title)
			p.m.notifier.NowPlaying(p.id, t)
			return
		}

		perr := asPlaybackError(t.StreamLocator, err)
		p.log.Warn("player: submit failed", "title", t.Title, "err", err)
		p.m.metrics.RecordPlaybackError(context.Background(), "submit")
		p.m.notifier.PlaybackFailed(p.id, t, perr)
		if errors.Is(err, audio.ErrSinkClosed) {
			p.dropSink()
			p.setIdle()
			return
		}
	}
}

// complete handles a sink completion signal for submission gen.
func (p *guildPlayer) complete(gen uint64, err error) {
	if gen != p.gen || p.state == Idle {
		p.log.Debug("player: ignoring stale completion", "gen", gen, "current_gen", p.gen)
		return
	}
	if err != nil {
		p.log.Warn("player: track ended with error", "title", p.current.Title, "err", err)
		p.m.metrics.RecordPlaybackError(context.Background(), "stream")
		p.m.notifier.PlaybackFailed(p.id, p.current, asPlaybackError(p.current.StreamLocator, err))
	}
	p.advance()
}

func (p *guildPlayer) skip() (track.Track, error) {
	if p.state == Idle {
		return track.Track{}, ErrNothingPlaying
	}
	skipped := p.current
	if err := p.sink.Stop(); err != nil {
		return track.Track{}, fmt.Errorf("player: skip: %w", err)
	}
	p.log.Info("player: skipped", "title", skipped.Title)
	return skipped, nil
}

func (p *guildPlayer) pause() error {
	if p.state != Playing {
		return ErrNothingPlaying
	}
	if err := p.sink.Pause(); err != nil {
		return fmt.Errorf("player: pause: %w", err)
	}
	p.state = Paused
	return nil
}

func (p *guildPlayer) resume() error {
	if p.state != Paused {
		return ErrNothingPaused
	}
	if err := p.sink.Resume(); err != nil {
		return fmt.Errorf("player: resume: %w", err)
	}
	p.state = Playing
	return nil
}

func (p *guildPlayer) stop() (int, error) {
	if p.sink == nil {
		return 0, ErrNotConnected
	}
	dropped := p.m.store.Clear(p.id)
	p.recordDepth()
	p.gen++
	p.setIdle()
	p.disarmIdle()

	sink := p.sink
	p.dropSink()
	err := errors.Join(sink.Stop(), sink.Disconnect())
	if err != nil {
		p.log.Warn("player: stop", "err", err)
	}
	p.log.Info("player: stopped", "dropped", dropped)
	return dropped, nil
}

func (p *guildPlayer) attach(sink audio.Sink) {
	if p.sink == sink {
		return
	}
	if p.sink != nil {
		p.gen++
		old := p.sink
		p.dropSink()
		if err := old.Disconnect(); err != nil {
			p.log.Warn("player: disconnect replaced sink", "err", err)
		}
	} else {
		p.log.Debug("player: sink attached")
	}
	p.sink = sink
	p.m.metrics.ActiveGuilds.Add(context.Background(), 1)
	p.setIdle()
	if p.m.store.Len(p.id) > 0 {
		p.advance()
		return
	}
	p.armIdle()
}

func (p *guildPlayer) detach() {
	if p.sink == nil {
		return
	}
	p.gen++
	sink := p.sink
	p.dropSink()
	p.setIdle()
	p.disarmIdle()
	// The voice link is already gone; only the stream pipeline is left.
	if err := sink.Stop(); err != nil {
		p.log.Debug("player: stop detached sink", "err", err)
	}
	p.log.Info("player: sink detached")
}

func (p *guildPlayer) shutdown() error {
	if p.sink == nil {
		return nil
	}
	p.gen++
	sink := p.sink
	p.dropSink()
	p.setIdle()
	return errors.Join(sink.Stop(), sink.Disconnect())
}

func (p *guildPlayer) status() Status {
	return Status{
		State:     p.state,
		Current:   p.current,
		Queued:    p.m.store.Len(p.id),
		Connected: p.sink != nil,
	}
}

func (p *guildPlayer) setIdle() {
	p.state = Idle
	p.current = track.Track{}
}

func (p *guildPlayer) dropSink() {
	if p.sink == nil {
		return
	}
	p.sink = nil
	p.m.metrics.ActiveGuilds.Add(context.Background(), -1)
}

// armIdle schedules an auto-disconnect for an idle guild.
func (p *guildPlayer) armIdle() {
	d := p.m.idleTimeout()
	if d <= 0 || p.sink == nil {
		return
	}
	p.disarmIdle()
	token := p.idleGen
	p.idleTimer = time.AfterFunc(d, func() {
		p.post(func() { p.idleExpired(token) })
	})
}

func (p *guildPlayer) disarmIdle() {
	p.idleGen++
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
}

func (p *guildPlayer) idleExpired(token uint64) {
	if token != p.idleGen || p.state != Idle || p.sink == nil || p.m.store.Len(p.id) > 0 {
		return
	}
	sink := p.sink
	p.gen++
	p.dropSink()
	if err := sink.Disconnect(); err != nil {
		p.log.Warn("player: idle disconnect", "err", err)
	}
	p.log.Info("player: left voice after idle timeout")
	p.m.notifier.IdleDisconnect(p.id)
}

func (p *guildPlayer) recordDepth() {
	p.m.metrics.RecordQueueDepth(context.Background(), p.id, p.m.store.Len(p.id))
}

func asPlaybackError(locator string, err error) *audio.PlaybackError {
	var perr *audio.PlaybackError
	if errors.As(err, &perr) {
		return perr
	}
	return &audio.PlaybackError{Locator: locator, Err: err}
}
