// Package player sequences playback for every guild.
//
// A [Manager] owns one actor per guild. Each actor is a single goroutine that
// drains a mailbox; every state change of the guild (current track, sink,
// pause state, advancing to the next queued track) runs on that goroutine, so
// two advances for the same guild can never overlap. Guilds never share an
// actor, so a slow guild cannot stall another.
//
// Completion signals from the sink are posted into the mailbox tagged with
// the generation of the submission they belong to. Stop, Detach and every new
// submission bump the generation, which turns any late signal for an older
// submission into a no-op.
//
// Query resolution runs on the caller's goroutine before anything is posted
// to the actor.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/jukebox/internal/observe"
	"github.com/MrWong99/jukebox/internal/queue"
	"github.com/MrWong99/jukebox/pkg/audio"
	"github.com/MrWong99/jukebox/pkg/resolve"
	"github.com/MrWong99/jukebox/pkg/track"
)

// Precondition errors returned by [Manager] operations. They are
// informational and never indicate a broken player.
var (
	ErrNotConnected   = errors.New("player: not connected to a voice channel")
	ErrNothingPlaying = errors.New("player: nothing is playing")
	ErrNothingPaused  = errors.New("player: nothing is paused")
	ErrQueueEmpty     = errors.New("player: queue is empty")
	ErrClosed         = errors.New("player: manager is closed")
)

// enqueueTimeout bounds the wait for a guild's mailbox after a resolution.
const enqueueTimeout = 5 * time.Second

// State is the playback state of a guild.
type State int

const (
	Idle State = iota
	Playing
	Paused
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Status is a snapshot of a guild's playback.
type Status struct {
	State State

	// Current is the active track. Zero when State is Idle.
	Current track.Track

	// Queued is the number of tracks waiting after Current.
	Queued int

	// Connected reports whether a sink is attached.
	Connected bool
}

// PlayRequest asks the manager to resolve and enqueue a query.
type PlayRequest struct {
	Query       string
	RequestedBy string
	Mode        resolve.Mode
}

// Enqueued describes the outcome of a successful [Manager.Play].
type Enqueued struct {
	// Tracks are the appended tracks in queue order.
	Tracks []track.Track

	// Skipped counts batch entries that had no playable stream.
	Skipped int

	// Position is the 1-based queue position of the first appended track,
	// or 0 when it started playing immediately.
	Position int
}

// Config holds the dependencies of a [Manager].
type Config struct {
	// Store holds the guild queues. Required.
	Store *queue.Store

	// Resolver turns queries into tracks. Required for [Manager.Play].
	Resolver resolve.Resolver

	// Notifier receives playback events. Optional.
	Notifier Notifier

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// IdleTimeout disconnects a sink that has been idle with an empty queue
	// for this long. Zero disables it.
	IdleTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manager routes operations to per-guild actors. It is safe for concurrent
// use.
type Manager struct {
	store    *queue.Store
	resolver resolve.Resolver
	notifier Notifier
	metrics  *observe.Metrics
	log      *slog.Logger
	idle     atomic.Int64

	mu      sync.Mutex
	players map[string]*guildPlayer
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.Store == nil {
		cfg.Store = queue.NewStore()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &Manager{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		players:  make(map[string]*guildPlayer),
	}
	m.idle.Store(int64(cfg.IdleTimeout))
	return m
}

// SetIdleTimeout changes the idle auto-leave delay. It applies the next time
// a guild becomes idle.
func (m *Manager) SetIdleTimeout(d time.Duration) {
	m.idle.Store(int64(d))
}

func (m *Manager) idleTimeout() time.Duration {
	return time.Duration(m.idle.Load())
}

// player returns the actor for guildID, starting it on first use.
func (m *Manager) player(guildID string) (*guildPlayer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	p, ok := m.players[guildID]
	if !ok {
		p = newGuildPlayer(m, guildID)
		m.players[guildID] = p
		m.wg.Add(1)
		go p.run()
	}
	return p, nil
}

// call runs fn on the guild's actor and waits for its result. ctx only
// bounds the wait for a mailbox slot: once fn is posted its result is always
// returned, so a caller never reports failure for a change that was applied.
func call[R any](ctx context.Context, m *Manager, guildID string, fn func(p *guildPlayer) (R, error)) (R, error) {
	var zero R
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	p, err := m.player(guildID)
	if err != nil {
		return zero, err
	}
	type result struct {
		v   R
		err error
	}
	reply := make(chan result, 1)
	job := func() {
		v, err := fn(p)
		reply <- result{v, err}
	}
	select {
	case p.mailbox <- job:
	case <-p.quit:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.v, r.err
	case <-p.quit:
		return zero, ErrClosed
	}
}

// Play resolves req.Query and appends the result to the guild queue. Playback
// starts immediately when the guild is idle and a sink is attached.
func (m *Manager) Play(ctx context.Context, guildID string, req PlayRequest) (Enqueued, error) {
	if m.resolver == nil {
		return Enqueued{}, fmt.Errorf("player: no resolver configured")
	}
	ctx, span := observe.StartSpan(ctx, "player.Play")
	defer span.End()

	start := time.Now()
	res, err := resolve.Select(ctx, m.resolver, req.Query, req.Mode)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.metrics.RecordResolution(ctx, req.Mode.String(), status, time.Since(start))
	if err != nil {
		observe.FailSpan(span, err)
		observe.Logger(ctx).Info("player: resolution failed",
			"guild_id", guildID, "query", req.Query, "cause", resolve.Cause(err))
		return Enqueued{}, err
	}
	if res.Skipped > 0 {
		m.metrics.TracksSkipped.Add(ctx, int64(res.Skipped))
	}

	tracks := res.Tracks
	for i := range tracks {
		tracks[i].RequestedBy = req.RequestedBy
	}
	// Resolution may have used up ctx; appending what it found gets its own
	// budget.
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	out, err := m.enqueue(ectx, guildID, tracks, res.Skipped)
	if err != nil {
		return Enqueued{}, err
	}
	return out, nil
}

// Enqueue appends already-resolved tracks as one atomic batch. Tracks without
// a stream locator are dropped and counted as skipped.
func (m *Manager) Enqueue(ctx context.Context, guildID string, tracks ...track.Track) (Enqueued, error) {
	kept := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Playable() {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return Enqueued{Skipped: len(tracks)}, nil
	}
	return m.enqueue(ctx, guildID, kept, len(tracks)-len(kept))
}

func (m *Manager) enqueue(ctx context.Context, guildID string, tracks []track.Track, skipped int) (Enqueued, error) {
	out, err := call(ctx, m, guildID, func(p *guildPlayer) (Enqueued, error) {
		return p.enqueue(tracks, skipped), nil
	})
	if err != nil {
		return Enqueued{}, err
	}
	m.metrics.TracksQueued.Add(ctx, int64(len(tracks)))
	return out, nil
}

// Skip ends the current track. The next queued track starts through the
// regular completion path. It returns the skipped track.
func (m *Manager) Skip(ctx context.Context, guildID string) (track.Track, error) {
	return call(ctx, m, guildID, (*guildPlayer).skip)
}

// Pause pauses the current track.
func (m *Manager) Pause(ctx context.Context, guildID string) error {
	_, err := call(ctx, m, guildID, func(p *guildPlayer) (struct{}, error) {
		return struct{}{}, p.pause()
	})
	return err
}

// Resume continues a paused track.
func (m *Manager) Resume(ctx context.Context, guildID string) error {
	_, err := call(ctx, m, guildID, func(p *guildPlayer) (struct{}, error) {
		return struct{}{}, p.resume()
	})
	return err
}

// Stop clears the queue, ends the current track without advancing and
// disconnects the sink. It returns how many queued tracks were dropped.
func (m *Manager) Stop(ctx context.Context, guildID string) (int, error) {
	return call(ctx, m, guildID, (*guildPlayer).stop)
}

// ListQueue returns the waiting tracks in play order.
func (m *Manager) ListQueue(_ context.Context, guildID string) ([]track.Track, error) {
	ts := m.store.PeekAll(guildID)
	if len(ts) == 0 {
		return nil, ErrQueueEmpty
	}
	return ts, nil
}

// NowPlaying returns the guild's playback status.
func (m *Manager) NowPlaying(ctx context.Context, guildID string) (Status, error) {
	return call(ctx, m, guildID, func(p *guildPlayer) (Status, error) {
		return p.status(), nil
	})
}

// Attach binds sink to the guild, replacing and disconnecting any previous
// sink. Queued tracks start playing if the guild was idle.
func (m *Manager) Attach(ctx context.Context, guildID string, sink audio.Sink) error {
	_, err := call(ctx, m, guildID, func(p *guildPlayer) (struct{}, error) {
		p.attach(sink)
		return struct{}{}, nil
	})
	return err
}

// EnsureSink attaches the sink returned by connect unless the guild already
// has one. connect runs on the guild's actor, so concurrent callers join the
// voice channel once and later ones see the attached sink. It reports whether
// a new sink was attached.
func (m *Manager) EnsureSink(ctx context.Context, guildID string, connect func(context.Context) (audio.Sink, error)) (bool, error) {
	return call(ctx, m, guildID, func(p *guildPlayer) (bool, error) {
		if p.sink != nil {
			return false, nil
		}
		sink, err := connect(ctx)
		if err != nil {
			return false, err
		}
		p.attach(sink)
		return true, nil
	})
}

// Detach drops the guild's sink after an external voice disconnect. The
// queue is kept; the current track is abandoned.
func (m *Manager) Detach(ctx context.Context, guildID string) error {
	_, err := call(ctx, m, guildID, func(p *guildPlayer) (struct{}, error) {
		p.detach()
		return struct{}{}, nil
	})
	return err
}

// Connected reports whether the guild has a sink attached.
func (m *Manager) Connected(ctx context.Context, guildID string) (bool, error) {
	return call(ctx, m, guildID, func(p *guildPlayer) (bool, error) {
		return p.sink != nil, nil
	})
}

// ActiveGuilds returns the number of guilds with a running actor.
func (m *Manager) ActiveGuilds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.players)
}

// Close disconnects every sink and stops all actors. Guilds still waiting
// when ctx expires are stopped without disconnecting their sink and are
// reported in the returned error. It is safe to call more than once.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	players := make([]*guildPlayer, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	var errs []error
	for _, p := range players {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", p.id, err))
			close(p.quit)
			continue
		}
		reply := make(chan error, 1)
		select {
		case p.mailbox <- func() { reply <- p.shutdown() }:
			select {
			case err := <-reply:
				if err != nil {
					errs = append(errs, fmt.Errorf("guild %s: %w", p.id, err))
				}
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("guild %s: %w", p.id, ctx.Err()))
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("guild %s: %w", p.id, ctx.Err()))
		}
		close(p.quit)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
