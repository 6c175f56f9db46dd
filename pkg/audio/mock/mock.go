// Package mock provides in-memory implementations of [audio.Platform] and
// [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// The mock sink never finishes a stream on its own. Tests drive completion
// explicitly with [Sink.Complete], which fires the pending callback on a fresh
// goroutine just like a real sink would:
//
//	sink := &mock.Sink{}
//	_ = sink.Submit("https://media/a", func(err error) { ... })
//	sink.Complete(nil) // callback runs on another goroutine
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/jukebox/pkg/audio"
)

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.Sink].
// Set the exported error fields before use; inspect the recorded calls after.
type Sink struct {
	mu sync.Mutex

	// SubmitError is returned by Submit when non-nil.
	SubmitError error

	// StopError is returned by Stop.
	StopError error

	// DisconnectError is returned by Disconnect.
	DisconnectError error

	// Submitted records the locator of every accepted Submit call, in order.
	Submitted []string

	// BusyRejects counts Submit calls rejected because a stream was active.
	BusyRejects int

	// CallCountStop, CallCountPause, CallCountResume and
	// CallCountDisconnect record how many times each method was called.
	CallCountStop       int
	CallCountPause      int
	CallCountResume     int
	CallCountDisconnect int

	pending      func(error)
	paused       bool
	disconnected bool
	wg           sync.WaitGroup
}

var _ audio.Sink = (*Sink)(nil)

// Submit implements [audio.Sink].
func (s *Sink) Submit(locator string, onComplete func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		return audio.ErrSinkClosed
	}
	if s.SubmitError != nil {
		return s.SubmitError
	}
	if s.pending != nil {
		s.BusyRejects++
		return audio.ErrSinkBusy
	}
	s.Submitted = append(s.Submitted, locator)
	s.pending = onComplete
	s.paused = false
	return nil
}

// Stop implements [audio.Sink]. A pending stream completes with nil.
func (s *Sink) Stop() error {
	s.mu.Lock()
	s.CallCountStop++
	err := s.StopError
	s.mu.Unlock()
	s.Complete(nil)
	return err
}

// Pause implements [audio.Sink].
func (s *Sink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPause++
	if s.pending == nil {
		return audio.ErrNotPlaying
	}
	s.paused = true
	return nil
}

// Resume implements [audio.Sink].
func (s *Sink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountResume++
	if s.pending == nil {
		return audio.ErrNotPlaying
	}
	s.paused = false
	return nil
}

// IsPlaying implements [audio.Sink].
func (s *Sink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil && !s.paused
}

// IsPaused implements [audio.Sink].
func (s *Sink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil && s.paused
}

// Disconnect implements [audio.Sink]. A pending stream completes with nil.
func (s *Sink) Disconnect() error {
	s.mu.Lock()
	s.CallCountDisconnect++
	s.disconnected = true
	err := s.DisconnectError
	s.mu.Unlock()
	s.Complete(nil)
	return err
}

// Complete finishes the active stream with err, invoking its callback on a new
// goroutine. It reports whether a stream was active.
func (s *Sink) Complete(err error) bool {
	s.mu.Lock()
	cb := s.pending
	s.pending = nil
	s.paused = false
	if cb != nil {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if cb == nil {
		return false
	}
	go func() {
		defer s.wg.Done()
		cb(err)
	}()
	return true
}

// Fire invokes cb on a new goroutine without touching sink state. Use it to
// simulate a late, duplicated completion signal for a stream the sink has
// already forgotten.
func (s *Sink) Fire(cb func(error), err error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		cb(err)
	}()
}

// Pending returns the callback of the active stream without completing it,
// or nil when idle. Pair it with [Sink.Fire] to replay a stale signal later.
func (s *Sink) Pending() func(error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Wait blocks until every callback started by Complete or Fire has returned.
func (s *Sink) Wait() {
	s.wg.Wait()
}

// Active reports whether a stream is pending completion.
func (s *Sink) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Locators returns a copy of Submitted.
func (s *Sink) Locators() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Submitted))
	copy(out, s.Submitted)
	return out
}

// Disconnected reports whether Disconnect has been called.
func (s *Sink) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// Counts returns a consistent snapshot of the call counters.
func (s *Sink) Counts() (stop, pause, resume, disconnect int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountStop, s.CallCountPause, s.CallCountResume, s.CallCountDisconnect
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	// GuildID is the guildID argument passed to Connect.
	GuildID string

	// ChannelID is the channelID argument passed to Connect.
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is the [audio.Sink] returned by Connect. When nil, a new
	// [Sink] is created for every call and appended to Sinks.
	ConnectResult audio.Sink

	// ConnectError is the error returned by Connect.
	ConnectError error

	// ConnectDelay is slept (honouring ctx) before Connect answers, like a
	// slow voice handshake.
	ConnectDelay time.Duration

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall

	// Sinks holds the sinks created when ConnectResult is nil.
	Sinks []*Sink
}

var _ audio.Platform = (*Platform)(nil)

// Connect implements [audio.Platform].
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Sink, error) {
	p.mu.Lock()
	delay := p.ConnectDelay
	p.mu.Unlock()
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{GuildID: guildID, ChannelID: channelID})
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	if p.ConnectResult != nil {
		return p.ConnectResult, nil
	}
	s := &Sink{}
	p.Sinks = append(p.Sinks, s)
	return s, nil
}

// Calls returns a copy of ConnectCalls.
func (p *Platform) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}
