// Package mock provides a recording [player.Notifier] for tests.
package mock

import (
	"sync"

	"github.com/MrWong99/jukebox/internal/player"
	"github.com/MrWong99/jukebox/pkg/track"
)

// Event is one recorded notification.
type Event struct {
	Kind    string
	GuildID string
	Title   string
	Count   int
	Skipped int
	Err     error
}

// Recorder is a [player.Notifier] that keeps every event in memory. It is
// safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

var _ player.Notifier = (*Recorder)(nil)

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// NowPlaying implements [player.Notifier].
func (r *Recorder) NowPlaying(guildID string, t track.Track) {
	r.add(Event{Kind: "now_playing", GuildID: guildID, Title: t.Title})
}

// Added implements [player.Notifier].
func (r *Recorder) Added(guildID string, tracks []track.Track, skipped int) {
	title := ""
	if len(tracks) > 0 {
		title = tracks[0].Title
	}
	r.add(Event{Kind: "added", GuildID: guildID, Title: title, Count: len(tracks), Skipped: skipped})
}

// PlaybackFailed implements [player.Notifier].
func (r *Recorder) PlaybackFailed(guildID string, t track.Track, err error) {
	r.add(Event{Kind: "failed", GuildID: guildID, Title: t.Title, Err: err})
}

// QueueFinished implements [player.Notifier].
func (r *Recorder) QueueFinished(guildID string) {
	r.add(Event{Kind: "finished", GuildID: guildID})
}

// IdleDisconnect implements [player.Notifier].
func (r *Recorder) IdleDisconnect(guildID string) {
	r.add(Event{Kind: "idle_disconnect", GuildID: guildID})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded event kinds in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}
