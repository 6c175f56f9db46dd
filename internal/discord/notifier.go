package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/jukebox/internal/player"
	"github.com/MrWong99/jukebox/pkg/track"
)

// notifyBuffer is the number of announcements waiting to be sent before new
// ones are dropped.
const notifyBuffer = 64

type announcement struct {
	guildID   string
	channelID string
	content   string
}

// Notifier announces playback events in the text channel where playback was
// last requested for each guild. Sends happen on a background goroutine so
// the player's actor never waits on the Discord API.
type Notifier struct {
	sender MessageSender
	log    *slog.Logger

	mu       sync.Mutex
	channels map[string]string
	closed   bool

	queue chan announcement
	done  chan struct{}
}

var _ player.Notifier = (*Notifier)(nil)

// NewNotifier starts a Notifier posting through sender. Call [Notifier.Close]
// to stop it.
func NewNotifier(sender MessageSender, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	n := &Notifier{
		sender:   sender,
		log:      log,
		channels: make(map[string]string),
		queue:    make(chan announcement, notifyBuffer),
		done:     make(chan struct{}),
	}
	go n.run()
	return n
}

// Bind makes channelID the announcement channel of guildID.
func (n *Notifier) Bind(guildID, channelID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels[guildID] = channelID
}

// Close stops the sender goroutine after the queued announcements are sent.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	<-n.done
}

// NowPlaying announces the track that just started.
func (n *Notifier) NowPlaying(guildID string, t track.Track) {
	msg := fmt.Sprintf("Now Playing: **%s**", t.Title)
	if t.Duration > 0 {
		msg += fmt.Sprintf(" (%s)", track.FormatDuration(t.Duration))
	}
	n.post(guildID, msg)
}

// Added is not announced; the /play reply already reports it.
func (n *Notifier) Added(string, []track.Track, int) {}

// PlaybackFailed announces a track that could not be played.
func (n *Notifier) PlaybackFailed(guildID string, t track.Track, _ error) {
	n.post(guildID, fmt.Sprintf("Could not play **%s**, skipping.", t.Title))
}

// QueueFinished announces that the last queued track has ended.
func (n *Notifier) QueueFinished(guildID string) {
	n.post(guildID, "Queue finished.")
}

// IdleDisconnect announces that the bot left voice after the idle timeout.
func (n *Notifier) IdleDisconnect(guildID string) {
	n.post(guildID, "Left the voice channel after being idle.")
}

func (n *Notifier) post(guildID, content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	channelID, ok := n.channels[guildID]
	if !ok || n.closed {
		return
	}
	select {
	case n.queue <- announcement{guildID: guildID, channelID: channelID, content: content}:
	default:
		n.log.Warn("discord: announcement dropped, queue full", "guild_id", guildID)
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for a := range n.queue {
		if _, err := n.sender.ChannelMessageSend(a.channelID, a.content); err != nil {
			n.log.Warn("discord: failed to send announcement",
				"guild_id", a.guildID, "channel_id", a.channelID, "err", err)
		}
	}
}
