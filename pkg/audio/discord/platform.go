// Package discord provides an [audio.Platform] that plays tracks into Discord
// voice channels via bwmarrin/discordgo.
//
// The platform borrows the bot's *discordgo.Session. [Platform.Connect] joins
// a voice channel and returns a [Sink] that decodes each submitted stream with
// ffmpeg, encodes it to Opus with gopus and sends it on the voice connection.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/jukebox/pkg/audio"
)

var _ audio.Platform = (*Platform)(nil)

// Option configures a [Platform].
type Option func(*Platform)

// WithFFmpegPath sets the ffmpeg binary. Defaults to "ffmpeg" on PATH.
func WithFFmpegPath(path string) Option {
	return func(p *Platform) { p.ffmpegPath = path }
}

// WithStreamOptions sets the decoder options applied to every stream.
func WithStreamOptions(o audio.StreamOptions) Option {
	return func(p *Platform) { p.opts = o }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Platform) { p.log = l }
}

// Platform implements [audio.Platform] on top of a discordgo session.
//
// Platform is safe for concurrent use.
type Platform struct {
	session    *discordgo.Session
	ffmpegPath string
	opts       audio.StreamOptions
	log        *slog.Logger

	mu   sync.Mutex
	live map[string]*Sink
}

// New creates a Platform for session.
func New(session *discordgo.Session, opts ...Option) *Platform {
	p := &Platform{
		session: session,
		opts:    audio.DefaultStreamOptions(),
		log:     slog.Default(),
		live:    make(map[string]*Sink),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect joins channelID in guildID and returns a [Sink] for it. ctx only
// bounds the join; the Sink lives until Disconnect.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Self-deafen: the bot never listens.
	vc, err := p.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	if err := ctx.Err(); err != nil {
		_ = vc.Disconnect()
		return nil, err
	}
	link := voiceLink{
		send:       vc.OpusSend,
		speaking:   vc.Speaking,
		disconnect: vc.Disconnect,
	}
	p.log.Info("discord: joined voice channel", "guild_id", guildID, "channel_id", channelID)
	sink := newSink(guildID, link, ffmpegSource(p.ffmpegPath, p.opts), p.log)
	p.track(guildID, sink)
	return sink, nil
}

// track records sink as the live sink of guildID until it disconnects.
func (p *Platform) track(guildID string, sink *Sink) {
	sink.release = func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.live[guildID] == sink {
			delete(p.live, guildID)
		}
	}
	p.mu.Lock()
	p.live[guildID] = sink
	p.mu.Unlock()
}

// Live reports whether a sink returned by Connect for guildID has not been
// disconnected yet. A voice leave for a live guild was not initiated by the
// sink itself.
func (p *Platform) Live(guildID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.live[guildID]
	return ok
}

// Release disconnects the live sink of guildID, if any.
func (p *Platform) Release(guildID string) error {
	p.mu.Lock()
	sink := p.live[guildID]
	p.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Disconnect()
}
