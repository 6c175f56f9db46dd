// Package commands implements the jukebox slash commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/jukebox/internal/discord"
	"github.com/MrWong99/jukebox/internal/observe"
	"github.com/MrWong99/jukebox/internal/player"
	"github.com/MrWong99/jukebox/pkg/audio"
	"github.com/MrWong99/jukebox/pkg/resolve"
	"github.com/MrWong99/jukebox/pkg/track"
)

const (
	// queuePreview is the number of upcoming tracks listed by /queue.
	queuePreview = 10

	// voiceJoinTimeout bounds joining the caller's voice channel.
	voiceJoinTimeout = 15 * time.Second
)

// Player is the playback surface the commands drive. [*player.Manager]
// implements it.
type Player interface {
	Play(ctx context.Context, guildID string, req player.PlayRequest) (player.Enqueued, error)
	Skip(ctx context.Context, guildID string) (track.Track, error)
	Pause(ctx context.Context, guildID string) error
	Resume(ctx context.Context, guildID string) error
	Stop(ctx context.Context, guildID string) (int, error)
	ListQueue(ctx context.Context, guildID string) ([]track.Track, error)
	NowPlaying(ctx context.Context, guildID string) (player.Status, error)
	EnsureSink(ctx context.Context, guildID string, connect func(context.Context) (audio.Sink, error)) (bool, error)
}

// VoiceLocator finds the voice channel a user is in. [*discord.Bot]
// implements it.
type VoiceLocator interface {
	UserVoiceChannel(guildID, userID string) (string, error)
}

// ChannelBinder remembers where to announce playback for a guild.
// [*discord.Notifier] implements it.
type ChannelBinder interface {
	Bind(guildID, channelID string)
}

// MusicConfig holds the dependencies of [MusicCommands].
type MusicConfig struct {
	Player   Player
	Platform audio.Platform
	Voice    VoiceLocator
	Perms    *discord.PermissionChecker

	// Announcer is optional.
	Announcer ChannelBinder

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Timeout bounds resolving a /play query. Joining voice has its own
	// budget. Defaults to one minute.
	Timeout time.Duration
}

// MusicCommands implements /play, /skip, /pause, /resume, /stop, /queue and
// /nowplaying.
type MusicCommands struct {
	player    Player
	platform  audio.Platform
	voice     VoiceLocator
	perms     *discord.PermissionChecker
	announcer ChannelBinder
	metrics   *observe.Metrics
	timeout   time.Duration
}

// NewMusicCommands creates the music command set.
func NewMusicCommands(cfg MusicConfig) *MusicCommands {
	if cfg.Perms == nil {
		cfg.Perms = discord.NewPermissionChecker("")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &MusicCommands{
		player:    cfg.Player,
		platform:  cfg.Platform,
		voice:     cfg.Voice,
		perms:     cfg.Perms,
		announcer: cfg.Announcer,
		metrics:   cfg.Metrics,
		timeout:   cfg.Timeout,
	}
}

// Register adds every music command to router.
func (mc *MusicCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "play",
		Description: "Play a song or playlist by name or link",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Search terms or a YouTube, SoundCloud or Spotify link",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "all",
				Description: "Queue every result instead of only the first",
			},
		},
	}, mc.handlePlay)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "skip",
		Description: "Skip the current track",
	}, mc.handleSkip)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "pause",
		Description: "Pause playback",
	}, mc.handlePause)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "resume",
		Description: "Resume paused playback",
	}, mc.handleResume)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "stop",
		Description: "Stop playback, clear the queue and leave the voice channel",
	}, mc.handleStop)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "queue",
		Description: "Show the upcoming tracks",
	}, mc.handleQueue)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "nowplaying",
		Description: "Show the current track",
	}, mc.handleNowPlaying)
}

func (mc *MusicCommands) handlePlay(r discord.Responder, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	if i.GuildID == "" {
		mc.done(ctx, "play", "rejected")
		discord.RespondEphemeral(r, i, "This command only works in a server.")
		return
	}
	query, all := playOptions(i.ApplicationCommandData().Options)
	if query == "" {
		mc.done(ctx, "play", "rejected")
		discord.RespondEphemeral(r, i, "Tell me what to play.")
		return
	}

	userID := interactionUserID(i)
	channelID, err := mc.voice.UserVoiceChannel(i.GuildID, userID)
	if err != nil {
		mc.done(ctx, "play", "rejected")
		discord.RespondEphemeral(r, i, "Join a voice channel first.")
		return
	}

	discord.DeferReply(r, i)

	if err := mc.ensureVoice(ctx, i.GuildID, channelID); err != nil {
		mc.done(ctx, "play", "error")
		observe.Logger(ctx).Warn("commands: join voice failed",
			"guild_id", i.GuildID, "channel_id", channelID, "err", err)
		discord.FollowUp(r, i, "I could not join your voice channel.")
		return
	}
	if mc.announcer != nil {
		mc.announcer.Bind(i.GuildID, i.ChannelID)
	}

	mode := resolve.Single
	if all || resolve.IsCollection(query) {
		mode = resolve.Batch
	}
	rctx, cancel := context.WithTimeout(ctx, mc.timeout)
	defer cancel()
	res, err := mc.player.Play(rctx, i.GuildID, player.PlayRequest{
		Query:       query,
		RequestedBy: userID,
		Mode:        mode,
	})
	switch {
	case errors.Is(err, resolve.ErrResolutionFailed):
		mc.done(ctx, "play", "not_found")
		discord.FollowUp(r, i, fmt.Sprintf("Nothing playable found for **%s** (%s).", query, resolve.Cause(err)))
		return
	case err != nil:
		mc.done(ctx, "play", "error")
		discord.FollowUp(r, i, fmt.Sprintf("Error: %v", err))
		return
	}

	mc.done(ctx, "play", "ok")
	discord.FollowUp(r, i, addedMessage(res))
}

// ensureVoice joins channelID unless the guild already has a sink. The join
// runs on the guild's actor, so simultaneous requests share one connection.
func (mc *MusicCommands) ensureVoice(ctx context.Context, guildID, channelID string) error {
	ctx, cancel := context.WithTimeout(ctx, voiceJoinTimeout)
	defer cancel()
	_, err := mc.player.EnsureSink(ctx, guildID, func(ctx context.Context) (audio.Sink, error) {
		return mc.platform.Connect(ctx, guildID, channelID)
	})
	return err
}

func (mc *MusicCommands) handleSkip(r discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := mc.control(r, i, "skip")
	if ctx == nil {
		return
	}
	defer cancel()

	t, err := mc.player.Skip(ctx, i.GuildID)
	if mc.failed(ctx, r, i, "skip", err) {
		return
	}
	mc.done(ctx, "skip", "ok")
	discord.Respond(r, i, fmt.Sprintf("Skipped **%s**.", t.Title))
}

func (mc *MusicCommands) handlePause(r discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := mc.control(r, i, "pause")
	if ctx == nil {
		return
	}
	defer cancel()

	if mc.failed(ctx, r, i, "pause", mc.player.Pause(ctx, i.GuildID)) {
		return
	}
	mc.done(ctx, "pause", "ok")
	discord.Respond(r, i, "Paused.")
}

func (mc *MusicCommands) handleResume(r discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := mc.control(r, i, "resume")
	if ctx == nil {
		return
	}
	defer cancel()

	if mc.failed(ctx, r, i, "resume", mc.player.Resume(ctx, i.GuildID)) {
		return
	}
	mc.done(ctx, "resume", "ok")
	discord.Respond(r, i, "Resumed.")
}

func (mc *MusicCommands) handleStop(r discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := mc.control(r, i, "stop")
	if ctx == nil {
		return
	}
	defer cancel()

	n, err := mc.player.Stop(ctx, i.GuildID)
	if mc.failed(ctx, r, i, "stop", err) {
		return
	}
	mc.done(ctx, "stop", "ok")
	if n == 0 {
		discord.Respond(r, i, "Stopped.")
		return
	}
	discord.Respond(r, i, fmt.Sprintf("Stopped and cleared %d queued %s.", n, plural(n, "track", "tracks")))
}

func (mc *MusicCommands) handleQueue(r discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !guildOnly(r, i) {
		return
	}

	st, err := mc.player.NowPlaying(ctx, i.GuildID)
	if err != nil {
		mc.done(ctx, "queue", "error")
		discord.RespondError(r, i, err)
		return
	}
	queued, err := mc.player.ListQueue(ctx, i.GuildID)
	if err != nil && !errors.Is(err, player.ErrQueueEmpty) {
		mc.done(ctx, "queue", "error")
		discord.RespondError(r, i, err)
		return
	}
	mc.done(ctx, "queue", "ok")

	if st.State == player.Idle && len(queued) == 0 {
		discord.Respond(r, i, "The queue is empty.")
		return
	}
	discord.Respond(r, i, queueMessage(st, queued))
}

func (mc *MusicCommands) handleNowPlaying(r discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !guildOnly(r, i) {
		return
	}

	st, err := mc.player.NowPlaying(ctx, i.GuildID)
	if err != nil {
		mc.done(ctx, "nowplaying", "error")
		discord.RespondError(r, i, err)
		return
	}
	mc.done(ctx, "nowplaying", "ok")
	if st.State == player.Idle {
		discord.Respond(r, i, "Nothing is playing.")
		return
	}
	discord.Respond(r, i, nowPlayingLine(st))
}

// control performs the checks shared by the playback control commands. It
// returns a nil context after it has already answered the interaction.
func (mc *MusicCommands) control(r discord.Responder, i *discordgo.InteractionCreate, name string) (context.Context, context.CancelFunc) {
	if !guildOnly(r, i) {
		return nil, nil
	}
	if !mc.perms.IsDJ(i) {
		mc.done(context.Background(), name, "forbidden")
		discord.RespondEphemeral(r, i, "You need the DJ role to do that.")
		return nil, nil
	}
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// failed answers precondition errors with a friendly message. It reports
// whether err was non-nil.
func (mc *MusicCommands) failed(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate, name string, err error) bool {
	if err == nil {
		return false
	}
	msg, ok := friendly(err)
	if !ok {
		mc.done(ctx, name, "error")
		slog.Warn("commands: playback control failed", "command", name, "guild_id", i.GuildID, "err", err)
		discord.RespondError(r, i, err)
		return true
	}
	mc.done(ctx, name, "rejected")
	discord.RespondEphemeral(r, i, msg)
	return true
}

func (mc *MusicCommands) done(ctx context.Context, name, status string) {
	mc.metrics.RecordCommand(ctx, name, status)
}

func friendly(err error) (string, bool) {
	switch {
	case errors.Is(err, player.ErrNothingPlaying):
		return "Nothing is playing.", true
	case errors.Is(err, player.ErrNothingPaused):
		return "Nothing is paused.", true
	case errors.Is(err, player.ErrNotConnected):
		return "I'm not in a voice channel.", true
	case errors.Is(err, player.ErrQueueEmpty):
		return "The queue is empty.", true
	}
	return "", false
}

func guildOnly(r discord.Responder, i *discordgo.InteractionCreate) bool {
	if i.GuildID == "" {
		discord.RespondEphemeral(r, i, "This command only works in a server.")
		return false
	}
	return true
}

func playOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) (query string, all bool) {
	for _, opt := range opts {
		switch opt.Name {
		case "query":
			query = strings.TrimSpace(opt.StringValue())
		case "all":
			all = opt.BoolValue()
		}
	}
	return query, all
}

func addedMessage(res player.Enqueued) string {
	if len(res.Tracks) == 1 && res.Skipped == 0 {
		msg := fmt.Sprintf("Added: **%s**", res.Tracks[0].Title)
		if res.Position > 0 {
			msg += fmt.Sprintf(" (position %d)", res.Position)
		}
		return msg
	}
	msg := fmt.Sprintf("Added %d %s", len(res.Tracks), plural(len(res.Tracks), "track", "tracks"))
	if res.Skipped > 0 {
		msg += fmt.Sprintf(" (%d skipped)", res.Skipped)
	}
	return msg
}

func nowPlayingLine(st player.Status) string {
	line := fmt.Sprintf("Now Playing: **%s**", st.Current.Title)
	if st.Current.Duration > 0 {
		line += " (" + track.FormatDuration(st.Current.Duration) + ")"
	}
	if st.State == player.Paused {
		line += " [paused]"
	}
	if st.Queued > 0 {
		line += fmt.Sprintf("\n%d more in the queue.", st.Queued)
	}
	return line
}

func queueMessage(st player.Status, queued []track.Track) string {
	var b strings.Builder
	if st.State != player.Idle {
		fmt.Fprintf(&b, "Now Playing: **%s**", st.Current.Title)
		if st.State == player.Paused {
			b.WriteString(" [paused]")
		}
		b.WriteString("\n")
	}
	if len(queued) == 0 {
		b.WriteString("Nothing queued after this.")
		return b.String()
	}
	b.WriteString("Up next:\n")
	for n, t := range queued {
		if n == queuePreview {
			fmt.Fprintf(&b, "...and %d more", len(queued)-queuePreview)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", n+1, t)
	}
	return strings.TrimRight(b.String(), "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// interactionUserID extracts the user ID from an interaction, handling both
// guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
