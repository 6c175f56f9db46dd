// Package discord provides the Discord bot layer of the jukebox. It owns
// the discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, checks DJ role permissions and announces playback
// events in text channels.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// ErrNotInVoice is returned by [Bot.UserVoiceChannel] when the user is not
// in a voice channel of the guild.
var ErrNotInVoice = errors.New("discord: user not in a voice channel")

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// GuildID scopes command registration to one guild. Empty registers
	// global commands.
	GuildID string

	// DJRoleID gates playback control commands. Empty allows everyone.
	DJRoleID string
}

// Bot owns the Discord gateway connection and routes interactions to
// registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	perms     *PermissionChecker
	guildID   string
	commands  []*discordgo.ApplicationCommand
	connected atomic.Bool
	closeOnce sync.Once

	voiceLeft func(guildID string)
}

// New creates a Bot and opens the gateway connection.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		perms:   NewPermissionChecker(cfg.DJRoleID),
		guildID: cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
		b.connected.Store(true)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		b.connected.Store(true)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		b.connected.Store(false)
	})
	session.AddHandler(b.onVoiceStateUpdate)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	b.connected.Store(true)
	return b, nil
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// Connected reports whether the gateway connection is up.
func (b *Bot) Connected() bool {
	return b.connected.Load()
}

// OnVoiceLeft sets the function called whenever the bot's voice state in a
// guild becomes empty, including after its own disconnects. Call before Run.
func (b *Bot) OnVoiceLeft(fn func(guildID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.voiceLeft = fn
}

// UserVoiceChannel returns the voice channel userID is connected to in
// guildID, or [ErrNotInVoice].
func (b *Bot) UserVoiceChannel(guildID, userID string) (string, error) {
	vs, err := b.Session().State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", ErrNotInVoice
	}
	return vs.ChannelID, nil
}

// Run registers slash commands and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	s := b.Session()
	appID := s.State.User.ID

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := s.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered), "guild_id", b.guildID)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord. Guild-scoped commands are unregistered;
// global commands are kept.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.guildID != "" && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		b.connected.Store(false)
		slog.Info("discord bot closed")
	})
	return closeErr
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || v.UserID != s.State.User.ID || v.ChannelID != "" {
		return
	}
	// Handlers run unordered; a rejoin may already have landed in the state.
	if vs, err := s.State.VoiceState(v.GuildID, v.UserID); err == nil && vs.ChannelID != "" {
		return
	}
	b.mu.RLock()
	fn := b.voiceLeft
	b.mu.RUnlock()
	if fn != nil {
		fn(v.GuildID)
	}
}
