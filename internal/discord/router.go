package discord

import (
	"cmp"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc is the signature for slash command handlers.
type HandlerFunc func(r Responder, i *discordgo.InteractionCreate)

// Middleware wraps a handler, e.g. for logging or access checks.
type Middleware func(name string, next HandlerFunc) HandlerFunc

type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches slash command interactions to registered handlers.
type CommandRouter struct {
	mu         sync.RWMutex
	commands   map[string]commandEntry
	middleware []Middleware
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{commands: make(map[string]commandEntry)}
}

// Use appends middleware applied to handlers registered afterwards. The first
// middleware added is the outermost.
func (r *CommandRouter) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// RegisterCommand registers cmd and its handler under cmd.Name.
func (r *CommandRouter) RegisterCommand(cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](cmd.Name, handler)
	}
	r.commands[cmd.Name] = commandEntry{command: cmd, handler: handler}
}

// ApplicationCommands returns the registered definitions sorted by name.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, entry := range r.commands {
		cmds = append(cmds, entry.command)
	}
	slices.SortFunc(cmds, func(a, b *discordgo.ApplicationCommand) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return cmds
}

// Handle dispatches an interaction. Non-command interactions are ignored.
// A panicking handler is logged and answered with a generic error.
func (r *CommandRouter) Handle(resp Responder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
		return
	}
	name := i.ApplicationCommandData().Name

	r.mu.RLock()
	entry, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("discord: unknown command", "name", name)
		RespondEphemeral(resp, i, "Unknown command.")
		return
	}

	defer func() {
		if v := recover(); v != nil {
			slog.Error("discord: command handler panicked",
				"name", name, "panic", v, "stack", string(debug.Stack()))
			RespondEphemeral(resp, i, "Something went wrong.")
		}
	}()
	entry.handler(resp, i)
}
