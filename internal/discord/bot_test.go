package discord

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/jukebox/internal/discord/mock"
)

func TestPermissionChecker_IsDJ(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		djRoleID string
		inter    *discordgo.InteractionCreate
		want     bool
	}{
		{
			name:     "user with DJ role",
			djRoleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{
						Roles: []string{"role-456", "role-123", "role-789"},
					},
				},
			},
			want: true,
		},
		{
			name:     "user without DJ role",
			djRoleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{
						Roles: []string{"role-456", "role-789"},
					},
				},
			},
			want: false,
		},
		{
			name:     "empty DJRoleID allows all",
			djRoleID: "",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{
						Roles: []string{"role-456"},
					},
				},
			},
			want: true,
		},
		{
			name:     "empty DJRoleID allows direct messages",
			djRoleID: "",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "u"}},
			},
			want: true,
		},
		{
			name:     "nil Member returns false",
			djRoleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: nil,
				},
			},
			want: false,
		},
		{
			name:     "user with empty roles",
			djRoleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{
						Roles: []string{},
					},
				},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pc := NewPermissionChecker(tt.djRoleID)
			got := pc.IsDJ(tt.inter)
			if got != tt.want {
				t.Errorf("IsDJ() = %v, want %v", got, tt.want)
			}
		})
	}
}

func command(name string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{Name: name},
	}}
}

func TestNewCommandRouter(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	if r == nil {
		t.Fatal("NewCommandRouter() returned nil")
	}
	if len(r.commands) != 0 {
		t.Errorf("expected empty commands map, got %d entries", len(r.commands))
	}
}

func TestCommandRouter_ApplicationCommandsSorted(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	for _, name := range []string{"skip", "play", "queue"} {
		r.RegisterCommand(&discordgo.ApplicationCommand{Name: name}, func(Responder, *discordgo.InteractionCreate) {})
	}

	cmds := r.ApplicationCommands()
	var names []string
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	if got := strings.Join(names, ","); got != "play,queue,skip" {
		t.Errorf("ApplicationCommands() = %s, want play,queue,skip", got)
	}
}

func TestCommandRouter_ReregisterReplaces(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var calls []string
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "play"}, func(Responder, *discordgo.InteractionCreate) {
		calls = append(calls, "old")
	})
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "play"}, func(Responder, *discordgo.InteractionCreate) {
		calls = append(calls, "new")
	})

	r.Handle(&mock.Session{}, command("play"))

	if len(r.ApplicationCommands()) != 1 {
		t.Errorf("expected 1 command, got %d", len(r.ApplicationCommands()))
	}
	if len(calls) != 1 || calls[0] != "new" {
		t.Errorf("calls = %v, want [new]", calls)
	}
}

func TestCommandRouter_Handle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		interaction *discordgo.InteractionCreate
		wantReply   string
		wantCalled  bool
	}{
		{
			name:        "registered command",
			interaction: command("ping"),
			wantCalled:  true,
		},
		{
			name:        "unknown command",
			interaction: command("nope"),
			wantReply:   "Unknown command.",
		},
		{
			name: "component interaction ignored",
			interaction: &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
				Type: discordgo.InteractionMessageComponent,
				Data: discordgo.MessageComponentInteractionData{CustomID: "x"},
			}},
		},
		{
			name:        "panic recovered",
			interaction: command("boom"),
			wantReply:   "Something went wrong.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			r := NewCommandRouter()
			r.RegisterCommand(&discordgo.ApplicationCommand{Name: "ping"}, func(Responder, *discordgo.InteractionCreate) {
				called = true
			})
			r.RegisterCommand(&discordgo.ApplicationCommand{Name: "boom"}, func(Responder, *discordgo.InteractionCreate) {
				panic("kaboom")
			})

			sess := &mock.Session{}
			r.Handle(sess, tt.interaction)

			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			last := sess.LastResponse()
			if tt.wantReply == "" {
				if last != nil {
					t.Errorf("unexpected response %q", last.Data.Content)
				}
				return
			}
			if last == nil {
				t.Fatal("expected a response")
			}
			if last.Data.Content != tt.wantReply {
				t.Errorf("reply = %q, want %q", last.Data.Content, tt.wantReply)
			}
			if last.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
				t.Error("expected an ephemeral reply")
			}
		})
	}
}

func TestCommandRouter_MiddlewareOrder(t *testing.T) {
	t.Parallel()

	var trace []string
	wrap := func(tag string) Middleware {
		return func(name string, next HandlerFunc) HandlerFunc {
			return func(r Responder, i *discordgo.InteractionCreate) {
				trace = append(trace, tag+":"+name)
				next(r, i)
			}
		}
	}

	r := NewCommandRouter()
	r.Use(wrap("outer"), wrap("inner"))
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "play"}, func(Responder, *discordgo.InteractionCreate) {
		trace = append(trace, "handler")
	})

	r.Handle(&mock.Session{}, command("play"))

	if got := strings.Join(trace, " "); got != "outer:play inner:play handler" {
		t.Errorf("trace = %q", got)
	}
}

func TestRespondHelpers(t *testing.T) {
	t.Parallel()

	sess := &mock.Session{}
	i := command("x")

	Respond(sess, i, "public")
	RespondError(sess, i, errTest("bad"))
	DeferReply(sess, i)
	FollowUp(sess, i, "later")

	resp := sess.Responses()
	if len(resp) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(resp))
	}
	if resp[0].Data.Content != "public" || resp[0].Data.Flags != 0 {
		t.Errorf("Respond = %+v", resp[0].Data)
	}
	if resp[1].Data.Content != "Error: bad" || resp[1].Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Errorf("RespondError = %+v", resp[1].Data)
	}
	if resp[2].Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("DeferReply type = %v", resp[2].Type)
	}
	if f := sess.LastFollowUp(); f == nil || f.Content != "later" {
		t.Errorf("FollowUp = %+v", f)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
