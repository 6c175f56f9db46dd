package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/jukebox/internal/app"
	"github.com/MrWong99/jukebox/internal/config"
	"github.com/MrWong99/jukebox/internal/discord"
	discordmock "github.com/MrWong99/jukebox/internal/discord/mock"
	"github.com/MrWong99/jukebox/internal/observe"
	"github.com/MrWong99/jukebox/pkg/audio"
	audiomock "github.com/MrWong99/jukebox/pkg/audio/mock"
	resolvemock "github.com/MrWong99/jukebox/pkg/resolve/mock"
	"github.com/MrWong99/jukebox/pkg/track"
)

// ─── doubles ─────────────────────────────────────────────────────────────────

type fakeBot struct {
	router *discord.CommandRouter
	perms  *discord.PermissionChecker

	mu        sync.Mutex
	voiceLeft func(string)
	closed    int
}

func newFakeBot() *fakeBot {
	return &fakeBot{router: discord.NewCommandRouter(), perms: discord.NewPermissionChecker("")}
}

func (b *fakeBot) Router() *discord.CommandRouter { return b.router }

func (b *fakeBot) Permissions() *discord.PermissionChecker { return b.perms }

func (b *fakeBot) Connected() bool { return true }

func (b *fakeBot) UserVoiceChannel(string, string) (string, error) { return "voice-1", nil }

func (b *fakeBot) OnVoiceLeft(fn func(string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.voiceLeft = fn
}

func (b *fakeBot) leave(guildID string) {
	b.mu.Lock()
	fn := b.voiceLeft
	b.mu.Unlock()
	fn(guildID)
}

func (b *fakeBot) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBot) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

// livePlatform adds live sink tracking to the audio mock.
type livePlatform struct {
	audiomock.Platform

	mu       sync.Mutex
	live     map[string]audio.Sink
	released []string
}

func (p *livePlatform) Connect(ctx context.Context, guildID, channelID string) (audio.Sink, error) {
	s, err := p.Platform.Connect(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live == nil {
		p.live = make(map[string]audio.Sink)
	}
	p.live[guildID] = s
	return s, nil
}

func (p *livePlatform) Live(guildID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.live[guildID]
	return ok
}

func (p *livePlatform) Release(guildID string) error {
	p.mu.Lock()
	s := p.live[guildID]
	delete(p.live, guildID)
	p.released = append(p.released, guildID)
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Disconnect()
}

func (p *livePlatform) Released() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.released...)
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func testConfig() *config.Config {
	cfg := &config.Config{
		Discord: config.DiscordConfig{Token: "token"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

type fixture struct {
	app      *app.App
	bot      *fakeBot
	platform *livePlatform
	session  *discordmock.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	met, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	f := &fixture{
		bot:      newFakeBot(),
		platform: &livePlatform{},
		session:  &discordmock.Session{},
	}
	resolver := &resolvemock.Resolver{Default: func(q string) []track.Track {
		return []track.Track{{StreamLocator: "https://media/" + q, Title: q}}
	}}
	f.app, err = app.New(context.Background(), testConfig(), &app.Providers{
		Resolver: resolver,
		Audio:    f.platform,
		Bot:      f.bot,
		Messages: f.session,
	}, app.WithMetrics(met))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.app.Shutdown(ctx)
	})
	return f
}

func (f *fixture) play(t *testing.T, query string) {
	t.Helper()
	f.bot.router.Handle(f.session, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "text-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "play",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: query,
			}},
		},
	}})
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(), &app.Providers{Bot: newFakeBot()})
	if err == nil {
		t.Fatal("expected an error without resolver and audio platform")
	}
}

func TestNew_RegistersMusicCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var names []string
	for _, c := range f.bot.router.ApplicationCommands() {
		names = append(names, c.Name)
	}
	want := []string{"nowplaying", "pause", "play", "queue", "resume", "skip", "stop"}
	if len(names) != len(want) {
		t.Fatalf("commands = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("commands[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestPlay_AnnouncesInRequestChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.play(t, "song")

	st, err := f.app.Manager().NowPlaying(context.Background(), "g1")
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if st.Current.Title != "song" {
		t.Fatalf("current = %q, want song", st.Current.Title)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.session.Messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	msgs := f.session.Messages()
	if len(msgs) == 0 || msgs[0].ChannelID != "text-1" || msgs[0].Content != "Now Playing: **song**" {
		t.Errorf("announcements = %+v", msgs)
	}
}

func TestVoiceLeft_ExternalDisconnectKeepsQueue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.play(t, "a")
	f.play(t, "b")

	f.bot.leave("g1")

	connected, err := f.app.Manager().Connected(ctx, "g1")
	if err != nil {
		t.Fatalf("Connected: %v", err)
	}
	if connected {
		t.Error("sink should be detached")
	}
	if got := f.platform.Released(); len(got) != 1 || got[0] != "g1" {
		t.Errorf("released = %v, want [g1]", got)
	}
	queued, err := f.app.Manager().ListQueue(ctx, "g1")
	if err != nil || len(queued) != 1 || queued[0].Title != "b" {
		t.Errorf("queue = %v, %v; want [b]", queued, err)
	}

	// A new /play reconnects and resumes the kept queue.
	f.play(t, "c")
	if n := len(f.platform.Calls()); n != 2 {
		t.Errorf("connect calls = %d, want 2", n)
	}
	st, _ := f.app.Manager().NowPlaying(ctx, "g1")
	if st.Current.Title != "b" {
		t.Errorf("current = %q, want b", st.Current.Title)
	}
}

func TestVoiceLeft_IgnoresOwnDisconnects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.bot.leave("g-unknown")

	if got := f.platform.Released(); len(got) != 0 {
		t.Errorf("released = %v, want none", got)
	}
}

func TestApply_IdleTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	old := testConfig()
	next := testConfig()
	next.Playback.IdleTimeout = 50 * time.Millisecond
	f.app.Apply(config.Diff(old, next))

	f.play(t, "a")
	sink := f.platform.Sinks[0]
	sink.Complete(nil)

	deadline := time.Now().Add(2 * time.Second)
	for !sink.Disconnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !sink.Disconnected() {
		t.Error("idle sink should have been disconnected after the new timeout")
	}
}

func TestHealth_ReportsDiscordReady(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	mux := http.NewServeMux()
	f.app.Health().Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.app.Run(ctx)
	}()

	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := f.app.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := f.app.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
	f.bot.mu.Lock()
	closed := f.bot.closed
	f.bot.mu.Unlock()
	if closed != 1 {
		t.Errorf("bot closed %d times, want 1", closed)
	}
}
