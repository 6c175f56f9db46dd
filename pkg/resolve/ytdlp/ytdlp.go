// Package ytdlp resolves free-text searches, single-item links and playlist
// links through the yt-dlp binary.
//
// Search queries are prefixed with a yt-dlp search scheme ("ytsearch1:" by
// default) so every query kind goes through the same extractor. Playlists are
// listed flat first and each entry is then probed for its stream URL in
// parallel; entries that fail to probe come back without a stream locator and
// are dropped by the caller's partial batch policy.
package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jukebox/pkg/resolve"
	"github.com/MrWong99/jukebox/pkg/track"
)

const (
	// DefaultSearchPrefix makes yt-dlp return the single best YouTube match.
	DefaultSearchPrefix = "ytsearch1:"

	// DefaultPlaylistLimit caps how many playlist entries are expanded.
	DefaultPlaylistLimit = 50

	// DefaultProbeConcurrency bounds the parallel per-entry probes.
	DefaultProbeConcurrency = 4

	audioFormat = "bestaudio/best"
)

// extractor runs yt-dlp and returns its stdout. The default implementation
// shells out through go-ytdlp; tests substitute a fake.
type extractor interface {
	// Probe prints one line per resolved item with its direct stream URL.
	Probe(ctx context.Context, target string) (string, error)

	// Flat lists up to limit playlist entries without resolving streams.
	Flat(ctx context.Context, target string, limit int) (string, error)
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithExecutable sets the yt-dlp binary path. Defaults to "yt-dlp" on PATH.
func WithExecutable(path string) Option {
	return func(r *Resolver) { r.exe = path }
}

// WithSearchPrefix sets the yt-dlp search scheme used for free-text queries.
func WithSearchPrefix(prefix string) Option {
	return func(r *Resolver) { r.searchPrefix = prefix }
}

// WithPlaylistLimit caps the number of entries expanded from a playlist.
func WithPlaylistLimit(n int) Option {
	return func(r *Resolver) { r.playlistLimit = n }
}

// WithProxy routes yt-dlp traffic through the given proxy URL.
func WithProxy(proxy string) Option {
	return func(r *Resolver) { r.proxy = proxy }
}

// WithTimeout bounds each yt-dlp invocation.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// Resolver implements [resolve.Resolver] on top of yt-dlp.
type Resolver struct {
	exe           string
	searchPrefix  string
	playlistLimit int
	proxy         string
	timeout       time.Duration
	log           *slog.Logger
	ex            extractor
}

var _ resolve.Resolver = (*Resolver)(nil)

// New creates a yt-dlp backed Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		searchPrefix:  DefaultSearchPrefix,
		playlistLimit: DefaultPlaylistLimit,
		timeout:       30 * time.Second,
		log:           slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.playlistLimit <= 0 {
		r.playlistLimit = DefaultPlaylistLimit
	}
	if r.ex == nil {
		r.ex = &cli{exe: r.exe, proxy: r.proxy}
	}
	return r
}

// Resolve implements [resolve.Resolver].
func (r *Resolver) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, resolve.Failed(query, "empty query", nil)
	}
	switch {
	case !resolve.IsURL(query):
		return r.probe(ctx, query, r.searchPrefix+query)
	case resolve.IsCollection(query):
		return r.playlist(ctx, query)
	default:
		return r.probe(ctx, query, query)
	}
}

func (r *Resolver) probe(ctx context.Context, query, target string) ([]track.Track, error) {
	out, err := r.run(ctx, func(ctx context.Context) (string, error) {
		return r.ex.Probe(ctx, target)
	})
	if err != nil {
		return nil, r.failure(query, err)
	}
	tracks := parseProbe(out)
	if len(tracks) == 0 {
		return nil, resolve.Failed(query, "no results", nil)
	}
	// Search and single links yield one item; anything more is noise.
	return tracks[:1], nil
}

func (r *Resolver) playlist(ctx context.Context, query string) ([]track.Track, error) {
	out, err := r.run(ctx, func(ctx context.Context) (string, error) {
		return r.ex.Flat(ctx, query, r.playlistLimit)
	})
	if err != nil {
		return nil, r.failure(query, err)
	}
	entries := parseFlat(out)
	if len(entries) == 0 {
		return nil, resolve.Failed(query, "playlist is empty", nil)
	}

	tracks := make([]track.Track, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultProbeConcurrency)
	for i, e := range entries {
		tracks[i] = track.Track{Title: e.Title, PageURL: e.URL, Duration: e.Duration}
		g.Go(func() error {
			out, err := r.run(gctx, func(ctx context.Context) (string, error) {
				return r.ex.Probe(ctx, e.URL)
			})
			if err != nil {
				r.log.Debug("ytdlp: playlist entry unavailable", "url", e.URL, "err", err)
				return nil
			}
			if ts := parseProbe(out); len(ts) > 0 {
				tracks[i].StreamLocator = ts[0].StreamLocator
				if tracks[i].Title == "" {
					tracks[i].Title = ts[0].Title
				}
			}
			return nil
		})
	}
	// Individual probe failures are tolerated. Cancellation keeps whatever
	// was resolved before it; the rest counts as skipped.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		if !slices.ContainsFunc(tracks, track.Track.Playable) {
			return nil, resolve.Failed(query, "lookup cancelled", err)
		}
		r.log.Info("ytdlp: playlist lookup cut short, keeping resolved entries", "query", query, "err", err)
	}
	return tracks, nil
}

func (r *Resolver) run(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (r *Resolver) failure(query string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return resolve.Failed(query, "lookup timed out", err)
	}
	var re *rejectedError
	if errors.As(err, &re) {
		return resolve.Failed(query, re.reason, err)
	}
	return resolve.Failed(query, "yt-dlp failed", err)
}

// rejectedError marks an upstream refusal recognised in yt-dlp's stderr.
type rejectedError struct {
	reason string
	err    error
}

func (e *rejectedError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *rejectedError) Unwrap() error { return e.err }

var rejections = []struct{ marker, reason string }{
	{"sign in to confirm", "upstream rejected the request"},
	{"http error 403", "upstream rejected the request"},
	{"http error 429", "upstream rate limited the request"},
	{"video unavailable", "item unavailable"},
	{"private video", "item is private"},
	{"drm", "item is DRM protected"},
	{"unsupported url", "unsupported link"},
}

// classify inspects stderr for known upstream rejections.
func classify(stderr string, err error) error {
	msg := strings.ToLower(stderr)
	for _, r := range rejections {
		if strings.Contains(msg, r.marker) {
			return &rejectedError{reason: r.reason, err: err}
		}
	}
	return err
}

// cli is the go-ytdlp backed extractor.
type cli struct {
	exe   string
	proxy string
}

func (c *cli) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig().
		Quiet()
	if c.exe != "" {
		cmd.SetExecutable(c.exe)
	}
	if c.proxy != "" {
		cmd.Proxy(c.proxy)
	}
	return cmd
}

func (c *cli) Probe(ctx context.Context, target string) (string, error) {
	res, err := c.command().
		Format(audioFormat).
		NoPlaylist().
		Print("%(url)s\t%(title)s\t%(webpage_url)s\t%(duration)s").
		Run(ctx, target)
	return output(res, err)
}

func (c *cli) Flat(ctx context.Context, target string, limit int) (string, error) {
	res, err := c.command().
		FlatPlaylist().
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		Print("%(url)s\t%(title)s\t%(duration)s").
		Run(ctx, target)
	return output(res, err)
}

func output(res *ytdlp.Result, err error) (string, error) {
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return "", classify(stderr, err)
	}
	return res.Stdout, nil
}

// entry is one line of flat playlist output.
type entry struct {
	URL      string
	Title    string
	Duration time.Duration
}

// parseProbe parses url\ttitle\twebpage_url\tduration lines.
func parseProbe(out string) []track.Track {
	var ts []track.Track
	for _, l := range lines(out) {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 || !resolve.IsURL(ps[0]) {
			continue
		}
		ts = append(ts, track.Track{
			StreamLocator: ps[0],
			Title:         field(ps[1]),
			PageURL:       field(ps[2]),
			Duration:      seconds(ps[3]),
		})
	}
	return ts
}

// parseFlat parses url\ttitle\tduration lines.
func parseFlat(out string) []entry {
	var es []entry
	for _, l := range lines(out) {
		ps := strings.Split(l, "\t")
		if len(ps) < 3 || !resolve.IsURL(ps[0]) {
			continue
		}
		es = append(es, entry{URL: ps[0], Title: field(ps[1]), Duration: seconds(ps[2])})
	}
	return es
}

func lines(out string) []string {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// field maps yt-dlp's "NA" placeholder to the empty string.
func field(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

func seconds(s string) time.Duration {
	d, err := time.ParseDuration(field(s) + "s")
	if err != nil || d < 0 {
		return 0
	}
	return d
}
