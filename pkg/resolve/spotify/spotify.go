// Package spotify expands Spotify track, album and playlist links into
// playable tracks.
//
// Spotify does not hand out audio streams, so every catalogue item is turned
// into an "artist - title" search query and delegated to a downstream
// [resolve.Resolver] (normally the yt-dlp search). Items that carry no track
// (local files, podcast episodes, removed entries) and items whose search
// fails are returned without a stream locator so the partial batch policy
// counts them as skipped.
package spotify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jukebox/pkg/resolve"
	"github.com/MrWong99/jukebox/pkg/track"
)

// Kind is the type of Spotify catalogue object a link points to.
type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
)

// DefaultLimit caps how many items are expanded from an album or playlist.
const DefaultLimit = 50

// Item is a catalogue entry reduced to what a search needs. A zero Item
// stands for an entry without a playable track.
type Item struct {
	Artist string
	Title  string
}

// Query returns the search query for the item, or "" when it has no track.
func (it Item) Query() string {
	switch {
	case it.Title == "":
		return ""
	case it.Artist == "":
		return it.Title
	default:
		return it.Artist + " - " + it.Title
	}
}

// Catalog looks up Spotify catalogue objects.
type Catalog interface {
	Track(ctx context.Context, id string) (Item, error)
	AlbumTracks(ctx context.Context, id string, limit int) ([]Item, error)
	PlaylistTracks(ctx context.Context, id string, limit int) ([]Item, error)
}

// Link is a parsed Spotify link.
type Link struct {
	Kind Kind
	ID   string
}

// ParseLink extracts the object kind and ID from an open.spotify.com link.
// Locale path prefixes such as /intl-de/ are ignored.
func ParseLink(raw string) (Link, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Link{}, err
	}
	if h := strings.ToLower(u.Hostname()); h != "open.spotify.com" && h != "play.spotify.com" {
		return Link{}, fmt.Errorf("spotify: not a spotify link: %q", raw)
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[1] == "" {
		return Link{}, fmt.Errorf("spotify: malformed link: %q", raw)
	}
	switch k := Kind(parts[0]); k {
	case KindTrack, KindAlbum, KindPlaylist:
		return Link{Kind: k, ID: parts[1]}, nil
	default:
		return Link{}, fmt.Errorf("spotify: unsupported link type %q", parts[0])
	}
}

// Resolver implements [resolve.Resolver] for Spotify links.
type Resolver struct {
	catalog Catalog
	search  resolve.Resolver
	limit   int
	log     *slog.Logger
}

var _ resolve.Resolver = (*Resolver)(nil)

// New creates a Resolver that looks items up in catalog and resolves them
// through search. limit <= 0 selects [DefaultLimit].
func New(catalog Catalog, search resolve.Resolver, limit int, log *slog.Logger) *Resolver {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{catalog: catalog, search: search, limit: limit, log: log}
}

// Resolve implements [resolve.Resolver].
func (r *Resolver) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	link, err := ParseLink(query)
	if err != nil {
		return nil, resolve.Failed(query, "unsupported spotify link", err)
	}

	var items []Item
	switch link.Kind {
	case KindTrack:
		var it Item
		it, err = r.catalog.Track(ctx, link.ID)
		items = []Item{it}
	case KindAlbum:
		items, err = r.catalog.AlbumTracks(ctx, link.ID, r.limit)
	case KindPlaylist:
		items, err = r.catalog.PlaylistTracks(ctx, link.ID, r.limit)
	}
	if err != nil {
		return nil, resolve.Failed(query, "spotify lookup failed", err)
	}
	if len(items) == 0 {
		return nil, resolve.Failed(query, "no results", nil)
	}
	if len(items) > r.limit {
		items = items[:r.limit]
	}

	tracks := make([]track.Track, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, it := range items {
		q := it.Query()
		tracks[i] = track.Track{Title: q}
		if q == "" {
			continue
		}
		g.Go(func() error {
			found, err := r.search.Resolve(gctx, q)
			if err != nil || len(found) == 0 {
				r.log.Debug("spotify: no match for item", "query", q, "err", err)
				return nil
			}
			tracks[i].StreamLocator = found[0].StreamLocator
			tracks[i].PageURL = found[0].PageURL
			tracks[i].Duration = found[0].Duration
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		if !slices.ContainsFunc(tracks, track.Track.Playable) {
			return nil, resolve.Failed(query, "lookup cancelled", err)
		}
		r.log.Info("spotify: lookup cut short, keeping resolved items", "query", query, "err", err)
	}
	return tracks, nil
}
