package spotify

import (
	"context"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// Client is the Web API backed [Catalog].
type Client struct {
	api *spotify.Client
}

var _ Catalog = (*Client)(nil)

// NewClient creates a Catalog authenticated with the client credentials flow.
// Tokens are fetched lazily and refreshed by the oauth2 transport.
func NewClient(ctx context.Context, clientID, clientSecret string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return &Client{api: spotify.New(cfg.Client(ctx))}
}

// Track implements [Catalog].
func (c *Client) Track(ctx context.Context, id string) (Item, error) {
	t, err := c.api.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return Item{}, err
	}
	return simpleItem(t.SimpleTrack), nil
}

// AlbumTracks implements [Catalog].
func (c *Client) AlbumTracks(ctx context.Context, id string, limit int) ([]Item, error) {
	page, err := c.api.GetAlbumTracks(ctx, spotify.ID(id), spotify.Limit(min(limit, 50)))
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(page.Tracks))
	for _, t := range page.Tracks {
		items = append(items, simpleItem(t))
	}
	return items, nil
}

// PlaylistTracks implements [Catalog]. Local files and episodes come back as
// zero Items.
func (c *Client) PlaylistTracks(ctx context.Context, id string, limit int) ([]Item, error) {
	page, err := c.api.GetPlaylistItems(ctx, spotify.ID(id), spotify.Limit(min(limit, 100)))
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(page.Items))
	for _, pi := range page.Items {
		if pi.IsLocal || pi.Track.Track == nil {
			items = append(items, Item{})
			continue
		}
		items = append(items, simpleItem(pi.Track.Track.SimpleTrack))
	}
	return items, nil
}

func simpleItem(t spotify.SimpleTrack) Item {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return Item{Artist: strings.Join(names, ", "), Title: t.Name}
}
