package resolve

import (
	"context"
	"net/url"
	"strings"

	"github.com/MrWong99/jukebox/pkg/track"
)

// Route pairs a query predicate with the resolver that handles matching queries.
type Route struct {
	// Name identifies the route in logs.
	Name string

	// Match reports whether this route handles query.
	Match func(query string) bool

	// Resolver handles matching queries.
	Resolver Resolver
}

// Router dispatches each query to the first matching [Route], or to the
// default resolver when no route matches.
type Router struct {
	routes []Route
	def    Resolver
}

var _ Resolver = (*Router)(nil)

// NewRouter creates a Router that falls back to def.
func NewRouter(def Resolver, routes ...Route) *Router {
	return &Router{routes: routes, def: def}
}

// Resolve implements [Resolver].
func (r *Router) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Failed(query, "empty query", nil)
	}
	for _, rt := range r.routes {
		if rt.Match != nil && rt.Match(query) {
			return rt.Resolver.Resolve(ctx, query)
		}
	}
	if r.def == nil {
		return nil, Failed(query, "no resolver for query", nil)
	}
	return r.def.Resolve(ctx, query)
}

// IsURL reports whether query looks like an absolute http(s) link.
func IsURL(query string) bool {
	u, err := url.Parse(strings.TrimSpace(query))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// HostMatcher returns a predicate matching http(s) links whose host equals
// one of hosts or is a subdomain of it.
func HostMatcher(hosts ...string) func(string) bool {
	return func(query string) bool {
		if !IsURL(query) {
			return false
		}
		u, err := url.Parse(strings.TrimSpace(query))
		if err != nil {
			return false
		}
		h := strings.ToLower(u.Hostname())
		for _, want := range hosts {
			if h == want || strings.HasSuffix(h, "."+want) {
				return true
			}
		}
		return false
	}
}

// IsCollection reports whether query is a link to a playlist or album rather
// than a single item. A video link that also names the list it was shared
// from (watch?v=X&list=Y, youtu.be/X?list=Y) is a single item.
func IsCollection(query string) bool {
	if !IsURL(query) {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(query))
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	if isVideoLink(u, p) {
		return false
	}
	if u.Query().Get("list") != "" {
		return true
	}
	for _, seg := range []string{"/playlist", "/album/", "/sets/"} {
		if strings.Contains(p, seg) {
			return true
		}
	}
	return false
}

func isVideoLink(u *url.URL, path string) bool {
	if strings.EqualFold(u.Hostname(), "youtu.be") {
		return strings.Trim(path, "/") != ""
	}
	return strings.HasSuffix(path, "/watch") && u.Query().Get("v") != ""
}
