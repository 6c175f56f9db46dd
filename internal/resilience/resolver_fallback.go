package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/jukebox/pkg/resolve"
	"github.com/MrWong99/jukebox/pkg/track"
)

// ResolverFallback implements [resolve.Resolver] by trying several resolvers
// in order, e.g. a YouTube search first and a SoundCloud search second.
//
// A plain miss ("no results") moves on to the next resolver without counting
// against its breaker; upstream errors such as rejections or timeouts do.
type ResolverFallback struct {
	group *FallbackGroup[resolve.Resolver]
}

var _ resolve.Resolver = (*ResolverFallback)(nil)

// NewResolverFallback creates a ResolverFallback with primary first.
func NewResolverFallback(primary resolve.Resolver, primaryName string, cfg FallbackConfig) *ResolverFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = upstreamFailure
	}
	return &ResolverFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers a lower-priority resolver.
func (f *ResolverFallback) AddFallback(name string, r resolve.Resolver) {
	f.group.AddFallback(name, r)
}

// States exposes the breaker state of each resolver.
func (f *ResolverFallback) States() map[string]State {
	return f.group.States()
}

// Resolve implements [resolve.Resolver]. The returned error always satisfies
// errors.Is(err, resolve.ErrResolutionFailed).
func (f *ResolverFallback) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	tracks, err := ExecuteWithResult(f.group, func(r resolve.Resolver) ([]track.Track, error) {
		ts, err := r.Resolve(ctx, query)
		if err == nil && len(ts) == 0 {
			return nil, resolve.Failed(query, "no results", nil)
		}
		return ts, err
	})
	if err == nil {
		return tracks, nil
	}
	if errors.Is(err, resolve.ErrResolutionFailed) {
		return nil, resolve.Failed(query, resolve.Cause(err), err)
	}
	return nil, resolve.Failed(query, "all resolvers unavailable", err)
}

// upstreamFailure reports whether err indicates an unhealthy backend rather
// than a query that simply has no match.
func upstreamFailure(err error) bool {
	if err == nil {
		return false
	}
	var re *resolve.ResolutionError
	if errors.As(err, &re) {
		return re.Err != nil
	}
	return true
}
