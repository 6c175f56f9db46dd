package resolve

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/MrWong99/jukebox/pkg/track"
)

// Cached memoises successful resolutions for a bounded time. Failures are
// never cached. The TTL must stay below the lifetime of the stream locators
// the wrapped resolver hands out.
type Cached struct {
	next  Resolver
	cache *expirable.LRU[string, []track.Track]
}

var _ Resolver = (*Cached)(nil)

// NewCached wraps next with an LRU of at most size entries that expire after ttl.
func NewCached(next Resolver, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 256
	}
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, []track.Track](size, nil, ttl),
	}
}

// Resolve implements [Resolver].
func (c *Cached) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	if ts, ok := c.cache.Get(query); ok {
		return slices.Clone(ts), nil
	}
	ts, err := c.next.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	// A lookup that ran out of time may be incomplete.
	if ctx.Err() == nil {
		c.cache.Add(query, slices.Clone(ts))
	}
	return ts, nil
}

// Len returns the number of cached queries.
func (c *Cached) Len() int {
	return c.cache.Len()
}

// Purge drops every cached entry.
func (c *Cached) Purge() {
	c.cache.Purge()
}
