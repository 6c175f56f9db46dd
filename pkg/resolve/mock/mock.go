// Package mock provides an in-memory [resolve.Resolver] for use in unit tests.
//
// The resolver is safe for concurrent use and records every call.
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/jukebox/pkg/resolve"
	"github.com/MrWong99/jukebox/pkg/track"
)

// Resolver is a mock implementation of [resolve.Resolver].
type Resolver struct {
	mu sync.Mutex

	// Results maps queries to the tracks returned for them.
	Results map[string][]track.Track

	// Errors maps queries to the error returned for them. Errors take
	// precedence over Results.
	Errors map[string]error

	// Default is returned for queries absent from Results and Errors. When
	// nil, such queries fail with [resolve.ErrResolutionFailed].
	Default func(query string) []track.Track

	// Delay is slept (honouring ctx) before answering.
	Delay time.Duration

	// Calls records every query in call order.
	Calls []string
}

var _ resolve.Resolver = (*Resolver)(nil)

// Resolve implements [resolve.Resolver].
func (r *Resolver) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, query)
	delay := r.Delay
	err, hasErr := r.Errors[query]
	ts, hasRes := r.Results[query]
	def := r.Default
	r.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	switch {
	case hasErr:
		return nil, err
	case hasRes:
		return slices.Clone(ts), nil
	case def != nil:
		return def(query), nil
	default:
		return nil, resolve.Failed(query, "no results", nil)
	}
}

// CallCount returns the number of Resolve calls so far.
func (r *Resolver) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}
