// Package resolve turns user queries (free text, single-item links, or
// collection links such as playlists) into playable [track.Track] values.
//
// Concrete backends live in sub-packages (resolve/ytdlp, resolve/spotify).
// This package provides the shared [Resolver] contract, the single
// [ErrResolutionFailed] error kind, and composable wrappers ([Router],
// [Cached]) that the application stacks on top of the backends.
//
// Resolution performs network I/O and may take seconds. Callers must invoke
// it off any latency-sensitive path.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/jukebox/pkg/track"
)

// ErrResolutionFailed is the single error kind for every resolution failure:
// empty result sets, items without a stream locator, and upstream rejections.
// Use errors.Is to test for it; the human-readable cause is in the message.
var ErrResolutionFailed = errors.New("resolution failed")

// Resolver maps a query to an ordered, non-empty sequence of tracks.
//
// Implementations must be safe for concurrent use. On success the returned
// slice is non-empty; on failure the error satisfies
// errors.Is(err, ErrResolutionFailed).
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]track.Track, error)
}

// Func adapts an ordinary function to the [Resolver] interface.
type Func func(ctx context.Context, query string) ([]track.Track, error)

// Resolve implements [Resolver].
func (f Func) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	return f(ctx, query)
}

// ResolutionError carries the query and cause of a failed resolution.
type ResolutionError struct {
	// Query is the user input that failed to resolve.
	Query string

	// Cause is a short human-readable explanation suitable for chat output.
	Cause string

	// Err is the underlying error, if any.
	Err error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %q: %s: %v", e.Query, e.Cause, e.Err)
	}
	return fmt.Sprintf("resolve %q: %s", e.Query, e.Cause)
}

// Is reports whether target is [ErrResolutionFailed].
func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolutionFailed
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Failed builds a [ResolutionError]. err may be nil.
func Failed(query, cause string, err error) error {
	return &ResolutionError{Query: query, Cause: cause, Err: err}
}

// Cause extracts the human-readable cause from a resolution failure. For any
// other error it returns err.Error().
func Cause(err error) string {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Cause
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Playable applies the partial batch policy: tracks without a stream locator
// are dropped, the rest keep their original order. skipped is the number of
// dropped entries. When nothing playable remains, err is a
// [ResolutionError].
func Playable(query string, tracks []track.Track) (kept []track.Track, skipped int, err error) {
	if len(tracks) == 0 {
		return nil, 0, Failed(query, "no results", nil)
	}
	kept = make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if !t.Playable() {
			skipped++
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return nil, skipped, Failed(query, "no playable stream found", nil)
	}
	return kept, skipped, nil
}

// Mode selects how many tracks a caller takes from a resolution.
type Mode int

const (
	// Single keeps only the first playable track.
	Single Mode = iota

	// Batch keeps every playable track in order.
	Batch
)

// String returns the human-readable mode name.
func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case Batch:
		return "batch"
	default:
		return "unknown"
	}
}

// Result is the outcome of [Select].
type Result struct {
	// Tracks are the playable tracks to enqueue, in order.
	Tracks []track.Track

	// Skipped counts entries dropped for lacking a stream locator.
	Skipped int
}

// Select resolves query with r and applies mode and the partial batch policy.
func Select(ctx context.Context, r Resolver, query string, mode Mode) (Result, error) {
	tracks, err := r.Resolve(ctx, query)
	if err != nil {
		if errors.Is(err, ErrResolutionFailed) {
			return Result{}, err
		}
		return Result{}, Failed(query, "lookup failed", err)
	}
	kept, skipped, err := Playable(query, tracks)
	if err != nil {
		return Result{}, err
	}
	if mode == Single {
		// Entries after the first are ignored, not skipped.
		return Result{Tracks: kept[:1]}, nil
	}
	return Result{Tracks: kept, Skipped: skipped}, nil
}
