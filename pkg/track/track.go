// Package track defines the resolved, playable unit shared by the resolver,
// the guild queue, and the playback sink.
package track

import (
	"fmt"
	"time"
)

// Track is a resolved audio reference plus display metadata.
//
// A Track is immutable once produced by a resolver. StreamLocator is a
// short-lived handle (typically a signed media URL) that may expire some
// time after resolution; PageURL, when set, is the canonical page that can be
// resolved again to obtain a fresh locator.
type Track struct {
	// StreamLocator is the URL or path handed to the sink for decoding.
	StreamLocator string

	// Title is the human-readable name shown in chat. Display only.
	Title string

	// PageURL is the canonical page of the item (e.g. a YouTube watch URL).
	PageURL string

	// Duration is the reported length. Zero when unknown (live streams).
	Duration time.Duration

	// RequestedBy is the platform user ID that requested the track.
	RequestedBy string
}

// Playable reports whether t carries a stream locator.
func (t Track) Playable() bool {
	return t.StreamLocator != ""
}

// String returns the title with the duration appended when it is known.
func (t Track) String() string {
	if t.Duration <= 0 {
		return t.Title
	}
	return fmt.Sprintf("%s (%s)", t.Title, FormatDuration(t.Duration))
}

// FormatDuration renders d as m:ss or h:mm:ss.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
