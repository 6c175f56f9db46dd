package track_test

import (
	"testing"
	"time"

	"github.com/MrWong99/jukebox/pkg/track"
)

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{9 * time.Second, "0:09"},
		{3*time.Minute + 25*time.Second, "3:25"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{59*time.Second + 600*time.Millisecond, "1:00"},
	}
	for _, tc := range tests {
		if got := track.FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTrack_String(t *testing.T) {
	t.Parallel()

	tr := track.Track{Title: "Song"}
	if got := tr.String(); got != "Song" {
		t.Errorf("String() = %q, want %q", got, "Song")
	}
	tr.Duration = 75 * time.Second
	if got := tr.String(); got != "Song (1:15)" {
		t.Errorf("String() = %q, want %q", got, "Song (1:15)")
	}
}

func TestTrack_Playable(t *testing.T) {
	t.Parallel()

	if (track.Track{Title: "x"}).Playable() {
		t.Error("track without locator should not be playable")
	}
	if !(track.Track{StreamLocator: "https://a/b"}).Playable() {
		t.Error("track with locator should be playable")
	}
}
