package ytdlp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/jukebox/pkg/resolve"
)

type fakeExtractor struct {
	mu     sync.Mutex
	probes map[string]string
	flat   string
	err    error
	calls  []string
	limit  int

	// stall lists targets whose probe only returns once ctx is done.
	stall map[string]bool
}

func (f *fakeExtractor) Probe(ctx context.Context, target string) (string, error) {
	f.mu.Lock()
	stall := f.stall[target]
	f.mu.Unlock()
	if stall {
		<-ctx.Done()
		return "", ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "probe "+target)
	if f.err != nil {
		return "", f.err
	}
	out, ok := f.probes[target]
	if !ok {
		return "", classify("ERROR: Video unavailable", errors.New("exit status 1"))
	}
	return out, nil
}

func (f *fakeExtractor) Flat(_ context.Context, target string, limit int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "flat "+target)
	f.limit = limit
	if f.err != nil {
		return "", f.err
	}
	return f.flat, nil
}

func newTestResolver(ex extractor, opts ...Option) *Resolver {
	r := New(opts...)
	r.ex = ex
	return r
}

func TestParseProbe(t *testing.T) {
	t.Parallel()

	out := "https://cdn/a.webm\tSong A\thttps://youtu.be/a\t212.0\n" +
		"garbage line\n" +
		"https://cdn/b.webm\tNA\tNA\tNA\n"
	got := parseProbe(out)
	if len(got) != 2 {
		t.Fatalf("parseProbe returned %d tracks, want 2", len(got))
	}
	if got[0].StreamLocator != "https://cdn/a.webm" || got[0].Title != "Song A" ||
		got[0].PageURL != "https://youtu.be/a" || got[0].Duration != 212*time.Second {
		t.Errorf("first track = %+v", got[0])
	}
	if got[1].Title != "" || got[1].Duration != 0 || got[1].PageURL != "" {
		t.Errorf("NA fields should be empty, got %+v", got[1])
	}
}

func TestParseFlat(t *testing.T) {
	t.Parallel()

	got := parseFlat("https://youtu.be/1\tOne\t60\nhttps://youtu.be/2\tTwo\tNA\n\n")
	if len(got) != 2 {
		t.Fatalf("parseFlat returned %d entries, want 2", len(got))
	}
	if got[0].Duration != time.Minute || got[1].Title != "Two" || got[1].Duration != 0 {
		t.Errorf("entries = %+v", got)
	}
}

func TestResolve_SearchUsesPrefix(t *testing.T) {
	t.Parallel()

	ex := &fakeExtractor{probes: map[string]string{
		"scsearch1:lofi beats": "https://cdn/x\tLofi\thttps://sc/x\t90\n",
	}}
	r := newTestResolver(ex, WithSearchPrefix("scsearch1:"))

	got, err := r.Resolve(context.Background(), "  lofi beats ")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Lofi" {
		t.Errorf("got %+v", got)
	}
}

func TestResolve_DirectLinkKeepsFirst(t *testing.T) {
	t.Parallel()

	link := "https://www.youtube.com/watch?v=abc"
	ex := &fakeExtractor{probes: map[string]string{
		link: "https://cdn/1\tFirst\t" + link + "\t10\nhttps://cdn/2\tSecond\t" + link + "\t10\n",
	}}
	got, err := newTestResolver(ex).Resolve(context.Background(), link)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got) != 1 || got[0].Title != "First" {
		t.Errorf("got %+v, want only First", got)
	}
}

func TestResolve_PlaylistPartial(t *testing.T) {
	t.Parallel()

	list := "https://www.youtube.com/playlist?list=PL1"
	ex := &fakeExtractor{
		flat: "https://youtu.be/1\tOne\t60\nhttps://youtu.be/2\tTwo\t60\nhttps://youtu.be/3\tThree\t60\n",
		probes: map[string]string{
			"https://youtu.be/1": "https://cdn/1\tOne\thttps://youtu.be/1\t60\n",
			"https://youtu.be/3": "https://cdn/3\tThree\thttps://youtu.be/3\t60\n",
		},
	}
	r := newTestResolver(ex, WithPlaylistLimit(10))

	got, err := r.Resolve(context.Background(), list)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d tracks, want 3 (unresolved entry kept without locator)", len(got))
	}
	if got[0].StreamLocator != "https://cdn/1" || got[1].StreamLocator != "" || got[2].StreamLocator != "https://cdn/3" {
		t.Errorf("locators = %q %q %q", got[0].StreamLocator, got[1].StreamLocator, got[2].StreamLocator)
	}
	if ex.limit != 10 {
		t.Errorf("playlist limit = %d, want 10", ex.limit)
	}

	kept, skipped, err := resolve.Playable(list, got)
	if err != nil || len(kept) != 2 || skipped != 1 {
		t.Errorf("Playable = %d kept, %d skipped, err %v; want 2, 1, nil", len(kept), skipped, err)
	}
}

func TestResolve_PlaylistDeadlineKeepsResolvedEntries(t *testing.T) {
	t.Parallel()

	list := "https://www.youtube.com/playlist?list=PL2"
	ex := &fakeExtractor{
		flat: "https://youtu.be/1\tOne\t60\nhttps://youtu.be/2\tTwo\t60\n",
		probes: map[string]string{
			"https://youtu.be/1": "https://cdn/1\tOne\thttps://youtu.be/1\t60\n",
		},
		stall: map[string]bool{"https://youtu.be/2": true},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	got, err := newTestResolver(ex).Resolve(ctx, list)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got) != 2 || got[0].StreamLocator != "https://cdn/1" || got[1].StreamLocator != "" {
		t.Fatalf("got %+v, want the first entry resolved and the second without locator", got)
	}

	// Nothing resolved in time: the lookup fails as a whole.
	ex.stall["https://youtu.be/1"] = true
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	if _, err := newTestResolver(ex).Resolve(ctx2, list); resolve.Cause(err) != "lookup cancelled" {
		t.Errorf("cause = %q, want lookup cancelled", resolve.Cause(err))
	}
}

func TestResolve_WatchLinkFromPlaylistIsSingle(t *testing.T) {
	t.Parallel()

	link := "https://www.youtube.com/watch?v=abc&list=RDabc&start_radio=1"
	ex := &fakeExtractor{
		flat:   "https://youtu.be/x\tX\t60\n",
		probes: map[string]string{link: "https://cdn/abc\tABC\t" + link + "\t10\n"},
	}
	got, err := newTestResolver(ex).Resolve(context.Background(), link)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got) != 1 || got[0].Title != "ABC" {
		t.Errorf("got %+v, want the linked video only", got)
	}
	for _, c := range ex.calls {
		if strings.HasPrefix(c, "flat ") {
			t.Errorf("watch link was expanded as a playlist: %v", ex.calls)
		}
	}
}

func TestResolve_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ex        *fakeExtractor
		query     string
		wantCause string
	}{
		{
			name:      "no results",
			ex:        &fakeExtractor{probes: map[string]string{"ytsearch1:zzz": ""}},
			query:     "zzz",
			wantCause: "no results",
		},
		{
			name:      "rejected",
			ex:        &fakeExtractor{err: classify("ERROR: Sign in to confirm you're not a bot", errors.New("exit status 1"))},
			query:     "https://www.youtube.com/watch?v=x",
			wantCause: "upstream rejected the request",
		},
		{
			name:      "timeout",
			ex:        &fakeExtractor{err: context.DeadlineExceeded},
			query:     "anything",
			wantCause: "lookup timed out",
		},
		{
			name:      "empty playlist",
			ex:        &fakeExtractor{flat: ""},
			query:     "https://www.youtube.com/playlist?list=PL0",
			wantCause: "playlist is empty",
		},
		{
			name:      "empty query",
			ex:        &fakeExtractor{},
			query:     "   ",
			wantCause: "empty query",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := newTestResolver(tc.ex).Resolve(context.Background(), tc.query)
			if !errors.Is(err, resolve.ErrResolutionFailed) {
				t.Fatalf("err = %v, want ErrResolutionFailed", err)
			}
			if got := resolve.Cause(err); got != tc.wantCause {
				t.Errorf("cause = %q, want %q", got, tc.wantCause)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	base := errors.New("exit status 1")
	if err := classify("some unrelated noise", base); err != base {
		t.Errorf("unrecognised stderr should pass the error through, got %v", err)
	}
	err := classify("ERROR: [youtube] x: Private video", base)
	var re *rejectedError
	if !errors.As(err, &re) || !strings.Contains(re.reason, "private") {
		t.Errorf("classify private video = %v", err)
	}
	if !errors.Is(err, base) {
		t.Error("rejectedError should unwrap to the original error")
	}
}
