package queue_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/jukebox/internal/queue"
	"github.com/MrWong99/jukebox/pkg/track"
)

func tr(title string) track.Track {
	return track.Track{StreamLocator: "https://media.example/" + title, Title: title}
}

func titles(ts []track.Track) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Title
	}
	return out
}

func TestStore_FIFO(t *testing.T) {
	t.Parallel()

	s := queue.NewStore()
	if n := s.Append("g1", tr("A"), tr("B")); n != 2 {
		t.Fatalf("Append() = %d, want 2", n)
	}
	if n := s.Append("g1", tr("C")); n != 3 {
		t.Fatalf("Append() = %d, want 3", n)
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := s.PopFront("g1")
		if !ok {
			t.Fatalf("PopFront() ok = false, want %q", want)
		}
		if got.Title != want {
			t.Errorf("PopFront() = %q, want %q", got.Title, want)
		}
	}

	if _, ok := s.PopFront("g1"); ok {
		t.Error("PopFront() on empty queue should report ok = false")
	}
}

func TestStore_PopFrontEmptyUnknownGuild(t *testing.T) {
	t.Parallel()

	s := queue.NewStore()
	got, ok := s.PopFront("never-seen")
	if ok {
		t.Fatal("PopFront() on new guild should be empty")
	}
	if got != (track.Track{}) {
		t.Errorf("PopFront() = %+v, want zero value", got)
	}
}

func TestStore_PeekAllIsSnapshot(t *testing.T) {
	t.Parallel()

	s := queue.NewStore()
	s.Append("g1", tr("A"), tr("B"))

	snap := s.PeekAll("g1")
	snap[0].Title = "mutated"
	s.Append("g1", tr("C"))

	if got := titles(s.PeekAll("g1")); fmt.Sprint(got) != "[A B C]" {
		t.Errorf("PeekAll() = %v, want [A B C]", got)
	}
	if len(snap) != 2 {
		t.Errorf("snapshot length changed to %d", len(snap))
	}
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s := queue.NewStore()
	s.Append("g1", tr("A"), tr("B"))
	s.Append("g2", tr("X"))

	if n := s.Clear("g1"); n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if n := s.Len("g1"); n != 0 {
		t.Errorf("Len(g1) = %d, want 0", n)
	}
	if n := s.Len("g2"); n != 1 {
		t.Errorf("Len(g2) = %d, want 1 (other guild untouched)", n)
	}
}

func TestStore_GetOrCreateReturnsSameHandle(t *testing.T) {
	t.Parallel()

	s := queue.NewStore()
	a := s.GetOrCreate("g1")
	b := s.GetOrCreate("g1")
	if a != b {
		t.Fatal("GetOrCreate returned different handles for the same guild")
	}
	a.Append(tr("A"))
	if s.Len("g1") != 1 {
		t.Error("append through handle not visible through store")
	}
	if got := s.Guilds(); len(got) != 1 || got[0] != "g1" {
		t.Errorf("Guilds() = %v, want [g1]", got)
	}
}

func TestStore_BatchAppendIsAtomic(t *testing.T) {
	t.Parallel()

	s := queue.NewStore()
	const batch = 5
	const writers = 20

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 1)

	// Readers must only ever observe whole batches.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n := len(s.PeekAll("g1")); n%batch != 0 {
				select {
				case errs <- fmt.Sprintf("observed partial batch: len=%d", n):
				default:
				}
				return
			}
		}
	}()

	var writersWG sync.WaitGroup
	for w := range writers {
		writersWG.Add(1)
		go func() {
			defer writersWG.Done()
			ts := make([]track.Track, batch)
			for i := range ts {
				ts[i] = tr(fmt.Sprintf("w%d-%d", w, i))
			}
			s.Append("g1", ts...)
		}()
	}
	writersWG.Wait()
	close(stop)
	wg.Wait()

	select {
	case msg := <-errs:
		t.Fatal(msg)
	default:
	}

	// Each writer's batch must be contiguous and in order.
	all := s.PeekAll("g1")
	if len(all) != batch*writers {
		t.Fatalf("len = %d, want %d", len(all), batch*writers)
	}
	for i := 0; i < len(all); i += batch {
		var w int
		if _, err := fmt.Sscanf(all[i].Title, "w%d-0", &w); err != nil {
			t.Fatalf("batch at %d does not start with item 0: %q", i, all[i].Title)
		}
		for j := 1; j < batch; j++ {
			want := fmt.Sprintf("w%d-%d", w, j)
			if all[i+j].Title != want {
				t.Fatalf("item %d = %q, want %q", i+j, all[i+j].Title, want)
			}
		}
	}
}

func TestStore_ConcurrentGuildsIndependent(t *testing.T) {
	t.Parallel()

	s := queue.NewStore()
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("guild-%d", g)
			for i := range 100 {
				s.Append(id, tr(fmt.Sprint(i)))
			}
			for i := range 100 {
				got, ok := s.PopFront(id)
				if !ok || got.Title != fmt.Sprint(i) {
					t.Errorf("%s: PopFront() = %q, %v; want %d", id, got.Title, ok, i)
					return
				}
			}
		}()
	}
	wg.Wait()

	if n := len(s.Guilds()); n != 8 {
		t.Errorf("Guilds() len = %d, want 8", n)
	}
}
