// Package queue provides the process-wide registry of per-guild pending
// track lists.
//
// Each guild owns an independent FIFO guarded by its own mutex; the registry
// lock is only held to look up or lazily create a guild's queue, so
// operations on different guilds never wait on each other. Queues are never
// removed from the registry; a guild that stops playing simply keeps an empty
// queue for the lifetime of the process.
//
// All exported methods are safe for concurrent use.
package queue

import (
	"slices"
	"sync"

	"github.com/MrWong99/jukebox/pkg/track"
)

// Queue is a single guild's ordered list of pending tracks. Insertion order
// is play order; the queue never reorders or deduplicates on its own.
type Queue struct {
	mu     sync.Mutex
	tracks []track.Track
}

// Append adds tracks to the back of the queue as one atomic batch and returns
// the resulting length. Concurrent readers see either none or all of the batch.
func (q *Queue) Append(tracks ...track.Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, tracks...)
	return len(q.tracks)
}

// PopFront removes and returns the first track. ok is false when the queue is
// empty; PopFront never blocks waiting for work.
func (q *Queue) PopFront() (t track.Track, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return track.Track{}, false
	}
	t = q.tracks[0]
	q.tracks[0] = track.Track{}
	q.tracks = q.tracks[1:]
	if len(q.tracks) == 0 {
		q.tracks = nil
	}
	return t, true
}

// Clear empties the queue and returns how many tracks were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.tracks)
	q.tracks = nil
	return n
}

// PeekAll returns a snapshot copy of the pending tracks in play order.
func (q *Queue) PeekAll() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.tracks)
}

// Len returns the number of pending tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

// Store maps guild IDs to their [Queue]. The zero value is not usable; create
// one with [NewStore].
type Store struct {
	mu     sync.RWMutex
	queues map[string]*Queue
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{queues: make(map[string]*Queue)}
}

// GetOrCreate returns the queue for guildID, creating it on first access.
func (s *Store) GetOrCreate(guildID string) *Queue {
	s.mu.RLock()
	q, ok := s.queues[guildID]
	s.mu.RUnlock()
	if ok {
		return q
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok = s.queues[guildID]; ok {
		return q
	}
	q = &Queue{}
	s.queues[guildID] = q
	return q
}

// Append adds tracks to guildID's queue as one batch and returns the new length.
func (s *Store) Append(guildID string, tracks ...track.Track) int {
	return s.GetOrCreate(guildID).Append(tracks...)
}

// PopFront removes and returns the head of guildID's queue. ok is false when
// the queue is empty.
func (s *Store) PopFront(guildID string) (track.Track, bool) {
	return s.GetOrCreate(guildID).PopFront()
}

// Clear empties guildID's queue and returns the number of dropped tracks.
func (s *Store) Clear(guildID string) int {
	return s.GetOrCreate(guildID).Clear()
}

// PeekAll returns a snapshot of guildID's queue in play order.
func (s *Store) PeekAll(guildID string) []track.Track {
	return s.GetOrCreate(guildID).PeekAll()
}

// Len returns the number of tracks pending for guildID.
func (s *Store) Len(guildID string) int {
	return s.GetOrCreate(guildID).Len()
}

// Guilds returns the IDs of every guild that has a queue, sorted.
func (s *Store) Guilds() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.queues))
	for id := range s.queues {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
