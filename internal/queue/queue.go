// Package queue holds the playback queue session: the ordered track list,
// the current position in it, and the shuffle/repeat policy that decides
// what plays next.
package queue

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/franz/earshelf/internal/store"
)

// Repeat is the queue repeat mode
type Repeat int

const (
	RepeatOff Repeat = iota
	RepeatAll
	RepeatOne
)

func (r Repeat) String() string {
	switch r {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "off"
	}
}

// PrevThreshold is the elapsed playback time above which Previous restarts
// the current track instead of moving back.
const PrevThreshold = 3 * time.Second

// Session is one playback queue with its transport policy. All methods are
// safe for concurrent use; the engine's advance goroutine and the command
// loop share one session.
type Session struct {
	mu      sync.Mutex
	tracks  []store.Track
	current int
	shuffle bool
	repeat  Repeat
	rng     *rand.Rand
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{
		current: -1,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetQueue replaces the queue contents and positions the session at start.
// An out-of-range start clamps to the first track.
func (s *Session) SetQueue(tracks []store.Track, start int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracks = append([]store.Track(nil), tracks...)
	if len(s.tracks) == 0 {
		s.current = -1
		return
	}
	if start < 0 || start >= len(s.tracks) {
		start = 0
	}
	s.current = start
}

// Len returns the number of queued tracks
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// Index returns the current position, -1 when the queue is empty
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Tracks returns a copy of the queued tracks
func (s *Session) Tracks() []store.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Track(nil), s.tracks...)
}

// Current returns the track at the current position, nil when empty
func (s *Session) Current() *store.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Session) currentLocked() *store.Track {
	if s.current < 0 || s.current >= len(s.tracks) {
		return nil
	}
	t := s.tracks[s.current]
	return &t
}

// Next advances the session and returns the track to load. Repeat-one
// yields the current track again. Shuffle picks a uniform random index
// other than the current one, so a single-track shuffle queue has nowhere
// to go. Sequential playback stops at the last track unless repeat-all
// wraps it around. A nil return means playback ends; the index is left on
// the last track so a later resume starts there.
func (s *Session) Next() *store.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tracks) == 0 {
		return nil
	}

	switch {
	case s.repeat == RepeatOne:
		// position unchanged
	case s.shuffle:
		if len(s.tracks) == 1 {
			return nil
		}
		next := s.rng.Intn(len(s.tracks) - 1)
		if next >= s.current {
			next++
		}
		s.current = next
	case s.current+1 < len(s.tracks):
		s.current++
	case s.repeat == RepeatAll:
		s.current = 0
	default:
		return nil
	}

	return s.currentLocked()
}

// Previous returns the track to load from the start: the current track when
// more than PrevThreshold has elapsed, otherwise the prior one. At the first
// track with nothing elapsed there is nowhere to go and nil is returned.
func (s *Session) Previous(elapsed time.Duration) *store.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tracks) == 0 {
		return nil
	}
	if elapsed > PrevThreshold {
		return s.currentLocked()
	}
	if s.current == 0 {
		return nil
	}
	s.current--
	return s.currentLocked()
}

// Jump moves the session to position i and returns the track there
func (s *Session) Jump(i int) (*store.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.tracks) {
		return nil, fmt.Errorf("queue position %d out of range (%d tracks)", i, len(s.tracks))
	}
	s.current = i
	return s.currentLocked(), nil
}

// Add appends a track to the end of the queue. Appending to an empty queue
// positions the session on the new track.
func (s *Session) Add(track store.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracks = append(s.tracks, track)
	if s.current < 0 {
		s.current = 0
	}
}

// Remove deletes the track at position i. Removing a track before the
// current one shifts the position down; removing the current track keeps
// the position, clamped to the new last track.
func (s *Session) Remove(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.tracks) {
		return fmt.Errorf("queue position %d out of range (%d tracks)", i, len(s.tracks))
	}
	s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)

	if len(s.tracks) == 0 {
		s.current = -1
		return nil
	}
	if i < s.current {
		s.current--
	}
	if s.current >= len(s.tracks) {
		s.current = len(s.tracks) - 1
	}
	return nil
}

// ToggleShuffle flips shuffle mode and returns the new state
func (s *Session) ToggleShuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuffle = !s.shuffle
	return s.shuffle
}

// Shuffle reports whether shuffle mode is on
func (s *Session) Shuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuffle
}

// CycleRepeat steps the repeat mode off -> all -> one -> off and returns
// the new mode.
func (s *Session) CycleRepeat() Repeat {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.repeat {
	case RepeatOff:
		s.repeat = RepeatAll
	case RepeatAll:
		s.repeat = RepeatOne
	default:
		s.repeat = RepeatOff
	}
	return s.repeat
}

// RepeatMode returns the current repeat mode
func (s *Session) RepeatMode() Repeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeat
}
