// Package queue provides the ordered playback queue and its shuffle and
// custom-queue policy.
package queue

import (
	"math/rand"
	"time"

	"github.com/mkazantsev/waveplay/internal/domain/track"
)

// Store holds the ordered track list and the active pointer.
//
// The store is not synchronized; the playback controller owns it and
// serializes access. Exactly one of the normal, shuffled or custom ordering
// is live at a time; original always holds the last non-custom, non-shuffled
// ordering needed to restore.
type Store struct {
	tracks   []track.Track
	index    int // -1 when no track is active
	source   string
	original []track.Track
	shuffle  bool
	custom   bool
	rng      *rand.Rand
}

// Option configures a Store.
type Option func(*Store)

// WithRand injects the random source used for shuffling.
func WithRand(rng *rand.Rand) Option {
	return func(s *Store) { s.rng = rng }
}

// New creates an empty queue store.
func New(opts ...Option) *Store {
	s := &Store{
		index: -1,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of tracks in the live queue.
func (s *Store) Len() int { return len(s.tracks) }

// Index returns the active pointer (-1 when inactive).
func (s *Store) Index() int { return s.index }

// Source returns the provenance tag of the active queue.
func (s *Store) Source() string { return s.source }

// ShuffleMode reports whether shuffle is active.
func (s *Store) ShuffleMode() bool { return s.shuffle }

// CustomQueueActive reports whether the live queue has diverged from its
// source ordering via PlayNext/Append.
func (s *Store) CustomQueueActive() bool { return s.custom }

// Tracks returns a copy of the live queue.
func (s *Store) Tracks() []track.Track {
	out := make([]track.Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Current returns the active track, if any.
func (s *Store) Current() (track.Track, bool) {
	if s.index < 0 || s.index >= len(s.tracks) {
		return track.Track{}, false
	}
	return s.tracks[s.index], true
}

// At returns the track at position i, if valid.
func (s *Store) At(i int) (track.Track, bool) {
	if i < 0 || i >= len(s.tracks) {
		return track.Track{}, false
	}
	return s.tracks[i], true
}

// CreateQueue builds (or reuses) the queue for playing t out of the given
// collection and returns the start index.
//
// With no sourceData, a track already present in the live queue is played in
// place: the pointer jumps to it and the queue is untouched. Otherwise a new
// queue is built from sourceData; a track missing from its own source
// collection is prepended at index 0 so playback always starts. The
// pre-shuffle ordering is archived before any shuffling, and the start track
// stays pinned at index 0 when shuffle is on.
func (s *Store) CreateQueue(t track.Track, source string, sourceData []track.Track) int {
	s.custom = false

	if sourceData == nil && len(s.tracks) > 0 {
		if i := track.IndexOf(s.tracks, t); i != -1 {
			s.index = i
			return i
		}
	}

	var newQueue []track.Track
	if len(sourceData) > 0 {
		newQueue = make([]track.Track, len(sourceData))
		copy(newQueue, sourceData)
	} else {
		newQueue = []track.Track{t}
	}

	start := track.IndexOf(newQueue, t)
	if start == -1 {
		newQueue = append([]track.Track{t}, newQueue...)
		start = 0
	}

	s.original = make([]track.Track, len(newQueue))
	copy(s.original, newQueue)

	if s.shuffle && len(newQueue) > 1 {
		pinned := newQueue[start]
		rest := make([]track.Track, 0, len(newQueue)-1)
		rest = append(rest, newQueue[:start]...)
		rest = append(rest, newQueue[start+1:]...)
		s.shuffleTracks(rest)
		newQueue = append([]track.Track{pinned}, rest...)
		start = 0
	}

	s.tracks = newQueue
	s.index = start
	s.source = source
	return start
}

// Restore replaces the queue wholesale, used when re-deriving state after a
// reload. The pointer is clamped into range.
func (s *Store) Restore(tracks []track.Track, index int, source string) {
	s.tracks = make([]track.Track, len(tracks))
	copy(s.tracks, tracks)
	s.original = make([]track.Track, len(tracks))
	copy(s.original, tracks)
	s.custom = false
	s.source = source
	if len(s.tracks) == 0 {
		s.index = -1
		return
	}
	if index < 0 || index >= len(s.tracks) {
		index = 0
	}
	s.index = index
}

// ReplaceTracks swaps the live track list without moving the pointer,
// used when a wave refill extends the queue mid-playback. The original
// snapshot follows so that later restores see the extended list.
func (s *Store) ReplaceTracks(tracks []track.Track) {
	cur, hasCur := s.Current()
	s.tracks = make([]track.Track, len(tracks))
	copy(s.tracks, tracks)
	if !s.custom {
		s.original = make([]track.Track, len(tracks))
		copy(s.original, tracks)
	}
	if hasCur {
		if i := track.IndexOf(s.tracks, cur); i != -1 {
			s.index = i
			return
		}
	}
	if s.index >= len(s.tracks) {
		s.index = len(s.tracks) - 1
	}
}

// PlayNext splices t immediately after the active pointer, diverging the
// queue from its source ordering.
func (s *Store) PlayNext(t track.Track) {
	if len(s.tracks) == 0 || s.index < 0 {
		s.tracks = []track.Track{t}
		s.index = 0
		s.custom = true
		return
	}
	s.markCustom()
	at := s.index + 1
	s.tracks = append(s.tracks[:at:at], append([]track.Track{t}, s.tracks[at:]...)...)
}

// Append adds t to the end of the queue, diverging it from its source
// ordering.
func (s *Store) Append(t track.Track) {
	if len(s.tracks) == 0 || s.index < 0 {
		s.tracks = []track.Track{t}
		s.index = 0
		s.custom = true
		return
	}
	s.markCustom()
	s.tracks = append(s.tracks, t)
}

func (s *Store) markCustom() {
	if s.custom {
		return
	}
	s.custom = true
	s.original = make([]track.Track, len(s.tracks))
	copy(s.original, s.tracks)
}

// ClearCustom restores the pre-divergence ordering and relocates the pointer
// to the current track by identity (fallback 0). No-op when no custom queue
// is active.
func (s *Store) ClearCustom() {
	if !s.custom {
		return
	}
	s.custom = false
	if len(s.original) == 0 {
		return
	}
	cur, hasCur := s.Current()
	newIndex := 0
	if hasCur {
		if i := track.IndexOf(s.original, cur); i != -1 {
			newIndex = i
		}
	}
	s.tracks = make([]track.Track, len(s.original))
	copy(s.tracks, s.original)
	s.index = newIndex
}

// ToggleShuffle flips shuffle mode. Turning it on archives the current
// ordering, pins the active track at index 0 and shuffles the rest; turning
// it off restores the archived ordering and relocates the pointer to the
// active track by identity.
func (s *Store) ToggleShuffle() {
	if s.shuffle {
		s.shuffle = false
		if len(s.original) == 0 {
			return
		}
		cur, hasCur := s.Current()
		s.tracks = make([]track.Track, len(s.original))
		copy(s.tracks, s.original)
		if hasCur {
			if i := track.IndexOf(s.tracks, cur); i != -1 {
				s.index = i
			}
		}
		return
	}

	s.shuffle = true
	s.original = make([]track.Track, len(s.tracks))
	copy(s.original, s.tracks)

	cur, hasCur := s.Current()
	if hasCur && len(s.tracks) > 1 {
		rest := make([]track.Track, 0, len(s.tracks)-1)
		rest = append(rest, s.tracks[:s.index]...)
		rest = append(rest, s.tracks[s.index+1:]...)
		s.shuffleTracks(rest)
		s.tracks = append([]track.Track{cur}, rest...)
		s.index = 0
		return
	}
	s.shuffleTracks(s.tracks)
}

// Advance moves the pointer to the track that should play after the current
// one, applying the custom-exhaustion and wrap rules in order:
//
//  1. custom queue at its last element: deactivate custom mode, restore the
//     original ordering, relocate to the current track by identity and
//     advance past it when a successor exists;
//  2. last element with wrap (repeat-playlist): wrap to index 0;
//  3. plain successor: advance by one;
//  4. otherwise report exhaustion without moving the pointer.
func (s *Store) Advance(wrap bool) (track.Track, bool) {
	if len(s.tracks) == 0 {
		return track.Track{}, false
	}

	if s.custom && s.index >= len(s.tracks)-1 {
		cur, hasCur := s.Current()
		s.custom = false
		if len(s.original) > 0 {
			newIndex := 0
			if hasCur {
				if i := track.IndexOf(s.original, cur); i != -1 {
					newIndex = i
				}
			}
			s.tracks = make([]track.Track, len(s.original))
			copy(s.tracks, s.original)
			s.index = newIndex
			if newIndex < len(s.tracks)-1 {
				s.index = newIndex + 1
				return s.tracks[s.index], true
			}
		}
	}

	if s.index >= len(s.tracks)-1 && wrap {
		s.index = 0
		return s.tracks[0], true
	}

	if s.index < len(s.tracks)-1 {
		s.index++
		return s.tracks[s.index], true
	}

	return track.Track{}, false
}

// Previous moves the pointer back by one. Returns false at the head of the
// queue; callers restart the current track instead of wrapping backward.
func (s *Store) Previous() (track.Track, bool) {
	if len(s.tracks) == 0 || s.index <= 0 {
		return track.Track{}, false
	}
	s.index--
	return s.tracks[s.index], true
}

// shuffleTracks applies an in-place Fisher-Yates shuffle.
func (s *Store) shuffleTracks(tracks []track.Track) {
	for i := len(tracks) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		tracks[i], tracks[j] = tracks[j], tracks[i]
	}
}
