// Package audio provides the audio output used by the player. The simulated
// output tracks playback position against the wall clock without touching a
// sound device, which is all a headless queue controller needs.
package audio

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/mkazantsev/waveplay/internal/app/playback"
)

const tickInterval = 50 * time.Millisecond

// Simulated is a playback.Output that advances position in real time and
// reports end-of-track when the hinted duration elapses.
type Simulated struct {
	mu sync.Mutex

	src      string
	duration float64 // Seconds; 0 means unknown, the source never ends on its own
	playing  bool
	base     float64   // Position when the anchor was set
	anchor   time.Time // Wall time the current playing stretch began

	timerCancel func()
	events      chan playback.OutputEvent
	closed      bool
}

// NewSimulated creates a simulated audio output.
func NewSimulated() *Simulated {
	return &Simulated{
		events: make(chan playback.OutputEvent, 16),
	}
}

// SetSource replaces the current source and resets position.
func (s *Simulated) SetSource(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.src = url
	s.duration = 0
	s.playing = false
	s.base = 0

	// The simulated source has no network to wait on; it is immediately
	// playable.
	s.emitLocked(playback.OutputCanPlay, nil)
}

// HintDuration tells the output how long the current source is.
func (s *Simulated) HintDuration(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.duration = seconds
	if s.playing {
		s.startTimerLocked()
	}
}

// Play starts or resumes the current source.
func (s *Simulated) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src == "" {
		return errors.New("no source set")
	}
	if s.playing {
		return nil
	}

	s.playing = true
	s.anchor = time.Now()
	s.startTimerLocked()
	s.emitLocked(playback.OutputPlaying, nil)
	return nil
}

// Pause pauses playback, keeping the position.
func (s *Simulated) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing {
		return
	}
	s.base = s.positionLocked()
	s.playing = false
	s.stopTimerLocked()
}

// Seek moves the position, clamped to the source bounds.
func (s *Simulated) Seek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	if s.duration > 0 && seconds > s.duration {
		seconds = s.duration
	}
	s.base = seconds
	s.anchor = time.Now()
}

// Position returns the current position in seconds.
func (s *Simulated) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

// Stop halts playback and drops the source.
func (s *Simulated) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.src = ""
	s.playing = false
	s.base = 0
	s.duration = 0
}

// Events returns the event stream.
func (s *Simulated) Events() <-chan playback.OutputEvent {
	return s.events
}

// Close shuts the output down and closes the event stream.
func (s *Simulated) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.stopTimerLocked()
	s.closed = true
	close(s.events)
}

func (s *Simulated) positionLocked() float64 {
	pos := s.base
	if s.playing {
		pos += time.Since(s.anchor).Seconds()
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	return pos
}

// startTimerLocked watches for the hinted duration to elapse and emits the
// ended event. The wall clock, not a one-shot timer, decides the end so
// seeks and pauses are naturally accounted for.
func (s *Simulated) startTimerLocked() {
	s.stopTimerLocked()
	if s.duration <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.timerCancel = cancel
	src := s.src

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.src != src || !s.playing {
					s.mu.Unlock()
					return
				}
				if s.positionLocked() >= s.duration {
					s.playing = false
					s.base = s.duration
					s.timerCancel = nil
					zlog.Debug().Msgf("audio: source played to completion after %.1fs", s.duration)
					s.emitLocked(playback.OutputEnded, nil)
					s.mu.Unlock()
					return
				}
				s.mu.Unlock()
			}
		}
	}()
}

func (s *Simulated) stopTimerLocked() {
	if s.timerCancel != nil {
		s.timerCancel()
		s.timerCancel = nil
	}
}

// emitLocked sends an event without blocking.
// Must be called with lock held.
func (s *Simulated) emitLocked(t playback.OutputEventType, err error) {
	if s.closed {
		return
	}
	select {
	case s.events <- playback.OutputEvent{Type: t, Source: s.src, Err: err}:
	default:
		// Channel full, drop event
	}
}
