// Package wave manages a recommendation-service listening session: starting
// a wave, topping up its queue ahead of the pointer, and keeping refills
// from stampeding.
package wave

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/mkazantsev/waveplay/internal/domain/track"
	"github.com/mkazantsev/waveplay/internal/infra/backend"
)

// Source provides wave tracks from the recommendation service.
type Source interface {
	StartWave(ctx context.Context, settings backend.WaveSettings) ([]track.Track, error)
	NextWaveTracks(ctx context.Context, count int, usedTrackIDs []string) ([]track.Track, error)
}

// QueueView is the read side of the live queue the session tops up.
type QueueView interface {
	Source() string
	Tracks() []track.Track
	Index() int
}

// Config holds session configuration.
type Config struct {
	BatchSize int // Tracks requested per refill
	MinAhead  int // Refills are skipped while more than this many tracks remain ahead
}

// Session is one wave listening session.
type Session struct {
	source   Source
	queue    QueueView
	onTracks func([]track.Track)
	config   Config

	mu      sync.Mutex
	id      string
	active  bool
	loading bool
	tracks  []track.Track
}

// NewSession creates a wave session. onTracks receives the grown track list
// whenever a refill lands; the caller applies it to the live queue.
func NewSession(source Source, queue QueueView, onTracks func([]track.Track), config Config) *Session {
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	if config.MinAhead <= 0 {
		config.MinAhead = 5
	}
	return &Session{
		source:   source,
		queue:    queue,
		onTracks: onTracks,
		config:   config,
	}
}

// Start begins a new wave and returns its first batch, tagged with wave
// provenance.
func (s *Session) Start(ctx context.Context, settings backend.WaveSettings) ([]track.Track, error) {
	batch, err := s.source.StartWave(ctx, settings)
	if err != nil {
		return nil, err
	}
	stampWave(batch)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = uuid.New().String()
	s.active = true
	s.tracks = append([]track.Track(nil), batch...)
	zlog.Info().Msgf("wave: session %s started with %d tracks", s.id, len(batch))
	return batch, nil
}

// Active reports whether a wave session is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop ends the session. Queued wave tracks keep playing; no more refills
// happen.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// LoadMore fetches the next batch when the pointer is getting close to the
// end of the wave queue. Skipped while another refill is in flight or while
// enough tracks remain ahead.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	if s.loading {
		s.mu.Unlock()
		zlog.Debug().Msg("wave: refill already in flight, skipping")
		return nil
	}

	used := s.usedTrackIDsLocked()
	if remaining, enough := s.tracksAheadLocked(); enough {
		s.mu.Unlock()
		zlog.Debug().Msgf("wave: %d tracks ahead, refill not needed", remaining)
		return nil
	}

	s.loading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	batch, err := s.source.NextWaveTracks(ctx, s.config.BatchSize, used)
	if err != nil {
		zlog.Warn().Err(err).Msg("wave: refill failed")
		return err
	}
	if len(batch) == 0 {
		zlog.Debug().Msg("wave: refill returned no tracks")
		return nil
	}
	stampWave(batch)

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	base := s.liveTracksLocked()
	updated := make([]track.Track, 0, len(base)+len(batch))
	updated = append(updated, base...)
	updated = append(updated, batch...)
	s.tracks = updated
	onTracks := s.onTracks
	s.mu.Unlock()

	zlog.Info().Msgf("wave: added %d tracks, %d total", len(batch), len(updated))
	if onTracks != nil {
		onTracks(updated)
	}
	return nil
}

// Refill is a fire-and-forget LoadMore, suitable as a feedback emitter's
// refill callback.
func (s *Session) Refill() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.LoadMore(ctx)
	}()
}

// tracksAheadLocked reports how many tracks remain past the pointer in the
// live wave queue, and whether that is enough to skip a refill.
func (s *Session) tracksAheadLocked() (int, bool) {
	if s.queue == nil || s.queue.Source() != track.SourceWave {
		return 0, false
	}
	remaining := len(s.queue.Tracks()) - s.queue.Index() - 1
	return remaining, remaining > s.config.MinAhead
}

// liveTracksLocked returns the authoritative track list to grow: the live
// queue when it is playing this wave, the session's own list otherwise.
func (s *Session) liveTracksLocked() []track.Track {
	if s.queue != nil && s.queue.Source() == track.SourceWave {
		return s.queue.Tracks()
	}
	return s.tracks
}

func (s *Session) usedTrackIDsLocked() []string {
	base := s.liveTracksLocked()
	ids := make([]string, 0, len(base))
	for _, t := range base {
		ids = append(ids, t.ID)
	}
	return ids
}

func stampWave(tracks []track.Track) {
	for i := range tracks {
		tracks[i].QueueSource = track.SourceWave
	}
}
