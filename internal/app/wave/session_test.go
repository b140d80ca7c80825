package wave

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkazantsev/waveplay/internal/domain/track"
	"github.com/mkazantsev/waveplay/internal/infra/backend"
)

type fakeSource struct {
	mu        sync.Mutex
	started   []backend.WaveSettings
	nextCalls int
	usedIDs   [][]string
	batch     []track.Track
	err       error
	block     chan struct{} // When set, NextWaveTracks waits on it
	entered   chan struct{} // Signals a blocked NextWaveTracks began
}

func (f *fakeSource) StartWave(_ context.Context, settings backend.WaveSettings) ([]track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, settings)
	return f.batch, nil
}

func (f *fakeSource) NextWaveTracks(_ context.Context, _ int, usedTrackIDs []string) ([]track.Track, error) {
	f.mu.Lock()
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if block != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextCalls++
	f.usedIDs = append(f.usedIDs, usedTrackIDs)
	return f.batch, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextCalls
}

type fakeQueue struct {
	source string
	tracks []track.Track
	index  int
}

func (f *fakeQueue) Source() string        { return f.source }
func (f *fakeQueue) Tracks() []track.Track { return f.tracks }
func (f *fakeQueue) Index() int            { return f.index }

func wt(id string) track.Track {
	return track.Track{ID: id, Platform: track.PlatformYandexMusic}
}

func waveQueue(index int, ids ...string) *fakeQueue {
	q := &fakeQueue{source: track.SourceWave, index: index}
	for _, id := range ids {
		t := wt(id)
		t.QueueSource = track.SourceWave
		q.tracks = append(q.tracks, t)
	}
	return q
}

func TestSession_StartStampsProvenance(t *testing.T) {
	source := &fakeSource{batch: []track.Track{wt("w1"), wt("w2")}}
	s := NewSession(source, &fakeQueue{}, nil, Config{})

	batch, err := s.Start(context.Background(), backend.WaveSettings{Mood: "calm"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	for _, b := range batch {
		assert.Equal(t, track.SourceWave, b.QueueSource)
	}
	assert.True(t, s.Active())
	assert.Equal(t, "calm", source.started[0].Mood)
}

func TestSession_StartFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("not authenticated")}
	s := NewSession(source, &fakeQueue{}, nil, Config{})

	_, err := s.Start(context.Background(), backend.WaveSettings{})
	require.Error(t, err)
	assert.False(t, s.Active())
}

func TestSession_LoadMoreGrowsQueue(t *testing.T) {
	source := &fakeSource{batch: []track.Track{wt("w4"), wt("w5")}}
	queue := waveQueue(1, "w1", "w2", "w3")

	var got []track.Track
	s := NewSession(source, queue, func(tracks []track.Track) { got = tracks }, Config{MinAhead: 5})
	startSession(t, s, source)

	require.NoError(t, s.LoadMore(context.Background()))

	require.Len(t, got, 5)
	assert.Equal(t, "w4", got[3].ID)
	assert.Equal(t, track.SourceWave, got[3].QueueSource)

	// Used IDs cover the whole live queue.
	assert.Equal(t, []string{"w1", "w2", "w3"}, source.usedIDs[0])
}

func TestSession_LoadMoreSkippedWithEnoughAhead(t *testing.T) {
	source := &fakeSource{batch: []track.Track{wt("w9")}}
	queue := waveQueue(0, "w1", "w2", "w3", "w4", "w5", "w6", "w7", "w8")

	s := NewSession(source, queue, nil, Config{MinAhead: 5})
	startSession(t, s, source)

	require.NoError(t, s.LoadMore(context.Background()))
	assert.Zero(t, source.calls(), "7 tracks ahead, refill must be skipped")
}

func TestSession_LoadMoreSkippedWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	source := &fakeSource{batch: []track.Track{wt("w4")}, block: block, entered: entered}
	queue := waveQueue(2, "w1", "w2", "w3")

	s := NewSession(source, queue, nil, Config{MinAhead: 5})
	startSession(t, s, source)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.LoadMore(context.Background())
	}()

	// Second call returns immediately while the first is blocked.
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first refill never started")
	}
	require.NoError(t, s.LoadMore(context.Background()))

	close(block)
	<-done
	assert.Equal(t, 1, source.calls())
}

func TestSession_LoadMoreInactive(t *testing.T) {
	source := &fakeSource{batch: []track.Track{wt("w1")}}
	s := NewSession(source, &fakeQueue{}, nil, Config{})

	require.NoError(t, s.LoadMore(context.Background()))
	assert.Zero(t, source.calls())
}

func TestSession_StopEndsRefills(t *testing.T) {
	source := &fakeSource{batch: []track.Track{wt("w4")}}
	queue := waveQueue(2, "w1", "w2", "w3")

	s := NewSession(source, queue, nil, Config{})
	startSession(t, s, source)
	s.Stop()

	require.NoError(t, s.LoadMore(context.Background()))
	assert.Zero(t, source.calls())
	assert.False(t, s.Active())
}

func startSession(t *testing.T, s *Session, source *fakeSource) {
	t.Helper()
	source.mu.Lock()
	prev := source.batch
	source.batch = []track.Track{wt("w1"), wt("w2"), wt("w3")}
	source.mu.Unlock()

	_, err := s.Start(context.Background(), backend.WaveSettings{})
	require.NoError(t, err)

	source.mu.Lock()
	source.batch = prev
	source.mu.Unlock()
}
