package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkazantsev/waveplay/internal/app/playback"
)

func waitEvent(t *testing.T, s *Simulated, want playback.OutputEventType, timeout time.Duration) playback.OutputEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-s.Events():
			if e.Type == want {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event within %v", want, timeout)
			return playback.OutputEvent{}
		}
	}
}

func TestSimulated_PlayEmitsPlaying(t *testing.T) {
	s := NewSimulated()
	defer s.Close()

	s.SetSource("http://backend/stream/youtube?id=a")
	waitEvent(t, s, playback.OutputCanPlay, time.Second)

	require.NoError(t, s.Play())
	e := waitEvent(t, s, playback.OutputPlaying, time.Second)
	assert.Equal(t, "http://backend/stream/youtube?id=a", e.Source)
}

func TestSimulated_PlayWithoutSourceFails(t *testing.T) {
	s := NewSimulated()
	defer s.Close()

	assert.Error(t, s.Play())
}

func TestSimulated_EndsAtHintedDuration(t *testing.T) {
	s := NewSimulated()
	defer s.Close()

	s.SetSource("http://backend/stream/youtube?id=a")
	s.HintDuration(0.15)
	require.NoError(t, s.Play())

	e := waitEvent(t, s, playback.OutputEnded, 2*time.Second)
	assert.Equal(t, "http://backend/stream/youtube?id=a", e.Source)
	assert.InDelta(t, 0.15, s.Position(), 0.01)
}

func TestSimulated_PauseFreezesPosition(t *testing.T) {
	s := NewSimulated()
	defer s.Close()

	s.SetSource("src")
	s.HintDuration(600)
	require.NoError(t, s.Play())

	time.Sleep(60 * time.Millisecond)
	s.Pause()
	pos := s.Position()
	assert.Greater(t, pos, 0.0)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, pos, s.Position())
}

func TestSimulated_SeekClamps(t *testing.T) {
	s := NewSimulated()
	defer s.Close()

	s.SetSource("src")
	s.HintDuration(100)

	s.Seek(-5)
	assert.Equal(t, 0.0, s.Position())

	s.Seek(500)
	assert.Equal(t, 100.0, s.Position())

	s.Seek(42)
	assert.Equal(t, 42.0, s.Position())
}

func TestSimulated_SetSourceResetsPosition(t *testing.T) {
	s := NewSimulated()
	defer s.Close()

	s.SetSource("one")
	s.HintDuration(100)
	s.Seek(50)
	require.Equal(t, 50.0, s.Position())

	s.SetSource("two")
	assert.Equal(t, 0.0, s.Position())
}

func TestSimulated_StopDropsSource(t *testing.T) {
	s := NewSimulated()
	defer s.Close()

	s.SetSource("src")
	s.HintDuration(100)
	require.NoError(t, s.Play())

	s.Stop()
	assert.Equal(t, 0.0, s.Position())
	assert.Error(t, s.Play(), "stopped output has no source")
}

func TestSimulated_ReplacedSourceNeverEmitsStaleEnd(t *testing.T) {
	s := NewSimulated()
	defer s.Close()

	s.SetSource("one")
	s.HintDuration(0.1)
	require.NoError(t, s.Play())

	s.SetSource("two")
	s.HintDuration(600)
	require.NoError(t, s.Play())

	// Give the old timer a chance to misfire.
	time.Sleep(300 * time.Millisecond)
	for {
		select {
		case e := <-s.Events():
			assert.NotEqual(t, playback.OutputEnded, e.Type, "stale end event from replaced source")
		default:
			return
		}
	}
}
