package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkazantsev/waveplay/internal/app/playback"
	"github.com/mkazantsev/waveplay/internal/infra/backend"
)

type fakePlayer struct {
	mu         sync.Mutex
	calls      []string
	seekTo     float64
	seekBy     float64
	repeatMode string
	rating     string
	wave       backend.WaveSettings
	err        error
	status     playback.Status
}

func (f *fakePlayer) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakePlayer) Play() error            { return f.record("play") }
func (f *fakePlayer) Pause() error           { return f.record("pause") }
func (f *fakePlayer) TogglePlayPause() error { return f.record("toggle") }
func (f *fakePlayer) Next() error            { return f.record("next") }
func (f *fakePlayer) Previous() error        { return f.record("previous") }
func (f *fakePlayer) Stop() error            { return f.record("stop") }

func (f *fakePlayer) SeekTo(seconds float64) error {
	f.seekTo = seconds
	return f.record("seekTo")
}

func (f *fakePlayer) SeekBy(delta float64) error {
	f.seekBy = delta
	return f.record("seekBy")
}

func (f *fakePlayer) Status() playback.Status { return f.status }

func (f *fakePlayer) SetRepeatMode(mode string) {
	f.repeatMode = mode
	_ = f.record("repeat")
}

func (f *fakePlayer) ToggleShuffle() bool {
	_ = f.record("shuffle")
	return true
}

func (f *fakePlayer) ClearCustomQueue() { _ = f.record("clearQueue") }

func (f *fakePlayer) RateCurrent(feedbackType string) error {
	f.rating = feedbackType
	return f.record("rate")
}

func (f *fakePlayer) StartWave(_ context.Context, settings backend.WaveSettings) error {
	f.wave = settings
	return f.record("startWave")
}

func (f *fakePlayer) StopWave() { _ = f.record("stopWave") }

func (f *fakePlayer) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestServer(t *testing.T, p *fakePlayer) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewHandler(p))
	t.Cleanup(server.Close)
	return server
}

func post(t *testing.T, server *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandler_SimpleActions(t *testing.T) {
	tests := []struct {
		path string
		call string
	}{
		{"/control/play", "play"},
		{"/control/pause", "pause"},
		{"/control/toggle", "toggle"},
		{"/control/next", "next"},
		{"/control/previous", "previous"},
		{"/control/stop", "stop"},
	}
	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			player := &fakePlayer{}
			server := newTestServer(t, player)

			resp := post(t, server, tt.path, nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, []string{tt.call}, player.called())
		})
	}
}

func TestHandler_Status(t *testing.T) {
	player := &fakePlayer{status: playback.Status{
		State:       playback.StatePlaying,
		Position:    42.5,
		RepeatMode:  "track",
		QueueLength: 3,
	}}
	server := newTestServer(t, player)

	resp, err := http.Get(server.URL + "/control/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "playing", got["state"])
	assert.Equal(t, 42.5, got["position"])
	assert.Equal(t, "track", got["repeat_mode"])
}

func TestHandler_SeekPosition(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(t, player)

	resp := post(t, server, "/control/seek", map[string]float64{"position": 30})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"seekTo"}, player.called())
	assert.Equal(t, 30.0, player.seekTo)
}

func TestHandler_SeekDelta(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(t, player)

	resp := post(t, server, "/control/seek", map[string]float64{"delta": -10})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, -10.0, player.seekBy)
}

func TestHandler_SeekMissingFields(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(t, player)

	resp := post(t, server, "/control/seek", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, player.called())
}

func TestHandler_Repeat(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(t, player)

	resp := post(t, server, "/control/repeat", map[string]string{"mode": "playlist"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "playlist", player.repeatMode)
}

func TestHandler_Rate(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(t, player)

	resp := post(t, server, "/control/rate", map[string]string{"type": "like"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "like", player.rating)
}

func TestHandler_RateWithoutTrack(t *testing.T) {
	player := &fakePlayer{err: playback.ErrNoTrack}
	server := newTestServer(t, player)

	resp := post(t, server, "/control/rate", map[string]string{"type": "like"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandler_RateMissingType(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(t, player)

	resp := post(t, server, "/control/rate", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, player.called())
}

func TestHandler_WaveStart(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(t, player)

	resp := post(t, server, "/control/wave/start",
		map[string]string{"mood": "energetic", "character": "favorite"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "energetic", player.wave.Mood)
	assert.Equal(t, "favorite", player.wave.Character)
}

func TestHandler_ActionError(t *testing.T) {
	player := &fakePlayer{err: playback.ErrQueueEmpty}
	server := newTestServer(t, player)

	resp := post(t, server, "/control/next", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Contains(t, got["error"], "queue")
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(t, player)

	resp, err := http.Get(server.URL + "/control/play")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
