// Package backend provides the client for the player's streaming backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/mkazantsev/waveplay/internal/domain/playlist"
	"github.com/mkazantsev/waveplay/internal/domain/track"
)

const availabilityCacheSize = 256

// Config represents backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Availability is the backend's verdict on a SoundCloud track.
type Availability struct {
	Available bool   `json:"available"`
	URL       string `json:"url"`
	Error     string `json:"error"`
}

// WaveSettings selects the flavor of a recommendation wave.
type WaveSettings struct {
	Mood      string
	Character string
}

// Client is a streaming backend client.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Availability results are stable for the lifetime of a session; the
	// cache plus single flight keep repeated pre-play checks off the wire.
	availabilityCache *lru.Cache[string, Availability]
	flight            singleflight.Group

	// In-flight preload requests, cancellable as a group
	preloadMu      sync.Mutex
	preloadCancels map[string]context.CancelFunc
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	cache, err := lru.New[string, Availability](availabilityCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create availability cache")
	}

	return &Client{
		baseURL:           cfg.BaseURL,
		httpClient:        &http.Client{Timeout: timeout},
		availabilityCache: cache,
		preloadCancels:    make(map[string]context.CancelFunc),
	}, nil
}

// StreamURL returns the streaming URL for a track. No request is made; the
// backend resolves the actual media when the URL is fetched.
func (c *Client) StreamURL(t track.Track) (string, error) {
	id := url.QueryEscape(t.ID)
	switch t.Platform {
	case track.PlatformYouTube:
		return fmt.Sprintf("%s/stream/youtube?id=%s", c.baseURL, id), nil
	case track.PlatformSoundCloud:
		return fmt.Sprintf("%s/stream/soundcloud?id=%s", c.baseURL, id), nil
	case track.PlatformYandexMusic:
		return fmt.Sprintf("%s/yandex-music/stream?id=%s", c.baseURL, id), nil
	case track.PlatformVKMusic:
		return fmt.Sprintf("%s/stream/vkmusic?id=%s", c.baseURL, id), nil
	case track.PlatformLocal:
		return fmt.Sprintf("%s/stream/local?id=%s", c.baseURL, id), nil
	default:
		return "", errors.Errorf("unknown platform: %s", t.Platform)
	}
}

// FastStreamURL returns the low-latency streaming URL. Only YouTube has one.
func (c *Client) FastStreamURL(t track.Track) (string, error) {
	if t.Platform != track.PlatformYouTube {
		return "", errors.Errorf("no fast stream for platform: %s", t.Platform)
	}
	return fmt.Sprintf("%s/fast-stream/youtube?id=%s", c.baseURL, url.QueryEscape(t.ID)), nil
}

// DownloadURL returns the download URL for a track.
func (c *Client) DownloadURL(t track.Track) (string, error) {
	id := url.QueryEscape(t.ID)
	switch t.Platform {
	case track.PlatformYouTube:
		return fmt.Sprintf("%s/download/youtube?id=%s", c.baseURL, id), nil
	case track.PlatformSoundCloud:
		return fmt.Sprintf("%s/download/soundcloud?id=%s", c.baseURL, id), nil
	case track.PlatformYandexMusic:
		return fmt.Sprintf("%s/yandex-music/download?id=%s", c.baseURL, id), nil
	case track.PlatformVKMusic:
		return fmt.Sprintf("%s/download/vkmusic?id=%s", c.baseURL, id), nil
	case track.PlatformLocal:
		return fmt.Sprintf("%s/download/local?id=%s", c.baseURL, id), nil
	default:
		return "", errors.Errorf("unknown platform: %s", t.Platform)
	}
}

// CheckSoundCloudAvailability asks the backend whether a SoundCloud track is
// currently streamable. Results are cached; concurrent checks for the same
// track collapse into one request.
func (c *Client) CheckSoundCloudAvailability(ctx context.Context, trackID string) (Availability, error) {
	if cached, ok := c.availabilityCache.Get(trackID); ok {
		return cached, nil
	}

	v, err, _ := c.flight.Do(trackID, func() (any, error) {
		var result Availability
		path := fmt.Sprintf("/stream/soundcloud?id=%s&direct=true", url.QueryEscape(trackID))
		if err := c.getJSON(ctx, path, &result); err != nil {
			return Availability{}, err
		}
		c.availabilityCache.Add(trackID, result)
		return result, nil
	})
	if err != nil {
		return Availability{}, err
	}
	return v.(Availability), nil
}

// SetNowPlaying reports the current track to the backend.
func (c *Client) SetNowPlaying(ctx context.Context, t track.Track) error {
	body := map[string]any{
		"track_id": t.ID,
		"platform": string(t.Platform),
	}
	return c.postJSON(ctx, "/set-current-track", body, nil)
}

// PreloadTracks asks the backend to warm up streams for the given tracks.
// Only YouTube tracks benefit; others are filtered out. The request is
// registered so CancelPreloads can abort it.
func (c *Client) PreloadTracks(ctx context.Context, tracks []track.Track) error {
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.Platform == track.PlatformYouTube {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	reqCtx, cancel := context.WithCancel(ctx)
	requestID := uuid.New().String()

	c.preloadMu.Lock()
	c.preloadCancels[requestID] = cancel
	c.preloadMu.Unlock()

	defer func() {
		cancel()
		c.preloadMu.Lock()
		delete(c.preloadCancels, requestID)
		c.preloadMu.Unlock()
	}()

	body := map[string]any{
		"track_ids": ids,
		"context":   "adjacent_tracks",
	}
	return c.postJSON(reqCtx, "/youtube/preload-tracks", body, nil)
}

// CancelPreloads aborts all in-flight preload requests.
func (c *Client) CancelPreloads() {
	c.preloadMu.Lock()
	defer c.preloadMu.Unlock()

	for id, cancel := range c.preloadCancels {
		cancel()
		delete(c.preloadCancels, id)
	}
}

type waveResponse struct {
	Success bool          `json:"success"`
	Tracks  []track.Track `json:"tracks"`
	Error   string        `json:"error"`
}

// StartWave starts a recommendation wave and returns its first batch of
// tracks.
func (c *Client) StartWave(ctx context.Context, settings WaveSettings) ([]track.Track, error) {
	params := url.Values{}
	if settings.Mood != "" {
		params.Set("mood", settings.Mood)
	}
	if settings.Character != "" {
		params.Set("character", settings.Character)
	}
	path := "/yandex-music/wave/start"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp waveResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.Errorf("wave start failed: %s", resp.Error)
	}
	return resp.Tracks, nil
}

// NextWaveTracks fetches the next batch of wave tracks, excluding already
// used ones.
func (c *Client) NextWaveTracks(ctx context.Context, count int, usedTrackIDs []string) ([]track.Track, error) {
	if usedTrackIDs == nil {
		usedTrackIDs = []string{}
	}
	body := map[string]any{
		"count":        count,
		"usedTrackIds": usedTrackIDs,
	}

	var resp waveResponse
	if err := c.postJSON(ctx, "/yandex-music/wave/next", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.Errorf("wave next failed: %s", resp.Error)
	}
	return resp.Tracks, nil
}

// SendWaveFeedback posts a listening event for a wave track.
func (c *Client) SendWaveFeedback(ctx context.Context, trackID, feedbackType string, playedSeconds, trackDuration float64) error {
	body := map[string]any{
		"trackId":       trackID,
		"type":          feedbackType,
		"playedSeconds": playedSeconds,
		"trackDuration": trackDuration,
	}
	return c.postJSON(ctx, "/yandex-music/wave/feedback", body, nil)
}

// LoadLibrary fetches the playlists and liked tracks.
func (c *Client) LoadLibrary(ctx context.Context) (playlist.Library, error) {
	var lib playlist.Library
	if err := c.getJSON(ctx, "/playlists", &lib); err != nil {
		return playlist.Library{}, err
	}
	return lib, nil
}

// SaveLibrary pushes the full library.
func (c *Client) SaveLibrary(ctx context.Context, lib playlist.Library) error {
	return c.postJSON(ctx, "/playlists", lib, nil)
}

// SavePlaylistGroup pushes a group of playlists from a chunked save.
func (c *Client) SavePlaylistGroup(ctx context.Context, group []playlist.Playlist, groupIndex, totalGroups int) error {
	body := map[string]any{
		"playlists":    group,
		"liked_tracks": []track.Track{},
		"group_index":  groupIndex,
		"total_groups": totalGroups,
	}
	return c.postJSON(ctx, "/playlists", body, nil)
}

// SaveTrackChunk pushes one chunk of an oversized playlist's tracks, tagged
// so the backend can reassemble the playlist.
func (c *Client) SaveTrackChunk(ctx context.Context, playlistID int64, tracks []track.Track, chunkIndex, totalChunks int) error {
	body := map[string]any{
		"playlistId":  playlistID,
		"trackChunk":  tracks,
		"chunkIndex":  chunkIndex,
		"totalChunks": totalChunks,
	}
	return c.postJSON(ctx, "/playlists/track-chunk", body, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		zlog.Debug().Msgf("backend: %s %s returned %d", req.Method, req.URL.Path, resp.StatusCode)
		return errors.Errorf("backend error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
