// Package persist mirrors library and playback state to local storage and a
// remote store, keeping remote writes debounced and chunked.
package persist

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/mkazantsev/waveplay/internal/domain/playlist"
	"github.com/mkazantsev/waveplay/internal/domain/track"
)

const (
	defaultChunkThreshold = 5 * 1024 * 1024
	defaultDebounce       = 2 * time.Second
	defaultLoadRetries    = 3
	defaultLoadRetryDelay = 2 * time.Second

	// Headroom kept inside a track chunk so the envelope fields never push
	// the request over the threshold.
	chunkEnvelopeReserve = 1000
)

// RemoteStore is the remote side of the bridge.
type RemoteStore interface {
	LoadLibrary(ctx context.Context) (playlist.Library, error)
	SaveLibrary(ctx context.Context, lib playlist.Library) error
	SavePlaylistGroup(ctx context.Context, group []playlist.Playlist, groupIndex, totalGroups int) error
	SaveTrackChunk(ctx context.Context, playlistID int64, tracks []track.Track, chunkIndex, totalChunks int) error
}

// LocalStore is the local mirror. Writes are expected to handle their own
// size guarding and quota recovery; they never fail the caller.
type LocalStore interface {
	SetPlaylists(playlists []playlist.Playlist)
	SetLikedTracks(tracks []track.Track)
	Playlists() ([]playlist.Playlist, bool)
	LikedTracks() ([]track.Track, bool)
	SetCurrentTrack(t track.Track)
	CurrentTrack() (track.Track, bool)
	SetPlaybackTime(seconds float64)
	PlaybackTime() (float64, bool)
	Clear()
}

// Config holds bridge configuration.
type Config struct {
	ChunkThreshold int           // Remote payloads over this many bytes are split
	Debounce       time.Duration // Coalescing window for remote pushes
	LoadRetries    int           // Remote load attempts before local fallback
	LoadRetryDelay time.Duration // Fixed delay between load attempts
}

func (c *Config) applyDefaults() {
	if c.ChunkThreshold <= 0 {
		c.ChunkThreshold = defaultChunkThreshold
	}
	if c.Debounce <= 0 {
		c.Debounce = defaultDebounce
	}
	if c.LoadRetries <= 0 {
		c.LoadRetries = defaultLoadRetries
	}
	if c.LoadRetryDelay <= 0 {
		c.LoadRetryDelay = defaultLoadRetryDelay
	}
}

// Bridge is a write-behind cache over the remote store with an immediate
// local mirror.
type Bridge struct {
	remote RemoteStore
	local  LocalStore
	config Config

	sleep func(time.Duration)

	mu          sync.Mutex
	library     playlist.Library
	dirty       bool
	initialized bool
	timer       *time.Timer
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSleep overrides the retry sleep function.
func WithSleep(sleep func(time.Duration)) Option {
	return func(b *Bridge) { b.sleep = sleep }
}

// NewBridge creates a persistence bridge.
func NewBridge(remote RemoteStore, local LocalStore, config Config, opts ...Option) *Bridge {
	config.applyDefaults()
	b := &Bridge{
		remote: remote,
		local:  local,
		config: config,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load fetches the library from the remote store with bounded retries,
// falling back to the local mirror when the remote stays unreachable.
// Initialization is marked complete in every case so dependents can proceed.
func (b *Bridge) Load(ctx context.Context) playlist.Library {
	var lastErr error
	for attempt := 1; attempt <= b.config.LoadRetries; attempt++ {
		lib, err := b.remote.LoadLibrary(ctx)
		if err == nil {
			b.mu.Lock()
			b.library = lib
			b.initialized = true
			b.mu.Unlock()
			b.local.SetPlaylists(lib.Playlists)
			b.local.SetLikedTracks(lib.LikedTracks)
			return lib
		}
		lastErr = err
		zlog.Warn().Err(err).Msgf("persist: remote load attempt %d/%d failed", attempt, b.config.LoadRetries)
		if attempt < b.config.LoadRetries {
			b.sleep(b.config.LoadRetryDelay)
		}
	}

	zlog.Error().Err(lastErr).Msg("persist: remote load failed, falling back to local mirror")

	var lib playlist.Library
	if playlists, ok := b.local.Playlists(); ok {
		lib.Playlists = playlists
	}
	if liked, ok := b.local.LikedTracks(); ok {
		lib.LikedTracks = liked
	}

	b.mu.Lock()
	b.library = lib
	b.initialized = true
	b.mu.Unlock()
	return lib
}

// Initialized reports whether Load has completed.
func (b *Bridge) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// Library returns the current library.
func (b *Bridge) Library() playlist.Library {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.library
}

// SetLibrary replaces the library: the local mirror is written immediately,
// the remote push is scheduled after the debounce window so rapid edits
// coalesce into one write.
func (b *Bridge) SetLibrary(lib playlist.Library) {
	b.local.SetPlaylists(lib.Playlists)
	b.local.SetLikedTracks(lib.LikedTracks)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.library = lib
	b.dirty = true

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.config.Debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := b.Flush(ctx); err != nil {
			zlog.Warn().Err(err).Msg("persist: debounced remote push failed")
		}
	})
}

// SaveCurrentTrack mirrors the current track locally.
func (b *Bridge) SaveCurrentTrack(t track.Track) {
	b.local.SetCurrentTrack(t)
}

// SavePlaybackTime mirrors the playback position locally.
func (b *Bridge) SavePlaybackTime(seconds float64) {
	b.local.SetPlaybackTime(seconds)
}

// RestoredState is a queue revived from the persisted snapshot.
type RestoredState struct {
	Tracks   []track.Track
	Index    int
	Source   string
	Track    track.Track
	Position float64
}

// Restore re-derives the queue for the persisted current track by resolving
// its provenance tag against the freshly loaded library. A queue the current
// data cannot validate is never restored.
func (b *Bridge) Restore(lib playlist.Library) (RestoredState, bool) {
	current, ok := b.local.CurrentTrack()
	if !ok {
		return RestoredState{}, false
	}

	var collection []track.Track
	source := current.QueueSource
	switch {
	case source == track.SourceFavorites:
		collection = lib.LikedTracks
	default:
		id, ok := track.ParsePlaylistSource(source)
		if !ok {
			return RestoredState{}, false
		}
		pl := lib.FindPlaylist(id)
		if pl == nil {
			return RestoredState{}, false
		}
		collection = pl.Tracks
	}

	idx := track.IndexOf(collection, current)
	if idx == -1 {
		return RestoredState{}, false
	}

	state := RestoredState{
		Tracks: collection,
		Index:  idx,
		Source: source,
		Track:  collection[idx],
	}
	if pos, ok := b.local.PlaybackTime(); ok {
		state.Position = pos
	}
	return state, true
}

// Flush pushes the library to the remote store if there are unpushed
// changes. Idempotent: a clean bridge is a no-op.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	if !b.dirty {
		b.mu.Unlock()
		return nil
	}
	lib := b.library
	b.mu.Unlock()

	if err := b.push(ctx, lib); err != nil {
		return err
	}

	b.mu.Lock()
	b.dirty = false
	b.mu.Unlock()
	return nil
}

// push writes the library remotely, splitting the payload when it exceeds
// the chunk threshold: liked tracks alone first, then playlists in groups,
// with oversized playlists reduced to a header record plus track chunks.
// Group and chunk pushes are independent and best-effort.
func (b *Bridge) push(ctx context.Context, lib playlist.Library) error {
	payload, err := json.Marshal(lib)
	if err != nil {
		return errors.Wrap(err, "marshal library")
	}

	if len(payload) <= b.config.ChunkThreshold {
		return b.remote.SaveLibrary(ctx, lib)
	}

	zlog.Info().Msgf("persist: payload %d bytes exceeds threshold, saving in chunks", len(payload))

	if err := b.remote.SaveLibrary(ctx, playlist.Library{
		Playlists:   []playlist.Playlist{},
		LikedTracks: lib.LikedTracks,
	}); err != nil {
		return errors.Wrap(err, "save liked tracks")
	}

	var groups [][]playlist.Playlist
	var group []playlist.Playlist
	groupSize := 0

	flushGroup := func() {
		if len(group) > 0 {
			groups = append(groups, group)
			group = nil
			groupSize = 0
		}
	}

	for _, pl := range lib.Playlists {
		size := jsonSize(pl)

		if size > b.config.ChunkThreshold {
			header := playlist.Playlist{ID: pl.ID, Name: pl.Name, Tracks: []track.Track{}, CustomCover: pl.CustomCover}
			headerSize := jsonSize(header)
			if groupSize+headerSize > b.config.ChunkThreshold {
				flushGroup()
			}
			group = append(group, header)
			groupSize += headerSize

			b.pushTrackChunks(ctx, pl)
			continue
		}

		if groupSize+size > b.config.ChunkThreshold {
			flushGroup()
		}
		group = append(group, pl)
		groupSize += size
	}
	flushGroup()

	for i, g := range groups {
		if err := b.remote.SavePlaylistGroup(ctx, g, i, len(groups)); err != nil {
			zlog.Warn().Err(err).Msgf("persist: playlist group %d/%d failed", i+1, len(groups))
		}
	}
	return nil
}

// pushTrackChunks splits one oversized playlist's tracks into chunks under
// the threshold and pushes each independently.
func (b *Bridge) pushTrackChunks(ctx context.Context, pl playlist.Playlist) {
	limit := b.config.ChunkThreshold - chunkEnvelopeReserve

	var chunks [][]track.Track
	var chunk []track.Track
	chunkSize := 0

	for _, t := range pl.Tracks {
		size := jsonSize(t)
		if len(chunk) > 0 && chunkSize+size > limit {
			chunks = append(chunks, chunk)
			chunk = nil
			chunkSize = 0
		}
		chunk = append(chunk, t)
		chunkSize += size
	}
	if len(chunk) > 0 {
		chunks = append(chunks, chunk)
	}

	for i, c := range chunks {
		if err := b.remote.SaveTrackChunk(ctx, pl.ID, c, i, len(chunks)); err != nil {
			zlog.Warn().Err(err).Msgf("persist: track chunk %d/%d for playlist %d failed", i+1, len(chunks), pl.ID)
		}
	}
}

// Clear wipes both the local mirror and the in-memory library.
func (b *Bridge) Clear() {
	b.local.Clear()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.library = playlist.Library{}
	b.dirty = false
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Close stops the debounce timer and performs a final flush.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()
	return b.Flush(ctx)
}

func jsonSize(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
