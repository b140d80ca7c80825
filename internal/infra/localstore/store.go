// Package localstore persists player state as per-key JSON files, standing
// in for browser local storage: writes are best-effort, size-guarded, and
// never fail the caller.
package localstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/mkazantsev/waveplay/internal/domain/playlist"
	"github.com/mkazantsev/waveplay/internal/domain/track"
)

// Storage keys
const (
	keyPlaylists           = "playlists"
	keyLikedTracks         = "likedTracks"
	keyCurrentTrack        = "currentTrack"
	keyPlaybackTime        = "currentPlaybackTime"
	keyMainRecommendations = "isMainRecommendations"
	keyPreferences         = "preferences"
)

const defaultMaxEntryBytes = 4 * 1024 * 1024

// Store is a file-backed key-value store for player state.
type Store struct {
	dir           string
	maxEntryBytes int

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEntryBytes overrides the per-entry size guard.
func WithMaxEntryBytes(n int) Option {
	return func(s *Store) { s.maxEntryBytes = n }
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("local store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create local store directory")
	}

	s := &Store{
		dir:           dir,
		maxEntryBytes: defaultMaxEntryBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetPlaylists mirrors the playlists.
func (s *Store) SetPlaylists(playlists []playlist.Playlist) {
	s.set(keyPlaylists, playlists)
}

// Playlists returns the mirrored playlists.
func (s *Store) Playlists() ([]playlist.Playlist, bool) {
	var playlists []playlist.Playlist
	if !s.get(keyPlaylists, &playlists) {
		return nil, false
	}
	return playlists, true
}

// SetLikedTracks mirrors the liked tracks.
func (s *Store) SetLikedTracks(tracks []track.Track) {
	s.set(keyLikedTracks, tracks)
}

// LikedTracks returns the mirrored liked tracks.
func (s *Store) LikedTracks() ([]track.Track, bool) {
	var tracks []track.Track
	if !s.get(keyLikedTracks, &tracks) {
		return nil, false
	}
	return tracks, true
}

// SetCurrentTrack mirrors the current track.
func (s *Store) SetCurrentTrack(t track.Track) {
	s.set(keyCurrentTrack, t)
}

// CurrentTrack returns the mirrored current track.
func (s *Store) CurrentTrack() (track.Track, bool) {
	var t track.Track
	if !s.get(keyCurrentTrack, &t) {
		return track.Track{}, false
	}
	return t, true
}

// SetPlaybackTime mirrors the playback position.
func (s *Store) SetPlaybackTime(seconds float64) {
	s.set(keyPlaybackTime, seconds)
}

// PlaybackTime returns the mirrored playback position.
func (s *Store) PlaybackTime() (float64, bool) {
	var seconds float64
	if !s.get(keyPlaybackTime, &seconds) {
		return 0, false
	}
	return seconds, true
}

// SetMainRecommendations mirrors the recommendations-as-home flag.
func (s *Store) SetMainRecommendations(enabled bool) {
	s.set(keyMainRecommendations, enabled)
}

// MainRecommendations returns the recommendations-as-home flag.
func (s *Store) MainRecommendations() (bool, bool) {
	var enabled bool
	if !s.get(keyMainRecommendations, &enabled) {
		return false, false
	}
	return enabled, true
}

// SetPreference stores one view preference under its name.
func (s *Store) SetPreference(name string, value any) {
	s.mu.Lock()
	prefs := s.preferencesLocked()
	prefs[name] = value
	s.mu.Unlock()
	s.set(keyPreferences, prefs)
}

// Preferences returns all stored view preferences.
func (s *Store) Preferences() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferencesLocked()
}

// DecodePreferences decodes the stored preferences into a typed struct.
func (s *Store) DecodePreferences(out any) error {
	s.mu.Lock()
	prefs := s.preferencesLocked()
	s.mu.Unlock()
	return mapstructure.Decode(prefs, out)
}

func (s *Store) preferencesLocked() map[string]any {
	prefs := make(map[string]any)
	data, err := os.ReadFile(s.path(keyPreferences))
	if err != nil {
		return prefs
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return make(map[string]any)
	}
	return prefs
}

// Delete removes one entry.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = os.Remove(s.path(key))
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) clearLocked() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			_ = os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
}

// set writes one entry. Oversized entries are skipped with a warning; a
// failed write clears the store and retries once, mirroring quota recovery.
func (s *Store) set(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zlog.Warn().Err(err).Msgf("localstore: cannot marshal %s", key)
		return
	}

	if len(data) > s.maxEntryBytes {
		zlog.Warn().Msgf("localstore: %s is %d bytes, over the %d limit, skipping local mirror",
			key, len(data), s.maxEntryBytes)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		zlog.Warn().Err(err).Msgf("localstore: write %s failed, clearing and retrying", key)
		s.clearLocked()
		if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
			zlog.Error().Err(err).Msgf("localstore: retry write %s failed", key)
		}
	}
}

func (s *Store) get(key string, out any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		zlog.Warn().Err(err).Msgf("localstore: corrupt entry %s", key)
		return false
	}
	return true
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
