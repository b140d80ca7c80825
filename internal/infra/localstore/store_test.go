package localstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkazantsev/waveplay/internal/domain/playlist"
	"github.com/mkazantsev/waveplay/internal/domain/track"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

func TestStore_PlaylistsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.Playlists()
	assert.False(t, ok)

	s.SetPlaylists([]playlist.Playlist{
		{ID: 1, Name: "Chill", Tracks: []track.Track{{ID: "a", Platform: track.PlatformYouTube}}},
	})

	playlists, ok := s.Playlists()
	require.True(t, ok)
	require.Len(t, playlists, 1)
	assert.Equal(t, "Chill", playlists[0].Name)
	assert.Equal(t, "a", playlists[0].Tracks[0].ID)
}

func TestStore_CurrentTrackAndPosition(t *testing.T) {
	s := newTestStore(t)

	s.SetCurrentTrack(track.Track{ID: "x", Platform: track.PlatformSoundCloud, QueueSource: "playlist_3"})
	s.SetPlaybackTime(93.5)

	current, ok := s.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "playlist_3", current.QueueSource)

	pos, ok := s.PlaybackTime()
	require.True(t, ok)
	assert.Equal(t, 93.5, pos)
}

func TestStore_OversizedEntrySkipped(t *testing.T) {
	s := newTestStore(t, WithMaxEntryBytes(128))

	huge := []track.Track{{ID: strings.Repeat("x", 500), Platform: track.PlatformYouTube}}
	s.SetLikedTracks(huge)

	_, ok := s.LikedTracks()
	assert.False(t, ok, "oversized entry must not be written")

	// Regular entries still work.
	s.SetPlaybackTime(1)
	_, ok = s.PlaybackTime()
	assert.True(t, ok)
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)

	s.SetPlaylists([]playlist.Playlist{{ID: 1, Name: "One"}})
	s.SetCurrentTrack(track.Track{ID: "a", Platform: track.PlatformYouTube})
	s.Clear()

	_, ok := s.Playlists()
	assert.False(t, ok)
	_, ok = s.CurrentTrack()
	assert.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)

	s.SetMainRecommendations(true)
	flag, ok := s.MainRecommendations()
	require.True(t, ok)
	assert.True(t, flag)

	s.Delete("isMainRecommendations")
	_, ok = s.MainRecommendations()
	assert.False(t, ok)
}

type viewPrefs struct {
	CompactQueue  bool   `mapstructure:"compact_queue"`
	DefaultTab    string `mapstructure:"default_tab"`
	VolumePercent int    `mapstructure:"volume_percent"`
}

func TestStore_PreferencesDecode(t *testing.T) {
	s := newTestStore(t)

	s.SetPreference("compact_queue", true)
	s.SetPreference("default_tab", "recommendations")
	s.SetPreference("volume_percent", 80)

	var prefs viewPrefs
	require.NoError(t, s.DecodePreferences(&prefs))
	assert.True(t, prefs.CompactQueue)
	assert.Equal(t, "recommendations", prefs.DefaultTab)
	assert.Equal(t, 80, prefs.VolumePercent)
}

func TestStore_PreferencesAccumulate(t *testing.T) {
	s := newTestStore(t)

	s.SetPreference("a", "one")
	s.SetPreference("b", "two")

	prefs := s.Preferences()
	assert.Equal(t, "one", prefs["a"])
	assert.Equal(t, "two", prefs["b"])
}
