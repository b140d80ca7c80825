// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"strconv"
	"strings"
)

// Platform identifies the streaming platform a track belongs to.
type Platform string

const (
	PlatformYouTube     Platform = "youtube"
	PlatformSoundCloud  Platform = "soundcloud"
	PlatformYandexMusic Platform = "yandex_music"
	PlatformVKMusic     Platform = "vkmusic"
	PlatformLocal       Platform = "local"
)

// Known queue provenance tags. Playlist-backed queues use SourcePlaylist.
const (
	SourceSearch    = "search"
	SourceFavorites = "favorites"
	SourceWave      = "yandex_wave"
)

// Track represents a playable unit from one of the supported platforms.
// IDs are platform-scoped: identity for all queue operations is the
// (ID, Platform) pair, never object identity.
type Track struct {
	ID          string   `json:"id"`
	Platform    Platform `json:"platform"`
	Title       string   `json:"title"`
	Uploader    string   `json:"uploader,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Duration    float64  `json:"duration,omitempty"` // seconds, approximate until playback
	StreamURL   string   `json:"streamUrl,omitempty"`
	QueueSource string   `json:"queueSource,omitempty"` // provenance tag recorded on enqueue
}

// Same reports whether two tracks are the same playable unit.
func (t Track) Same(other Track) bool {
	return t.ID == other.ID && t.Platform == other.Platform
}

// IsWave reports whether the track was enqueued from the recommendation
// service's own session, which makes it eligible for wave feedback.
func (t Track) IsWave() bool {
	return t.QueueSource == SourceWave
}

// IndexOf returns the position of target in tracks by identity, or -1.
func IndexOf(tracks []Track, target Track) int {
	for i, t := range tracks {
		if t.Same(target) {
			return i
		}
	}
	return -1
}

// SourcePlaylist builds the provenance tag for a playlist-backed queue.
func SourcePlaylist(id int64) string {
	return fmt.Sprintf("playlist_%d", id)
}

// ParsePlaylistSource extracts the playlist id from a playlist provenance
// tag. Returns false for every other tag.
func ParsePlaylistSource(tag string) (int64, bool) {
	rest, ok := strings.CutPrefix(tag, "playlist_")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
