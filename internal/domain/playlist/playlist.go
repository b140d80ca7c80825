// Package playlist provides the Playlist and Library domain entities.
package playlist

import "github.com/mkazantsev/waveplay/internal/domain/track"

// Playlist represents a user-owned ordered track collection.
type Playlist struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Tracks      []track.Track `json:"tracks"`
	CustomCover string        `json:"customCover,omitempty"`
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	ids := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the total duration of all tracks in seconds.
func (p *Playlist) TotalDuration() float64 {
	var total float64
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}

// Library is the user-owned persisted collection state: playlists plus
// liked tracks. Liked-track order is insertion order (most recent last).
type Library struct {
	Playlists   []Playlist    `json:"playlists"`
	LikedTracks []track.Track `json:"liked_tracks"`
}

// FindPlaylist returns the playlist with the given id, or nil.
func (l *Library) FindPlaylist(id int64) *Playlist {
	for i := range l.Playlists {
		if l.Playlists[i].ID == id {
			return &l.Playlists[i]
		}
	}
	return nil
}

// IsEmpty reports whether the library holds no data at all.
func (l *Library) IsEmpty() bool {
	return len(l.Playlists) == 0 && len(l.LikedTracks) == 0
}
