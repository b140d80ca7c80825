// Package playback owns the shared audio output handle and decides
// track transitions under the active repeat and queue policy.
package playback

import "encoding/json"

// State represents the playback state.
type State int

const (
	StateIdle          State = iota // No current track
	StateLoading                    // Stream URL requested, audio buffering
	StatePlaying                    // Track is playing
	StatePaused                     // Track is paused
	StateTransitioning              // Between tracks (end-of-track handling)
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateTransitioning:
		return "transitioning"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its string form.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// RepeatMode controls what happens when a track or the queue ends.
type RepeatMode int

const (
	RepeatNone     RepeatMode = iota // Stop at queue end
	RepeatTrack                      // Restart the current track
	RepeatPlaylist                   // Wrap to the start of the queue
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatTrack:
		return "track"
	case RepeatPlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// ParseRepeatMode parses a repeat mode string. Unknown values map to
// RepeatNone.
func ParseRepeatMode(s string) RepeatMode {
	switch s {
	case "track":
		return RepeatTrack
	case "playlist":
		return RepeatPlaylist
	default:
		return RepeatNone
	}
}
