package playback

import "github.com/mkazantsev/waveplay/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackChanged EventType = iota // A new track became current
	EventStateChanged                  // Playback state changed (pause/resume/loading)
	EventQueueEnded                    // Queue exhausted, playback stopped
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEnded:
		return "queue_ended"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type  EventType
	Track *track.Track // Current track (nil for EventQueueEnded)
	State State
}
