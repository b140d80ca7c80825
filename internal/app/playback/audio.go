package playback

// OutputEventType represents an audio output event type.
type OutputEventType int

const (
	OutputCanPlay OutputEventType = iota // Enough data buffered to start
	OutputWaiting                        // Buffering stalled mid-playback
	OutputPlaying                        // Audio is audibly playing
	OutputEnded                          // Source played to completion
	OutputError                          // Source failed to load or decode
)

// String returns the string representation of the event type.
func (e OutputEventType) String() string {
	switch e {
	case OutputCanPlay:
		return "canplay"
	case OutputWaiting:
		return "waiting"
	case OutputPlaying:
		return "playing"
	case OutputEnded:
		return "ended"
	case OutputError:
		return "error"
	default:
		return "unknown"
	}
}

// OutputEvent is emitted by the audio output handle. Source carries the
// stream URL the event belongs to, so handlers can discard events from a
// source that has since been replaced.
type OutputEvent struct {
	Type   OutputEventType
	Source string
	Err    error
}

// Output is the shared audio output handle. There is exactly one per
// player; reconfiguring it is what a track switch means.
type Output interface {
	// SetSource replaces the current source URL and resets position to 0.
	SetSource(url string)
	// Play starts or resumes playback of the current source. A rejection
	// is returned as an error.
	Play() error
	// Pause pauses playback, keeping the position.
	Pause()
	// Seek moves the position, in seconds, clamped to the source bounds.
	Seek(seconds float64)
	// Position returns the current position in seconds.
	Position() float64
	// Stop halts playback and drops the source.
	Stop()
	// Events returns the event stream. Closed when the output shuts down.
	Events() <-chan OutputEvent
}

// DurationHinter is implemented by outputs that cannot discover a source's
// duration on their own and accept the track metadata's value instead.
type DurationHinter interface {
	HintDuration(seconds float64)
}
