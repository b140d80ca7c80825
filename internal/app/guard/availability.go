package guard

import (
	"context"
	"fmt"

	"github.com/mkazantsev/waveplay/internal/domain/track"
)

// Availability is the platform's verdict on whether a track can stream.
type Availability struct {
	Available bool
	URL       string
	Error     string
}

// AvailabilityChecker asks the backend whether a SoundCloud track can be
// streamed right now.
type AvailabilityChecker interface {
	CheckSoundCloudAvailability(ctx context.Context, trackID string) (Availability, error)
}

// SoundCloudGuard aborts transitions to SoundCloud tracks the platform
// reports as unavailable (deleted, geo-blocked), before the audio handle is
// touched.
type SoundCloudGuard struct {
	checker AvailabilityChecker
}

// NewSoundCloudGuard creates a SoundCloud availability guard.
func NewSoundCloudGuard(checker AvailabilityChecker) *SoundCloudGuard {
	return &SoundCloudGuard{checker: checker}
}

// Name returns the guard name.
func (g *SoundCloudGuard) Name() string { return "soundcloud_availability" }

// AppliesTo returns true for SoundCloud tracks only.
func (g *SoundCloudGuard) AppliesTo(platform track.Platform) bool {
	return platform == track.PlatformSoundCloud
}

// Check performs the availability call. A failed check (network error) also
// blocks: attempting playback would fail with a worse error.
func (g *SoundCloudGuard) Check(ctx context.Context, t track.Track) Result {
	availability, err := g.checker.CheckSoundCloudAvailability(ctx, t.ID)
	if err != nil {
		return Block(
			"SoundCloud: track unavailable",
			fmt.Sprintf("%q cannot be played", t.Title),
			err.Error(),
		)
	}
	if !availability.Available {
		return Block(
			"SoundCloud: track unavailable",
			fmt.Sprintf("%q cannot be played", t.Title),
			availability.Error,
		)
	}
	return Allow()
}
