// Package guard provides the pre-playback guard chain.
//
// Guards run before any audio-handle mutation; a rejection aborts the
// transition and carries the user-facing warning to show instead.
package guard

import (
	"context"

	"github.com/mkazantsev/waveplay/internal/domain/track"
)

// Result represents the result of a guard check.
type Result struct {
	Allowed bool
	Title   string // notification title, e.g. "SoundCloud: track unavailable"
	Message string // notification body referencing the track
	Detail  string // platform-provided reason, optional
}

// Allow returns an allowed result.
func Allow() Result {
	return Result{Allowed: true}
}

// Block returns a rejected result with the given notification content.
func Block(title, message, detail string) Result {
	return Result{Title: title, Message: message, Detail: detail}
}

// Guard is the interface for pre-playback track guards.
type Guard interface {
	// Name returns the guard name (used in logs).
	Name() string
	// AppliesTo returns true if the guard should run for the given platform.
	AppliesTo(platform track.Platform) bool
	// Check performs the guard check.
	Check(ctx context.Context, t track.Track) Result
}
