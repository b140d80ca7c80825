package guard

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/mkazantsev/waveplay/internal/domain/track"
)

type fakeChecker struct {
	result Availability
	err    error
	calls  int
}

func (f *fakeChecker) CheckSoundCloudAvailability(_ context.Context, _ string) (Availability, error) {
	f.calls++
	return f.result, f.err
}

func TestSoundCloudGuard_Check(t *testing.T) {
	tests := []struct {
		name        string
		result      Availability
		err         error
		wantAllowed bool
		wantDetail  string
	}{
		{
			name:        "available track passes",
			result:      Availability{Available: true, URL: "http://cdn/stream"},
			wantAllowed: true,
		},
		{
			name:        "unavailable track blocked with platform reason",
			result:      Availability{Available: false, Error: "geo-blocked"},
			wantAllowed: false,
			wantDetail:  "geo-blocked",
		},
		{
			name:        "check failure blocks",
			err:         errors.New("connection refused"),
			wantAllowed: false,
			wantDetail:  "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewSoundCloudGuard(&fakeChecker{result: tt.result, err: tt.err})
			trk := track.Track{ID: "sc1", Platform: track.PlatformSoundCloud, Title: "Some Song"}

			result := g.Check(context.Background(), trk)

			assert.Equal(t, tt.wantAllowed, result.Allowed)
			if !tt.wantAllowed {
				assert.Contains(t, result.Message, "Some Song")
				assert.Equal(t, tt.wantDetail, result.Detail)
			}
		})
	}
}

func TestChain_SkipsNonApplicableGuards(t *testing.T) {
	checker := &fakeChecker{result: Availability{Available: false, Error: "gone"}}
	chain := NewChain(NewSoundCloudGuard(checker))

	result := chain.Check(context.Background(), track.Track{ID: "yt1", Platform: track.PlatformYouTube})

	assert.True(t, result.Allowed)
	assert.Zero(t, checker.calls, "guard must not run for other platforms")
}

func TestChain_FirstRejectionWins(t *testing.T) {
	checker := &fakeChecker{result: Availability{Available: false, Error: "gone"}}
	chain := NewChain(NewSoundCloudGuard(checker))

	result := chain.Check(context.Background(), track.Track{ID: "sc1", Platform: track.PlatformSoundCloud, Title: "x"})

	assert.False(t, result.Allowed)
	assert.Equal(t, 1, checker.calls)
}
