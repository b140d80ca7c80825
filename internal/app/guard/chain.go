package guard

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/mkazantsev/waveplay/internal/domain/track"
)

// Chain executes guards in sequence.
type Chain struct {
	guards []Guard
}

// NewChain creates a new guard chain.
func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: guards}
}

// Add adds a guard to the chain.
func (c *Chain) Add(g Guard) {
	c.guards = append(c.guards, g)
}

// Check runs all applicable guards in sequence.
// Returns immediately on the first rejection.
func (c *Chain) Check(ctx context.Context, t track.Track) Result {
	for _, g := range c.guards {
		if !g.AppliesTo(t.Platform) {
			continue
		}
		result := g.Check(ctx, t)
		if !result.Allowed {
			zlog.Debug().Msgf("guard: %s blocked track %s (%s): %s",
				g.Name(), t.ID, t.Platform, result.Detail)
			return result
		}
	}
	return Allow()
}

// Guards returns all guards in the chain.
func (c *Chain) Guards() []Guard {
	return c.guards
}
