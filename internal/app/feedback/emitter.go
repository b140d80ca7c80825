// Package feedback reports listening events to the recommendation service.
//
// The emitter is deliberately decoupled from playback: every send is
// fire-and-forget, failures are logged and never surfaced, and a transition
// never waits for a feedback call to complete.
package feedback

import (
	"context"
	"math/rand"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/mkazantsev/waveplay/internal/domain/track"
)

// Feedback types understood by the recommendation service.
const (
	TypeStarted  = "trackStarted"
	TypeFinished = "trackFinished"
	TypeLike     = "like"
	TypeDislike  = "dislike"
	TypeSkip     = "skip"
)

const (
	defaultDedupeWindow = 10 * time.Second
	defaultBackoffMin   = 2 * time.Second
	defaultBackoffMax   = 5 * time.Second
	sendTimeout         = 10 * time.Second
)

// Transport posts a single feedback event to the recommendation service.
type Transport interface {
	SendWaveFeedback(ctx context.Context, trackID, feedbackType string, playedSeconds, trackDuration float64) error
}

// RefillFunc requests more tracks for the recommendation queue. Called after
// a successful finished event once the backoff delay has elapsed.
type RefillFunc func()

// Emitter sends listening events for recommendation-session tracks.
type Emitter struct {
	transport Transport
	refill    RefillFunc

	dedupeWindow time.Duration
	backoffMin   time.Duration
	backoffMax   time.Duration

	now   func() time.Time
	sleep func(time.Duration)
	rng   *rand.Rand

	mu           sync.Mutex
	lastFinished map[string]time.Time

	wg sync.WaitGroup
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithDedupeWindow overrides the duplicate-finished suppression window.
func WithDedupeWindow(d time.Duration) Option {
	return func(e *Emitter) { e.dedupeWindow = d }
}

// WithBackoff overrides the post-finished refill backoff range.
func WithBackoff(min, max time.Duration) Option {
	return func(e *Emitter) {
		e.backoffMin = min
		e.backoffMax = max
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

// WithSleep overrides the sleep function used for the refill backoff.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Emitter) { e.sleep = sleep }
}

// WithRand overrides the randomness source for backoff jitter.
func WithRand(rng *rand.Rand) Option {
	return func(e *Emitter) { e.rng = rng }
}

// NewEmitter creates a feedback emitter.
func NewEmitter(transport Transport, refill RefillFunc, opts ...Option) *Emitter {
	e := &Emitter{
		transport:    transport,
		refill:       refill,
		dedupeWindow: defaultDedupeWindow,
		backoffMin:   defaultBackoffMin,
		backoffMax:   defaultBackoffMax,
		now:          time.Now,
		sleep:        time.Sleep,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		lastFinished: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TrackStarted reports that a recommendation-session track began producing
// audio. Non-session tracks are ignored.
func (e *Emitter) TrackStarted(t track.Track) {
	if !t.IsWave() {
		return
	}
	e.send(t, TypeStarted, 0, false)
}

// TrackFinished reports that a recommendation-session track finished with the
// given elapsed seconds. Repeated finished events for the same track inside
// the dedupe window are collapsed into one. After a successful send the
// emitter waits a randomized backoff, then asks for a queue refill.
func (e *Emitter) TrackFinished(t track.Track, playedSeconds float64) {
	if !t.IsWave() {
		return
	}

	e.mu.Lock()
	last, seen := e.lastFinished[t.ID]
	now := e.now()
	if seen && now.Sub(last) < e.dedupeWindow {
		e.mu.Unlock()
		zlog.Debug().Msgf("feedback: duplicate finished for track %s suppressed", t.ID)
		return
	}
	e.lastFinished[t.ID] = now
	e.mu.Unlock()

	e.send(t, TypeFinished, playedSeconds, true)
}

// Rate forwards an explicit user rating (like, dislike, skip).
func (e *Emitter) Rate(t track.Track, feedbackType string) {
	if !t.IsWave() {
		return
	}
	e.send(t, feedbackType, 0, false)
}

func (e *Emitter) send(t track.Track, feedbackType string, playedSeconds float64, refillAfter bool) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := e.transport.SendWaveFeedback(ctx, t.ID, feedbackType, playedSeconds, t.Duration); err != nil {
			zlog.Warn().Err(err).Msgf("feedback: %s for track %s failed", feedbackType, t.ID)
			return
		}
		zlog.Debug().Msgf("feedback: sent %s for track %s", feedbackType, t.ID)

		if refillAfter && e.refill != nil {
			e.sleep(e.backoffDelay())
			e.refill()
		}
	}()
}

// backoffDelay picks a random delay in [backoffMin, backoffMax].
func (e *Emitter) backoffDelay() time.Duration {
	if e.backoffMax <= e.backoffMin {
		return e.backoffMin
	}
	e.mu.Lock()
	jitter := time.Duration(e.rng.Int63n(int64(e.backoffMax - e.backoffMin)))
	e.mu.Unlock()
	return e.backoffMin + jitter
}

// Wait blocks until all in-flight sends have completed. Intended for
// shutdown and tests.
func (e *Emitter) Wait() {
	e.wg.Wait()
}
