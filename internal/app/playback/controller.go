package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/mkazantsev/waveplay/internal/app/guard"
	"github.com/mkazantsev/waveplay/internal/app/queue"
	"github.com/mkazantsev/waveplay/internal/domain/track"
)

// Errors
var (
	ErrNoTrack    = errors.New("no track playing")
	ErrQueueEmpty = errors.New("queue is empty")
)

// Config holds controller configuration.
type Config struct {
	PlayStartDelay time.Duration // Delay between setting a source and issuing play
	PreloadDelay   time.Duration // Delay after play start before preloading neighbors
}

// StreamResolver produces platform-specific stream URLs for a track.
type StreamResolver interface {
	StreamURL(t track.Track) (string, error)
	// FastStreamURL returns the low-latency resolution for platforms that
	// have one. Platforms without it fall back to StreamURL.
	FastStreamURL(t track.Track) (string, error)
}

// Preloader warms up streams for tracks adjacent to the current one.
type Preloader interface {
	PreloadTracks(ctx context.Context, tracks []track.Track) error
}

// FeedbackSink receives listening events for the recommendation service.
type FeedbackSink interface {
	TrackStarted(t track.Track)
	TrackFinished(t track.Track, playedSeconds float64)
}

// Snapshotter persists the playback position and current track.
type Snapshotter interface {
	SaveCurrentTrack(t track.Track)
	SavePlaybackTime(seconds float64)
}

// NowPlayingSetter reports the current track to the backend.
type NowPlayingSetter interface {
	SetNowPlaying(ctx context.Context, t track.Track) error
}

// Notifier surfaces user-visible playback warnings and errors.
type Notifier interface {
	Warn(title, message, detail string)
	Error(title, message, detail string)
}

// Deps holds the controller's collaborators. Queue, Output and Resolver are
// required; the rest may be nil and are then skipped.
type Deps struct {
	Queue      *queue.Store
	Output     Output
	Resolver   StreamResolver
	Guards     *guard.Chain
	Preloader  Preloader
	Feedback   FeedbackSink
	Snapshot   Snapshotter
	NowPlaying NowPlayingSetter
	Notifier   Notifier
}

// Controller owns the audio output handle and drives track transitions.
type Controller struct {
	mu sync.Mutex

	deps   Deps
	config Config

	current *track.Track
	src     string // Stream URL currently set on the output

	playing       bool
	loading       bool
	transitioning bool
	repeat        RepeatMode

	startedFired bool // "track started" feedback sent for this activation
	usedFallback bool // Generic-URL fallback already attempted for this activation

	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a playback controller. Call Start to begin consuming
// output events.
func NewController(deps Deps, config Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		deps:    deps,
		config:  config,
		eventCh: make(chan Event, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the output event loop.
func (c *Controller) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case e, ok := <-c.deps.Output.Events():
				if !ok {
					return
				}
				c.handleOutputEvent(e)
			}
		}
	}()
}

// Events returns the controller's event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// PlayTrack starts playback of t out of the given collection. A request for
// the track that is already current toggles pause/resume instead of
// reloading. Guards run before any queue or output mutation; a rejection
// aborts the request and surfaces the guard's warning.
func (c *Controller) PlayTrack(ctx context.Context, t track.Track, source string, sourceData []track.Track) error {
	c.mu.Lock()
	if c.current != nil && c.current.Same(t) {
		c.togglePlayPauseLocked()
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.deps.Guards != nil {
		if result := c.deps.Guards.Check(ctx, t); !result.Allowed {
			if c.deps.Notifier != nil {
				c.deps.Notifier.Warn(result.Title, result.Message, result.Detail)
			}
			return nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t.QueueSource = source
	c.deps.Queue.CreateQueue(t, source, stampSource(sourceData, source))
	if current, ok := c.deps.Queue.Current(); ok {
		t = current
	}
	c.activateLocked(t)
	return nil
}

// Play resumes paused playback, or starts the queue's current track when
// nothing is loaded yet (e.g. after a restored session).
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		if c.playing {
			return nil
		}
		if err := c.deps.Output.Play(); err != nil {
			c.playRejectedLocked(*c.current, err)
			return nil
		}
		c.playing = true
		c.sendEventLocked(EventStateChanged)
		return nil
	}

	t, ok := c.deps.Queue.Current()
	if !ok {
		return ErrQueueEmpty
	}
	c.activateLocked(t)
	return nil
}

// Pause pauses playback and snapshots the position.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	c.deps.Output.Pause()
	c.playing = false
	if c.deps.Snapshot != nil {
		c.deps.Snapshot.SavePlaybackTime(c.deps.Output.Position())
	}
	c.sendEventLocked(EventStateChanged)
	return nil
}

// TogglePlayPause toggles between playing and paused.
func (c *Controller) TogglePlayPause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		t, ok := c.deps.Queue.Current()
		if !ok {
			return ErrQueueEmpty
		}
		c.activateLocked(t)
		return nil
	}
	c.togglePlayPauseLocked()
	return nil
}

func (c *Controller) togglePlayPauseLocked() {
	if c.playing {
		c.deps.Output.Pause()
		c.playing = false
		if c.deps.Snapshot != nil {
			c.deps.Snapshot.SavePlaybackTime(c.deps.Output.Position())
		}
	} else {
		if err := c.deps.Output.Play(); err != nil {
			c.playRejectedLocked(*c.current, err)
			return
		}
		c.playing = true
	}
	c.sendEventLocked(EventStateChanged)
}

// Next advances to the next track under the active repeat and queue policy.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	c.advanceLocked()
	return nil
}

// Previous steps back one track, or restarts the current track from the
// beginning when the pointer is already at the head of the queue.
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}

	if c.deps.Queue.Index() <= 0 {
		c.deps.Output.Seek(0)
		if !c.playing {
			if err := c.deps.Output.Play(); err != nil {
				c.playRejectedLocked(*c.current, err)
				return nil
			}
			c.playing = true
			c.sendEventLocked(EventStateChanged)
		}
		return nil
	}

	c.finishCurrentLocked()
	prev, ok := c.deps.Queue.Previous()
	if !ok {
		return nil
	}
	c.activateLocked(prev)
	return nil
}

// SeekTo moves the playback position to the given second.
func (c *Controller) SeekTo(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	if seconds < 0 {
		seconds = 0
	}
	c.deps.Output.Seek(seconds)
	if c.deps.Snapshot != nil {
		c.deps.Snapshot.SavePlaybackTime(seconds)
	}
	return nil
}

// SeekBy moves the playback position by the given delta in seconds.
func (c *Controller) SeekBy(delta float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	pos := c.deps.Output.Position() + delta
	if pos < 0 {
		pos = 0
	}
	c.deps.Output.Seek(pos)
	if c.deps.Snapshot != nil {
		c.deps.Snapshot.SavePlaybackTime(pos)
	}
	return nil
}

// Stop halts playback and clears the current track. The queue itself is
// kept.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deps.Output.Stop()
	c.current = nil
	c.src = ""
	c.playing = false
	c.loading = false
	c.sendEventLocked(EventStateChanged)
	return nil
}

// EnqueueNext splices a track immediately after the current one.
func (c *Controller) EnqueueNext(t track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Queue.PlayNext(t)
}

// Enqueue appends a track to the end of the queue.
func (c *Controller) Enqueue(t track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Queue.Append(t)
}

// ReplaceQueueTracks swaps the queue's track list in place, keeping the
// pointer on the current track. Used when a wave refill grows the queue.
func (c *Controller) ReplaceQueueTracks(tracks []track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Queue.ReplaceTracks(tracks)
}

// ClearCustomQueue drops custom-queue mode and restores the source order.
func (c *Controller) ClearCustomQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Queue.ClearCustom()
}

// ToggleShuffle toggles shuffle mode on the queue.
func (c *Controller) ToggleShuffle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Queue.ToggleShuffle()
	return c.deps.Queue.ShuffleMode()
}

// SetRepeatMode sets the repeat mode.
func (c *Controller) SetRepeatMode(m RepeatMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repeat = m
}

// RepeatMode returns the active repeat mode.
func (c *Controller) RepeatMode() RepeatMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repeat
}

// RestoreTrack sets the current track and queue position without starting
// playback, used when reviving a persisted session.
func (c *Controller) RestoreTrack(t track.Track, position float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = &t
	c.playing = false
	c.loading = false
	c.startedFired = true // A restored track was already reported in its session

	url, err := c.resolveURL(t)
	if err != nil {
		zlog.Warn().Err(err).Msgf("playback: cannot resolve restored track %s", t.ID)
		return
	}
	c.src = url
	c.deps.Output.SetSource(url)
	c.hintDurationLocked(t)
	if position > 0 {
		c.deps.Output.Seek(position)
	}
	c.sendEventLocked(EventTrackChanged)
}

// Status is a snapshot of the controller for external observers.
type Status struct {
	State        State        `json:"state"`
	Track        *track.Track `json:"track,omitempty"`
	Position     float64      `json:"position"`
	RepeatMode   string       `json:"repeat_mode"`
	ShuffleMode  bool         `json:"shuffle_mode"`
	QueueLength  int          `json:"queue_length"`
	QueueIndex   int          `json:"queue_index"`
	QueueSource  string       `json:"queue_source,omitempty"`
	CustomActive bool         `json:"custom_queue_active"`
}

// Status returns the current playback status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:        c.stateLocked(),
		Position:     c.deps.Output.Position(),
		RepeatMode:   c.repeat.String(),
		ShuffleMode:  c.deps.Queue.ShuffleMode(),
		QueueLength:  c.deps.Queue.Len(),
		QueueIndex:   c.deps.Queue.Index(),
		QueueSource:  c.deps.Queue.Source(),
		CustomActive: c.deps.Queue.CustomQueueActive(),
	}
	if c.current != nil {
		t := *c.current
		s.Track = &t
	}
	return s
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// CurrentTrack returns the current track.
func (c *Controller) CurrentTrack() (track.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return track.Track{}, false
	}
	return *c.current, true
}

// Close stops the event loop and halts the output.
func (c *Controller) Close() {
	c.cancel()
	_ = c.Stop()
	c.wg.Wait()
	close(c.eventCh)
}

func (c *Controller) stateLocked() State {
	switch {
	case c.current == nil:
		return StateIdle
	case c.transitioning:
		return StateTransitioning
	case c.loading:
		return StateLoading
	case c.playing:
		return StatePlaying
	default:
		return StatePaused
	}
}

// handleOutputEvent reacts to the audio output. Events whose source no
// longer matches the configured URL are from a superseded track and are
// dropped.
func (c *Controller) handleOutputEvent(e OutputEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.Source != c.src || c.current == nil {
		return
	}

	switch e.Type {
	case OutputWaiting:
		c.loading = true
		c.sendEventLocked(EventStateChanged)
	case OutputCanPlay:
		c.loading = false
		c.sendEventLocked(EventStateChanged)
	case OutputPlaying:
		c.loading = false
		c.playing = true
		if !c.startedFired {
			c.startedFired = true
			if c.deps.Feedback != nil {
				c.deps.Feedback.TrackStarted(*c.current)
			}
		}
		c.schedulePreloadLocked()
		c.sendEventLocked(EventStateChanged)
	case OutputEnded:
		c.transitioning = true
		c.sendEventLocked(EventStateChanged)
		c.advanceLocked()
		c.transitioning = false
	case OutputError:
		c.handlePlayErrorLocked(*c.current, e.Err)
	}
}

// advanceLocked applies the transition rules, in priority order: repeat
// track restarts in place; custom-queue exhaustion restores the original
// ordering; repeat playlist wraps; a successor advances; otherwise playback
// stops.
func (c *Controller) advanceLocked() {
	if c.repeat == RepeatTrack {
		c.deps.Output.Seek(0)
		if err := c.deps.Output.Play(); err != nil {
			c.playRejectedLocked(*c.current, err)
			return
		}
		c.playing = true
		c.sendEventLocked(EventStateChanged)
		return
	}

	c.finishCurrentLocked()

	next, ok := c.deps.Queue.Advance(c.repeat == RepeatPlaylist)
	if !ok {
		c.deps.Output.Stop()
		c.current = nil
		c.src = ""
		c.playing = false
		c.loading = false
		c.sendEventLocked(EventQueueEnded)
		return
	}
	c.activateLocked(next)
}

// finishCurrentLocked reports the ending track to the feedback sink before
// the queue transition is committed.
func (c *Controller) finishCurrentLocked() {
	if c.current == nil || c.deps.Feedback == nil {
		return
	}
	c.deps.Feedback.TrackFinished(*c.current, c.deps.Output.Position())
}

// activateLocked makes t the current track: snapshots it, reports it to the
// backend, and starts loading its stream.
func (c *Controller) activateLocked(t track.Track) {
	c.current = &t
	c.startedFired = false
	c.usedFallback = false
	c.playing = false
	c.loading = true

	if c.deps.Snapshot != nil {
		c.deps.Snapshot.SaveCurrentTrack(t)
	}
	c.setNowPlayingAsync(t)

	url, err := c.resolveURL(t)
	if err != nil {
		c.handlePlayErrorLocked(t, err)
		return
	}
	c.src = url
	c.deps.Output.SetSource(url)
	c.hintDurationLocked(t)
	c.sendEventLocked(EventTrackChanged)

	c.schedulePlayLocked(t, url)
}

// schedulePlayLocked issues play after the configured delay, unless the
// source has been replaced in the meantime.
func (c *Controller) schedulePlayLocked(t track.Track, url string) {
	delay := c.config.PlayStartDelay
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if delay > 0 {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.src != url || c.current == nil || !c.current.Same(t) {
			return
		}
		if err := c.deps.Output.Play(); err != nil {
			c.playRejectedLocked(t, err)
			return
		}
		c.playing = true
	}()
}

// playRejectedLocked handles a rejected play call. YouTube gets one retry
// with the generic stream URL before the error is surfaced.
func (c *Controller) playRejectedLocked(t track.Track, err error) {
	if t.Platform == track.PlatformYouTube && !c.usedFallback {
		c.usedFallback = true
		generic, rerr := c.deps.Resolver.StreamURL(t)
		if rerr == nil && generic != c.src {
			zlog.Debug().Msgf("playback: fast stream rejected for %s, retrying generic URL", t.ID)
			c.src = generic
			c.deps.Output.SetSource(generic)
			c.hintDurationLocked(t)
			perr := c.deps.Output.Play()
			if perr == nil {
				c.playing = true
				return
			}
			err = perr
		}
	}
	c.handlePlayErrorLocked(t, err)
}

// handlePlayErrorLocked clears the transient flags and surfaces the failure.
// The queue pointer is kept so the user can retry or skip.
func (c *Controller) handlePlayErrorLocked(t track.Track, err error) {
	c.playing = false
	c.loading = false

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	zlog.Error().Err(err).Msgf("playback: track %s (%s) failed", t.ID, t.Platform)
	if c.deps.Notifier != nil {
		c.deps.Notifier.Error(
			fmt.Sprintf("%s: playback failed", platformLabel(t.Platform)),
			fmt.Sprintf("%q could not be played", t.Title),
			detail,
		)
	}
	c.sendEventLocked(EventStateChanged)
}

// schedulePreloadLocked warms up the previous and next tracks shortly after
// play starts. Best effort: failures are logged only.
func (c *Controller) schedulePreloadLocked() {
	if c.deps.Preloader == nil {
		return
	}
	src := c.src
	delay := c.config.PreloadDelay

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if delay > 0 {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		c.mu.Lock()
		if c.src != src {
			c.mu.Unlock()
			return
		}
		idx := c.deps.Queue.Index()
		neighbors := make([]track.Track, 0, 2)
		if t, ok := c.deps.Queue.At(idx - 1); ok {
			neighbors = append(neighbors, t)
		}
		if t, ok := c.deps.Queue.At(idx + 1); ok {
			neighbors = append(neighbors, t)
		}
		c.mu.Unlock()

		if len(neighbors) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		defer cancel()
		if err := c.deps.Preloader.PreloadTracks(ctx, neighbors); err != nil {
			zlog.Warn().Err(err).Msg("playback: neighbor preload failed")
		}
	}()
}

// setNowPlayingAsync reports the new current track to the backend without
// blocking the transition. Failures are logged only.
func (c *Controller) setNowPlayingAsync(t track.Track) {
	if c.deps.NowPlaying == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
		defer cancel()
		if err := c.deps.NowPlaying.SetNowPlaying(ctx, t); err != nil {
			zlog.Warn().Err(err).Msgf("playback: set now playing failed for track %s", t.ID)
		}
	}()
}

func (c *Controller) resolveURL(t track.Track) (string, error) {
	if t.Platform == track.PlatformYouTube {
		if url, err := c.deps.Resolver.FastStreamURL(t); err == nil {
			return url, nil
		}
	}
	return c.deps.Resolver.StreamURL(t)
}

func (c *Controller) hintDurationLocked(t track.Track) {
	if h, ok := c.deps.Output.(DurationHinter); ok && t.Duration > 0 {
		h.HintDuration(t.Duration)
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(eventType EventType) {
	e := Event{Type: eventType, State: c.stateLocked()}
	if c.current != nil {
		t := *c.current
		e.Track = &t
	}
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		// Channel full, drop event
	}
}

func platformLabel(p track.Platform) string {
	switch p {
	case track.PlatformYouTube:
		return "YouTube"
	case track.PlatformSoundCloud:
		return "SoundCloud"
	case track.PlatformYandexMusic:
		return "Yandex Music"
	case track.PlatformVKMusic:
		return "VK Music"
	case track.PlatformLocal:
		return "Local"
	default:
		return "Player"
	}
}

// stampSource tags every track in the collection with its provenance.
func stampSource(tracks []track.Track, source string) []track.Track {
	if tracks == nil {
		return nil
	}
	stamped := make([]track.Track, len(tracks))
	for i, t := range tracks {
		t.QueueSource = source
		stamped[i] = t
	}
	return stamped
}
