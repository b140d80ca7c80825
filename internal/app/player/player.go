// Package player assembles the playback core: queue, controller, wave
// session, feedback and persistence, wired against the streaming backend.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/mkazantsev/waveplay/internal/app/feedback"
	"github.com/mkazantsev/waveplay/internal/app/guard"
	"github.com/mkazantsev/waveplay/internal/app/notification"
	"github.com/mkazantsev/waveplay/internal/app/persist"
	"github.com/mkazantsev/waveplay/internal/app/playback"
	"github.com/mkazantsev/waveplay/internal/app/queue"
	"github.com/mkazantsev/waveplay/internal/app/wave"
	"github.com/mkazantsev/waveplay/internal/domain/playlist"
	"github.com/mkazantsev/waveplay/internal/domain/track"
	"github.com/mkazantsev/waveplay/internal/infra/audio"
	"github.com/mkazantsev/waveplay/internal/infra/backend"
	"github.com/mkazantsev/waveplay/internal/infra/config"
	"github.com/mkazantsev/waveplay/internal/infra/localstore"
)

// Player owns every playback component and exposes the control surface.
type Player struct {
	config *config.Config

	backend       *backend.Client
	local         *localstore.Store
	bridge        *persist.Bridge
	output        *audio.Simulated
	store         *queue.Store
	controller    *playback.Controller
	session       *wave.Session
	emitter       *feedback.Emitter
	notifications *notification.Manager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// availabilityChecker adapts the backend client to the guard port.
type availabilityChecker struct {
	client *backend.Client
}

func (a availabilityChecker) CheckSoundCloudAvailability(ctx context.Context, trackID string) (guard.Availability, error) {
	result, err := a.client.CheckSoundCloudAvailability(ctx, trackID)
	if err != nil {
		return guard.Availability{}, err
	}
	return guard.Availability{
		Available: result.Available,
		URL:       result.URL,
		Error:     result.Error,
	}, nil
}

// New builds a player from configuration.
func New(cfg *config.Config) (*Player, error) {
	backendClient, err := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create backend client")
	}

	local, err := localstore.New(cfg.Persistence.LocalDir,
		localstore.WithMaxEntryBytes(cfg.Persistence.MaxLocalEntryBytes))
	if err != nil {
		return nil, errors.Wrap(err, "create local store")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		config:        cfg,
		backend:       backendClient,
		local:         local,
		output:        audio.NewSimulated(),
		store:         queue.New(),
		notifications: notification.NewManager(),
		ctx:           ctx,
		cancel:        cancel,
	}

	p.bridge = persist.NewBridge(backendClient, local, persist.Config{
		ChunkThreshold: cfg.Persistence.ChunkThresholdBytes,
		Debounce:       cfg.Persistence.Debounce(),
		LoadRetries:    cfg.Persistence.LoadRetries,
		LoadRetryDelay: cfg.Persistence.LoadRetryDelay(),
	})

	p.emitter = feedback.NewEmitter(backendClient,
		func() { p.session.Refill() },
		feedback.WithBackoff(cfg.Feedback.BackoffMin(), cfg.Feedback.BackoffMax()),
		feedback.WithDedupeWindow(cfg.Feedback.DedupeWindow()),
	)

	p.controller = playback.NewController(playback.Deps{
		Queue:      p.store,
		Output:     p.output,
		Resolver:   backendClient,
		Guards:     guard.NewChain(guard.NewSoundCloudGuard(availabilityChecker{backendClient})),
		Preloader:  backendClient,
		Feedback:   p.emitter,
		Snapshot:   p.bridge,
		NowPlaying: backendClient,
		Notifier:   p.notifications,
	}, playback.Config{
		PlayStartDelay: cfg.Playback.PlayStartDelay(),
		PreloadDelay:   cfg.Playback.PreloadDelay(),
	})

	p.session = wave.NewSession(backendClient, p.store,
		func(tracks []track.Track) { p.controller.ReplaceQueueTracks(tracks) },
		wave.Config{
			BatchSize: cfg.Wave.BatchSize,
			MinAhead:  cfg.Wave.MinAhead,
		})

	return p, nil
}

// Start loads the persisted library, revives the last session without
// autoplay, and begins consuming playback events.
func (p *Player) Start(ctx context.Context) {
	p.controller.Start()

	lib := p.bridge.Load(ctx)
	zlog.Info().Msgf("player: library loaded: %d playlists, %d liked tracks",
		len(lib.Playlists), len(lib.LikedTracks))

	if state, ok := p.bridge.Restore(lib); ok {
		p.store.Restore(state.Tracks, state.Index, state.Source)
		p.controller.RestoreTrack(state.Track, state.Position)
		zlog.Info().Msgf("player: restored %q at %.0fs from %s",
			state.Track.Title, state.Position, state.Source)
	}

	p.wg.Add(1)
	go p.eventLoop()
}

// eventLoop reacts to controller events: wave queues are topped up when the
// pointer nears their end.
func (p *Player) eventLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case e, ok := <-p.controller.Events():
			if !ok {
				return
			}
			if e.Type == playback.EventTrackChanged && p.session.Active() {
				if p.controller.Status().QueueSource == track.SourceWave {
					p.session.Refill()
				}
			}
		}
	}
}

// PlayTrack plays t out of the given collection.
func (p *Player) PlayTrack(ctx context.Context, t track.Track, source string, sourceData []track.Track) error {
	return p.controller.PlayTrack(ctx, t, source, sourceData)
}

// Play resumes playback or starts the queue's current track.
func (p *Player) Play() error { return p.controller.Play() }

// Pause pauses playback.
func (p *Player) Pause() error { return p.controller.Pause() }

// TogglePlayPause toggles between playing and paused.
func (p *Player) TogglePlayPause() error { return p.controller.TogglePlayPause() }

// Next advances to the next track.
func (p *Player) Next() error { return p.controller.Next() }

// Previous steps back one track, or restarts the current one at the head.
func (p *Player) Previous() error { return p.controller.Previous() }

// SeekTo moves the position to the given second.
func (p *Player) SeekTo(seconds float64) error { return p.controller.SeekTo(seconds) }

// SeekBy moves the position by the given delta.
func (p *Player) SeekBy(delta float64) error { return p.controller.SeekBy(delta) }

// Stop halts playback.
func (p *Player) Stop() error { return p.controller.Stop() }

// Status returns the playback status.
func (p *Player) Status() playback.Status { return p.controller.Status() }

// SetRepeatMode sets the repeat mode from its string form.
func (p *Player) SetRepeatMode(mode string) {
	p.controller.SetRepeatMode(playback.ParseRepeatMode(mode))
}

// ToggleShuffle toggles shuffle mode and reports the new state.
func (p *Player) ToggleShuffle() bool { return p.controller.ToggleShuffle() }

// EnqueueNext splices a track right after the current one.
func (p *Player) EnqueueNext(t track.Track) { p.controller.EnqueueNext(t) }

// Enqueue appends a track to the queue.
func (p *Player) Enqueue(t track.Track) { p.controller.Enqueue(t) }

// ClearCustomQueue restores the source ordering after ad-hoc insertions.
func (p *Player) ClearCustomQueue() { p.controller.ClearCustomQueue() }

// StartWave starts a recommendation wave and plays its first track.
func (p *Player) StartWave(ctx context.Context, settings backend.WaveSettings) error {
	batch, err := p.session.Start(ctx, settings)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return errors.New("wave returned no tracks")
	}
	return p.controller.PlayTrack(ctx, batch[0], track.SourceWave, batch)
}

// StopWave ends the wave session. Queued wave tracks keep playing.
func (p *Player) StopWave() { p.session.Stop() }

// RateCurrent forwards a like/dislike/skip rating for the current track.
func (p *Player) RateCurrent(feedbackType string) error {
	current, ok := p.controller.CurrentTrack()
	if !ok {
		return playback.ErrNoTrack
	}
	p.emitter.Rate(current, feedbackType)
	return nil
}

// Library returns the current library.
func (p *Player) Library() playlist.Library { return p.bridge.Library() }

// SetLibrary replaces the library and schedules its persistence.
func (p *Player) SetLibrary(lib playlist.Library) { p.bridge.SetLibrary(lib) }

// Notifications returns the notification manager for subscribers.
func (p *Player) Notifications() *notification.Manager { return p.notifications }

// Close shuts the player down: playback stops, in-flight feedback drains,
// and unpushed library changes get a final flush.
func (p *Player) Close() {
	p.cancel()
	p.session.Stop()
	p.backend.CancelPreloads()
	p.controller.Close()
	p.output.Close()
	p.emitter.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.bridge.Close(ctx); err != nil {
		zlog.Warn().Err(err).Msg("player: final library flush failed")
	}

	p.notifications.Close()
	p.wg.Wait()
}
