// Package control exposes the player over a small JSON HTTP API.
package control

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/mkazantsev/waveplay/internal/app/playback"
	"github.com/mkazantsev/waveplay/internal/infra/backend"
)

// Player is the playback control surface the API drives.
type Player interface {
	Play() error
	Pause() error
	TogglePlayPause() error
	Next() error
	Previous() error
	Stop() error
	SeekTo(seconds float64) error
	SeekBy(delta float64) error
	Status() playback.Status
	SetRepeatMode(mode string)
	ToggleShuffle() bool
	ClearCustomQueue()
	RateCurrent(feedbackType string) error
	StartWave(ctx context.Context, settings backend.WaveSettings) error
	StopWave()
}

type seekRequest struct {
	Position *float64 `json:"position"`
	Delta    *float64 `json:"delta"`
}

type repeatRequest struct {
	Mode string `json:"mode"`
}

type rateRequest struct {
	Type string `json:"type"`
}

type waveRequest struct {
	Mood      string `json:"mood"`
	Character string `json:"character"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler builds the control API routes around a player.
func NewHandler(p Player) http.Handler {
	mux := http.NewServeMux()

	simple := map[string]func() error{
		"play":     p.Play,
		"pause":    p.Pause,
		"toggle":   p.TogglePlayPause,
		"next":     p.Next,
		"previous": p.Previous,
		"stop":     p.Stop,
	}
	for name, action := range simple {
		mux.HandleFunc("POST /control/"+name, func(w http.ResponseWriter, r *http.Request) {
			if err := action(); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, p.Status())
		})
	}

	mux.HandleFunc("GET /control/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.Status())
	})

	mux.HandleFunc("POST /control/seek", func(w http.ResponseWriter, r *http.Request) {
		var req seekRequest
		if err := decode(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		var err error
		switch {
		case req.Position != nil:
			err = p.SeekTo(*req.Position)
		case req.Delta != nil:
			err = p.SeekBy(*req.Delta)
		default:
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "position or delta required"})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p.Status())
	})

	mux.HandleFunc("POST /control/repeat", func(w http.ResponseWriter, r *http.Request) {
		var req repeatRequest
		if err := decode(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		p.SetRepeatMode(req.Mode)
		writeJSON(w, http.StatusOK, p.Status())
	})

	mux.HandleFunc("POST /control/shuffle", func(w http.ResponseWriter, r *http.Request) {
		p.ToggleShuffle()
		writeJSON(w, http.StatusOK, p.Status())
	})

	mux.HandleFunc("POST /control/clear-queue", func(w http.ResponseWriter, r *http.Request) {
		p.ClearCustomQueue()
		writeJSON(w, http.StatusOK, p.Status())
	})

	mux.HandleFunc("POST /control/rate", func(w http.ResponseWriter, r *http.Request) {
		var req rateRequest
		if err := decode(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if req.Type == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "type required"})
			return
		}
		if err := p.RateCurrent(req.Type); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p.Status())
	})

	mux.HandleFunc("POST /control/wave/start", func(w http.ResponseWriter, r *http.Request) {
		var req waveRequest
		if err := decode(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		settings := backend.WaveSettings{Mood: req.Mood, Character: req.Character}
		if err := p.StartWave(r.Context(), settings); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p.Status())
	})

	mux.HandleFunc("POST /control/wave/stop", func(w http.ResponseWriter, r *http.Request) {
		p.StopWave()
		writeJSON(w, http.StatusOK, p.Status())
	})

	return mux
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, playback.ErrNoTrack) || errors.Is(err, playback.ErrQueueEmpty) {
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Err(err).Msg("control: write response failed")
	}
}
