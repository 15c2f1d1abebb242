package audio

import (
	"log/slog"
	"sync"
	"time"
)

// ringback периодический гудок вызова на одном таймере.
// Все методы с суффиксом Locked вызываются под мьютексом владельца,
// колбэки таймера захватывают тот же мьютекс сами.
type ringback struct {
	mu        *sync.Mutex
	newPlayer TonePlayerFactory
	on, off   time.Duration
	logger    *slog.Logger
	fail      func(op string, err error)

	playing bool
	// gen меняется при каждом старте и остановке. Колбэк таймера
	// с устаревшим поколением ничего не делает.
	gen    uint64
	player TonePlayer
	timer  *time.Timer
}

func newRingback(mu *sync.Mutex, newPlayer TonePlayerFactory, on, off time.Duration, logger *slog.Logger, fail func(string, error)) *ringback {
	return &ringback{
		mu:        mu,
		newPlayer: newPlayer,
		on:        on,
		off:       off,
		logger:    logger,
		fail:      fail,
	}
}

func (r *ringback) startLocked() {
	if r.playing {
		return
	}
	if r.newPlayer == nil {
		r.logger.Debug("ringback skipped: no tone player")
		return
	}

	var player TonePlayer
	err := attempt("tone_player_new", func() error {
		var err error
		player, err = r.newPlayer()
		return err
	})
	if err != nil {
		r.fail("tone_player_new", err)
		return
	}

	r.player = player
	r.playing = true
	r.gen++
	r.logger.Debug("ringback started")
	r.toneOnLocked(r.gen)
}

func (r *ringback) toneOnLocked(gen uint64) {
	if err := attempt("tone_start", r.player.StartTone); err != nil {
		r.fail("tone_start", err)
	}
	r.timer = time.AfterFunc(r.on, func() { r.phase(gen, false) })
}

func (r *ringback) phase(gen uint64, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.playing || gen != r.gen {
		return
	}

	if on {
		r.toneOnLocked(gen)
		return
	}

	if err := attempt("tone_stop", r.player.StopTone); err != nil {
		r.fail("tone_stop", err)
	}
	r.timer = time.AfterFunc(r.off, func() { r.phase(gen, true) })
}

func (r *ringback) stopLocked() {
	if !r.playing {
		return
	}

	r.playing = false
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}

	player := r.player
	r.player = nil
	if err := attempt("tone_stop", player.StopTone); err != nil {
		r.fail("tone_stop", err)
	}
	if err := attempt("tone_close", player.Close); err != nil {
		r.fail("tone_close", err)
	}
	r.logger.Debug("ringback stopped")
}
