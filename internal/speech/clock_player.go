package speech

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ClockPlayer is a headless Player: it produces no sound and simply holds
// each clip for its WAV duration, or Fallback when the duration is unknown.
type ClockPlayer struct {
	Fallback time.Duration
	log      zerolog.Logger
}

func NewClockPlayer(fallback time.Duration, log zerolog.Logger) *ClockPlayer {
	return &ClockPlayer{
		Fallback: fallback,
		log:      log.With().Str("component", "clock_player").Logger(),
	}
}

type clockHandle struct {
	stop chan struct{}
	once sync.Once
}

func (h *clockHandle) Stop() {
	h.once.Do(func() { close(h.stop) })
}

func (p *ClockPlayer) Play(clip Clip, events PlaybackEvents) (Handle, error) {
	if len(clip.Data) == 0 {
		return nil, ErrEmptyClip
	}
	d, ok, err := ClipDuration(clip)
	if err != nil {
		return nil, err
	}
	if !ok {
		d = p.Fallback
	}

	h := &clockHandle{stop: make(chan struct{})}
	go func() {
		if events.OnStart != nil {
			events.OnStart()
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-h.stop:
			p.log.Debug().Msg("clip stopped early")
		}
		if events.OnEnd != nil {
			events.OnEnd()
		}
	}()

	p.log.Debug().Str("format", clip.Format).Dur("duration", d).Msg("clip playing")
	return h, nil
}
