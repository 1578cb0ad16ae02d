package avatar3d

import (
	"math/rand"
	"time"
)

type IdleConfig struct {
	MoodBlend     float32       // per-frame lerp toward the mood pose
	BlinkMinGap   time.Duration // shortest open interval between blinks
	BlinkMaxGap   time.Duration
	BlinkDuration time.Duration
	EyelidLerp    float32
	WinkDuration  time.Duration
}

func DefaultIdleConfig() IdleConfig {
	return IdleConfig{
		MoodBlend:     0.1,
		BlinkMinGap:   time.Second,
		BlinkMaxGap:   5 * time.Second,
		BlinkDuration: 200 * time.Millisecond,
		EyelidLerp:    0.5,
		WinkDuration:  300 * time.Millisecond,
	}
}

// IdleLayer runs underneath speech every frame. Morphs without an active
// speech ramp drift toward the current mood; eyelids follow the blink loop
// unless a wink holds one closed.
type IdleLayer struct {
	channels *ChannelSet
	interp   *Interpolator
	eyelids  [2]string
	cfg      IdleConfig
	rng      *rand.Rand

	mood      MoodPose
	blink     *BlinkLoop
	winkUntil [2]time.Time
}

func NewIdleLayer(channels *ChannelSet, interp *Interpolator, eyelids [2]string, cfg IdleConfig, rng *rand.Rand) *IdleLayer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &IdleLayer{
		channels: channels,
		interp:   interp,
		eyelids:  eyelids,
		cfg:      cfg,
		rng:      rng,
		mood:     MoodPose{},
		blink:    NewBlinkLoop(cfg.BlinkMinGap, cfg.BlinkMaxGap, cfg.BlinkDuration, rng),
	}
}

// SetMood swaps the resting pose wholesale. The face blends toward it over
// the following frames.
func (l *IdleLayer) SetMood(pose MoodPose) {
	if pose == nil {
		pose = MoodPose{}
	}
	l.mood = pose
}

func (l *IdleLayer) Mood() MoodPose { return l.mood }

// SetConfig applies new tunables. The blink loop restarts on its next step.
func (l *IdleLayer) SetConfig(cfg IdleConfig) {
	l.cfg = cfg
	l.blink = NewBlinkLoop(cfg.BlinkMinGap, cfg.BlinkMaxGap, cfg.BlinkDuration, l.rng)
}

func (l *IdleLayer) BlinkState() BlinkState { return l.blink.State() }

// Wink closes one eyelid for the configured duration, then hands it back to
// the blink loop.
func (l *IdleLayer) Wink(now time.Time, side EyelidSide) {
	l.winkUntil[side] = now.Add(l.cfg.WinkDuration)
}

func (l *IdleLayer) Winking(now time.Time, side EyelidSide) bool {
	return now.Before(l.winkUntil[side])
}

func (l *IdleLayer) isEyelid(name string) bool {
	return name != "" && (name == l.eyelids[0] || name == l.eyelids[1])
}

// Step must run after the speech interpolator for the same frame.
func (l *IdleLayer) Step(now time.Time) {
	l.channels.Each(func(c *Channel) {
		if c.Kind != ChannelMorph || l.isEyelid(c.Name) || l.interp.Active(c.Name) {
			return
		}
		c.set(lerp(c.value, l.mood.Target(c.Name), l.cfg.MoodBlend))
	})

	closed := l.blink.Step(now)
	for side, name := range l.eyelids {
		c, ok := l.channels.Lookup(name)
		if !ok {
			continue
		}
		target := float32(0)
		if closed || l.Winking(now, EyelidSide(side)) {
			target = 1
		}
		c.set(lerp(c.value, target, l.cfg.EyelidLerp))
	}
}
