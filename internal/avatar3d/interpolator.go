package avatar3d

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
)

type rampTask struct {
	start    time.Time
	target   float32
	duration time.Duration
	weight   float32
}

// Interpolator eases channels toward targets over time. Each sample moves the
// live value by lerp(value, target, progress*weight), so a weight below 1
// approaches the target asymptotically.
type Interpolator struct {
	channels *ChannelSet
	tasks    map[string]*rampTask
	log      zerolog.Logger

	onMissing func(channel string)
}

func NewInterpolator(channels *ChannelSet, log zerolog.Logger) *Interpolator {
	return &Interpolator{
		channels: channels,
		tasks:    make(map[string]*rampTask),
		log:      log,
	}
}

// OnMissing installs a hook invoked whenever a ramp names an unknown channel.
func (ip *Interpolator) OnMissing(fn func(channel string)) {
	ip.onMissing = fn
}

// Ramp starts easing channel toward target, replacing any ramp already in
// flight on it. The new ramp starts from the channel's current value.
func (ip *Interpolator) Ramp(now time.Time, channel string, target float32, duration time.Duration, weight float32) bool {
	if !ip.channels.Has(channel) {
		ip.log.Warn().Str("channel", channel).Msg("ramp on missing channel ignored")
		if ip.onMissing != nil {
			ip.onMissing(channel)
		}
		return false
	}
	if duration < 0 {
		duration = 0
	}
	ip.tasks[channel] = &rampTask{
		start:    now,
		target:   target,
		duration: duration,
		weight:   mgl32.Clamp(weight, 0, 1),
	}
	return true
}

// Step samples every in-flight ramp once. Finished ramps are dropped after
// their final sample.
func (ip *Interpolator) Step(now time.Time) {
	for name, task := range ip.tasks {
		c, ok := ip.channels.Lookup(name)
		if !ok {
			delete(ip.tasks, name)
			continue
		}

		progress := float32(1)
		if task.duration > 0 {
			progress = mgl32.Clamp(float32(now.Sub(task.start))/float32(task.duration), 0, 1)
		}
		c.set(lerp(c.value, task.target, progress*task.weight))

		if progress >= 1 {
			delete(ip.tasks, name)
		}
	}
}

// Active reports whether channel has a ramp in flight.
func (ip *Interpolator) Active(channel string) bool {
	_, ok := ip.tasks[channel]
	return ok
}

func (ip *Interpolator) Cancel(channel string) {
	delete(ip.tasks, channel)
}

func (ip *Interpolator) CancelAll() {
	clear(ip.tasks)
}

func (ip *Interpolator) Len() int { return len(ip.tasks) }
