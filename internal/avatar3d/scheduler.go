package avatar3d

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexface/internal/viseme"
)

var ErrNotScheduled = errors.New("avatar3d: no timeline scheduled")

type SchedulerState int

const (
	StateIdle SchedulerState = iota
	StateScheduled
	StatePlaying
	StateDraining
	StateComplete
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StatePlaying:
		return "playing"
	case StateDraining:
		return "draining"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

type SchedulerConfig struct {
	RampDuration time.Duration
	DrainDelay   time.Duration
	// SetupMode leaves the last pose in place when a timeline drains.
	SetupMode bool
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		RampDuration: DefaultRampDuration,
		DrainDelay:   500 * time.Millisecond,
	}
}

// action is every event sharing one offset.
type action struct {
	offset time.Duration
	events []viseme.Event
}

// Scheduler turns one timeline at a time into deferred ramps on the
// character loop. A newer timeline supersedes the current one: remaining
// actions are cancelled and the face cross-fades from wherever it is.
type Scheduler struct {
	channels *ChannelSet
	interp   *Interpolator
	jaw      *JawMapper
	timers   *Timers
	profile  Profile
	cfg      SchedulerConfig
	observer Observer
	log      zerolog.Logger

	state    SchedulerState
	epoch    uint64
	timeline viseme.Timeline
	actions  []action
	pending  int
	t0       time.Time
	previous []string
	// superseded is set when the scheduled timeline cancelled a busy one,
	// taking over its pending drain reset.
	superseded bool
}

func NewScheduler(channels *ChannelSet, interp *Interpolator, jaw *JawMapper, timers *Timers, profile Profile, cfg SchedulerConfig, observer Observer, log zerolog.Logger) *Scheduler {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Scheduler{
		channels: channels,
		interp:   interp,
		jaw:      jaw,
		timers:   timers,
		profile:  profile,
		cfg:      cfg,
		observer: observer,
		log:      log,
	}
}

func (s *Scheduler) State() SchedulerState     { return s.state }
func (s *Scheduler) Epoch() uint64             { return s.epoch }
func (s *Scheduler) Timeline() viseme.Timeline { return s.timeline }

// Live reports whether epoch belongs to the current timeline.
func (s *Scheduler) Live(epoch uint64) bool { return epoch == s.epoch }

func (s *Scheduler) SetConfig(cfg SchedulerConfig) { s.cfg = cfg }

func (s *Scheduler) busy() bool {
	return s.state == StateScheduled || s.state == StatePlaying || s.state == StateDraining
}

// Accept takes ownership of tl and groups its events by offset.
func (s *Scheduler) Accept(tl viseme.Timeline) {
	s.superseded = s.busy()
	if s.superseded {
		dropped := s.timers.CancelEpoch(s.epoch)
		s.log.Debug().
			Uint64("epoch", s.epoch).
			Str("state", s.state.String()).
			Int("dropped_actions", dropped).
			Msg("timeline superseded")
		s.observer.TimelineSuperseded()
	}

	s.epoch++
	s.timeline = tl
	s.actions = groupActions(tl.Events)
	s.pending = 0
	s.state = StateScheduled
}

// Start anchors the scheduled timeline at now and arms its actions.
func (s *Scheduler) Start(now time.Time) error {
	if s.state != StateScheduled {
		return ErrNotScheduled
	}

	s.t0 = now
	epoch := s.epoch
	s.pending = len(s.actions)
	for i := range s.actions {
		a := s.actions[i]
		s.timers.Schedule(now.Add(a.offset), epoch, func(at time.Time) {
			s.fire(a, at)
		})
	}
	s.timers.Schedule(now.Add(s.timeline.LastOffset()+s.cfg.DrainDelay), epoch, s.complete)

	if s.pending == 0 {
		s.state = StateDraining
	} else {
		s.state = StatePlaying
	}
	s.log.Debug().
		Uint64("epoch", epoch).
		Int("actions", len(s.actions)).
		Dur("last_offset", s.timeline.LastOffset()).
		Msg("timeline started")
	return nil
}

// Discard drops a timeline that will never start. Channels keep their values
// unless the dropped timeline had superseded a busy one; that one's drain
// reset is then applied immediately.
func (s *Scheduler) Discard() {
	if !s.busy() {
		return
	}
	s.timers.CancelEpoch(s.epoch)
	s.epoch++
	s.actions = nil
	s.pending = 0
	s.state = StateIdle
	if s.superseded {
		s.superseded = false
		s.reset()
		s.log.Debug().Uint64("epoch", s.epoch).Msg("discarded timeline reset superseded pose")
	}
}

func (s *Scheduler) fire(a action, at time.Time) {
	current := make(map[string]float32)
	order := make([]string, 0, 4)
	jawTargets := make([]JawTarget, 0, len(a.events))

	for _, ev := range a.events {
		jawTargets = append(jawTargets, JawTarget{Code: ev.Code, Weight: ev.Weight})
		for _, t := range s.profile.Targets(ev.Code) {
			v := ev.Weight * t.Gain
			prev, seen := current[t.Channel]
			if !seen {
				order = append(order, t.Channel)
			}
			if !seen || v > prev {
				current[t.Channel] = v
			}
		}
	}

	dur := s.cfg.RampDuration
	weight := s.profile.RampWeight
	for _, name := range s.previous {
		if _, keep := current[name]; keep {
			continue
		}
		s.interp.Ramp(at, name, 0, dur, weight)
	}
	for _, name := range order {
		s.interp.Ramp(at, name, current[name], dur, weight)
	}
	s.jaw.Apply(at, jawTargets, dur)

	s.previous = order
	s.pending--
	if s.pending <= 0 {
		s.state = StateDraining
	}
}

func (s *Scheduler) reset() {
	s.interp.CancelAll()
	if !s.cfg.SetupMode {
		s.channels.ResetAll()
	}
	s.previous = nil
}

func (s *Scheduler) complete(at time.Time) {
	s.reset()
	s.superseded = false
	s.actions = nil
	s.state = StateComplete
	s.log.Debug().Uint64("epoch", s.epoch).Time("at", at).Msg("timeline complete")
	s.observer.TimelineComplete()
}

func groupActions(events []viseme.Event) []action {
	var out []action
	for _, ev := range events {
		at := ev.At()
		if n := len(out); n > 0 && out[n-1].offset == at {
			out[n-1].events = append(out[n-1].events, ev)
			continue
		}
		out = append(out, action{offset: at, events: []viseme.Event{ev}})
	}
	return out
}
