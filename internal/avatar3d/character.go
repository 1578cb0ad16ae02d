package avatar3d

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexface/internal/viseme"
)

// Observer receives diagnostics from a character loop. Calls happen on the
// loop goroutine.
type Observer interface {
	MissingChannel(channel string)
	StaleCallback(source string)
	TimelineSuperseded()
	TimelineComplete()
	MoodChanged(mood string)
}

type NopObserver struct{}

func (NopObserver) MissingChannel(string) {}
func (NopObserver) StaleCallback(string)  {}
func (NopObserver) TimelineSuperseded()   {}
func (NopObserver) TimelineComplete()     {}
func (NopObserver) MoodChanged(string)    {}

type Options struct {
	Profile   Profile
	Model     ModelChannels // empty means every channel the profile names
	Moods     *MoodLibrary
	Idle      IdleConfig
	Scheduler SchedulerConfig
	FrameRate int
	Observer  Observer
	Logger    zerolog.Logger
	Rand      *rand.Rand
}

func DefaultOptions(profile Profile) Options {
	return Options{
		Profile:   profile,
		Idle:      DefaultIdleConfig(),
		Scheduler: DefaultSchedulerConfig(),
		FrameRate: 60,
		Logger:    zerolog.Nop(),
	}
}

// Snapshot is a read-only copy of a character's state after a tick.
type Snapshot struct {
	At       time.Time          `json:"at"`
	State    string             `json:"state"`
	Epoch    uint64             `json:"epoch"`
	Mood     string             `json:"mood"`
	Blink    string             `json:"blink"`
	Channels map[string]float32 `json:"channels"`
}

// Character owns every animation component of one mounted character. All
// channel state mutates on the goroutine calling Tick; other goroutines hand
// work over with Post.
type Character struct {
	id       string
	profile  Profile
	channels *ChannelSet
	interp   *Interpolator
	jaw      *JawMapper
	idle     *IdleLayer
	sched    *Scheduler
	timers   *Timers
	moods    *MoodLibrary
	observer Observer
	log      zerolog.Logger
	frame    time.Duration

	mood string

	mu      sync.Mutex
	inbox   []func(now time.Time)
	onClose []func()

	closed   atomic.Bool
	done     chan struct{}
	snapshot atomic.Pointer[Snapshot]
}

func NewCharacter(id string, opts Options) (*Character, error) {
	if err := opts.Profile.Validate(); err != nil {
		return nil, err
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Moods == nil {
		opts.Moods = NewMoodLibrary()
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 60
	}

	log := opts.Logger.With().Str("component", "avatar3d").Str("character", id).Logger()

	c := &Character{
		id:       id,
		profile:  opts.Profile,
		channels: opts.Profile.ChannelsFor(opts.Model),
		timers:   &Timers{},
		moods:    opts.Moods,
		observer: opts.Observer,
		log:      log,
		frame:    time.Second / time.Duration(opts.FrameRate),
		mood:     MoodDefault,
		done:     make(chan struct{}),
	}

	c.interp = NewInterpolator(c.channels, log)
	c.interp.OnMissing(opts.Observer.MissingChannel)

	jaw, err := opts.Profile.NewJawMapper(c.interp)
	if err != nil {
		return nil, err
	}
	c.jaw = jaw
	c.idle = NewIdleLayer(c.channels, c.interp, opts.Profile.Eyelids, opts.Idle, opts.Rand)
	c.sched = NewScheduler(c.channels, c.interp, c.jaw, c.timers, opts.Profile, opts.Scheduler, opts.Observer, log)

	c.publish(time.Time{})
	return c, nil
}

func (c *Character) ID() string       { return c.id }
func (c *Character) Profile() Profile { return c.profile }

// Post queues fn to run at the start of the next tick. It reports false once
// the character is closed.
func (c *Character) Post(fn func(now time.Time)) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	c.inbox = append(c.inbox, fn)
	c.mu.Unlock()
	return true
}

// Tick advances the character by one frame.
func (c *Character) Tick(now time.Time) {
	if c.closed.Load() {
		return
	}

	c.mu.Lock()
	inbox := c.inbox
	c.inbox = nil
	c.mu.Unlock()
	for _, fn := range inbox {
		fn(now)
	}

	_, stale := c.timers.Fire(now, c.sched.Live)
	for i := 0; i < stale; i++ {
		c.observer.StaleCallback("timer")
	}

	c.interp.Step(now)
	c.idle.Step(now)
	c.publish(now)
}

// Run ticks at the configured frame rate until ctx is done or the character
// is closed.
func (c *Character) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.frame)
	defer ticker.Stop()

	c.log.Info().Dur("frame", c.frame).Str("profile", c.profile.Name).Msg("character loop started")
	defer c.log.Info().Msg("character loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

// Accept hands a timeline to the scheduler. Loop only.
func (c *Character) Accept(tl viseme.Timeline) {
	c.sched.Accept(tl)
}

// Start begins the accepted timeline at now and applies its mood. Loop only.
func (c *Character) Start(now time.Time) {
	if err := c.sched.Start(now); err != nil {
		c.log.Debug().Err(err).Msg("start ignored")
		c.observer.StaleCallback("start")
		return
	}
	if mood := c.sched.Timeline().Mood; mood != "" {
		c.SetMood(mood)
	}
}

// Discard drops an accepted timeline whose audio never started. Loop only.
func (c *Character) Discard() {
	c.sched.Discard()
}

// SetMood swaps the idle pose. Unknown moods keep the current pose. Loop only.
func (c *Character) SetMood(name string) bool {
	pose, ok := c.moods.Lookup(name)
	if !ok {
		c.log.Warn().Str("mood", name).Msg("unknown mood ignored")
		return false
	}
	c.idle.SetMood(pose)
	if c.mood != name {
		c.mood = name
		c.observer.MoodChanged(name)
	}
	return true
}

// Wink closes one eyelid briefly. Loop only.
func (c *Character) Wink(now time.Time, side EyelidSide) {
	c.idle.Wink(now, side)
}

// Reconfigure swaps animation tunables. Loop only.
func (c *Character) Reconfigure(idle IdleConfig, sched SchedulerConfig) {
	c.idle.SetConfig(idle)
	c.sched.SetConfig(sched)
	c.log.Info().
		Dur("ramp", sched.RampDuration).
		Dur("drain", sched.DrainDelay).
		Bool("setup_mode", sched.SetupMode).
		Msg("animation reconfigured")
}

// OnClose registers a release hook run once by Close.
func (c *Character) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Close stops the loop and releases subscribers. Safe to call more than once.
func (c *Character) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)

	c.mu.Lock()
	hooks := c.onClose
	c.onClose = nil
	c.inbox = nil
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

func (c *Character) Closed() bool { return c.closed.Load() }

func (c *Character) publish(now time.Time) {
	c.snapshot.Store(&Snapshot{
		At:       now,
		State:    c.sched.State().String(),
		Epoch:    c.sched.Epoch(),
		Mood:     c.mood,
		Blink:    c.idle.BlinkState().String(),
		Channels: c.channels.Snapshot(),
	})
}

// Snapshot returns the state published by the latest tick. Safe from any
// goroutine.
func (c *Character) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// JawEuler returns the jaw bone Euler rotation from the latest tick.
func (c *Character) JawEuler() mgl32.Vec3 {
	if c.jaw.Channel() == "" {
		return mgl32.Vec3{}
	}
	snap := c.snapshot.Load()
	z, ok := snap.Channels[c.jaw.Channel()]
	if !ok {
		z = c.jaw.Neutral()
	}
	return mgl32.Vec3{0, 0, z}
}

func (c *Character) String() string {
	return fmt.Sprintf("character(%s, %s)", c.id, c.profile.Name)
}
