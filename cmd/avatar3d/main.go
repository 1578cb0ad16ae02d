package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/cortexface/internal/avatar3d"
	"github.com/normanking/cortexface/internal/bridge"
	"github.com/normanking/cortexface/internal/bus"
	"github.com/normanking/cortexface/internal/config"
	"github.com/normanking/cortexface/internal/httpapi"
	"github.com/normanking/cortexface/internal/logging"
	"github.com/normanking/cortexface/internal/metrics"
	"github.com/normanking/cortexface/internal/speech"
	"github.com/normanking/cortexface/internal/transport"
)

type Flags struct {
	ConfigDir      string
	Profile        string
	ModelPath      string
	ServerURL      string
	HTTPAddr       string
	LogLevel       string
	Demo           bool
	DemoInterval   time.Duration
	StatusInterval time.Duration
}

func main() {
	flags := parseFlags()
	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "cortexface: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() Flags {
	var f Flags
	flag.StringVar(&f.ConfigDir, "config", "", "Configuration directory (default ~/.cortexface)")
	flag.StringVar(&f.Profile, "profile", "", "Rig profile override (rpm, arkit, cc4 or a configured profile)")
	flag.StringVar(&f.ModelPath, "model", "", "glTF model whose morph targets limit the animated channels")
	flag.StringVar(&f.ServerURL, "server", "", "Dialogue service URL; enables the session connection")
	flag.StringVar(&f.HTTPAddr, "http", "", "Status API listen address override")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flag.BoolVar(&f.Demo, "demo", false, "Speak canned demo lines")
	flag.DurationVar(&f.DemoInterval, "demo-interval", 6*time.Second, "Delay between demo lines")
	flag.DurationVar(&f.StatusInterval, "status", 5*time.Second, "Status log interval (0 disables)")
	flag.Parse()
	return f
}

func (f Flags) apply(cfg *config.Config) {
	if f.Profile != "" {
		cfg.Character.Profile = f.Profile
	}
	if f.ModelPath != "" {
		cfg.Character.ModelPath = f.ModelPath
	}
	if f.ServerURL != "" {
		cfg.Session.ServerURL = f.ServerURL
		cfg.Session.Enabled = true
	}
	if f.HTTPAddr != "" {
		cfg.HTTP.Addr = f.HTTPAddr
		cfg.HTTP.Enabled = true
	}
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
}

func run(flags Flags) error {
	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	dir := flags.ConfigDir
	if dir == "" {
		d, err := config.Dir()
		if err != nil {
			return err
		}
		dir = d
	}
	loader := config.NewLoader(dir, boot)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logs, err := logging.New(&logging.Config{
		LogDir:     cfg.Logging.Dir,
		Level:      logging.LogLevel(cfg.Logging.Level),
		MaxHistory: cfg.Logging.MaxHistory,
		Console:    cfg.Logging.Console,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logs.Close()
	log := logs.Component("main")

	log.Info().
		Str("config", loader.Path()).
		Str("log_file", logs.Path()).
		Str("character", cfg.Character.ID).
		Msg("cortexface starting")

	profile, err := cfg.ResolveProfile()
	if err != nil {
		return err
	}
	var model avatar3d.ModelChannels
	if cfg.Character.ModelPath != "" {
		model, err = avatar3d.ChannelNamesFromGLTF(cfg.Character.ModelPath)
		if err != nil {
			return fmt.Errorf("load model: %w", err)
		}
		log.Info().
			Str("model", cfg.Character.ModelPath).
			Int("morphs", len(model.Morphs)).
			Int("bones", len(model.Bones)).
			Msg("model channels loaded")
	}

	m := metrics.New("cortexface")
	events := bus.NewEventBus()
	events.SubscribeMultiple([]bus.EventType{
		bus.EventSessionConnected,
		bus.EventSessionDisconnected,
		bus.EventMoodChanged,
		bus.EventSpeechPlaybackError,
		bus.EventUtteranceDropped,
	}, func(ev bus.Event) {
		log.Debug().Str("event", string(ev.Type)).Interface("data", ev.Data).Msg("event")
	})

	opts := avatar3d.DefaultOptions(profile)
	opts.Model = model
	opts.Moods = cfg.MoodLibrary()
	opts.Idle = cfg.Animation.Idle()
	opts.Scheduler = cfg.Animation.Scheduler()
	opts.FrameRate = cfg.Character.FrameRate
	opts.Observer = bridge.NewObserver(cfg.Character.ID, m, events)
	opts.Logger = logs.Component("avatar3d")

	character, err := avatar3d.NewCharacter(cfg.Character.ID, opts)
	if err != nil {
		return err
	}
	defer character.Close()

	defaultMood := cfg.Character.DefaultMood
	character.Post(func(time.Time) { character.SetMood(defaultMood) })

	br := bridge.New(bridge.Options{
		LocalID: cfg.Session.ParticipantID,
		Bus:     events,
		Metrics: m,
		Logger:  logs.Component("bridge"),
	})

	var queue *speech.Queue
	queue = speech.NewQueue(
		speech.NewClockPlayer(cfg.Animation.ClipFallback, logs.Component("player")),
		character,
		speech.QueueOptions{
			Dispatch: character.Post,
			Hooks:    br.Hooks(func() int { return queue.Depth() }),
			Logger:   logs.Component("speech"),
		},
	)
	br.Attach(queue)
	character.OnClose(queue.Close)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return character.Run(gctx) })

	if cfg.Session.Enabled {
		client := transport.NewStreamClient(transport.Config{
			URL:           cfg.Session.ServerURL,
			Path:          cfg.Session.Path,
			ParticipantID: cfg.Session.ParticipantID,
			MinBackoff:    cfg.Session.ReconnectDelay,
			MaxBackoff:    cfg.Session.MaxReconnectDelay,
		}, logs.Component("transport"))
		client.SetUtteranceHandler(br.HandleUtterance)
		client.SetConnectionCallback(func(connected bool) {
			t := bus.EventSessionDisconnected
			if connected {
				t = bus.EventSessionConnected
			}
			events.Publish(bus.Event{Type: t, Data: map[string]any{"server": cfg.Session.ServerURL}})
		})
		client.SetErrorCallback(func(err error) {
			log.Warn().Err(err).Msg("dialogue service error")
		})
		br.SetOutbound(client)
		g.Go(func() error { return client.Run(gctx) })
	}

	if cfg.HTTP.Enabled {
		api := httpapi.New(httpapi.Options{
			Face:       character,
			Utterances: br,
			QueueDepth: queue.Depth,
			Metrics:    m,
			Logs:       logs,
			Logger:     logs.Component("httpapi"),
		})
		addr := cfg.HTTP.Addr
		g.Go(func() error { return api.Serve(gctx, addr) })
	}

	loader.Watch(func(next *config.Config, ev fsnotify.Event) {
		idle, sched := next.Animation.Idle(), next.Animation.Scheduler()
		character.Post(func(time.Time) { character.Reconfigure(idle, sched) })
		if next.Character.Profile != cfg.Character.Profile || next.Character.ModelPath != cfg.Character.ModelPath {
			log.Warn().Str("file", ev.Name).Msg("character rig changes take effect after restart")
		}
	})

	if flags.StatusInterval > 0 {
		g.Go(func() error { return logStatus(gctx, flags.StatusInterval, character, queue, log) })
	}
	if flags.Demo {
		g.Go(func() error { return runDemo(gctx, flags.DemoInterval, br.HandleUtterance, logs.Component("demo")) })
	}

	err = g.Wait()
	character.Close()
	log.Info().Msg("cortexface stopped")
	return err
}

func logStatus(ctx context.Context, interval time.Duration, c *avatar3d.Character, q *speech.Queue, log zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap := c.Snapshot()
			jaw := c.JawEuler()
			log.Info().
				Str("state", snap.State).
				Uint64("epoch", snap.Epoch).
				Str("mood", snap.Mood).
				Str("blink", snap.Blink).
				Int("queue_depth", q.Depth()).
				Float32("jaw_z", jaw.Z()).
				Msg("status")
		}
	}
}
