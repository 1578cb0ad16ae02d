// Package config provides configuration management for cortexface
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/normanking/cortexface/internal/avatar3d"
)

var ErrInvalid = errors.New("config: invalid")

// Config holds all application configuration
type Config struct {
	Session   SessionConfig            `mapstructure:"session"`
	Character CharacterConfig          `mapstructure:"character"`
	Animation AnimationConfig          `mapstructure:"animation"`
	HTTP      HTTPConfig               `mapstructure:"http"`
	Logging   LoggingConfig            `mapstructure:"logging"`
	Profiles  map[string]ProfileConfig `mapstructure:"profiles"`
	Moods     map[string][]MoodTarget  `mapstructure:"moods"`
}

// MoodTarget is one channel of a configured mood pose. Poses are lists
// because viper folds map keys to lower case.
type MoodTarget struct {
	Channel string  `mapstructure:"channel"`
	Value   float32 `mapstructure:"value"`
}

// SessionConfig configures the dialogue service connection
type SessionConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	ServerURL         string        `mapstructure:"server_url"`
	Path              string        `mapstructure:"path"`
	ParticipantID     string        `mapstructure:"participant_id"` // utterances from this id are echoes
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
}

// CharacterConfig selects the rig being animated
type CharacterConfig struct {
	ID          string `mapstructure:"id"`
	Profile     string `mapstructure:"profile"`    // rpm, arkit, cc4 or a key of profiles
	ModelPath   string `mapstructure:"model_path"` // optional glTF; limits channels to its morph targets
	FrameRate   int    `mapstructure:"frame_rate"`
	DefaultMood string `mapstructure:"default_mood"`
}

// AnimationConfig holds tunables that can be hot-reloaded
type AnimationConfig struct {
	RampDuration  time.Duration `mapstructure:"ramp_duration"`
	RampWeight    float32       `mapstructure:"ramp_weight"` // 0 keeps the profile's weight
	DrainDelay    time.Duration `mapstructure:"drain_delay"`
	SetupMode     bool          `mapstructure:"setup_mode"`
	MoodBlend     float32       `mapstructure:"mood_blend"`
	BlinkMinGap   time.Duration `mapstructure:"blink_min_gap"`
	BlinkMaxGap   time.Duration `mapstructure:"blink_max_gap"`
	BlinkDuration time.Duration `mapstructure:"blink_duration"`
	EyelidLerp    float32       `mapstructure:"eyelid_lerp"`
	WinkDuration  time.Duration `mapstructure:"wink_duration"`
	// ClipFallback is how long a clip of unknown length is assumed to play.
	ClipFallback time.Duration `mapstructure:"clip_fallback"`
}

// HTTPConfig configures the status and injection API
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig mirrors logging.Config
type LoggingConfig struct {
	Dir        string `mapstructure:"dir"`
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	MaxHistory int    `mapstructure:"max_history"`
}

// ProfileConfig describes a custom rig. Base, when set, names a built-in
// profile the rest of the fields are layered over.
type ProfileConfig struct {
	Base       string                              `mapstructure:"base"`
	Codes      map[string][]avatar3d.ChannelTarget `mapstructure:"codes"`
	Morphs     []string                            `mapstructure:"morphs"`
	Eyelids    []string                            `mapstructure:"eyelids"`
	Jaw        JawConfig                           `mapstructure:"jaw"`
	RampWeight float32                             `mapstructure:"ramp_weight"`
}

// JawConfig is the jaw bone in degrees.
type JawConfig struct {
	Channel        string                    `mapstructure:"channel"`
	NeutralDegrees float32                   `mapstructure:"neutral_degrees"`
	Ranges         map[string]JawRangeConfig `mapstructure:"ranges"`
}

type JawRangeConfig struct {
	BaseDegrees float32 `mapstructure:"base_degrees"`
	MaxDegrees  float32 `mapstructure:"max_degrees"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	idle := avatar3d.DefaultIdleConfig()
	sched := avatar3d.DefaultSchedulerConfig()
	home, _ := os.UserHomeDir()

	return &Config{
		Session: SessionConfig{
			Enabled:           false,
			ServerURL:         "http://localhost:8080",
			Path:              "/v1/avatar/ws",
			ParticipantID:     "cortexface",
			ReconnectDelay:    3 * time.Second,
			MaxReconnectDelay: 60 * time.Second,
		},
		Character: CharacterConfig{
			ID:          "avatar",
			Profile:     "rpm",
			FrameRate:   60,
			DefaultMood: avatar3d.MoodDefault,
		},
		Animation: AnimationConfig{
			RampDuration:  sched.RampDuration,
			DrainDelay:    sched.DrainDelay,
			MoodBlend:     idle.MoodBlend,
			BlinkMinGap:   idle.BlinkMinGap,
			BlinkMaxGap:   idle.BlinkMaxGap,
			BlinkDuration: idle.BlinkDuration,
			EyelidLerp:    idle.EyelidLerp,
			WinkDuration:  idle.WinkDuration,
			ClipFallback:  2 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8790",
		},
		Logging: LoggingConfig{
			Dir:        filepath.Join(home, ".cortexface", "logs"),
			Level:      "info",
			Console:    true,
			MaxHistory: 1000,
		},
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.Character.FrameRate <= 0 {
		return fmt.Errorf("%w: character.frame_rate %d", ErrInvalid, c.Character.FrameRate)
	}
	a := c.Animation
	if a.RampDuration <= 0 {
		return fmt.Errorf("%w: animation.ramp_duration %s", ErrInvalid, a.RampDuration)
	}
	if a.RampWeight < 0 || a.RampWeight > 1 {
		return fmt.Errorf("%w: animation.ramp_weight %v outside [0,1]", ErrInvalid, a.RampWeight)
	}
	if a.DrainDelay < 0 {
		return fmt.Errorf("%w: animation.drain_delay %s is negative", ErrInvalid, a.DrainDelay)
	}
	if a.BlinkDuration <= 0 {
		return fmt.Errorf("%w: animation.blink_duration %s", ErrInvalid, a.BlinkDuration)
	}
	if a.BlinkMinGap < 0 || a.BlinkMaxGap < 0 {
		return fmt.Errorf("%w: animation blink gaps must not be negative", ErrInvalid)
	}
	if a.WinkDuration < 0 {
		return fmt.Errorf("%w: animation.wink_duration %s is negative", ErrInvalid, a.WinkDuration)
	}
	if a.BlinkMinGap > a.BlinkMaxGap {
		return fmt.Errorf("%w: animation.blink_min_gap exceeds blink_max_gap", ErrInvalid)
	}
	if a.MoodBlend < 0 || a.MoodBlend > 1 || a.EyelidLerp < 0 || a.EyelidLerp > 1 {
		return fmt.Errorf("%w: animation blend factors must lie in [0,1]", ErrInvalid)
	}
	if _, err := c.ResolveProfile(); err != nil {
		return err
	}
	return nil
}

// Idle returns the idle layer tunables.
func (a AnimationConfig) Idle() avatar3d.IdleConfig {
	return avatar3d.IdleConfig{
		MoodBlend:     a.MoodBlend,
		BlinkMinGap:   a.BlinkMinGap,
		BlinkMaxGap:   a.BlinkMaxGap,
		BlinkDuration: a.BlinkDuration,
		EyelidLerp:    a.EyelidLerp,
		WinkDuration:  a.WinkDuration,
	}
}

// Scheduler returns the speech scheduler tunables.
func (a AnimationConfig) Scheduler() avatar3d.SchedulerConfig {
	return avatar3d.SchedulerConfig{
		RampDuration: a.RampDuration,
		DrainDelay:   a.DrainDelay,
		SetupMode:    a.SetupMode,
	}
}

// ResolveProfile builds the profile named by character.profile, either a
// custom one from profiles or a built-in.
func (c *Config) ResolveProfile() (avatar3d.Profile, error) {
	name := c.Character.Profile
	var (
		p   avatar3d.Profile
		err error
	)
	if custom, ok := c.Profiles[strings.ToLower(name)]; ok {
		p, err = custom.build(name)
	} else {
		p, err = avatar3d.BuiltinProfile(name)
	}
	if err != nil {
		return avatar3d.Profile{}, err
	}
	if c.Animation.RampWeight > 0 {
		p.RampWeight = c.Animation.RampWeight
	}
	if err := p.Validate(); err != nil {
		return avatar3d.Profile{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return p, nil
}

func (pc ProfileConfig) build(name string) (avatar3d.Profile, error) {
	p := avatar3d.Profile{Name: name, RampWeight: 1}
	if pc.Base != "" {
		base, err := avatar3d.BuiltinProfile(pc.Base)
		if err != nil {
			return avatar3d.Profile{}, fmt.Errorf("profile %s: %w", name, err)
		}
		p = base
		p.Name = name
	}
	if p.Codes == nil {
		p.Codes = map[string][]avatar3d.ChannelTarget{}
	}
	for code, targets := range pc.Codes {
		p.Codes[strings.ToLower(strings.TrimSpace(code))] = targets
	}
	p.Morphs = append(p.Morphs, pc.Morphs...)

	switch len(pc.Eyelids) {
	case 0:
	case 2:
		p.Eyelids = [2]string{pc.Eyelids[0], pc.Eyelids[1]}
	default:
		return avatar3d.Profile{}, fmt.Errorf("%w: profile %s needs two eyelids, got %d", ErrInvalid, name, len(pc.Eyelids))
	}

	if pc.Jaw.Channel != "" {
		jaw := avatar3d.JawProfile{
			Channel: pc.Jaw.Channel,
			Neutral: mgl32.DegToRad(pc.Jaw.NeutralDegrees),
			Ranges:  make(map[string]avatar3d.JawRange, len(pc.Jaw.Ranges)),
		}
		for code, r := range pc.Jaw.Ranges {
			jaw.Ranges[strings.ToLower(strings.TrimSpace(code))] = avatar3d.JawRange{
				Base: mgl32.DegToRad(r.BaseDegrees),
				Max:  mgl32.DegToRad(r.MaxDegrees),
			}
		}
		p.Jaw = jaw
	}
	if pc.RampWeight > 0 {
		p.RampWeight = pc.RampWeight
	}
	return p, nil
}

// MoodLibrary returns the built-in moods with the configured ones layered on.
func (c *Config) MoodLibrary() *avatar3d.MoodLibrary {
	lib := avatar3d.NewMoodLibrary()
	for name, targets := range c.Moods {
		pose := make(avatar3d.MoodPose, len(targets))
		for _, t := range targets {
			pose[t.Channel] = t.Value
		}
		lib.Define(name, pose)
	}
	return lib
}

// settings is the config as viper keys. Durations are written as strings so
// the saved file stays readable.
func (c *Config) settings() map[string]any {
	out := map[string]any{
		"session": map[string]any{
			"enabled":             c.Session.Enabled,
			"server_url":          c.Session.ServerURL,
			"path":                c.Session.Path,
			"participant_id":      c.Session.ParticipantID,
			"reconnect_delay":     c.Session.ReconnectDelay.String(),
			"max_reconnect_delay": c.Session.MaxReconnectDelay.String(),
		},
		"character": map[string]any{
			"id":           c.Character.ID,
			"profile":      c.Character.Profile,
			"model_path":   c.Character.ModelPath,
			"frame_rate":   c.Character.FrameRate,
			"default_mood": c.Character.DefaultMood,
		},
		"animation": map[string]any{
			"ramp_duration":  c.Animation.RampDuration.String(),
			"ramp_weight":    c.Animation.RampWeight,
			"drain_delay":    c.Animation.DrainDelay.String(),
			"setup_mode":     c.Animation.SetupMode,
			"mood_blend":     c.Animation.MoodBlend,
			"blink_min_gap":  c.Animation.BlinkMinGap.String(),
			"blink_max_gap":  c.Animation.BlinkMaxGap.String(),
			"blink_duration": c.Animation.BlinkDuration.String(),
			"eyelid_lerp":    c.Animation.EyelidLerp,
			"wink_duration":  c.Animation.WinkDuration.String(),
			"clip_fallback":  c.Animation.ClipFallback.String(),
		},
		"http": map[string]any{
			"enabled": c.HTTP.Enabled,
			"addr":    c.HTTP.Addr,
		},
		"logging": map[string]any{
			"dir":         c.Logging.Dir,
			"level":       c.Logging.Level,
			"console":     c.Logging.Console,
			"max_history": c.Logging.MaxHistory,
		},
	}
	if len(c.Moods) > 0 {
		moods := make(map[string]any, len(c.Moods))
		for name, targets := range c.Moods {
			list := make([]any, 0, len(targets))
			for _, t := range targets {
				list = append(list, map[string]any{"channel": t.Channel, "value": t.Value})
			}
			moods[name] = list
		}
		out["moods"] = moods
	}
	if len(c.Profiles) > 0 {
		profiles := make(map[string]any, len(c.Profiles))
		for name, p := range c.Profiles {
			profiles[name] = p.settings()
		}
		out["profiles"] = profiles
	}
	return out
}

func (pc ProfileConfig) settings() map[string]any {
	codes := make(map[string]any, len(pc.Codes))
	for code, targets := range pc.Codes {
		list := make([]any, 0, len(targets))
		for _, t := range targets {
			list = append(list, map[string]any{"channel": t.Channel, "gain": t.Gain})
		}
		codes[code] = list
	}
	ranges := make(map[string]any, len(pc.Jaw.Ranges))
	for code, r := range pc.Jaw.Ranges {
		ranges[code] = map[string]any{"base_degrees": r.BaseDegrees, "max_degrees": r.MaxDegrees}
	}
	return map[string]any{
		"base":        pc.Base,
		"codes":       codes,
		"morphs":      pc.Morphs,
		"eyelids":     pc.Eyelids,
		"ramp_weight": pc.RampWeight,
		"jaw": map[string]any{
			"channel":         pc.Jaw.Channel,
			"neutral_degrees": pc.Jaw.NeutralDegrees,
			"ranges":          ranges,
		},
	}
}

// Loader reads and writes one config directory.
type Loader struct {
	v      *viper.Viper
	dir    string
	logger zerolog.Logger
}

// NewLoader reads config.yaml from dir, then the working directory.
// Environment variables prefixed CORTEXFACE_ override file values, e.g.
// CORTEXFACE_CHARACTER_PROFILE.
func NewLoader(dir string, logger zerolog.Logger) *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(".")
	v.SetEnvPrefix("CORTEXFACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range flatten("", DefaultConfig().settings()) {
		v.SetDefault(key, value)
	}

	return &Loader{v: v, dir: dir, logger: logger.With().Str("component", "config").Logger()}
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			for fk, fv := range flatten(key, sub) {
				out[fk] = fv
			}
			continue
		}
		out[key] = v
	}
	return out
}

// Load reads configuration from file and environment. A missing file is
// created from the defaults.
func (l *Loader) Load() (*Config, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return nil, err
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := l.Save(DefaultConfig()); err != nil {
			return nil, err
		}
		l.v.SetConfigFile(l.Path())
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		l.logger.Info().Str("path", l.Path()).Msg("wrote default config")
	}

	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns where Save writes.
func (l *Loader) Path() string {
	return filepath.Join(l.dir, "config.yaml")
}

// Save writes the configuration to file
func (l *Loader) Save(cfg *Config) error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return err
	}
	// A scratch instance keeps Set overrides out of the loader, where they
	// would shadow later edits to the file.
	w := viper.New()
	for key, value := range cfg.settings() {
		w.Set(key, value)
	}
	return w.WriteConfigAs(l.Path())
}

// Watch calls onChange with the reloaded config each time the file changes.
// Reloads that fail validation are logged and skipped.
func (l *Loader) Watch(onChange func(cfg *Config, ev fsnotify.Event)) {
	l.v.OnConfigChange(func(ev fsnotify.Event) {
		cfg, err := l.unmarshal()
		if err != nil {
			l.logger.Warn().Err(err).Str("file", ev.Name).Msg("config reload rejected")
			return
		}
		l.logger.Info().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("config reloaded")
		onChange(cfg, ev)
	})
	l.v.WatchConfig()
}

// Dir returns the default configuration directory path
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cortexface"), nil
}

// Load reads the config from the default directory.
func Load(logger zerolog.Logger) (*Config, *Loader, error) {
	dir, err := Dir()
	if err != nil {
		return nil, nil, err
	}
	l := NewLoader(dir, logger)
	cfg, err := l.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}
