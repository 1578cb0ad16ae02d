package avatar3d

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvertedRange = errors.New("avatar3d: jaw range max below base")

// JawRange is the rotation span, in radians, a viseme code may open the jaw
// through.
type JawRange struct {
	Base float32
	Max  float32
}

// JawTarget is one active viseme code and its applied weight.
type JawTarget struct {
	Code   string
	Weight float32
}

// JawMapper derives the jaw bone rotation from the morph targets of the
// current action.
type JawMapper struct {
	interp  *Interpolator
	channel string
	neutral float32
	weight  float32
	ranges  map[string]JawRange
}

// NewJawMapper binds the mapper to a rotation channel. An empty channel
// yields a mapper whose Apply does nothing.
func NewJawMapper(interp *Interpolator, channel string, neutral, rampWeight float32) *JawMapper {
	return &JawMapper{
		interp:  interp,
		channel: channel,
		neutral: neutral,
		weight:  rampWeight,
		ranges:  make(map[string]JawRange),
	}
}

func (m *JawMapper) Channel() string  { return m.channel }
func (m *JawMapper) Neutral() float32 { return m.neutral }

func (m *JawMapper) RegisterRange(code string, r JawRange) error {
	if r.Max < r.Base {
		return fmt.Errorf("%w: %s base=%.3f max=%.3f", ErrInvertedRange, code, r.Base, r.Max)
	}
	m.ranges[code] = r
	return nil
}

// Angle returns the rotation for code at weight w, monotonic non-decreasing
// in w.
func (m *JawMapper) Angle(code string, w float32) (float32, bool) {
	r, ok := m.ranges[code]
	if !ok {
		return m.neutral, false
	}
	return r.Base + (r.Max-r.Base)*mgl32.Clamp(w, 0, 1), true
}

// Select picks the highest weighted target that has a registered range.
// Ties keep the earlier target.
func (m *JawMapper) Select(targets []JawTarget) (JawTarget, bool) {
	var best JawTarget
	found := false
	for _, t := range targets {
		if _, ok := m.ranges[t.Code]; !ok {
			continue
		}
		if !found || t.Weight > best.Weight {
			best = t
			found = true
		}
	}
	return best, found
}

// Apply ramps the jaw toward the angle of the selected target, or back to
// neutral when nothing maps.
func (m *JawMapper) Apply(now time.Time, targets []JawTarget, duration time.Duration) {
	if m.channel == "" {
		return
	}
	angle := m.neutral
	if t, ok := m.Select(targets); ok {
		angle, _ = m.Angle(t.Code, t.Weight)
	}
	m.interp.Ramp(now, m.channel, angle, duration, m.weight)
}
