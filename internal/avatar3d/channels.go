// Package avatar3d drives the facial channels of a mounted character: viseme
// ramps, jaw rotation, the idle mood/blink layer and the per-character loop
// that owns all of that state.
package avatar3d

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

type ChannelKind int

const (
	ChannelMorph ChannelKind = iota
	ChannelRotation
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelMorph:
		return "morph"
	case ChannelRotation:
		return "rotation"
	default:
		return "unknown"
	}
}

// Channel is one named animatable scalar. Morph values live in [0,1];
// rotation values are radians and rest at Neutral.
type Channel struct {
	Name    string
	Kind    ChannelKind
	Neutral float32

	value float32
}

func (c *Channel) Value() float32 { return c.value }

func (c *Channel) set(v float32) {
	if c.Kind == ChannelMorph {
		v = mgl32.Clamp(v, 0, 1)
	}
	c.value = v
}

// ChannelSet is the addressable name -> scalar surface of one character.
// It is not safe for concurrent use; the owning Character serializes access.
type ChannelSet struct {
	channels map[string]*Channel
	order    []string
}

func NewChannelSet() *ChannelSet {
	return &ChannelSet{channels: make(map[string]*Channel)}
}

// AddMorph registers morph channels. Existing names are left untouched.
func (s *ChannelSet) AddMorph(names ...string) {
	for _, name := range names {
		s.add(&Channel{Name: name, Kind: ChannelMorph})
	}
}

func (s *ChannelSet) AddRotation(name string, neutral float32) {
	s.add(&Channel{Name: name, Kind: ChannelRotation, Neutral: neutral, value: neutral})
}

func (s *ChannelSet) add(c *Channel) {
	if c.Name == "" {
		return
	}
	if _, ok := s.channels[c.Name]; ok {
		return
	}
	s.channels[c.Name] = c
	s.order = append(s.order, c.Name)
}

func (s *ChannelSet) Lookup(name string) (*Channel, bool) {
	c, ok := s.channels[name]
	return c, ok
}

func (s *ChannelSet) Has(name string) bool {
	_, ok := s.channels[name]
	return ok
}

func (s *ChannelSet) Value(name string) (float32, bool) {
	c, ok := s.channels[name]
	if !ok {
		return 0, false
	}
	return c.value, true
}

// Set writes a value, clamping morphs to [0,1]. It reports false for an
// unknown channel.
func (s *ChannelSet) Set(name string, v float32) bool {
	c, ok := s.channels[name]
	if !ok {
		return false
	}
	c.set(v)
	return true
}

func (s *ChannelSet) Len() int { return len(s.order) }

// Names returns channel names in registration order.
func (s *ChannelSet) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *ChannelSet) Each(fn func(c *Channel)) {
	for _, name := range s.order {
		fn(s.channels[name])
	}
}

// ResetAll forces every morph to 0 and every rotation to its neutral.
func (s *ChannelSet) ResetAll() {
	for _, c := range s.channels {
		if c.Kind == ChannelRotation {
			c.value = c.Neutral
		} else {
			c.value = 0
		}
	}
}

// Snapshot copies all values keyed by channel name.
func (s *ChannelSet) Snapshot() map[string]float32 {
	out := make(map[string]float32, len(s.channels))
	for name, c := range s.channels {
		out[name] = c.value
	}
	return out
}

// SortedNames returns the keys of a snapshot in lexical order.
func SortedNames(values map[string]float32) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ARKitChannels lists the 52 ARKit face blendshapes.
var ARKitChannels = []string{
	"browDownLeft",
	"browDownRight",
	"browInnerUp",
	"browOuterUpLeft",
	"browOuterUpRight",
	"cheekPuff",
	"cheekSquintLeft",
	"cheekSquintRight",
	"eyeBlinkLeft",
	"eyeBlinkRight",
	"eyeLookDownLeft",
	"eyeLookDownRight",
	"eyeLookInLeft",
	"eyeLookInRight",
	"eyeLookOutLeft",
	"eyeLookOutRight",
	"eyeLookUpLeft",
	"eyeLookUpRight",
	"eyeSquintLeft",
	"eyeSquintRight",
	"eyeWideLeft",
	"eyeWideRight",
	"jawForward",
	"jawLeft",
	"jawOpen",
	"jawRight",
	"mouthClose",
	"mouthDimpleLeft",
	"mouthDimpleRight",
	"mouthFrownLeft",
	"mouthFrownRight",
	"mouthFunnel",
	"mouthLeft",
	"mouthLowerDownLeft",
	"mouthLowerDownRight",
	"mouthPressLeft",
	"mouthPressRight",
	"mouthPucker",
	"mouthRight",
	"mouthRollLower",
	"mouthRollUpper",
	"mouthShrugLower",
	"mouthShrugUpper",
	"mouthSmileLeft",
	"mouthSmileRight",
	"mouthStretchLeft",
	"mouthStretchRight",
	"mouthUpperUpLeft",
	"mouthUpperUpRight",
	"noseSneerLeft",
	"noseSneerRight",
	"tongueOut",
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
