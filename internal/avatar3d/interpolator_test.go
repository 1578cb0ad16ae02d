package avatar3d

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch0 = time.Unix(1_700_000_000, 0)

func at(ms int) time.Time {
	return epoch0.Add(time.Duration(ms) * time.Millisecond)
}

func newTestInterpolator(morphs ...string) (*ChannelSet, *Interpolator) {
	set := NewChannelSet()
	set.AddMorph(morphs...)
	return set, NewInterpolator(set, zerolog.Nop())
}

func TestInterpolator_RampReachesTarget(t *testing.T) {
	set, ip := newTestInterpolator("mouth")

	require.True(t, ip.Ramp(at(0), "mouth", 1, 300*time.Millisecond, 1))
	assert.True(t, ip.Active("mouth"))

	ip.Step(at(150))
	v, _ := set.Value("mouth")
	assert.InDelta(t, 0.5, v, 1e-6)

	ip.Step(at(300))
	v, _ = set.Value("mouth")
	assert.InDelta(t, 1.0, v, 1e-6)
	assert.False(t, ip.Active("mouth"), "ramp retires after its final sample")
}

func TestInterpolator_WeightApproachesAsymptotically(t *testing.T) {
	set, ip := newTestInterpolator("mouth")

	ip.Ramp(at(0), "mouth", 1, 300*time.Millisecond, 0.2)
	for ms := 0; ms <= 300; ms += 16 {
		ip.Step(at(ms))
	}
	ip.Step(at(300))

	v, _ := set.Value("mouth")
	assert.Greater(t, v, float32(0))
	assert.Less(t, v, float32(1))
}

func TestInterpolator_NewRampSupersedesFromCurrentValue(t *testing.T) {
	set, ip := newTestInterpolator("mouth")

	ip.Ramp(at(0), "mouth", 1, 300*time.Millisecond, 1)
	ip.Step(at(100))
	mid, _ := set.Value("mouth")
	assert.InDelta(t, 1.0/3.0, mid, 1e-5)

	ip.Ramp(at(100), "mouth", 0, 300*time.Millisecond, 1)
	assert.Equal(t, 1, ip.Len())

	ip.Step(at(250))
	v, _ := set.Value("mouth")
	assert.InDelta(t, mid*0.5, v, 1e-5, "second ramp eases from the live value")

	ip.Step(at(400))
	v, _ = set.Value("mouth")
	assert.InDelta(t, 0, v, 1e-6)
}

func TestInterpolator_MissingChannel(t *testing.T) {
	set, ip := newTestInterpolator("mouth")

	var missing []string
	ip.OnMissing(func(name string) { missing = append(missing, name) })

	assert.False(t, ip.Ramp(at(0), "viseme_nope", 1, time.Second, 1))
	assert.Equal(t, []string{"viseme_nope"}, missing)
	assert.Zero(t, ip.Len())
	assert.False(t, set.Has("viseme_nope"))
}

func TestInterpolator_RotationIsUnbounded(t *testing.T) {
	set := NewChannelSet()
	set.AddRotation("jaw", 1.57)
	ip := NewInterpolator(set, zerolog.Nop())

	ip.Ramp(at(0), "jaw", 2.5, 100*time.Millisecond, 1)
	ip.Step(at(100))

	v, _ := set.Value("jaw")
	assert.InDelta(t, 2.5, v, 1e-6)
}

func TestInterpolator_CancelAll(t *testing.T) {
	set, ip := newTestInterpolator("a", "b")

	ip.Ramp(at(0), "a", 1, time.Second, 1)
	ip.Ramp(at(0), "b", 1, time.Second, 1)
	ip.Cancel("a")
	assert.False(t, ip.Active("a"))
	assert.True(t, ip.Active("b"))

	ip.CancelAll()
	ip.Step(at(500))
	v, _ := set.Value("b")
	assert.Zero(t, v)
}

func TestInterpolator_MorphValuesStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []string{"a", "b", "c", "d"}
	set, ip := newTestInterpolator(names...)
	set.AddRotation("jaw", 1.57)

	now := 0
	for i := 0; i < 2000; i++ {
		now += rng.Intn(40)
		if rng.Intn(3) == 0 {
			name := names[rng.Intn(len(names))]
			target := rng.Float32()*5 - 2
			dur := time.Duration(rng.Intn(500)) * time.Millisecond
			ip.Ramp(at(now), name, target, dur, rng.Float32()*1.5)
		}
		ip.Step(at(now))

		set.Each(func(c *Channel) {
			if c.Kind != ChannelMorph {
				return
			}
			require.GreaterOrEqual(t, c.Value(), float32(0), "channel %s", c.Name)
			require.LessOrEqual(t, c.Value(), float32(1), "channel %s", c.Name)
		})
	}
}

func TestChannelSet_ResetAllAndSnapshot(t *testing.T) {
	set := NewChannelSet()
	set.AddMorph("a", "b", "a")
	set.AddRotation("jaw", 1.57)

	assert.Equal(t, []string{"a", "b", "jaw"}, set.Names())
	assert.True(t, set.Set("a", 3))
	assert.True(t, set.Set("jaw", 2))
	assert.False(t, set.Set("nope", 1))

	v, _ := set.Value("a")
	assert.Equal(t, float32(1), v, "morphs clamp to 1")

	set.ResetAll()
	snap := set.Snapshot()
	assert.Equal(t, map[string]float32{"a": 0, "b": 0, "jaw": 1.57}, snap)
	assert.Equal(t, []string{"a", "b", "jaw"}, SortedNames(snap))
}
