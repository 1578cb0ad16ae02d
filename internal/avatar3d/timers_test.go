package avatar3d

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimers_FireInDueOrder(t *testing.T) {
	var tm Timers
	var got []string
	record := func(name string) func(time.Time) {
		return func(time.Time) { got = append(got, name) }
	}

	tm.Schedule(at(300), 1, record("c"))
	tm.Schedule(at(100), 1, record("a"))
	tm.Schedule(at(100), 1, record("b"))
	tm.Schedule(at(900), 1, record("d"))

	next, ok := tm.Next()
	assert.True(t, ok)
	assert.Equal(t, at(100), next)

	fired, stale := tm.Fire(at(300), nil)
	assert.Equal(t, 3, fired)
	assert.Zero(t, stale)
	assert.Equal(t, []string{"a", "b", "c"}, got, "equal due times keep scheduling order")
	assert.Equal(t, 1, tm.Len())
}

func TestTimers_PassesScheduledTime(t *testing.T) {
	var tm Timers
	var seen time.Time
	tm.Schedule(at(120), 1, func(when time.Time) { seen = when })
	tm.Fire(at(135), nil)
	assert.Equal(t, at(120), seen)
}

func TestTimers_CancelEpoch(t *testing.T) {
	var tm Timers
	var got []uint64
	for i := 0; i < 5; i++ {
		ep := uint64(i%2 + 1)
		tm.Schedule(at(i*10), ep, func(time.Time) { got = append(got, ep) })
	}

	assert.Equal(t, 3, tm.CancelEpoch(1))
	assert.Equal(t, 2, tm.Len())

	tm.Fire(at(1000), nil)
	assert.Equal(t, []uint64{2, 2}, got)
}

func TestTimers_StaleEpochsAreDropped(t *testing.T) {
	var tm Timers
	calls := 0
	tm.Schedule(at(0), 1, func(time.Time) { calls++ })
	tm.Schedule(at(0), 2, func(time.Time) { calls++ })

	fired, stale := tm.Fire(at(0), func(ep uint64) bool { return ep == 2 })
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, stale)
	assert.Equal(t, 1, calls)
}
