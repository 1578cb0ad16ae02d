package bridge

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexface/internal/avatar3d"
	"github.com/normanking/cortexface/internal/bus"
	"github.com/normanking/cortexface/internal/metrics"
	"github.com/normanking/cortexface/internal/viseme"
)

func TestObserver_ReportsCharacterEvents(t *testing.T) {
	m := metrics.New("test")
	events := bus.NewEventBus()
	moods := make(chan string, 4)
	events.Subscribe(bus.EventMoodChanged, func(ev bus.Event) { moods <- ev.Data["mood"].(string) })

	profile, err := avatar3d.BuiltinProfile("arkit")
	require.NoError(t, err)
	opts := avatar3d.DefaultOptions(profile)
	opts.Observer = NewObserver("ava", m, events)
	opts.Logger = zerolog.Nop()
	c, err := avatar3d.NewCharacter("ava", opts)
	require.NoError(t, err)

	t0 := time.Unix(50, 0)
	c.Accept(viseme.Timeline{Mood: "sad", Events: []viseme.Event{{Offset: 0, Code: "a", Weight: 1}}})
	c.Start(t0)
	c.Tick(t0)

	c.Accept(viseme.Timeline{Events: []viseme.Event{{Offset: 0, Code: "o", Weight: 1}}})
	c.Start(t0.Add(100 * time.Millisecond))
	c.Tick(t0.Add(100 * time.Millisecond))
	c.Tick(t0.Add(time.Second))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SupersededTimeline))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletedTimeline))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MoodChanges.WithLabelValues("sad")))

	select {
	case mood := <-moods:
		assert.Equal(t, "sad", mood)
	case <-time.After(time.Second):
		t.Fatal("mood change not published")
	}
}
