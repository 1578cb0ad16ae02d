package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexface/internal/avatar3d"
)

var _ avatar3d.Observer = (*Metrics)(nil)

func TestCounters(t *testing.T) {
	m := New("test")

	m.Utterance(ResultAccepted)
	m.Utterance(ResultAccepted)
	m.Utterance(ResultEcho)
	m.MissingChannel("jawOpen")
	m.StaleCallback("timer")
	m.StaleCallback("timer")
	m.TimelineSuperseded()
	m.TurnComplete()
	m.PlaybackFailed()
	m.SetQueueDepth(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Utterances.WithLabelValues(ResultAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Utterances.WithLabelValues(ResultEcho)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MissingChannels.WithLabelValues("jawOpen")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StaleCallbacks.WithLabelValues("timer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SupersededTimeline))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlaybackErrors))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))
}

func TestSeparateRegistries(t *testing.T) {
	a := New("cortexface")
	b := New("cortexface")
	a.TurnComplete()
	assert.Zero(t, testutil.ToFloat64(b.Turns))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New("cortexface")
	m.ObserveStartLatency(120 * time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "cortexface_playback_start_latency_ms_count 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Utterance(ResultClosed)
		m.MissingChannel("x")
		m.StaleCallback("start")
		m.TimelineSuperseded()
		m.TimelineComplete()
		m.MoodChanged("happy")
		m.ObserveStartLatency(time.Second)
		m.SetQueueDepth(1)
	})
	assert.Nil(t, m.Registry())
}
