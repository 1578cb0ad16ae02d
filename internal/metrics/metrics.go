// Package metrics holds the Prometheus instruments of a cortexface process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Utterance results.
const (
	ResultAccepted    = "accepted"
	ResultEcho        = "echo"
	ResultAudioError  = "audio_error"
	ResultVisemeError = "viseme_error"
	ResultClosed      = "closed"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Utterances         *prometheus.CounterVec
	PlaybackErrors     prometheus.Counter
	MissingChannels    *prometheus.CounterVec
	StaleCallbacks     *prometheus.CounterVec
	SupersededTimeline prometheus.Counter
	CompletedTimeline  prometheus.Counter
	MoodChanges        *prometheus.CounterVec
	Turns              prometheus.Counter
	QueueDepth         prometheus.Gauge
	StartLatency       prometheus.Histogram
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := factory{reg: reg}

	return &Metrics{
		registry: reg,
		Utterances: f.counterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Inbound utterances by result.",
		}, "result"),
		PlaybackErrors: f.counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_errors_total",
			Help:      "Clips that failed to start playing.",
		}),
		MissingChannels: f.counterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_channels_total",
			Help:      "Ramps aimed at channels the character does not have.",
		}, "channel"),
		StaleCallbacks: f.counterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_callbacks_total",
			Help:      "Callbacks ignored because their generation was superseded.",
		}, "source"),
		SupersededTimeline: f.counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timelines_superseded_total",
			Help:      "Timelines replaced before they finished.",
		}),
		CompletedTimeline: f.counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timelines_completed_total",
			Help:      "Timelines that reached the draining reset.",
		}),
		MoodChanges: f.counterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mood_changes_total",
			Help:      "Idle pose changes by mood.",
		}, "mood"),
		Turns: f.counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Speaking turns completed.",
		}),
		QueueDepth: f.gauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speech_queue_depth",
			Help:      "Items waiting in or playing from the speech queue.",
		}),
		StartLatency: f.histogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "playback_start_latency_ms",
			Help:      "Time from utterance arrival to audio start in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 200, 300, 500, 1000, 2000, 5000},
		}),
	}
}

type factory struct{ reg *prometheus.Registry }

func (f factory) counter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	f.reg.MustRegister(c)
	return c
}

func (f factory) counterVec(opts prometheus.CounterOpts, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	f.reg.MustRegister(c)
	return c
}

func (f factory) gauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	f.reg.MustRegister(g)
	return g
}

func (f factory) histogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	h := prometheus.NewHistogram(opts)
	f.reg.MustRegister(h)
	return h
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Utterance(result string) {
	if m == nil {
		return
	}
	m.Utterances.WithLabelValues(result).Inc()
}

func (m *Metrics) PlaybackFailed() {
	if m == nil {
		return
	}
	m.PlaybackErrors.Inc()
}

func (m *Metrics) TurnComplete() {
	if m == nil {
		return
	}
	m.Turns.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) ObserveStartLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.StartLatency.Observe(float64(d.Milliseconds()))
}

// The methods below satisfy avatar3d.Observer.

func (m *Metrics) MissingChannel(channel string) {
	if m == nil {
		return
	}
	m.MissingChannels.WithLabelValues(channel).Inc()
}

func (m *Metrics) StaleCallback(source string) {
	if m == nil {
		return
	}
	m.StaleCallbacks.WithLabelValues(source).Inc()
}

func (m *Metrics) TimelineSuperseded() {
	if m == nil {
		return
	}
	m.SupersededTimeline.Inc()
}

func (m *Metrics) TimelineComplete() {
	if m == nil {
		return
	}
	m.CompletedTimeline.Inc()
}

func (m *Metrics) MoodChanged(mood string) {
	if m == nil {
		return
	}
	m.MoodChanges.WithLabelValues(mood).Inc()
}
