package bridge

import (
	"github.com/normanking/cortexface/internal/avatar3d"
	"github.com/normanking/cortexface/internal/bus"
	"github.com/normanking/cortexface/internal/metrics"
)

// Observer forwards character diagnostics to metrics and the event bus.
type Observer struct {
	metrics *metrics.Metrics
	bus     *bus.EventBus
	id      string
}

var _ avatar3d.Observer = (*Observer)(nil)

func NewObserver(characterID string, m *metrics.Metrics, b *bus.EventBus) *Observer {
	return &Observer{metrics: m, bus: b, id: characterID}
}

func (o *Observer) MissingChannel(channel string) { o.metrics.MissingChannel(channel) }

func (o *Observer) StaleCallback(source string) { o.metrics.StaleCallback(source) }

func (o *Observer) TimelineSuperseded() {
	o.metrics.TimelineSuperseded()
	o.bus.Publish(bus.Event{Type: bus.EventTimelineSuperseded, Data: map[string]any{"character": o.id}})
}

func (o *Observer) TimelineComplete() {
	o.metrics.TimelineComplete()
	o.bus.Publish(bus.Event{Type: bus.EventTimelineComplete, Data: map[string]any{"character": o.id}})
}

func (o *Observer) MoodChanged(mood string) {
	o.metrics.MoodChanged(mood)
	o.bus.Publish(bus.Event{Type: bus.EventMoodChanged, Data: map[string]any{"character": o.id, "mood": mood}})
}
