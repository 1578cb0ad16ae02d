// Package bridge connects the dialogue session to the speech queue: inbound
// utterances become queued speech items and the queue's turn completion goes
// back out as a turn_complete message.
package bridge

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexface/internal/bus"
	"github.com/normanking/cortexface/internal/metrics"
	"github.com/normanking/cortexface/internal/speech"
	"github.com/normanking/cortexface/internal/viseme"
)

var (
	ErrEchoSuppressed = errors.New("bridge: utterance from local participant")
	ErrAudioDecode    = errors.New("bridge: audio decode failed")
	ErrNotAttached    = errors.New("bridge: no speech queue attached")
	ErrQueueClosed    = errors.New("bridge: speech queue closed")
)

// Utterance is one inbound speaking turn fragment from the dialogue service.
// VisemePayload may be the viseme JSON itself or a string holding it.
type Utterance struct {
	SpeakerID     string          `json:"speaker_id"`
	AudioBase64   string          `json:"audio_base64"`
	AudioFormat   string          `json:"audio_format,omitempty"`
	VisemePayload json.RawMessage `json:"viseme_payload"`
	Mood          string          `json:"mood,omitempty"`
}

func (u Utterance) visemeText() (string, error) {
	raw := bytes.TrimSpace(u.VisemePayload)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(raw), nil
}

// Submitter accepts speech items from any goroutine.
type Submitter interface {
	Submit(item *speech.Item) bool
}

// Outbound is the protocol side that receives turn_complete.
type Outbound interface {
	SendTurnComplete() error
}

type Options struct {
	// LocalID is the participant id of this process. Utterances carrying it
	// are dropped. Empty disables echo suppression.
	LocalID  string
	Outbound Outbound
	Bus      *bus.EventBus
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

type SessionBridge struct {
	localID string
	bus     *bus.EventBus
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu       sync.RWMutex
	queue    Submitter
	outbound Outbound
}

func New(opts Options) *SessionBridge {
	return &SessionBridge{
		localID:  opts.LocalID,
		outbound: opts.Outbound,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		log:      opts.Logger.With().Str("component", "bridge").Logger(),
	}
}

// Attach sets the queue utterances are submitted to.
func (b *SessionBridge) Attach(q Submitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = q
}

// SetOutbound swaps the protocol side, e.g. once the transport exists.
func (b *SessionBridge) SetOutbound(o Outbound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound = o
}

// HandleUtterance decodes u and submits it for playback. Any error means the
// utterance was dropped and the queue is unchanged.
func (b *SessionBridge) HandleUtterance(u Utterance) error {
	if b.localID != "" && u.SpeakerID == b.localID {
		b.log.Debug().Str("speaker", u.SpeakerID).Msg("echo suppressed")
		b.drop(metrics.ResultEcho, ErrEchoSuppressed)
		return ErrEchoSuppressed
	}

	audio, err := decodeAudio(u.AudioBase64)
	if err != nil {
		b.log.Warn().Err(err).Str("speaker", u.SpeakerID).Msg("dropping utterance")
		b.drop(metrics.ResultAudioError, err)
		return err
	}

	payload, err := u.visemeText()
	if err != nil {
		err = &viseme.DecodeError{Index: -1, Reason: "payload is not a string", Err: err}
	} else {
		var tl viseme.Timeline
		tl, err = viseme.Decode(payload, u.Mood)
		if err == nil {
			return b.submit(speech.NewItem(speech.Clip{Data: audio, Format: u.AudioFormat}, tl, u.SpeakerID))
		}
	}
	b.log.Warn().Err(err).Str("speaker", u.SpeakerID).Msg("dropping utterance")
	b.drop(metrics.ResultVisemeError, err)
	return err
}

func (b *SessionBridge) submit(item *speech.Item) error {
	b.mu.RLock()
	q := b.queue
	b.mu.RUnlock()
	if q == nil {
		b.drop(metrics.ResultClosed, ErrNotAttached)
		return ErrNotAttached
	}
	if !q.Submit(item) {
		b.drop(metrics.ResultClosed, ErrQueueClosed)
		return ErrQueueClosed
	}

	b.metrics.Utterance(metrics.ResultAccepted)
	b.bus.Publish(bus.Event{Type: bus.EventUtteranceAccepted, Data: map[string]any{
		"item":    item.ID.String(),
		"speaker": item.SpeakerID,
		"events":  item.Timeline.Len(),
		"mood":    item.Timeline.Mood,
	}})
	b.log.Debug().
		Str("item", item.ID.String()).
		Str("speaker", item.SpeakerID).
		Int("events", item.Timeline.Len()).
		Int("bytes", len(item.Clip.Data)).
		Msg("utterance submitted")
	return nil
}

func (b *SessionBridge) drop(result string, err error) {
	b.metrics.Utterance(result)
	b.bus.Publish(bus.Event{Type: bus.EventUtteranceDropped, Data: map[string]any{
		"result": result,
		"error":  err.Error(),
	}})
}

func decodeAudio(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: no audio", ErrAudioDecode)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAudioDecode, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no audio", ErrAudioDecode)
	}
	return data, nil
}

// TurnComplete forwards the end of a speaking turn to the protocol side.
func (b *SessionBridge) TurnComplete() {
	b.metrics.TurnComplete()
	b.bus.Publish(bus.Event{Type: bus.EventSpeechTurnComplete})

	b.mu.RLock()
	out := b.outbound
	b.mu.RUnlock()
	if out == nil {
		return
	}
	if err := out.SendTurnComplete(); err != nil {
		b.log.Warn().Err(err).Msg("turn_complete not delivered")
	}
}

// Hooks returns queue hooks that report playback through the bridge.
// depth, when set, is sampled after every queue transition.
func (b *SessionBridge) Hooks(depth func() int) speech.Hooks {
	sample := func() {
		if depth != nil {
			b.metrics.SetQueueDepth(depth())
		}
	}
	return speech.Hooks{
		OnStarted: func(item *speech.Item) {
			b.metrics.ObserveStartLatency(time.Since(item.ReceivedAt))
			sample()
			b.bus.Publish(bus.Event{Type: bus.EventSpeechStarted, Data: map[string]any{
				"item":    item.ID.String(),
				"speaker": item.SpeakerID,
			}})
		},
		OnFinished: func(item *speech.Item) {
			sample()
			b.bus.Publish(bus.Event{Type: bus.EventSpeechFinished, Data: map[string]any{
				"item": item.ID.String(),
			}})
		},
		OnPlaybackError: func(item *speech.Item, err error) {
			sample()
			b.metrics.PlaybackFailed()
			b.bus.Publish(bus.Event{Type: bus.EventSpeechPlaybackError, Data: map[string]any{
				"item":  item.ID.String(),
				"error": err.Error(),
			}})
		},
		OnTurnComplete: b.TurnComplete,
		OnStale: func(event string) {
			b.metrics.StaleCallback("playback_" + event)
		},
	}
}
