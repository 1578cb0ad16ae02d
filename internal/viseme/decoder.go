package viseme

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxOffset bounds event offsets. Anything later is treated as corrupt.
const MaxOffset = 24 * time.Hour

// ErrMalformedPayload is matched by every error Decode returns.
var ErrMalformedPayload = errors.New("viseme: malformed payload")

// DecodeError describes why a payload was rejected.
type DecodeError struct {
	Index  int    // entry index, -1 when the payload as a whole is bad
	Reason string
	Err    error // underlying parse error, if any
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString(ErrMalformedPayload.Error())
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": entry %d", e.Index)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedPayload}
	}
	return []error{ErrMalformedPayload, e.Err}
}

// Event is one articulation instruction at an offset from utterance start.
type Event struct {
	Offset float64 `json:"t"` // seconds from utterance start
	Code   string  `json:"v"`
	Weight float32 `json:"w"` // intensity 0-1
}

// At returns the event offset as a duration.
func (e Event) At() time.Duration {
	return time.Duration(e.Offset * float64(time.Second))
}

// Timeline is the ordered viseme sequence of one utterance.
type Timeline struct {
	Events []Event `json:"visemes"`
	Mood   string  `json:"mood,omitempty"`
}

// Len returns the number of events.
func (t Timeline) Len() int { return len(t.Events) }

// LastOffset returns the offset of the final event, zero for an empty timeline.
func (t Timeline) LastOffset() time.Duration {
	if len(t.Events) == 0 {
		return 0
	}
	return t.Events[len(t.Events)-1].At()
}

type rawEvent struct {
	T *float64 `json:"t"`
	V *string  `json:"v"`
	W *float64 `json:"w,omitempty"`
}

type rawEnvelope struct {
	Mood    string      `json:"mood"`
	Visemes *[]rawEvent `json:"visemes"`
}

// Decode parses a viseme payload. The payload is either a JSON list of
// {t, v[, w]} entries or an object {"mood": ..., "visemes": [...]}. mood, when
// non-empty, takes precedence over a mood embedded in the payload.
//
// Offsets must be finite, non-negative and non-decreasing; weights default to
// 1 and must lie in [0,1]. On any violation a *DecodeError is returned and no
// timeline is produced.
func Decode(payload string, mood string) (Timeline, error) {
	raw := strings.TrimSpace(payload)
	if raw == "" {
		return Timeline{}, &DecodeError{Index: -1, Reason: "empty payload"}
	}

	var entries []rawEvent
	var embeddedMood string

	switch raw[0] {
	case '[':
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return Timeline{}, &DecodeError{Index: -1, Reason: "invalid json", Err: err}
		}
	case '{':
		var env rawEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return Timeline{}, &DecodeError{Index: -1, Reason: "invalid json", Err: err}
		}
		if env.Visemes == nil {
			return Timeline{}, &DecodeError{Index: -1, Reason: "missing visemes list"}
		}
		entries = *env.Visemes
		embeddedMood = env.Mood
	default:
		return Timeline{}, &DecodeError{Index: -1, Reason: "payload is neither a list nor an object"}
	}

	events := make([]Event, 0, len(entries))
	prev := 0.0
	for i, e := range entries {
		if e.T == nil {
			return Timeline{}, &DecodeError{Index: i, Reason: "missing offset"}
		}
		t := *e.T
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return Timeline{}, &DecodeError{Index: i, Reason: fmt.Sprintf("invalid offset %v", t)}
		}
		if t > MaxOffset.Seconds() {
			return Timeline{}, &DecodeError{Index: i, Reason: fmt.Sprintf("offset %v exceeds %s", t, MaxOffset)}
		}
		if t < prev {
			return Timeline{}, &DecodeError{Index: i, Reason: fmt.Sprintf("offset %v precedes %v", t, prev)}
		}
		if e.V == nil || strings.TrimSpace(*e.V) == "" {
			return Timeline{}, &DecodeError{Index: i, Reason: "missing code"}
		}
		weight := 1.0
		if e.W != nil {
			weight = *e.W
			if math.IsNaN(weight) || weight < 0 || weight > 1 {
				return Timeline{}, &DecodeError{Index: i, Reason: fmt.Sprintf("weight %v outside [0,1]", weight)}
			}
		}
		events = append(events, Event{
			Offset: t,
			Code:   NormalizeCode(*e.V),
			Weight: float32(weight),
		})
		prev = t
	}

	tl := Timeline{Events: events, Mood: strings.TrimSpace(mood)}
	if tl.Mood == "" {
		tl.Mood = strings.TrimSpace(embeddedMood)
	}
	return tl, nil
}
