package main

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexface/internal/bridge"
	"github.com/normanking/cortexface/internal/speech"
	"github.com/normanking/cortexface/internal/viseme"
)

func TestDemoUtteranceDecodes(t *testing.T) {
	u := demoUtterance("Hi, bob", "happy")

	tl, err := viseme.Decode(string(u.VisemePayload), "")
	require.NoError(t, err)
	assert.Equal(t, "happy", tl.Mood)

	codes := make([]string, 0, len(tl.Events))
	for _, ev := range tl.Events {
		codes = append(codes, ev.Code)
	}
	assert.Equal(t, []string{"ch", "i", "-", "-", "p", "o", "p", "-"}, codes)

	audio, err := base64.StdEncoding.DecodeString(u.AudioBase64)
	require.NoError(t, err)
	info, err := speech.ReadWAVInfo(audio)
	require.NoError(t, err)
	assert.InDelta(t, (tl.LastOffset() + demoTail).Seconds(), info.Duration().Seconds(), 0.001)
}

func TestRunDemoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan bridge.Utterance, 8)

	done := make(chan error, 1)
	go func() {
		done <- runDemo(ctx, 10*time.Millisecond, func(u bridge.Utterance) error {
			got <- u
			return nil
		}, zerolog.Nop())
	}()

	first := <-got
	assert.Equal(t, demoSpeaker, first.SpeakerID)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("demo loop did not stop")
	}
}
