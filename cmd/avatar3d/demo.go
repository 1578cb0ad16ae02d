package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexface/internal/bridge"
	"github.com/normanking/cortexface/internal/speech"
	"github.com/normanking/cortexface/internal/viseme"
)

const (
	demoSpeaker    = "demo"
	demoSampleRate = 16000
	demoLetterGap  = 90 * time.Millisecond
	demoTail       = 200 * time.Millisecond
)

var demoLines = []struct {
	text string
	mood string
}{
	{"hello there, nice to meet you", "happy"},
	{"let me think about that for a second", "default"},
	{"oh, I did not expect that", "surprised"},
	{"that is a shame", "sad"},
}

var letterCodes = map[rune]string{
	'a': viseme.CodeAA, 'e': viseme.CodeE, 'i': viseme.CodeI, 'o': viseme.CodeO, 'u': viseme.CodeU, 'y': viseme.CodeI,
	'b': viseme.CodePP, 'm': viseme.CodePP, 'p': viseme.CodePP,
	'f': viseme.CodeFF, 'v': viseme.CodeFF,
	't': viseme.CodeDD, 'd': viseme.CodeDD,
	'k': viseme.CodeKK, 'g': viseme.CodeKK, 'c': viseme.CodeKK, 'q': viseme.CodeKK, 'x': viseme.CodeKK,
	'j': viseme.CodeCH, 'h': viseme.CodeCH, 'w': viseme.CodeU,
	's': viseme.CodeSS, 'z': viseme.CodeSS,
	'n': viseme.CodeNN, 'l': viseme.CodeNN,
	'r': viseme.CodeRR,
}

type demoEvent struct {
	T float64 `json:"t"`
	V string  `json:"v"`
	W float32 `json:"w"`
}

// demoUtterance turns text into a silent WAV clip with one viseme per letter.
func demoUtterance(text, mood string) bridge.Utterance {
	events := make([]demoEvent, 0, len(text)+1)
	offset := time.Duration(0)
	for _, r := range text {
		code, ok := letterCodes[unicode.ToLower(r)]
		switch {
		case ok:
			events = append(events, demoEvent{T: offset.Seconds(), V: code, W: 0.8})
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			events = append(events, demoEvent{T: offset.Seconds(), V: viseme.CodeSilence, W: 1})
		default:
			continue
		}
		offset += demoLetterGap
	}
	events = append(events, demoEvent{T: offset.Seconds(), V: viseme.CodeSilence, W: 1})

	length := offset + demoTail
	pcm := make([]byte, int(length*demoSampleRate/time.Second)*2)

	payload, _ := json.Marshal(map[string]any{"mood": mood, "visemes": events})
	return bridge.Utterance{
		SpeakerID:     demoSpeaker,
		AudioBase64:   base64.StdEncoding.EncodeToString(speech.EncodeWAV(pcm, demoSampleRate)),
		AudioFormat:   "wav",
		VisemePayload: payload,
	}
}

// runDemo feeds canned lines into handle every interval until ctx is done.
func runDemo(ctx context.Context, interval time.Duration, handle func(bridge.Utterance) error, log zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		line := demoLines[i%len(demoLines)]
		if err := handle(demoUtterance(line.text, line.mood)); err != nil {
			log.Warn().Err(err).Str("text", line.text).Msg("demo utterance rejected")
		} else {
			log.Info().Str("text", line.text).Str("mood", line.mood).Msg("demo utterance queued")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
