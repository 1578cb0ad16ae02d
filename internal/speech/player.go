// Package speech plays queued utterances one at a time and keeps the face
// animation in step with the audio.
package speech

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/cortexface/internal/viseme"
)

var ErrEmptyClip = errors.New("speech: empty clip")

// Clip is encoded audio as received from the dialogue service.
type Clip struct {
	Data   []byte
	Format string // "wav", "mp3", ...
}

// PlaybackEvents are invoked by a Player from any goroutine. OnEnd fires
// exactly once per successful Play, including after Stop.
type PlaybackEvents struct {
	OnStart func()
	OnEnd   func()
}

type Handle interface {
	// Stop ends playback early. Calling it more than once is harmless.
	Stop()
}

// Player is the audio output. Play returns an error when the clip cannot be
// started at all.
type Player interface {
	Play(clip Clip, events PlaybackEvents) (Handle, error)
}

// PlaybackError reports an item that was skipped because its audio failed.
type PlaybackError struct {
	ItemID uuid.UUID
	Err    error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("speech: playback of %s failed: %v", e.ItemID, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// Item is one utterance: audio plus the timeline that animates it.
type Item struct {
	ID         uuid.UUID
	Clip       Clip
	Timeline   viseme.Timeline
	SpeakerID  string
	ReceivedAt time.Time
}

func NewItem(clip Clip, tl viseme.Timeline, speakerID string) *Item {
	return &Item{
		ID:         uuid.New(),
		Clip:       clip,
		Timeline:   tl,
		SpeakerID:  speakerID,
		ReceivedAt: time.Now(),
	}
}
