package speech

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWAVInfo(t *testing.T) {
	pcm := make([]byte, 16000) // 0.5s of 16kHz mono 16-bit
	info, err := ReadWAVInfo(EncodeWAV(pcm, 16000))
	require.NoError(t, err)

	assert.Equal(t, uint16(1), info.AudioFormat)
	assert.Equal(t, uint16(1), info.NumChannels)
	assert.Equal(t, uint32(16000), info.SampleRate)
	assert.Equal(t, uint32(32000), info.ByteRate)
	assert.Equal(t, uint32(16000), info.DataSize)
	assert.Equal(t, 500*time.Millisecond, info.Duration())
}

func TestReadWAVInfo_Rejects(t *testing.T) {
	_, err := ReadWAVInfo([]byte("ID3 this is an mp3"))
	assert.True(t, errors.Is(err, ErrNotWAV))

	wav := EncodeWAV(make([]byte, 10), 8000)
	_, err = ReadWAVInfo(wav[:30])
	assert.True(t, errors.Is(err, ErrNotWAV), "truncated fmt chunk")
}

func TestClipDuration(t *testing.T) {
	wav := EncodeWAV(make([]byte, 3200), 16000)

	d, ok, err := ClipDuration(Clip{Data: wav, Format: "wav"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, d)

	_, ok, err = ClipDuration(Clip{Data: []byte("frames"), Format: "mp3"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = ClipDuration(Clip{Data: []byte("garbage")})
	require.NoError(t, err)
	assert.False(t, ok, "unlabelled clips fall back quietly")

	_, _, err = ClipDuration(Clip{Data: []byte("garbage"), Format: "wav"})
	assert.Error(t, err)
}

func TestClockPlayer_StartThenEnd(t *testing.T) {
	p := NewClockPlayer(time.Second, zerolog.Nop())
	started := make(chan struct{})
	ended := make(chan struct{})

	_, err := p.Play(Clip{Data: EncodeWAV(make([]byte, 640), 16000), Format: "wav"}, PlaybackEvents{
		OnStart: func() { close(started) },
		OnEnd:   func() { close(ended) },
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("no start")
	}
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("no end")
	}
}

func TestClockPlayer_StopEndsOnce(t *testing.T) {
	p := NewClockPlayer(time.Hour, zerolog.Nop())
	ends := make(chan struct{}, 2)

	h, err := p.Play(Clip{Data: []byte("opaque"), Format: "mp3"}, PlaybackEvents{
		OnEnd: func() { ends <- struct{}{} },
	})
	require.NoError(t, err)

	h.Stop()
	h.Stop()

	select {
	case <-ends:
	case <-time.After(time.Second):
		t.Fatal("stop did not end playback")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, ends, 0)
}

func TestClockPlayer_EmptyClip(t *testing.T) {
	p := NewClockPlayer(time.Second, zerolog.Nop())
	_, err := p.Play(Clip{}, PlaybackEvents{})
	assert.ErrorIs(t, err, ErrEmptyClip)
}
