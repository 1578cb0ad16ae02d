package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexface/internal/bridge"
)

// fakeService accepts one avatar connection, sends a scripted burst and
// records everything the client writes.
func fakeService(t *testing.T, script ...any) (*httptest.Server, <-chan map[string]any) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	received := make(chan map[string]any, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/avatar/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hello map[string]any
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		received <- hello
		for _, msg := range script {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func expectType(t *testing.T, ch <-chan map[string]any, want string) map[string]any {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			if msg["type"] == want {
				return msg
			}
		case <-timeout:
			t.Fatalf("no %q message", want)
			return nil
		}
	}
}

func TestStreamClient_Session(t *testing.T) {
	srv, received := fakeService(t,
		map[string]any{
			"type":           TypeUtterance,
			"speaker_id":     "agent",
			"audio_base64":   "AAAA",
			"audio_format":   "wav",
			"viseme_payload": []map[string]any{{"t": 0, "v": "a"}},
			"mood":           "happy",
		},
		map[string]any{"type": TypeError, "message": "tts overloaded"},
		map[string]any{"type": TypePing},
		map[string]any{"type": "something_new"},
	)

	client := NewStreamClient(Config{URL: srv.URL, ParticipantID: "avatar-1"}, zerolog.Nop())
	utterances := make(chan bridge.Utterance, 1)
	errs := make(chan error, 1)
	client.SetUtteranceHandler(func(u bridge.Utterance) error {
		utterances <- u
		return nil
	})
	client.SetErrorCallback(func(err error) { errs <- err })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	hello := expectType(t, received, TypeHello)
	assert.Equal(t, "avatar-1", hello["participant_id"])
	assert.Equal(t, "avatar", hello["role"])

	select {
	case u := <-utterances:
		assert.Equal(t, "agent", u.SpeakerID)
		assert.Equal(t, "AAAA", u.AudioBase64)
		assert.Equal(t, "happy", u.Mood)
		assert.JSONEq(t, `[{"t":0,"v":"a"}]`, string(u.VisemePayload))
	case <-time.After(2 * time.Second):
		t.Fatal("no utterance")
	}

	select {
	case err := <-errs:
		assert.EqualError(t, err, "server: tts overloaded")
	case <-time.After(2 * time.Second):
		t.Fatal("no error callback")
	}

	expectType(t, received, TypePong)

	require.True(t, client.IsConnected())
	require.NoError(t, client.SendTurnComplete())
	tc := expectType(t, received, TypeTurnComplete)
	assert.Equal(t, "avatar-1", tc["participant_id"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.False(t, client.IsConnected())
}

func TestStreamClient_NotConnected(t *testing.T) {
	client := NewStreamClient(Config{URL: "http://127.0.0.1:1"}, zerolog.Nop())
	assert.ErrorIs(t, client.SendTurnComplete(), ErrNotConnected)
}

func TestStreamClient_RunStopsWhileRetrying(t *testing.T) {
	client := NewStreamClient(Config{URL: "http://127.0.0.1:1", MinBackoff: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, client.Run(ctx))
}

func TestEndpoint(t *testing.T) {
	cases := map[string]string{
		"http://dialog:8080":   "ws://dialog:8080/v1/avatar/ws",
		"https://dialog.local": "wss://dialog.local/v1/avatar/ws",
		"wss://dialog.local":   "wss://dialog.local/v1/avatar/ws",
	}
	for in, want := range cases {
		got, err := NewStreamClient(Config{URL: in}, zerolog.Nop()).endpoint()
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

func TestStreamClient_NormalCloseWaitsBeforeRedial(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		dials.Add(1)
		var hello map[string]any
		_ = conn.ReadJSON(&hello)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}))
	t.Cleanup(srv.Close)

	client := NewStreamClient(Config{URL: srv.URL, MinBackoff: 200 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, client.Run(ctx))

	assert.GreaterOrEqual(t, dials.Load(), int32(1))
	assert.LessOrEqual(t, dials.Load(), int32(2))
}
