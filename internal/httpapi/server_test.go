package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexface/internal/avatar3d"
	"github.com/normanking/cortexface/internal/bridge"
	"github.com/normanking/cortexface/internal/logging"
	"github.com/normanking/cortexface/internal/metrics"
	"github.com/normanking/cortexface/internal/speech"
)

type acceptAll struct{ items []*speech.Item }

func (a *acceptAll) Submit(item *speech.Item) bool {
	a.items = append(a.items, item)
	return true
}

type staticLogs []logging.LogEntry

func (s staticLogs) History(limit int) []logging.LogEntry {
	if limit <= 0 || limit > len(s) {
		limit = len(s)
	}
	return s[len(s)-limit:]
}

type fixture struct {
	srv   *httptest.Server
	face  *avatar3d.Character
	queue *acceptAll
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	profile, err := avatar3d.BuiltinProfile("rpm")
	require.NoError(t, err)
	opts := avatar3d.DefaultOptions(profile)
	opts.Logger = zerolog.Nop()
	face, err := avatar3d.NewCharacter("ava", opts)
	require.NoError(t, err)

	m := metrics.New("cortexface")
	br := bridge.New(bridge.Options{LocalID: "ava", Metrics: m, Logger: zerolog.Nop()})
	q := &acceptAll{}
	br.Attach(q)

	api := New(Options{
		Face:       face,
		Utterances: br,
		QueueDepth: func() int { return len(q.items) },
		Metrics:    m,
		Logs: staticLogs{
			{Level: "info", Component: "speech", Message: "one"},
			{Level: "warn", Component: "bridge", Message: "two"},
		},
		Logger: zerolog.Nop(),
	})
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, face: face, queue: q}
}

func (f *fixture) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	res, err := http.Post(f.srv.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	res, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ava", body["character"])
}

func TestCharacterStatus(t *testing.T) {
	f := newFixture(t)
	f.face.Tick(time.Unix(10, 0))

	res, err := http.Get(f.srv.URL + "/v1/character")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body characterResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "ava", body.ID)
	assert.Equal(t, "rpm", body.Profile)
	assert.Equal(t, "idle", body.Snapshot.State)
	assert.Equal(t, avatar3d.MoodDefault, body.Snapshot.Mood)
	assert.Contains(t, body.Snapshot.Channels, "viseme_aa")
	assert.Zero(t, body.QueueDepth)
}

func TestInjectUtterance(t *testing.T) {
	f := newFixture(t)
	audio := base64.StdEncoding.EncodeToString(speech.EncodeWAV(make([]byte, 320), 16000))

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{
			name:   "queued",
			body:   map[string]any{"speaker_id": "agent", "audio_base64": audio, "viseme_payload": []map[string]any{{"t": 0, "v": "a"}}},
			status: http.StatusAccepted,
		},
		{
			name:   "echo",
			body:   map[string]any{"speaker_id": "ava", "audio_base64": audio, "viseme_payload": "[]"},
			status: http.StatusConflict,
			code:   "echo_suppressed",
		},
		{
			name:   "bad visemes",
			body:   map[string]any{"speaker_id": "agent", "audio_base64": audio, "viseme_payload": `[{"v":"a"}]`},
			status: http.StatusBadRequest,
			code:   "invalid_visemes",
		},
		{
			name:   "bad audio",
			body:   map[string]any{"speaker_id": "agent", "audio_base64": "%%%", "viseme_payload": "[]"},
			status: http.StatusBadRequest,
			code:   "invalid_audio",
		},
		{
			name:   "empty body",
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, body := f.post(t, "/v1/utterances", tc.body)
			assert.Equal(t, tc.status, res.StatusCode)
			if tc.code != "" {
				assert.Equal(t, tc.code, body["code"])
			}
		})
	}
	assert.Len(t, f.queue.items, 1)
}

func TestWink(t *testing.T) {
	f := newFixture(t)

	res, body := f.post(t, "/v1/wink/left", nil)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "left", body["side"])

	f.face.Tick(time.Now())
	snap := f.face.Snapshot()
	assert.Greater(t, snap.Channels["eyeBlinkLeft"], float32(0))
	assert.Zero(t, snap.Channels["eyeBlinkRight"])

	res, _ = f.post(t, "/v1/wink/middle", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	f.face.Close()
	res, _ = f.post(t, "/v1/wink/right", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestMood(t *testing.T) {
	f := newFixture(t)

	res, _ := f.post(t, "/v1/mood/happy", nil)
	require.Equal(t, http.StatusAccepted, res.StatusCode)

	f.face.Tick(time.Now())
	assert.Equal(t, "happy", f.face.Snapshot().Mood)
}

func TestLogsAndMetrics(t *testing.T) {
	f := newFixture(t)

	res, err := http.Get(f.srv.URL + "/v1/logs?limit=1")
	require.NoError(t, err)
	var entries []logging.LogEntry
	require.NoError(t, json.NewDecoder(res.Body).Decode(&entries))
	res.Body.Close()
	require.Len(t, entries, 1)
	assert.Equal(t, "two", entries[0].Message)

	res, err = http.Get(f.srv.URL + "/v1/logs?limit=-2")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	f.post(t, "/v1/utterances", map[string]any{"speaker_id": "ava", "audio_base64": "AAAA", "viseme_payload": "[]"})
	res, err = http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cortexface_utterances_total{result="echo"} 1`)
}
