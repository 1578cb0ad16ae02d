package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level LogLevel, max int) *Logger {
	t.Helper()
	l, err := New(&Config{LogDir: t.TempDir(), Level: level, MaxHistory: max})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestComponentLogsReachFileAndHistory(t *testing.T) {
	l := newTestLogger(t, LevelDebug, 10)

	speechLog := l.Component("speech")
	speechLog.Warn().Str("item", "abc").Msg("skipping utterance")

	hist := l.History(0)
	require.NotEmpty(t, hist)
	last := hist[len(hist)-1]
	assert.Equal(t, "speech", last.Component)
	assert.Equal(t, "warn", last.Level)
	assert.Equal(t, "skipping utterance", last.Message)

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"speech"`)
	assert.Contains(t, string(data), `"app":"cortexface"`)
	assert.Contains(t, string(data), `"item":"abc"`)
}

func TestLevelFilters(t *testing.T) {
	l := newTestLogger(t, LevelWarn, 10)
	before := len(l.History(0))

	log := l.Component("avatar3d")
	log.Debug().Msg("hidden")
	log.Info().Msg("hidden")
	log.Error().Msg("shown")

	hist := l.History(0)
	require.Len(t, hist, before+1)
	assert.Equal(t, "shown", hist[len(hist)-1].Message)
}

func TestHistoryIsBounded(t *testing.T) {
	l := newTestLogger(t, LevelDebug, 3)
	log := l.Component("bridge")
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		log.Info().Msg(msg)
	}

	hist := l.History(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "c", hist[0].Message)
	assert.Equal(t, "e", hist[2].Message)

	latest := l.History(2)
	assert.Equal(t, []string{"d", "e"}, []string{latest[0].Message, latest[1].Message})
}
