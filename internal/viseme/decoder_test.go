package viseme

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ListPayload(t *testing.T) {
	tl, err := Decode(`[{"t":0,"v":"-"},{"t":0.12,"v":"a"},{"t":0.3,"v":"O","w":0.5}]`, "happy")
	require.NoError(t, err)

	require.Len(t, tl.Events, 3)
	assert.Equal(t, "happy", tl.Mood)
	assert.Equal(t, Event{Offset: 0, Code: CodeSilence, Weight: 1}, tl.Events[0])
	assert.Equal(t, Event{Offset: 0.12, Code: CodeAA, Weight: 1}, tl.Events[1])
	assert.Equal(t, Event{Offset: 0.3, Code: CodeO, Weight: 0.5}, tl.Events[2])
	assert.Equal(t, 300*time.Millisecond, tl.LastOffset())
}

func TestDecode_ObjectPayloadCarriesMood(t *testing.T) {
	tl, err := Decode(`{"mood":"sad","visemes":[{"t":0.1,"v":"kk"}]}`, "")
	require.NoError(t, err)
	assert.Equal(t, "sad", tl.Mood)
	require.Len(t, tl.Events, 1)
	assert.Equal(t, CodeKK, tl.Events[0].Code)

	tl, err = Decode(`{"mood":"sad","visemes":[]}`, "angry")
	require.NoError(t, err)
	assert.Equal(t, "angry", tl.Mood, "explicit mood wins over embedded mood")
	assert.Zero(t, tl.Len())
}

func TestDecode_EmptyListIsValid(t *testing.T) {
	tl, err := Decode(`[]`, "")
	require.NoError(t, err)
	assert.Zero(t, tl.Len())
	assert.Zero(t, tl.LastOffset())
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		index   int
	}{
		{"empty", "   ", -1},
		{"not json", "hello", -1},
		{"truncated", `[{"t":0.1,"v":"a"}`, -1},
		{"object without visemes", `{"mood":"happy"}`, -1},
		{"missing offset", `[{"v":"a"}]`, 0},
		{"negative offset", `[{"t":-0.1,"v":"a"}]`, 0},
		{"offset past a day", `[{"t":0,"v":"a"},{"t":1e10,"v":"e"}]`, 1},
		{"missing code", `[{"t":0.1}]`, 0},
		{"blank code", `[{"t":0.1,"v":"  "}]`, 0},
		{"weight above one", `[{"t":0.1,"v":"a","w":1.5}]`, 0},
		{"negative weight", `[{"t":0.1,"v":"a","w":-0.1}]`, 0},
		{"decreasing offsets", `[{"t":0.5,"v":"a"},{"t":0.2,"v":"e"}]`, 1},
		{"wrong type", `[{"t":"soon","v":"a"}]`, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, err := Decode(tt.payload, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPayload))
			assert.Zero(t, tl.Len(), "no partial timeline on failure")

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.index, de.Index)
		})
	}
}

func TestDecode_IsPure(t *testing.T) {
	payload := `[{"t":0,"v":"a"},{"t":0.2,"v":"E","w":0.4},{"t":0.2,"v":"th"}]`

	first, err := Decode(payload, "happy")
	require.NoError(t, err)
	second, err := Decode(payload, "happy")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	first.Events[0].Code = "mutated"
	assert.Equal(t, CodeAA, second.Events[0].Code, "decoded timelines share no state")
}

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"sil": CodeSilence,
		"":    CodeSilence,
		"-":   CodeSilence,
		"PP":  CodePP,
		"aa":  CodeAA,
		"E":   CodeE,
		" CH": CodeCH,
		"ch":  CodeCH,
		"nn":  CodeNN,
		"x":   "x",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCode(in), "code %q", in)
	}
	assert.True(t, IsSilence("sil"))
	assert.False(t, IsSilence("a"))
}
