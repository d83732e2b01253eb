package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulateTracksPerCallBuffers(t *testing.T) {
	acc := NewAccumulator()

	buf, first := acc.Accumulate("c1", `{"mess`)
	assert.True(t, first)
	assert.Equal(t, `{"mess`, buf)

	buf, first = acc.Accumulate("c1", `age":"hi"}`)
	assert.False(t, first)
	assert.Equal(t, `{"message":"hi"}`, buf)

	_, first = acc.Accumulate("c2", `{}`)
	assert.True(t, first, "a new call id starts a fresh buffer")

	assert.Equal(t, `{"message":"hi"}`, acc.Get("c1"))
	assert.Equal(t, "", acc.Get("missing"))
}

func TestExtractStringFieldCompleteObject(t *testing.T) {
	val, ok := ExtractStringField(`{"message":"Hello, world!"}`, "message")
	require.True(t, ok)
	assert.Equal(t, "Hello, world!", val)
}

func TestExtractStringFieldPartialObject(t *testing.T) {
	cases := []struct {
		name   string
		buffer string
		want   string
		found  bool
	}{
		{"field name incomplete", `{"mess`, "", false},
		{"value not started", `{"message"`, "", false},
		{"colon but no quote", `{"message":`, "", false},
		{"empty value so far", `{"message":"`, "", true},
		{"mid value", `{"message":"Hel`, "Hel", true},
		{"whitespace around colon", `{"message" : "Hel`, "Hel", true},
		{"other field first", `{"id":"x","message":"Hel`, "Hel", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			val, ok := ExtractStringField(tc.buffer, "message")
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, val)
		})
	}
}

func TestExtractStringFieldEscapes(t *testing.T) {
	val, ok := ExtractStringField(`{"message":"He said \"use signals\" and\nmoved on`, "message")
	require.True(t, ok)
	assert.Equal(t, "He said \"use signals\" and\nmoved on", val)

	val, ok = ExtractStringField(`{"message":"path C:\\godot`, "message")
	require.True(t, ok)
	assert.Equal(t, `path C:\godot`, val)
}

func TestExtractStringFieldTrailingHalfEscape(t *testing.T) {
	// A buffer ending in a lone backslash holds half an escape sequence;
	// the extracted value must stop before it.
	val, ok := ExtractStringField(`{"message":"line one\`, "message")
	require.True(t, ok)
	assert.Equal(t, "line one", val)
}

// Extraction over a growing buffer must only ever extend the value; any
// shrink would make the high-water mark emit garbage deltas.
func TestExtractStringFieldPrefixMonotonic(t *testing.T) {
	full := `{"message":"He said \"hi\"\nthen left","done":true}`

	prev := ""
	for i := 0; i <= len(full); i++ {
		val, ok := ExtractStringField(full[:i], "message")
		if !ok {
			continue
		}
		require.True(t, len(val) >= len(prev), "value shrank at cut %d: %q -> %q", i, prev, val)
		require.Equal(t, prev, val[:len(prev)], "value is not an extension at cut %d", i)
		prev = val
	}
	assert.Equal(t, "He said \"hi\"\nthen left", prev)
}
