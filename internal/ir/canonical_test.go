package ir

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", int64(-100), "-100"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array of ints", []int{1, 2, 3}, "[1,2,3]"},
		{"simple object", map[string]any{"a": 1}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  map[string]any{"y": 1, "x": 2},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"x":2,"y":1},"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogate 0xD83D, which sorts before U+FB01 in
	// UTF-16 even though its UTF-8 bytes sort after.
	obj := map[string]any{
		"\uFB01":     1,
		"\U0001F600": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFB01\":1}", string(result))
}

func TestMarshalCanonicalStrings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"control char", "a\u0001b", `"a\u0001b"`},
		{"newline", "a\nb", `"a\nb"`},
		{"quote and backslash", `q"\`, `"q\"\\"`},
		{"nfc normalization", "e\u0301", "\"\u00e9\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalRejectsFloat(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonicalRejectsNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null is forbidden")
}

func TestMarshalCanonicalStructWithDecimal(t *testing.T) {
	asset := Asset{ID: "card-1", Class: "card", Value: decimal.RequireFromString("12.50")}

	result, err := MarshalCanonical(asset)
	require.NoError(t, err)
	assert.Equal(t, `{"class":"card","id":"card-1","value":"12.5"}`, string(result))
}

func TestMarshalCanonicalOmitsEmptyWant(t *testing.T) {
	want := WantSpec{Classes: []string{"card"}, MinValue: decimal.NewFromInt(5)}

	result, err := MarshalCanonical(want)
	require.NoError(t, err)
	assert.Equal(t, `{"classes":["card"],"min_value":"5"}`, string(result))
}
