package yamlex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractClean(t *testing.T) {
	out, ok := Extract("```yaml\nreview:\n  score: 5\n```", Options{})
	require.True(t, ok)
	review := out["review"].(map[string]any)
	assert.Equal(t, 5, review["score"])
}

func TestExtractFencedBlockInsideProse(t *testing.T) {
	text := "Here is the output:\n```yaml\nkey: value\n```\nHope this helps."
	out, ok := Extract(text, Options{})
	require.True(t, ok)
	assert.Equal(t, "value", out["key"])
}

func TestExtractUnquotedColonValue(t *testing.T) {
	text := "review:\n  security_concerns: no issues: none found"
	out, ok := Extract(text, Options{KnownKeys: []string{"security_concerns"}})
	require.True(t, ok)
	review := out["review"].(map[string]any)
	assert.Contains(t, review["security_concerns"], "no issues: none found")
}

func TestExtractStripsBraces(t *testing.T) {
	text := "{\nkey: value\nother: x\n}"
	out, ok := Extract(text, Options{})
	require.True(t, ok)
	assert.Equal(t, "value", out["key"])
	assert.Equal(t, "x", out["other"])
}

func TestExtractStripsDiffMarkers(t *testing.T) {
	text := "+suggestions:\n+- first\n+- second"
	out, ok := Extract(text, Options{})
	require.True(t, ok)
	assert.Equal(t, []any{"first", "second"}, out["suggestions"])
}

func TestExtractExpandsTabs(t *testing.T) {
	text := "key:\n\tnested: 1"
	out, ok := Extract(text, Options{})
	require.True(t, ok)
	nested := out["key"].(map[string]any)
	assert.Equal(t, 1, nested["nested"])
}

func TestExtractReindentsBlockScalar(t *testing.T) {
	text := "description: |\nThis line is flush left\nAnd so is this\nother: 1"
	out, ok := Extract(text, Options{})
	require.True(t, ok)
	assert.Contains(t, out["description"], "flush left")
	assert.Equal(t, 1, out["other"])
}

func TestExtractStripsLeadingPipe(t *testing.T) {
	out, ok := Extract("|\nkey: value", Options{})
	require.True(t, ok)
	assert.Equal(t, "value", out["key"])
}

func TestExtractSlicesKeyRange(t *testing.T) {
	text := "Sure! Here is the analysis.\n\nreview:\n  score: 5\n  security_concerns: none\n\nLet me know if you need anything else."
	out, ok := Extract(text, Options{FirstKey: "review", LastKey: "security_concerns"})
	require.True(t, ok)
	review := out["review"].(map[string]any)
	assert.Equal(t, 5, review["score"])
	assert.Equal(t, "none", review["security_concerns"])
}

func TestExtractExhausted(t *testing.T) {
	_, ok := Extract("complete garbage ???", Options{})
	assert.False(t, ok)
}

func TestToInt(t *testing.T) {
	cases := []struct {
		in   any
		want int
		ok   bool
	}{
		{3, 3, true},
		{int64(7), 7, true},
		{4.0, 4, true},
		{"5", 5, true},
		{"3 - a fairly simple change", 3, true},
		{"-2", -2, true},
		{"  8  ", 8, true},
		{"abc", 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		got, ok := ToInt(c.in)
		assert.Equal(t, c.ok, ok, "%v", c.in)
		if ok {
			assert.Equal(t, c.want, got, "%v", c.in)
		}
	}
}

func TestToUint(t *testing.T) {
	got, ok := ToUint("4")
	require.True(t, ok)
	assert.Equal(t, uint(4), got)

	_, ok = ToUint("-4")
	assert.False(t, ok)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "hello", ToString("  hello\n"))
	assert.Equal(t, "", ToString(42))
}
