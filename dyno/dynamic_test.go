package dyno

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	doc := map[string]any{
		"a":    map[string]any{"b": 1.0},
		"tags": []any{"x", map[string]any{"k": "v"}},
	}

	v, ok := Lookup(doc, []string{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = Lookup(doc, []string{"tags", "1", "k"})
	require.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = Lookup(doc, []string{"a", "b", "c"})
	assert.False(t, ok, "stepping into a scalar")

	_, ok = Lookup(doc, []string{"a", "missing"})
	assert.False(t, ok)

	_, ok = Lookup(doc, []string{"tags", "9"})
	assert.False(t, ok, "index out of range")

	_, ok = Lookup(doc, []string{"tags", "x"})
	assert.False(t, ok, "non numeric index")
}

func TestEqualAndCompare(t *testing.T) {
	assert.True(t, Equal(1, 1.0))
	assert.True(t, Equal("he", "he"))
	assert.False(t, Equal("1", 1))
	assert.True(t, Equal([]any{"a"}, []any{"a"}))

	c, ok := Compare(2, 3.5)
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare("b", "a")
	require.True(t, ok)
	assert.Equal(t, 1, c)

	_, ok = Compare("1", 1)
	assert.False(t, ok)
}

func TestCopy(t *testing.T) {
	src := map[string]any{"a": map[string]any{"b": []any{1.0}}}
	dst := CopyMap(src)

	dst["a"].(map[string]any)["b"].([]any)[0] = 2.0
	assert.Equal(t, 1.0, src["a"].(map[string]any)["b"].([]any)[0])
}
