package canon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeKeyOrderStable(t *testing.T) {
	a, err := Canonicalize(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	b, err := Canonicalize(map[string]any{"a": 2, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestHashEqualForEquivalentValues(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	h1, err := Hash(payload{Name: "drift", Count: 3})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"count": 3, "name": "drift"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.True(t, strings.HasPrefix(h1, "sha256:"))
}

func TestHashNormalizesUnicode(t *testing.T) {
	// "é" as a single code point vs "e" + combining acute accent.
	composed := "café"
	decomposed := "café"
	require.NotEqual(t, composed, decomposed)

	h1, err := Hash(map[string]any{"name": composed})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"name": decomposed})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashDiffersForDifferentValues(t *testing.T) {
	h1, err := Hash(map[string]any{"n": 1})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"n": 2})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestCanonicalizeRejectsUnencodable(t *testing.T) {
	_, err := Canonicalize(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
