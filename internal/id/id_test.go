package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for range count {
		id, err := Generate("op")
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestGenerate_Format(t *testing.T) {
	id, err := Generate("op")
	require.NoError(t, err)

	prefix, body, ok := strings.Cut(id, "-")
	require.True(t, ok)
	assert.Equal(t, "op", prefix)
	assert.Len(t, body, opLength)
	for _, r := range body {
		assert.Contains(t, opAlphabet, string(r))
	}
}

func TestOp(t *testing.T) {
	assert.True(t, strings.HasPrefix(Op(), "op-"))
	assert.NotEqual(t, Op(), Op())
}
