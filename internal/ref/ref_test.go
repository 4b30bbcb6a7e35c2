package ref

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e, err := NewEncoder("test-salt")
	require.NoError(t, err)

	for _, id := range []int64{1, 42, 999999} {
		code, err := e.Encode(id)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(code, "cmp_"))
		assert.GreaterOrEqual(t, len(code), len("cmp_")+8)

		got, err := e.Decode(code)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	e, err := NewEncoder("test-salt")
	require.NoError(t, err)

	_, err = e.Decode("cmp_not!valid")
	assert.Error(t, err)
}

func TestDifferentSaltsProduceDifferentCodes(t *testing.T) {
	a, err := NewEncoder("salt-a")
	require.NoError(t, err)
	b, err := NewEncoder("salt-b")
	require.NoError(t, err)

	codeA, err := a.Encode(7)
	require.NoError(t, err)
	codeB, err := b.Encode(7)
	require.NoError(t, err)

	assert.NotEqual(t, codeA, codeB)
}
