package uuid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNanoIDGenerator(t *testing.T) {
	gen := NewNanoIDGenerator(24)
	a, err := gen.Generate()
	require.NoError(t, err)
	b, err := gen.Generate()
	require.NoError(t, err)

	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
}

func TestNewNanoIDGenerator_PanicsOnZeroLength(t *testing.T) {
	assert.Panics(t, func() { NewNanoIDGenerator(0) })
}
