package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameColumns(t *testing.T) {
	f := NewFrame(2)
	require.NoError(t, f.SetNumeric("amount", []float64{10, 20}))
	require.NoError(t, f.SetLabels("city", []string{"Lilongwe", "Blantyre"}))
	require.NoError(t, f.SetNumeric("hour", []float64{9, 14}))

	assert.Equal(t, []string{"amount", "city", "hour"}, f.Columns())
	assert.Equal(t, 2, f.Len())
	assert.True(t, f.Has("city"))
	assert.False(t, f.Has("missing"))
}

func TestFrameLengthMismatch(t *testing.T) {
	f := NewFrame(3)
	assert.Error(t, f.SetNumeric("amount", []float64{1, 2}))
	assert.Error(t, f.SetLabels("city", []string{"Zomba"}))
}

func TestFrameOverwriteKeepsOrder(t *testing.T) {
	f := NewFrame(1)
	require.NoError(t, f.SetNumeric("a", []float64{1}))
	require.NoError(t, f.SetNumeric("b", []float64{2}))
	require.NoError(t, f.SetNumeric("a", []float64{3}))

	assert.Equal(t, []string{"a", "b"}, f.Columns())
	assert.Equal(t, 3.0, f.At("a", 0))
}

func TestFrameAtMissing(t *testing.T) {
	f := NewFrame(1)
	assert.Equal(t, 0.0, f.At("nope", 0))

	vals, ok := f.Numeric("nope")
	assert.False(t, ok)
	assert.Nil(t, vals)
}
