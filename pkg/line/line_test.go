package line

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanlineRoundTrip(t *testing.T) {
	w := Scanline(true, 12345)
	in := Decode(w)
	assert.Equal(t, OpScanline, in.Op)
	assert.True(t, in.Dir)
	assert.Equal(t, uint64(12345), in.StepHalfPeriod)

	w = Scanline(false, 0)
	in = Decode(w)
	assert.Equal(t, OpScanline, in.Op)
	assert.False(t, in.Dir)
	assert.Zero(t, in.StepHalfPeriod)
}

func TestHalfPeriodWraps(t *testing.T) {
	// values beyond the register width wrap instead of saturating
	w := Scanline(false, HalfPeriodMask+5)
	assert.Equal(t, uint64(4), Decode(w).StepHalfPeriod)
}

func TestLastSentinel(t *testing.T) {
	in := Decode(Last())
	assert.Equal(t, OpLastScanline, in.Op)
	assert.True(t, in.Valid(Last()))

	// payload bits on the sentinel make it invalid
	bad := Last() | 1<<32
	assert.False(t, Decode(bad).Valid(bad))
}

func TestPackBitsOrder(t *testing.T) {
	bits := make([]bool, 10)
	bits[0] = true
	bits[3] = true
	bits[9] = true
	words := PackBits(bits)
	require.Len(t, words, 1)
	assert.Equal(t, uint64(1|1<<3|1<<9), words[0])
}

func TestPackBitsWordBoundary(t *testing.T) {
	full := make([]bool, WordBits)
	for i := range full {
		full[i] = true
	}
	assert.Len(t, PackBits(full), 1)

	over := make([]bool, WordBits+1)
	over[WordBits] = true
	words := PackBits(over)
	require.Len(t, words, 2)
	assert.Zero(t, words[0])
	assert.Equal(t, uint64(1), words[1])
}

func TestEncodeLine(t *testing.T) {
	bits := []bool{true, false, true}
	words := EncodeLine(bits, true, 7)
	require.Len(t, words, 2)
	assert.Equal(t, Scanline(true, 7), words[0])
	assert.Equal(t, uint64(0b101), words[1])
}

func TestHalfPeriodFromSteps(t *testing.T) {
	h, err := HalfPeriod(1, 60)
	require.NoError(t, err)
	assert.Equal(t, uint64(29), h)

	h, err = HalfPeriod(2, 312500)
	require.NoError(t, err)
	assert.Equal(t, uint64(78124), h)

	_, err = HalfPeriod(0, 60)
	assert.Error(t, err)
	_, err = HalfPeriod(30, 60)
	assert.Error(t, err)
}
