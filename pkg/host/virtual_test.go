package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkomenz/hexastorm/pkg/config"
	"github.com/darkomenz/hexastorm/pkg/fifo"
	"github.com/darkomenz/hexastorm/pkg/scanhead"
)

func virtualTiming() config.Timing {
	return config.Timing{
		CrystalHz:       1e6,
		Facets:          4,
		TicksPerFacet:   60,
		LaserTicks:      4,
		JitterTicks:     2,
		BitsPerScanline: 8,
		SpinupTicks:     10,
		StableTicks:     240,
		PolyPeriod:      20,
		StartTicks:      2,
	}
}

func TestVirtualConnectClose(t *testing.T) {
	v, err := newVirtual(virtualTiming(), 1)
	require.NoError(t, err)

	require.NoError(t, v.Connect())
	assert.True(t, v.IsConnected())
	assert.Error(t, v.Connect())

	require.NoError(t, v.Close())
	assert.False(t, v.IsConnected())
	assert.NoError(t, v.Close())
}

func TestVirtualExposure(t *testing.T) {
	tm := virtualTiming()
	v, err := newVirtual(tm, 1)
	require.NoError(t, err)

	require.NoError(t, v.SetLaserPower(130))
	assert.Equal(t, uint8(130), v.LaserPower())

	pattern := make([]bool, tm.BitsPerScanline)
	for i := range pattern {
		pattern[i] = i%2 == 0
	}
	const numLines = 3
	for i := 0; i < numLines; i++ {
		require.NoError(t, v.WriteLine(pattern, true))
	}
	require.NoError(t, v.WriteLast())

	require.NoError(t, v.ExposeStart())
	require.NoError(t, v.Start())

	limit := tm.SpinupTicks + tm.StableTicks + 30*tm.TicksPerFacet
	for i := 0; i < limit && !v.sim.Outputs().ExposeFinished; i += 100 {
		v.Advance(100)
	}
	require.True(t, v.sim.Outputs().ExposeFinished)

	assert.Equal(t, int64(numLines), v.Position())

	st, err := v.Status()
	require.NoError(t, err)
	assert.Zero(t, st.Faults)

	require.NoError(t, v.Stop())
	v.Advance(5 * tm.TicksPerFacet)
	st, err = v.Status()
	require.NoError(t, err)
	assert.Equal(t, scanhead.StateStop, st.State)
}

func TestVirtualWriteFullWithoutClock(t *testing.T) {
	v, err := newVirtual(virtualTiming(), 1)
	require.NoError(t, err)

	pattern := make([]bool, virtualTiming().BitsPerScanline)
	var writeErr error
	for i := 0; i < fifo.DefaultDepth; i++ {
		if writeErr = v.WriteLine(pattern, false); writeErr != nil {
			break
		}
	}
	require.Error(t, writeErr)
	assert.ErrorIs(t, writeErr, fifo.ErrFull)
}
