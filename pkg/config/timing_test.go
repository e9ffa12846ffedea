package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTimingDefaults(t *testing.T) {
	tm, err := ResolveTiming(Default().Scanner)
	require.NoError(t, err)

	// 2400 rpm, 4 facets on a 50 MHz clock
	assert.Equal(t, 312500, tm.TicksPerFacet)
	assert.Equal(t, 25, tm.LaserTicks)
	assert.Equal(t, 13, tm.JitterTicks)
	assert.Equal(t, 6320, tm.BitsPerScanline)
	assert.Equal(t, 109375, tm.StartTicks)
	assert.Equal(t, 75000000, tm.SpinupTicks)
	assert.Equal(t, 56250000, tm.StableTicks)
	assert.Equal(t, 104166, tm.PolyPeriod)

	assert.NoError(t, tm.Validate())
}

func TestResolveTimingRejects(t *testing.T) {
	base := Default().Scanner

	cases := []struct {
		name   string
		mutate func(*ScannerConfig)
	}{
		{"no facets", func(sc *ScannerConfig) { sc.Facets = 0 }},
		{"laser too fast", func(sc *ScannerConfig) { sc.LaserHz = sc.CrystalHz / 2 }},
		{"empty scanline", func(sc *ScannerConfig) { sc.ScanlineBits = 0 }},
		{"no blanking", func(sc *ScannerConfig) { sc.StartFraction = 0 }},
		{"scan past facet end", func(sc *ScannerConfig) { sc.StartFraction = 0.9 }},
		{"zero rpm", func(sc *ScannerConfig) { sc.RPM = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc := base
			tc.mutate(&sc)
			_, err := ResolveTiming(sc)
			assert.ErrorIs(t, err, ErrTiming)
		})
	}
}

func TestTimingValidateOverlap(t *testing.T) {
	tm := Timing{
		Facets:          4,
		TicksPerFacet:   100,
		LaserTicks:      3,
		JitterTicks:     2,
		BitsPerScanline: 40,
		SpinupTicks:     10,
		StableTicks:     400,
		PolyPeriod:      33,
		StartTicks:      2,
	}
	// 2 + 3*40 = 122 runs past the 100 tick facet window
	assert.ErrorIs(t, tm.Validate(), ErrTiming)

	tm.BitsPerScanline = 30
	assert.NoError(t, tm.Validate())
}
