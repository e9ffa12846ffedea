package config

import (
	"errors"
	"fmt"
	"math"
)

// ErrTiming is wrapped by all timing resolution failures.
var ErrTiming = errors.New("invalid scanner timing")

// Timing holds the timing constants derived from the physical scanner
// parameters. It is computed once by ResolveTiming and never mutated
// afterwards; the synchronization engine refuses to start without a
// validated Timing.
type Timing struct {
	CrystalHz       float64
	Facets          int
	TicksPerFacet   int // oscillator ticks per facet sweep
	LaserTicks      int // ticks per laser bit, must be > 2
	JitterTicks     int // half the laser bit period, acceptance tolerance
	BitsPerScanline int
	SpinupTicks     int // ticks waited for the prism motor to reach speed
	StableTicks     int // watchdog window for the first photodiode edge
	PolyPeriod      int // prism motor PWM half period in ticks
	StartTicks      int // blanking ticks at the start of the facet sweep
	SingleFacet     bool
	SingleLine      bool
}

// ResolveTiming derives all timing constants from the given physical
// parameters. It fails if the laser bit period is too short for the read
// pipeline, the scanline is empty, or the end of the scan would overlap the
// jitter margin at the end of the facet window.
func ResolveTiming(sc ScannerConfig) (Timing, error) {
	if sc.Facets < 1 {
		return Timing{}, fmt.Errorf("%w: facets %d < 1", ErrTiming, sc.Facets)
	}
	if sc.CrystalHz <= 0 || sc.RPM <= 0 || sc.LaserHz <= 0 {
		return Timing{}, fmt.Errorf("%w: crystal, rpm and laser frequencies must be positive", ErrTiming)
	}

	polyHz := sc.RPM / 60
	ticksPerFacet := int(math.Round(sc.CrystalHz / (polyHz * float64(sc.Facets))))
	laserTicks := int(sc.CrystalHz / sc.LaserHz)
	// jitter requires 2 ticks, and the read pipeline needs one more to
	// raise the enable line mid-bit
	if laserTicks <= 2 {
		return Timing{}, fmt.Errorf("%w: laser ticks %d <= 2", ErrTiming, laserTicks)
	}
	if sc.ScanlineBits <= 0 {
		return Timing{}, fmt.Errorf("%w: scanline bits %d <= 0", ErrTiming, sc.ScanlineBits)
	}
	jitterTicks := int(math.Round(0.5 * float64(laserTicks)))

	endFraction := float64(laserTicks*sc.ScanlineBits)/float64(ticksPerFacet) + sc.StartFraction
	if endFraction > 1-float64(jitterTicks+1)/float64(ticksPerFacet) {
		return Timing{}, fmt.Errorf("%w: scan end fraction %.3f overlaps jitter margin", ErrTiming, endFraction)
	}

	startTicks := int(sc.StartFraction * float64(ticksPerFacet))
	if startTicks <= 0 {
		return Timing{}, fmt.Errorf("%w: start fraction %.3f yields no blanking ticks", ErrTiming, sc.StartFraction)
	}

	// the prism motor driver was designed for 6 facets and pulses each facet
	return Timing{
		CrystalHz:       sc.CrystalHz,
		Facets:          sc.Facets,
		TicksPerFacet:   ticksPerFacet,
		LaserTicks:      laserTicks,
		JitterTicks:     jitterTicks,
		BitsPerScanline: sc.ScanlineBits,
		SpinupTicks:     int(math.Round(sc.SpinupSeconds * sc.CrystalHz)),
		StableTicks:     int(math.Round(sc.StableSeconds * sc.CrystalHz)),
		PolyPeriod:      int(sc.CrystalHz / (polyHz * 6 * 2)),
		StartTicks:      startTicks,
		SingleFacet:     sc.SingleFacet,
		SingleLine:      sc.SingleLine,
	}, nil
}

// Validate re-checks the invariants on an already populated Timing. It is
// used by the engine when a Timing is constructed by hand, e.g. in tests.
func (t Timing) Validate() error {
	if t.Facets < 1 {
		return fmt.Errorf("%w: facets %d < 1", ErrTiming, t.Facets)
	}
	if t.LaserTicks <= 2 {
		return fmt.Errorf("%w: laser ticks %d <= 2", ErrTiming, t.LaserTicks)
	}
	if t.BitsPerScanline <= 0 {
		return fmt.Errorf("%w: scanline bits %d <= 0", ErrTiming, t.BitsPerScanline)
	}
	if t.StartTicks <= 0 {
		return fmt.Errorf("%w: start ticks %d <= 0", ErrTiming, t.StartTicks)
	}
	end := t.StartTicks + t.LaserTicks*t.BitsPerScanline
	if end > t.TicksPerFacet-t.JitterTicks-1 {
		return fmt.Errorf("%w: scan end tick %d overlaps jitter margin", ErrTiming, end)
	}
	return nil
}
