package scanhead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkomenz/hexastorm/pkg/config"
	"github.com/darkomenz/hexastorm/pkg/fifo"
)

// testTiming is small enough to simulate whole facet sweeps in microseconds:
// 60 ticks per facet, 4 ticks per laser bit, 8 bits per line.
func testTiming() config.Timing {
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

func newTestEngine(t *testing.T, tm config.Timing) *Engine {
	t.Helper()
	e, err := New(tm, fifo.New(0))
	require.NoError(t, err)
	return e
}

// runEdge holds the photodiode high for period-1 ticks and then samples it
// low once, producing one falling edge exactly period ticks after the
// previous one.
func runEdge(e *Engine, period int) Outputs {
	in := Inputs{Photodiode: true, Synchronize: true}
	for i := 0; i < period-1; i++ {
		e.Tick(in)
	}
	return e.Tick(Inputs{Photodiode: false, Synchronize: true})
}

// spinupEngine drives a fresh engine into the stable wait and parks the
// facet clock with one throwaway edge, so the next runEdge period is
// measured from a known point.
func spinupEngine(t *testing.T, e *Engine) {
	t.Helper()
	in := Inputs{Photodiode: true, Synchronize: true}
	for i := 0; i < 100; i++ {
		e.Tick(in)
		if e.State() == StateWaitStable {
			runEdge(e, 20)
			return
		}
	}
	t.Fatal("engine never reached wait-stable")
}

func TestNewRejectsBadTiming(t *testing.T) {
	tm := testTiming()
	tm.LaserTicks = 2
	_, err := New(tm, fifo.New(0))
	assert.ErrorIs(t, err, config.ErrTiming)

	_, err = New(testTiming(), nil)
	assert.Error(t, err)
}

func TestPrismPWMFreeRuns(t *testing.T) {
	e := newTestEngine(t, testTiming())

	var runs []int
	prev, runLen := false, 0
	for i := 0; i < 200; i++ {
		out := e.Tick(Inputs{Photodiode: true})
		if out.PWM == prev {
			runLen++
		} else {
			runs = append(runs, runLen)
			runLen = 1
			prev = out.PWM
		}
		// without a synchronize request the driver stays disabled
		assert.True(t, out.EnablePrism)
	}

	require.Greater(t, len(runs), 3)
	for _, r := range runs[1:] {
		assert.Equal(t, testTiming().PolyPeriod, r)
	}
}

func TestSpinupRaisesReferenceBeam(t *testing.T) {
	e := newTestEngine(t, testTiming())

	in := Inputs{Photodiode: true, Synchronize: true}
	for i := 0; i < 100 && e.State() != StateWaitStable; i++ {
		e.Tick(in)
	}
	require.Equal(t, StateWaitStable, e.State())

	out := e.Outputs()
	assert.Equal(t, uint8(0b11), out.Lasers)
	assert.False(t, out.EnablePrism, "motor driver must be enabled during spinup")
	assert.False(t, out.Synchronized)
}

func TestPhotodiodeStuckFault(t *testing.T) {
	e := newTestEngine(t, testTiming())

	// diode active while the laser is still off
	stuck := Inputs{Photodiode: false, Synchronize: true}
	for i := 0; i < 3; i++ {
		e.Tick(stuck)
	}
	assert.Equal(t, StateStop, e.State())
	assert.Equal(t, FaultPhotodiode, e.Faults())
	assert.True(t, e.Outputs().Error)

	// the fault holds while synchronize stays up
	e.Tick(Inputs{Photodiode: true, Synchronize: true})
	assert.Equal(t, FaultPhotodiode, e.Faults())

	// dropping synchronize acknowledges it
	e.Tick(Inputs{Photodiode: true})
	assert.Zero(t, e.Faults())
	assert.False(t, e.Outputs().Error)
}

func TestSyncTimeoutWithoutDiode(t *testing.T) {
	tm := testTiming()
	e := newTestEngine(t, tm)

	in := Inputs{Photodiode: true, Synchronize: true}
	for i := 0; i < tm.SpinupTicks+tm.StableTicks+50; i++ {
		e.Tick(in)
	}
	assert.Equal(t, StateStop, e.State())
	assert.Equal(t, FaultSyncTimeout, e.Faults())
	assert.True(t, e.Outputs().Error)
	assert.True(t, e.Outputs().EnablePrism, "motor must stop on a sync fault")

	// acknowledge and retry
	e.Tick(Inputs{Photodiode: true})
	require.Zero(t, e.Faults())
	e.Tick(in)
	e.Tick(in)
	assert.Equal(t, StateSpinup, e.State())
}

func TestEdgeAcceptanceWindow(t *testing.T) {
	tm := testTiming()
	// window is [ticksPerFacet-jitter, ticksPerFacet+jitter] edge to edge
	cases := []struct {
		name   string
		period int
		sync   bool
	}{
		{"lower bound", tm.TicksPerFacet - tm.JitterTicks, true},
		{"upper bound", tm.TicksPerFacet + tm.JitterTicks, true},
		{"one early", tm.TicksPerFacet - tm.JitterTicks - 1, false},
		{"one late", tm.TicksPerFacet + tm.JitterTicks + 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, tm)
			spinupEngine(t, e)

			out := runEdge(e, tc.period)
			assert.Equal(t, tc.sync, out.Synchronized)
			assert.False(t, out.Error)
		})
	}
}

func TestLockHoldsOverManyFacets(t *testing.T) {
	tm := testTiming()
	e := newTestEngine(t, tm)
	spinupEngine(t, e)

	for i := 0; i < 20; i++ {
		out := runEdge(e, tm.TicksPerFacet)
		if i > 0 {
			assert.True(t, out.Synchronized, "facet %d", i)
		}
	}
	assert.Equal(t, 0, e.FacetIndex()%tm.Facets)
}

func TestDiodeMonitorWindow(t *testing.T) {
	tm := testTiming()
	e := newTestEngine(t, tm)

	// one low sample is enough to mark the diode alive for the next window
	e.Tick(Inputs{Photodiode: false})
	for i := 0; i < 2*tm.TicksPerFacet; i++ {
		e.Tick(Inputs{Photodiode: true})
	}
	assert.True(t, e.Outputs().DiodeMonitor)

	// a silent window clears it again
	for i := 0; i < 4*tm.TicksPerFacet; i++ {
		e.Tick(Inputs{Photodiode: true})
	}
	assert.False(t, e.Outputs().DiodeMonitor)
}

func TestStatusByteRoundTrip(t *testing.T) {
	b := PackStatus(StateDataRun, FaultSyncTimeout|FaultPhotodiode, true)
	st, f, memFull := UnpackStatus(b)
	assert.Equal(t, StateDataRun, st)
	assert.Equal(t, FaultSyncTimeout|FaultPhotodiode, f)
	assert.True(t, memFull)

	st, f, memFull = UnpackStatus(PackStatus(StateStop, 0, false))
	assert.Equal(t, StateStop, st)
	assert.Zero(t, f)
	assert.False(t, memFull)
}

func TestStatusByteFromEngine(t *testing.T) {
	e := newTestEngine(t, testTiming())
	e.Tick(Inputs{Photodiode: true})
	e.Tick(Inputs{Photodiode: true})

	st, f, memFull := UnpackStatus(e.StatusByte(false))
	assert.Equal(t, StateStop, st)
	assert.Zero(t, f)
	assert.False(t, memFull)
}
