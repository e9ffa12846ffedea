package scanhead

import (
	"github.com/darkomenz/hexastorm/pkg/config"
	"github.com/darkomenz/hexastorm/pkg/fifo"
	"github.com/darkomenz/hexastorm/pkg/line"
)

// DiodeSimulator wraps an Engine with a line buffer and a synthetic
// photodiode. The diode is triggered once per facet period, but only while
// the prism motor is driven and the laser is on, so the engine locks onto
// it exactly as it would onto a real scanner. It backs the virtual host
// device and the package tests.
type DiodeSimulator struct {
	eng *Engine
	buf *fifo.Transactional
	t   config.Timing

	diodeCnt   int
	photodiode bool

	synchronize bool
	exposePulse bool

	out Outputs
}

// NewDiodeSimulator creates a simulator with a line buffer of the given
// depth (0 uses the fifo default).
func NewDiodeSimulator(t config.Timing, depth int) (*DiodeSimulator, error) {
	buf := fifo.New(depth)
	eng, err := New(t, buf)
	if err != nil {
		return nil, err
	}
	return &DiodeSimulator{
		eng:        eng,
		buf:        buf,
		t:          t,
		photodiode: true, // idle high
	}, nil
}

// Engine returns the wrapped engine.
func (s *DiodeSimulator) Engine() *Engine { return s.eng }

// Buffer returns the producer side of the line buffer.
func (s *DiodeSimulator) Buffer() *fifo.Transactional { return s.buf }

// Outputs returns the engine outputs as of the last tick.
func (s *DiodeSimulator) Outputs() Outputs { return s.out }

// SetSynchronize drives the synchronize request line.
func (s *DiodeSimulator) SetSynchronize(v bool) { s.synchronize = v }

// PulseExposeStart asserts the expose start line for the next tick.
func (s *DiodeSimulator) PulseExposeStart() { s.exposePulse = true }

// WriteLine encodes one scanline and commits it to the line buffer.
func (s *DiodeSimulator) WriteLine(bits []bool, dir bool, stepHalfPeriod uint64) error {
	for _, w := range line.EncodeLine(bits, dir, stepHalfPeriod) {
		if err := s.buf.Write(w); err != nil {
			return err
		}
	}
	s.buf.CommitWrite()
	return nil
}

// WriteLast commits the end-of-exposure sentinel to the line buffer.
func (s *DiodeSimulator) WriteLast() error {
	if err := s.buf.Write(line.Last()); err != nil {
		return err
	}
	s.buf.CommitWrite()
	return nil
}

// Tick advances the photodiode model and the engine by one clock period.
func (s *DiodeSimulator) Tick() Outputs {
	// the diode reacts to the previous tick's outputs
	prev := s.eng.Outputs()
	switch {
	case s.diodeCnt == s.t.TicksPerFacet-1:
		s.diodeCnt = 0
	case s.diodeCnt > s.t.TicksPerFacet-4:
		// beam crosses the diode near the end of the facet sweep
		triggered := !prev.EnablePrism && prev.Lasers > 0
		s.photodiode = !triggered
		s.diodeCnt++
	default:
		s.photodiode = true
		s.diodeCnt++
	}

	in := Inputs{
		Photodiode:  s.photodiode,
		Synchronize: s.synchronize,
		ExposeStart: s.exposePulse,
	}
	s.exposePulse = false
	s.out = s.eng.Tick(in)
	return s.out
}

// TickN advances the simulator n ticks and returns the final outputs.
func (s *DiodeSimulator) TickN(n int) Outputs {
	for i := 0; i < n; i++ {
		s.Tick()
	}
	return s.out
}
