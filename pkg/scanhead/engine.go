package scanhead

import (
	"errors"
	"math"
	"math/bits"

	"github.com/darkomenz/hexastorm/pkg/config"
	"github.com/darkomenz/hexastorm/pkg/line"
)

// stepCntMask bounds the step divider counter to its 56-bit register width;
// the half-period field is 55 bits wide (line.HalfPeriodMask). Both wrap
// instead of saturating.
const stepCntMask = uint64(1)<<56 - 1

// regs is the complete register set of the engine. Tick copies it, derives
// the next-tick values from the copy, and commits the result, so no
// assignment is visible within the tick that made it.
type regs struct {
	state State

	// free-running blocks
	pwmCnt    int
	pwm       bool
	diodeCnt  int
	diodeSeen bool
	diodeMon  bool
	stepCnt   uint64
	stepHalf  uint64
	step      bool
	dir       bool
	move      bool

	// synchronization
	facet        int
	stableCnt    int
	stableThresh int
	tick         int
	diodeD       bool
	synchronized bool
	fault        Fault
	prismEnable  bool // pin level, active low

	// line streaming
	laserCnt int
	scanBit  int
	readBit  int
	cache    uint64
	lasers   uint8

	// exposure control
	processLines   bool
	exposeD        bool
	exposeFinished bool
}

// Engine is the LaserSync state machine together with the photodiode edge
// detector, prism PWM and step pulse generator, all advanced by Tick.
type Engine struct {
	t   config.Timing
	buf LineBuffer
	r   regs

	// hardware counters wrap at their register width, not at the logical
	// bound; replicate that
	tickMask   int
	stableMask int
}

// New creates an engine for a validated timing configuration and a line
// buffer. The buffer is the engine's single external resource; the engine
// never holds more than one read enable outstanding on it.
func New(t config.Timing, buf LineBuffer) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, errors.New("scanhead: nil line buffer")
	}
	e := &Engine{
		t:          t,
		buf:        buf,
		tickMask:   widthMask(2 * t.TicksPerFacet),
		stableMask: widthMask(max(t.SpinupTicks, t.StableTicks)),
	}
	e.Reset()
	return e, nil
}

// widthMask returns the wrap mask of a register sized to count up to n-1.
func widthMask(n int) int {
	return 1<<bits.Len(uint(max(n-1, 1))) - 1
}

// Reset forces the engine through its reset state on the next tick,
// clearing all faults.
func (e *Engine) Reset() {
	e.r = regs{
		state:        StateReset,
		prismEnable:  true,
		stableThresh: e.t.StableTicks - 1,
	}
}

// State returns the state the machine is in after the last tick.
func (e *Engine) State() State { return e.r.state }

// Faults returns the latched fault flags.
func (e *Engine) Faults() Fault { return e.r.fault }

// FacetIndex returns the current facet counter value.
func (e *Engine) FacetIndex() int { return e.r.facet }

// StepHalfPeriod returns the step half-period latched from the most recent
// scanline instruction.
func (e *Engine) StepHalfPeriod() uint64 { return e.r.stepHalf }

// Timing returns the timing constants the engine was built with.
func (e *Engine) Timing() config.Timing { return e.t }

// StatusByte packs the current state and faults with the given buffer-full
// flag into the command transport status byte.
func (e *Engine) StatusByte(memFull bool) byte {
	return PackStatus(e.r.state, e.r.fault, memFull)
}

// Outputs returns the output signals as of the last tick.
func (e *Engine) Outputs() Outputs {
	r := &e.r
	return Outputs{
		Lasers:         r.lasers,
		PWM:            r.pwm,
		EnablePrism:    r.prismEnable,
		Step:           r.step,
		Dir:            r.dir,
		Synchronized:   r.synchronized,
		Error:          r.fault != 0,
		ExposeFinished: r.exposeFinished,
		DiodeMonitor:   r.diodeMon,
	}
}

// Tick advances the engine by one clock period. All next-state values are
// computed from the previous-tick registers and the inputs, then committed
// together.
func (e *Engine) Tick(in Inputs) Outputs {
	cur := e.r
	next := cur

	// Photodiode edge detector: a single-tick pulse when the current
	// sample is low and the previous one was high.
	next.diodeD = in.Photodiode
	edge := !in.Photodiode && cur.diodeD

	// Diode activity monitor over a two facet window, reported to the host
	// by the photodiode self test.
	if cur.diodeCnt < 2*e.t.TicksPerFacet-1 {
		if !in.Photodiode {
			next.diodeSeen = true
		}
		next.diodeCnt = cur.diodeCnt + 1
	} else {
		next.diodeMon = cur.diodeSeen
		next.diodeSeen = false
		next.diodeCnt = 0
	}

	// Prism motor PWM is always generated; the enable pin gates the driver,
	// never the generator.
	if cur.pwmCnt == 0 {
		next.pwm = !cur.pwm
		next.pwmCnt = e.t.PolyPeriod - 1
	} else {
		next.pwmCnt = cur.pwmCnt - 1
	}

	// Step pulse generator: free-running divider while a move is armed.
	if cur.move {
		if cur.stepCnt < cur.stepHalf {
			next.stepCnt = (cur.stepCnt + 1) & stepCntMask
		} else {
			next.stepCnt = 0
			next.step = !cur.step
		}
	} else {
		next.stepCnt = 0
	}

	// Exposure start detector: rising edge begins a new exposure.
	if in.ExposeStart && !cur.exposeD {
		next.processLines = true
		next.exposeFinished = false
	}
	next.exposeD = in.ExposeStart

	switch cur.state {
	case StateReset:
		next.fault = 0
		next.state = StateStop

	case StateStop:
		next.stableThresh = e.t.StableTicks - 1
		next.stableCnt = 0
		next.synchronized = false
		next.prismEnable = true
		next.readBit = 0
		next.facet = 0
		next.scanBit = 0
		next.laserCnt = 0
		next.tick = 0
		next.lasers = 0
		if in.Synchronize && cur.fault == 0 {
			if !in.Photodiode {
				// the laser is off, so the diode must not be triggered
				next.fault = FaultPhotodiode
			} else {
				next.prismEnable = false
				next.state = StateSpinup
			}
		} else if !in.Synchronize && cur.fault != 0 {
			// deasserting synchronize acknowledges the fault and
			// rearms a retry
			next.fault = 0
		}

	case StateSpinup:
		if cur.stableCnt > e.t.SpinupTicks-1 {
			// continuous illumination serves as the optical reference
			// for edge timing
			next.lasers = 0b11
			next.stableCnt = 0
			next.state = StateWaitStable
		} else {
			next.stableCnt = (cur.stableCnt + 1) & e.stableMask
		}

	case StateWaitStable:
		if cur.stableCnt >= cur.stableThresh {
			next.fault = cur.fault | FaultSyncTimeout
			next.state = StateStop
		} else if edge {
			next.tick = 0
			next.lasers = 0
			lo := e.t.TicksPerFacet - 1 - e.t.JitterTicks
			hi := e.t.TicksPerFacet - 1 + e.t.JitterTicks
			if cur.tick >= lo && cur.tick <= hi {
				next.stableCnt = 0
				next.synchronized = true
				if cur.facet == e.t.Facets-1 {
					next.facet = 0
				} else {
					next.facet = cur.facet + 1
				}
				switch {
				case e.t.SingleFacet && cur.facet > 0:
					next.move = false
					next.state = StateWaitEnd
				case e.buf.Empty() || !cur.processLines:
					next.move = false
					next.state = StateWaitEnd
				default:
					// a locked scanner gets a generous watchdog
					next.stableThresh = min(int(math.Round(10.1*float64(e.t.TicksPerFacet))), e.t.StableTicks)
					_ = e.buf.EnableRead()
					next.state = StateReadInstruction
				}
			} else {
				next.move = false
				next.synchronized = false
				next.state = StateWaitEnd
			}
		} else {
			next.stableCnt = (cur.stableCnt + 1) & e.stableMask
			next.tick = (cur.tick + 1) & e.tickMask
		}

	case StateReadInstruction:
		next.tick = (cur.tick + 1) & e.tickMask
		w := e.buf.ReadData()
		instr := line.Decode(w)
		switch {
		case instr.Op == line.OpScanline:
			next.move = true
			next.dir = instr.Dir
			next.stepHalf = instr.StepHalfPeriod & line.HalfPeriodMask
			next.state = StateWaitForDataRun
		case w == line.Last():
			next.exposeFinished = true
			next.move = false
			next.processLines = false
			e.buf.CommitRead()
			next.state = StateWaitEnd
		default:
			// no recovery path is defined for an invalid opcode: the
			// fault latches and the engine holds here until reset
			next.fault = cur.fault | FaultInvalidInstruction
		}

	case StateWaitForDataRun:
		next.tick = (cur.tick + 1) & e.tickMask
		next.readBit = 0
		next.scanBit = 0
		next.laserCnt = 0
		if cur.tick >= e.t.StartTicks {
			_ = e.buf.EnableRead()
			next.state = StateDataRun
		}

	case StateDataRun:
		next.tick = (cur.tick + 1) & e.tickMask
		if cur.laserCnt == 0 {
			if cur.scanBit >= e.t.BitsPerScanline {
				if e.t.SingleLine && e.buf.Empty() {
					// replay the same line next facet
					e.buf.DiscardRead()
				} else {
					e.buf.CommitRead()
				}
				next.state = StateWaitEnd
			} else {
				next.laserCnt = e.t.LaserTicks - 1
				next.scanBit = cur.scanBit + 1
				if cur.readBit == 0 {
					w := e.buf.ReadData()
					next.lasers = cur.lasers&^1 | uint8(w&1)
					next.cache = w >> 1
				} else {
					next.lasers = cur.lasers&^1 | uint8(cur.cache&1)
				}
			}
		} else {
			next.laserCnt = cur.laserCnt - 1
			// the read enable may only be outstanding for one bit, so it
			// is raised right before the word is needed
			if cur.laserCnt == 1 {
				switch {
				case cur.readBit == 0:
					next.readBit = 1
				case cur.readBit == line.WordBits-1:
					// refetch unless the line ends within this word; an
					// empty buffer yields stale bits, as in hardware
					if cur.scanBit < e.t.BitsPerScanline {
						_ = e.buf.EnableRead()
					}
					next.readBit = 0
				default:
					next.readBit = cur.readBit + 1
					next.cache = cur.cache >> 1
				}
			}
		}

	case StateWaitEnd:
		next.stableCnt = (cur.stableCnt + 1) & e.stableMask
		next.tick = (cur.tick + 1) & e.tickMask
		if cur.tick >= e.t.TicksPerFacet-e.t.JitterTicks-2 {
			// back to the reference level for the next facet edge
			next.lasers = 0b11
			next.state = StateWaitStable
		} else if !in.Synchronize {
			next.state = StateStop
		}
	}

	e.r = next
	return e.Outputs()
}
