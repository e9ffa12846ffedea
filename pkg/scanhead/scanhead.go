// Package scanhead implements the synchronization and line-streaming core of
// a rotating-prism laser scanner. The engine is a clocked state machine:
// every call to Tick reads the inputs and the previous-tick registers,
// computes the complete next-tick register set, and commits it atomically,
// so a value written this tick is never observed before the next tick.
package scanhead

// State identifies the engine state machine state. The identifier is
// reported in the high bits of the status byte.
type State uint8

const (
	StateReset State = iota
	StateStop
	StateSpinup
	StateWaitStable
	StateReadInstruction
	StateWaitForDataRun
	StateDataRun
	StateWaitEnd
)

func (s State) String() string {
	switch s {
	case StateReset:
		return "reset"
	case StateStop:
		return "stop"
	case StateSpinup:
		return "spinup"
	case StateWaitStable:
		return "wait-stable"
	case StateReadInstruction:
		return "read-instruction"
	case StateWaitForDataRun:
		return "wait-for-data-run"
	case StateDataRun:
		return "data-run"
	case StateWaitEnd:
		return "wait-end"
	}
	return "unknown"
}

// Fault is a set of sticky fault flags. Any set flag drives the error
// output; clearing requires the host to deassert synchronize (or reset).
type Fault uint8

const (
	// FaultPhotodiode: the diode read active while the laser was verified
	// off, before spin-up.
	FaultPhotodiode Fault = 1 << iota
	// FaultSyncTimeout: no photodiode edge arrived within the watchdog
	// window while awaiting lock.
	FaultSyncTimeout
	// FaultInvalidInstruction: an unrecognized opcode was read from the
	// line transport.
	FaultInvalidInstruction
)

func (f Fault) String() string {
	if f == 0 {
		return "none"
	}
	var s string
	add := func(name string) {
		if s != "" {
			s += "+"
		}
		s += name
	}
	if f&FaultPhotodiode != 0 {
		add("photodiode")
	}
	if f&FaultSyncTimeout != 0 {
		add("sync-timeout")
	}
	if f&FaultInvalidInstruction != 0 {
		add("invalid-instruction")
	}
	return s
}

// Inputs are the signals sampled by the engine each tick.
type Inputs struct {
	Photodiode  bool // diode sense line; high when idle, low when the beam hits it
	Synchronize bool // request synchronization; honored only at facet boundaries once running
	ExposeStart bool // rising edge begins a new exposure
}

// Outputs are the signals driven by the engine, valid after each tick.
type Outputs struct {
	Lasers         uint8 // laser channel bits; bit 0 carries the scanline data
	PWM            bool  // prism motor pulse, free running
	EnablePrism    bool  // motor driver enable pin, active low: false drives the motor
	Step           bool  // stage step line
	Dir            bool  // stage direction line
	Synchronized   bool
	Error          bool
	ExposeFinished bool
	DiodeMonitor   bool // diode was seen active within the last two facet periods
}

// LaserOn reports whether the data laser channel is on.
func (o Outputs) LaserOn() bool { return o.Lasers&1 != 0 }

// LineBuffer is the consumer side of the line transport the engine reads
// scanline instructions from. See the fifo package for the reference
// implementation and the full producer/consumer contract.
type LineBuffer interface {
	// EnableRead stages the oldest unconsumed word for ReadData one tick
	// later. At most one read may be enabled at a time.
	EnableRead() error
	// ReadData returns the word staged by the last EnableRead; the value
	// holds until the next EnableRead.
	ReadData() uint64
	// CommitRead finalizes all words consumed since the last commit.
	CommitRead()
	// DiscardRead rewinds all words consumed since the last commit so the
	// line is delivered again.
	DiscardRead()
	// Empty reports whether no committed word is left.
	Empty() bool
}

// Status byte layout: bit 0 reports a full line buffer, bits 1-4 carry the
// fault flags and bits 5-7 the state identifier.
const (
	statusMemFullBit  = 0
	statusFaultShift  = 1
	statusFaultMask   = 0xf
	statusStateShift  = 5
	maxEncodableState = 7
)

// PackStatus packs the machine state, fault flags and buffer-full bit into
// the status byte exposed on the command transport.
func PackStatus(st State, f Fault, memFull bool) byte {
	b := byte(f&statusFaultMask) << statusFaultShift
	if memFull {
		b |= 1 << statusMemFullBit
	}
	if st > maxEncodableState {
		st = maxEncodableState
	}
	return b | byte(st)<<statusStateShift
}

// UnpackStatus splits a status byte into machine state, fault flags and the
// buffer-full bit.
func UnpackStatus(b byte) (st State, f Fault, memFull bool) {
	st = State(b >> statusStateShift)
	f = Fault((b >> statusFaultShift) & statusFaultMask)
	memFull = b&(1<<statusMemFullBit) != 0
	return st, f, memFull
}
