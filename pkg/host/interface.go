// Package host drives a scanhead, either over a serial bridge to the real
// hardware or against the in-process virtual scanner. Both implement Device,
// so the command line tooling and the exposure pipeline do not care which
// one they talk to.
package host

import (
	"github.com/darkomenz/hexastorm/pkg/scanhead"
)

// Status is the device state reported by the status byte.
type Status struct {
	State   scanhead.State
	Faults  scanhead.Fault
	MemFull bool // line buffer cannot take another word
}

// Device defines the interface for scanhead devices (real or virtual).
type Device interface {
	Connect() error
	Close() error
	IsConnected() bool

	// Status polls the device status byte.
	Status() (Status, error)
	// Start requests synchronization; the prism spins up and the engine
	// locks onto the photodiode.
	Start() error
	// Stop drops the synchronize request and, with it, any latched fault.
	Stop() error
	// ExposeStart begins consuming buffered scanlines.
	ExposeStart() error
	// WriteLine queues one scanline; it blocks while the device buffer is
	// full. Direction is the stage direction for this line.
	WriteLine(bits []bool, dir bool) error
	// WriteLast queues the end-of-exposure sentinel.
	WriteLast() error
	// SetLaserPower sets the laser driver current, 0-255.
	SetLaserPower(power uint8) error
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Virtual implements Device.
var _ Device = (*Virtual)(nil)
