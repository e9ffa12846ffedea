package host

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/darkomenz/hexastorm/pkg/config"
	"github.com/darkomenz/hexastorm/pkg/line"
	"github.com/darkomenz/hexastorm/pkg/scanhead"
)

const (
	// DefaultBaudRate is the standard baud rate for the scanhead bridge.
	DefaultBaudRate = 2000000

	// writeRetries bounds how long WriteLine waits for buffer space.
	writeRetries = 1000
	retryDelay   = 5 * time.Millisecond
)

// Command opcodes of the bridge protocol. Every frame is the opcode followed
// by one line transport word, little endian; the bridge answers each frame
// with its status byte. A CmdWrite frame that arrives while the line buffer
// is full is dropped and answered with the full bit set, so the host resends
// the same word.
const (
	CmdStatus byte = iota
	CmdStart
	CmdStop
	CmdExpose
	CmdWrite
	CmdPower
)

// frameSize is the wire size of one command frame.
const frameSize = 1 + line.WordBytes

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Serial talks to the scanhead over the serial bridge.
type Serial struct {
	port     string
	baudRate int

	stepsPerLine  int
	ticksPerFacet int

	conn      serial.Port
	mu        sync.Mutex
	connected bool
}

// NewSerial creates a device for the configured serial port. The scanner
// timing is resolved up front so a bad configuration fails here, not halfway
// through an exposure.
func NewSerial(cfg *config.Config) (*Serial, error) {
	t, err := config.ResolveTiming(cfg.Scanner)
	if err != nil {
		return nil, err
	}

	baud := cfg.Serial.Baud
	if baud == 0 {
		baud = DefaultBaudRate
	}
	return &Serial{
		port:          cfg.Serial.Port,
		baudRate:      baud,
		stepsPerLine:  cfg.Exposure.StepsPerLine,
		ticksPerFacet: t.TicksPerFacet,
	}, nil
}

// Connect opens the serial port.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	conn, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = conn
	d.connected = true
	return nil
}

// Close closes the serial port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.connected = false
	return err
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// command sends one frame and reads back the status byte. The caller must
// hold the mutex.
func (d *Serial) command(cmd byte, payload uint64) (Status, error) {
	if !d.connected {
		return Status{}, fmt.Errorf("not connected")
	}

	var frame [frameSize]byte
	frame[0] = cmd
	binary.LittleEndian.PutUint64(frame[1:], payload)
	if _, err := d.conn.Write(frame[:]); err != nil {
		return Status{}, fmt.Errorf("failed to send command %#x: %w", cmd, err)
	}

	var reply [1]byte
	if _, err := io.ReadFull(d.conn, reply[:]); err != nil {
		return Status{}, fmt.Errorf("no status reply to command %#x: %w", cmd, err)
	}

	st, f, memFull := scanhead.UnpackStatus(reply[0])
	return Status{State: st, Faults: f, MemFull: memFull}, nil
}

// Status polls the device status byte.
func (d *Serial) Status() (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.command(CmdStatus, 0)
}

// Start requests synchronization.
func (d *Serial) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(CmdStart, 0)
	return err
}

// Stop drops the synchronize request.
func (d *Serial) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(CmdStop, 0)
	return err
}

// ExposeStart begins consuming buffered scanlines.
func (d *Serial) ExposeStart() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(CmdExpose, 0)
	return err
}

// SetLaserPower sets the laser driver current.
func (d *Serial) SetLaserPower(power uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(CmdPower, uint64(power))
	return err
}

// WriteLine encodes one scanline and streams its words to the device,
// waiting whenever the line buffer reports full.
func (d *Serial) WriteLine(bits []bool, dir bool) error {
	half, err := line.HalfPeriod(d.stepsPerLine, d.ticksPerFacet)
	if err != nil {
		return err
	}
	return d.writeWords(line.EncodeLine(bits, dir, half))
}

// WriteLast streams the end-of-exposure sentinel.
func (d *Serial) WriteLast() error {
	return d.writeWords([]uint64{line.Last()})
}

func (d *Serial) writeWords(words []uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, w := range words {
		retries := 0
		for {
			st, err := d.command(CmdWrite, w)
			if err != nil {
				return err
			}
			if st.Faults != 0 {
				return fmt.Errorf("scanhead fault while writing: %s", st.Faults)
			}
			if !st.MemFull {
				break
			}
			if retries++; retries > writeRetries {
				return fmt.Errorf("line buffer stayed full for %v", time.Duration(writeRetries)*retryDelay)
			}
			d.mu.Unlock()
			time.Sleep(retryDelay)
			d.mu.Lock()
		}
	}
	return nil
}
