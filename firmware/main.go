//go:generate tinygo flash -target=pico

package main

import (
	"machine"

	"github.com/darkomenz/hexastorm/pkg/config"
	"github.com/darkomenz/hexastorm/pkg/fifo"
	"github.com/darkomenz/hexastorm/pkg/scanhead"
)

// Command opcodes of the serial bridge. Must match pkg/host.
const (
	CMD_STATUS byte = iota
	CMD_START
	CMD_STOP
	CMD_EXPOSE
	CMD_WRITE
	CMD_POWER
)

var (
	uart = machine.UART0

	buf *fifo.Transactional
	eng *scanhead.Engine

	synchronize bool
	exposePulse bool
	laserPower  uint8

	// Serial buffer for one command frame: opcode + 64-bit payload
	frame    [9]byte
	framePos int
)

func main() {
	PIN_LASER0.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LASER1.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_MOTOR_PWM.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_MOTOR_ENABLE.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_STEP.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DIR.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	// idle high, pulled low when the beam crosses the diode
	PIN_PHOTODIODE.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	// motor off until the host asks for synchronization
	PIN_MOTOR_ENABLE.High()

	configureDAC()

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	t, err := config.ResolveTiming(config.Default().Scanner)
	if err != nil {
		// nothing sane to do without valid timing
		for {
			PIN_LED.High()
		}
	}
	buf = fifo.New(fifo.DefaultDepth)
	eng, err = scanhead.New(t, buf)
	if err != nil {
		for {
			PIN_LED.High()
		}
	}

	// Main loop: one engine tick per iteration
	for {
		processSerial()

		out := eng.Tick(scanhead.Inputs{
			Photodiode:  PIN_PHOTODIODE.Get(),
			Synchronize: synchronize,
			ExposeStart: exposePulse,
		})
		exposePulse = false

		PIN_LASER0.Set(out.Lasers&1 != 0)
		PIN_LASER1.Set(out.Lasers&2 != 0)
		PIN_MOTOR_PWM.Set(out.PWM)
		PIN_MOTOR_ENABLE.Set(out.EnablePrism)
		PIN_STEP.Set(out.Step)
		PIN_DIR.Set(out.Dir)
		PIN_LED.Set(out.Synchronized)
	}
}

// processSerial consumes at most one command frame per engine tick.
func processSerial() {
	for uart.Buffered() > 0 && framePos < len(frame) {
		data, err := uart.ReadByte()
		if err != nil {
			return
		}
		frame[framePos] = data
		framePos++
	}
	if framePos < len(frame) {
		return
	}
	framePos = 0

	var payload uint64
	for i := 0; i < 8; i++ {
		payload |= uint64(frame[1+i]) << (8 * i)
	}

	full := buf.Full()
	switch frame[0] {
	case CMD_START:
		synchronize = true
	case CMD_STOP:
		synchronize = false
	case CMD_EXPOSE:
		exposePulse = true
	case CMD_WRITE:
		// a full buffer drops the word; the host sees the full bit in the
		// reply and resends
		if !full {
			if buf.Write(payload) == nil {
				buf.CommitWrite()
			}
		}
	case CMD_POWER:
		laserPower = uint8(payload)
		setLaserCurrent(laserPower)
	}

	uart.WriteByte(eng.StatusByte(full))
}
