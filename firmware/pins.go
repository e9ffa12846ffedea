package main

import "machine"

const (
	// Laser channels; laser 0 carries the scanline data
	PIN_LASER0 = machine.GP2
	PIN_LASER1 = machine.GP3

	// Prism motor driver
	PIN_MOTOR_PWM    = machine.GP4
	PIN_MOTOR_ENABLE = machine.GP5 // active low

	// Stage stepper driver
	PIN_STEP = machine.GP6
	PIN_DIR  = machine.GP7

	// Photodiode sense line, active low
	PIN_PHOTODIODE = machine.GP8

	// Laser driver current DAC (SPI digipot)
	PIN_DAC_SCK = machine.GP10
	PIN_DAC_SDI = machine.GP11
	PIN_DAC_CS  = machine.GP9

	PIN_LED = machine.LED

	// Serial configuration
	// A command frame is 9 bytes, answered with 1 status byte. Streaming a
	// scanline of 6320 bits takes 100 frames = 1000 bytes; at 2 Mbaud 8N1
	// that is ~5 ms per line, under the 6.25 ms facet period at 2400 rpm.
	UART_BAUD_RATE = 2000000
)

// configureDAC sets up the digipot SPI pins.
func configureDAC() {
	PIN_DAC_SCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DAC_SDI.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DAC_CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DAC_CS.High()
}

// setLaserCurrent programs the laser driver digipot over bit-banged SPI,
// MSB first.
func setLaserCurrent(value uint8) {
	PIN_DAC_CS.Low()
	for i := 7; i >= 0; i-- {
		PIN_DAC_SDI.Set(value&(1<<i) != 0)
		PIN_DAC_SCK.High()
		PIN_DAC_SCK.Low()
	}
	PIN_DAC_CS.High()
}