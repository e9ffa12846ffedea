// Package line defines the scanline instruction wire format shared by the
// host-side encoder and the scanhead engine. An instruction is one 64-bit
// word: opcode in the low byte, and for a scanline the direction bit at bit
// 8 followed by the unsigned step half-period. The laser payload follows as
// fixed-width words consumed least-significant-bit first.
package line

import "fmt"

const (
	// WordBits is the line transport word width.
	WordBits = 64
	// WordBytes is the line transport word width in bytes.
	WordBytes = WordBits / 8

	// OpScanline starts a scanline followed by payload words.
	OpScanline byte = 0
	// OpLastScanline ends the exposure; no more lines will follow.
	OpLastScanline byte = 1
)

const (
	dirBit = 8
	// HalfPeriodBits is the register width of the step half-period field;
	// values wrap at this width.
	HalfPeriodBits = 55
	// HalfPeriodMask masks a half-period to its register width.
	HalfPeriodMask = uint64(1)<<HalfPeriodBits - 1
)

// Instruction is one decoded line transport word.
type Instruction struct {
	Op             byte
	Dir            bool   // stage direction for this line
	StepHalfPeriod uint64 // step toggle half-period in ticks
}

// Decode splits a transport word into its instruction fields. The fields
// beyond Op are only meaningful for OpScanline.
func Decode(w uint64) Instruction {
	return Instruction{
		Op:             byte(w),
		Dir:            w&(1<<dirBit) != 0,
		StepHalfPeriod: w >> (dirBit + 1),
	}
}

// Valid reports whether the opcode is one the engine understands. The whole
// word is checked for OpLastScanline: stray payload bits make it invalid.
func (i Instruction) Valid(w uint64) bool {
	switch {
	case i.Op == OpScanline:
		return true
	case w == uint64(OpLastScanline):
		return true
	}
	return false
}

// Scanline encodes a scanline instruction word.
func Scanline(dir bool, stepHalfPeriod uint64) uint64 {
	w := uint64(OpScanline)
	if dir {
		w |= 1 << dirBit
	}
	w |= (stepHalfPeriod & HalfPeriodMask) << (dirBit + 1)
	return w
}

// Last encodes the end-of-exposure sentinel word.
func Last() uint64 {
	return uint64(OpLastScanline)
}

// PackBits packs laser bits into payload words, least significant bit
// first, zero-padding the final word.
func PackBits(bits []bool) []uint64 {
	words := make([]uint64, (len(bits)+WordBits-1)/WordBits)
	for i, b := range bits {
		if b {
			words[i/WordBits] |= 1 << (i % WordBits)
		}
	}
	return words
}

// EncodeLine encodes one scanline: the instruction word followed by the
// payload words for its bits.
func EncodeLine(bits []bool, dir bool, stepHalfPeriod uint64) []uint64 {
	return append([]uint64{Scanline(dir, stepHalfPeriod)}, PackBits(bits)...)
}

// HalfPeriod converts a steps-per-line setting into the step half-period
// carried by a scanline instruction. The divider toggles every half-period
// plus one ticks, so the returned value makes the stage advance stepsPerLine
// full pulses over one facet period.
func HalfPeriod(stepsPerLine, ticksPerFacet int) (uint64, error) {
	if stepsPerLine <= 0 {
		return 0, fmt.Errorf("steps per line %d must be positive", stepsPerLine)
	}
	h := ticksPerFacet/(2*stepsPerLine) - 1
	if h < 1 {
		return 0, fmt.Errorf("%d steps do not fit in a %d tick facet period", stepsPerLine, ticksPerFacet)
	}
	return uint64(h), nil
}
