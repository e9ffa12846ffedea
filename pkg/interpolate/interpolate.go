// Package interpolate converts raster images into scanline bit patterns for
// a transparent rotating prism scanner. The laser spot does not move
// linearly over the platform: its displacement follows from the refraction
// of the bundle through the spinning prism, so the image is sampled at the
// computed spot positions instead of row by row.
package interpolate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"
)

// Params holds the optical and sampling constants of the scanner. The
// defaults describe the first light engine; see US10114289B2 for the
// geometry.
type Params struct {
	TiltAngle       float32 // prism tilt (radians)
	LaserHz         float32 // laser modulation frequency
	RotationHz      float32 // prism rotation frequency
	Facets          int
	Inradius        float32 // prism inradius (mm)
	RefractiveIndex float32
	GridSize        float32 // sample grid pitch (mm)
	StageSpeed      float32 // stage speed (mm/s)

	StartPixel    int // first pixel of a facet sweep that hits the platform
	PixelsPerLine int
	// UpsampleFactor repeats every interpolated pixel in the emitted
	// scanline, trading resolution for interpolation speed.
	UpsampleFactor int
}

// Default returns the parameters of the reference scanner, pre-downsampled
// by the upsample factor.
func Default() Params {
	return Params{
		TiltAngle:       math32.Pi / 2,
		LaserHz:         400000,
		RotationHz:      2400.0 / 60,
		Facets:          4,
		Inradius:        15,
		RefractiveIndex: 1.49,
		GridSize:        0.015,
		StageSpeed:      2.0997375328,
		StartPixel:      693,
		PixelsPerLine:   1264,
		UpsampleFactor:  5,
	}
}

// FacetPixels returns the number of laser pixels in one facet sweep.
func (p Params) FacetPixels() int {
	return int(math32.Round(p.LaserHz / (p.RotationHz * float32(p.Facets))))
}

// Displacement returns the spot displacement in mm for a pixel of the facet
// sweep. The bundle traverses in the negative direction as the prism
// rotates, crossing zero at the sweep center.
func (p Params) Displacement(pixel int) float32 {
	maxAngle := 180 / float32(p.Facets)
	angle := radians(-2*maxAngle*(float32(pixel)/float32(p.FacetPixels())) + maxAngle)
	sin := math32.Sin(angle)
	n := p.RefractiveIndex
	return p.Inradius * 2 * sin * (1 - math32.Sqrt((1-sin*sin)/(n*n-sin*sin)))
}

// xPos returns the spot position along the scanline in grid units.
func (p Params) xPos(pixel int, xstart float32) float32 {
	disp := p.Displacement(p.StartPixel + pixel)
	return (math32.Sin(p.TiltAngle)*disp + xstart) / p.GridSize
}

// yPos returns the spot position along the stage axis in grid units.
// Forward lanes move the stage in +y, backward lanes in -y.
func (p Params) yPos(pixel int, forward bool) float32 {
	linePixel := p.StartPixel + pixel
	y := -math32.Cos(p.TiltAngle) * p.Displacement(linePixel)
	advance := float32(linePixel) / p.LaserHz * p.StageSpeed
	if forward {
		y += advance
	} else {
		y -= advance
	}
	return y / p.GridSize
}

// LaneWidth returns the width in mm covered by one lane of scanlines.
func (p Params) LaneWidth() float32 {
	return (p.xPos(0, 0) - p.xPos(p.PixelsPerLine-1, 0)) * p.GridSize
}

// Validate checks that the line is positioned on the platform: it must
// start on the positive displacement side and end on the negative one.
func (p Params) Validate() error {
	if p.Facets < 1 || p.PixelsPerLine < 1 || p.GridSize <= 0 {
		return fmt.Errorf("interpolate: facets, pixels per line and grid size must be positive")
	}
	if p.StartPixel+p.PixelsPerLine > p.FacetPixels() {
		return fmt.Errorf("interpolate: line of %d pixels does not fit in a %d pixel facet",
			p.PixelsPerLine, p.FacetPixels())
	}
	xstart := math32.Abs(p.xPos(p.PixelsPerLine-1, 0) * p.GridSize)
	if p.xPos(0, xstart) < 0 || p.xPos(p.PixelsPerLine-1, xstart) > 0 {
		return fmt.Errorf("interpolate: scanline is ill positioned on the platform")
	}
	return nil
}

// PatternLines samples the image at the computed spot positions and returns
// the scanline bit patterns covering it, lane by lane in serpentine order.
// A dark image pixel turns the laser on. The image is read on the sample
// grid: one image pixel per GridSize mm.
func (p Params) PatternLines(img image.Image) ([][]bool, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	widthMM := float32(bounds.Dx()) * p.GridSize
	heightMM := float32(bounds.Dy()) * p.GridSize

	laneWidth := p.LaneWidth()
	lanes := int(math32.Ceil(widthMM / laneWidth))
	facetsInLane := int(math32.Ceil(p.RotationHz * float32(p.Facets) * heightMM / p.StageSpeed))
	if lanes < 1 || facetsInLane < 1 {
		return nil, fmt.Errorf("interpolate: image of %gx%g mm is too small to scan", widthMM, heightMM)
	}

	// the displacement is negative at the line end, shift to keep x positive
	xstart := math32.Abs(p.xPos(p.PixelsPerLine-1, 0) * p.GridSize)
	laneStride := p.xPos(0, xstart) - p.xPos(p.PixelsPerLine-1, xstart)
	facetStride := p.StageSpeed / (float32(p.Facets) * p.RotationHz * p.GridSize)

	upsample := p.UpsampleFactor
	if upsample < 1 {
		upsample = 1
	}

	lines := make([][]bool, 0, lanes*facetsInLane)
	for lane := 0; lane < lanes; lane++ {
		forward := lane%2 == 0
		for facet := 0; facet < facetsInLane; facet++ {
			yoff := float32(facet) * facetStride
			if !forward {
				yoff = float32(facetsInLane-facet) * facetStride
			}
			bits := make([]bool, 0, p.PixelsPerLine*upsample)
			for px := 0; px < p.PixelsPerLine; px++ {
				x := p.xPos(px, xstart) + float32(lane)*laneStride
				y := p.yPos(px, forward) + yoff
				on := darkAt(img, int(math32.Round(x)), int(math32.Round(y)))
				for r := 0; r < upsample; r++ {
					bits = append(bits, on)
				}
			}
			lines = append(lines, bits)
		}
	}
	return lines, nil
}

// darkAt reports whether the image pixel at the given grid coordinate is
// dark. Coordinates outside the image leave the laser off.
func darkAt(img image.Image, x, y int) bool {
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
		return false
	}
	gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
	return gray.Y < 128
}

func radians(deg float32) float32 {
	return deg * math32.Pi / 180
}
