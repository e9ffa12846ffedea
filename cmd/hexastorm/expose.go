package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/darkomenz/hexastorm/pkg/fifo"
	"github.com/darkomenz/hexastorm/pkg/interpolate"
)

var exposeCmd = &cobra.Command{
	Use:   "expose <image>",
	Short: "Expose an image with the scanhead",
	Long: `Expose interpolates the image into scanline bit patterns for the
prism geometry, synchronizes the scanhead and streams the lines to it.
Writes apply backpressure, so arbitrarily large exposures run with the
small on-device line buffer.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(runExpose(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(exposeCmd)
}

// exposeParams derives the interpolation constants from the configuration.
func exposeParams() interpolate.Params {
	p := interpolate.Default()
	p.Facets = cfg.Scanner.Facets
	p.RotationHz = float32(cfg.Scanner.RPM / 60)
	p.LaserHz = float32(cfg.Scanner.LaserHz) / float32(p.UpsampleFactor)
	return p
}

func runExpose(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	params := exposeParams()
	lines, err := params.PatternLines(img)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("image yields no scanlines")
	}
	if got := len(lines[0]); got != cfg.Scanner.ScanlineBits {
		return fmt.Errorf("interpolated lines carry %d bits, scanner expects %d", got, cfg.Scanner.ScanlineBits)
	}

	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.SetLaserPower(uint8(cfg.Exposure.LaserPower)); err != nil {
		return err
	}
	if err := dev.Start(); err != nil {
		return err
	}
	if err := dev.ExposeStart(); err != nil {
		return err
	}

	fmt.Printf("exposing %d lines\n", len(lines))
	for i, bits := range lines {
		if err := dev.WriteLine(bits, true); err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
		if (i+1)%1000 == 0 {
			fmt.Printf("  %d/%d lines written\n", i+1, len(lines))
		}
	}
	if err := dev.WriteLast(); err != nil {
		return err
	}

	// the buffer holds at most DefaultDepth words of unexposed lines;
	// give the scanhead time to drain them before stopping
	lineRate := cfg.Scanner.RPM / 60 * float64(cfg.Scanner.Facets)
	drain := time.Duration(float64(fifo.DefaultDepth)/lineRate*float64(time.Second)) + time.Second
	time.Sleep(drain)

	st, err := dev.Status()
	if err != nil {
		return err
	}
	if st.Faults != 0 {
		return fmt.Errorf("exposure finished with fault: %s", st.Faults)
	}
	if err := dev.Stop(); err != nil {
		return err
	}
	fmt.Println("exposure complete")
	return nil
}
