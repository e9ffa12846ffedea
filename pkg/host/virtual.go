package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/darkomenz/hexastorm/pkg/config"
	"github.com/darkomenz/hexastorm/pkg/fifo"
	"github.com/darkomenz/hexastorm/pkg/line"
	"github.com/darkomenz/hexastorm/pkg/scanhead"
)

// maxBatchTicks caps how much simulated time one scheduler pass may cover.
const maxBatchTicks = 100000

// Virtual is a scanhead simulated in-process: the synchronization engine
// driven by a modeled photodiode. It exposes the same Device interface as
// the serial bridge and additionally tracks the stage position, so exposures
// can be verified without hardware.
type Virtual struct {
	t            config.Timing
	stepsPerLine int

	sim *scanhead.DiodeSimulator

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	laserPower uint8
	position   int64
	prevStep   bool
}

// NewVirtual creates a virtual scanhead from the configuration.
func NewVirtual(cfg *config.Config) (*Virtual, error) {
	t, err := config.ResolveTiming(cfg.Scanner)
	if err != nil {
		return nil, err
	}
	return newVirtual(t, cfg.Exposure.StepsPerLine)
}

func newVirtual(t config.Timing, stepsPerLine int) (*Virtual, error) {
	sim, err := scanhead.NewDiodeSimulator(t, 0)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Virtual{
		t:            t,
		stepsPerLine: stepsPerLine,
		sim:          sim,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Connect starts the simulation clock.
func (v *Virtual) Connect() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.connected {
		return fmt.Errorf("already connected")
	}
	v.connected = true
	go v.run()
	return nil
}

// Close stops the simulation clock.
func (v *Virtual) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.connected {
		return nil
	}
	v.cancel()
	v.connected = false
	return nil
}

// IsConnected returns whether the device is currently connected.
func (v *Virtual) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

// run advances the simulation in near real time: one batch of ticks per
// millisecond of wall clock.
func (v *Virtual) run() {
	batch := int(v.t.CrystalHz / 1000)
	if batch < 1 {
		batch = 1
	}
	if batch > maxBatchTicks {
		batch = maxBatchTicks
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-v.ctx.Done():
			return
		case <-ticker.C:
			v.mu.Lock()
			for i := 0; i < batch; i++ {
				v.tick()
			}
			v.mu.Unlock()
		}
	}
}

// tick advances the scanner one clock period and tracks stage movement.
// The caller must hold the mutex.
func (v *Virtual) tick() {
	out := v.sim.Tick()
	if v.prevStep && !out.Step {
		if out.Dir {
			v.position++
		} else {
			v.position--
		}
	}
	v.prevStep = out.Step
}

// Advance steps the simulation n ticks synchronously, for use without a
// running clock.
func (v *Virtual) Advance(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := 0; i < n; i++ {
		v.tick()
	}
}

// Status reports the engine state the way the serial bridge would.
func (v *Virtual) Status() (Status, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Status{
		State:   v.sim.Engine().State(),
		Faults:  v.sim.Engine().Faults(),
		MemFull: v.sim.Buffer().Full(),
	}, nil
}

// Start requests synchronization.
func (v *Virtual) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sim.SetSynchronize(true)
	return nil
}

// Stop drops the synchronize request.
func (v *Virtual) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sim.SetSynchronize(false)
	return nil
}

// ExposeStart begins consuming buffered scanlines.
func (v *Virtual) ExposeStart() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sim.PulseExposeStart()
	return nil
}

// SetLaserPower records the laser driver current.
func (v *Virtual) SetLaserPower(power uint8) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.laserPower = power
	return nil
}

// LaserPower returns the last set laser driver current.
func (v *Virtual) LaserPower() uint8 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.laserPower
}

// Position returns the net stage step count since creation.
func (v *Virtual) Position() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// WriteLine queues one scanline, waiting for buffer space word by word.
func (v *Virtual) WriteLine(bits []bool, dir bool) error {
	half, err := line.HalfPeriod(v.stepsPerLine, v.t.TicksPerFacet)
	if err != nil {
		return err
	}
	return v.writeWords(line.EncodeLine(bits, dir, half))
}

// WriteLast queues the end-of-exposure sentinel.
func (v *Virtual) WriteLast() error {
	return v.writeWords([]uint64{line.Last()})
}

func (v *Virtual) writeWords(words []uint64) error {
	for _, w := range words {
		retries := 0
		for {
			v.mu.Lock()
			err := v.sim.Buffer().Write(w)
			if err == nil {
				v.mu.Unlock()
				break
			}
			connected := v.connected
			v.mu.Unlock()

			if !errors.Is(err, fifo.ErrFull) {
				return err
			}
			if !connected {
				// nothing drains the buffer without a running clock
				return err
			}
			if retries++; retries > writeRetries {
				return fmt.Errorf("line buffer stayed full for %v", time.Duration(writeRetries)*retryDelay)
			}
			time.Sleep(retryDelay)
		}
	}
	v.mu.Lock()
	v.sim.Buffer().CommitWrite()
	v.mu.Unlock()
	return nil
}
