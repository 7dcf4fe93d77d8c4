package acquire

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// SimulatedBackendConfig describes the synthetic detector.
type SimulatedBackendConfig struct {
	// Rows and Cols set the frame shape. Defaults: 64x64.
	Rows int
	Cols int
	// Channels is the number of detector channels per frame. Default 1.
	Channels int
	// BandsPerFrame splits each frame into that many full-width
	// horizontal band deliveries. 1 delivers whole frames. Default 1.
	BandsPerFrame int
	// StepDelay is how long one AcquireStep blocks, simulating exposure
	// time. Default 1ms.
	StepDelay time.Duration
	// Exposure is reported in the channel properties.
	Exposure float64
}

func (c *SimulatedBackendConfig) applyDefaults() {
	if c.Rows <= 0 {
		c.Rows = 64
	}
	if c.Cols <= 0 {
		c.Cols = 64
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.BandsPerFrame <= 0 {
		c.BandsPerFrame = 1
	}
	if c.BandsPerFrame > c.Rows {
		c.BandsPerFrame = c.Rows
	}
	if c.StepDelay <= 0 {
		c.StepDelay = time.Millisecond
	}
	if c.Exposure <= 0 {
		c.Exposure = 0.5
	}
}

// SimulatedBackend is a deterministic software detector. Each frame fills
// every pixel with a value that increments per frame, delivered in
// full-width horizontal bands so partial-frame assembly paths are
// exercised end to end. It implements Backend and is safe for the single
// worker goroutine plus concurrent counter reads from tests.
type SimulatedBackend struct {
	cfg SimulatedBackendConfig

	mu        sync.Mutex
	running   bool
	suspended bool
	marked    bool
	value     float32
	band      int

	starts   int
	suspends int
	resumes  int
	marks    int
	stops    int
	aborts   int
}

// NewSimulatedBackend builds a simulated detector.
func NewSimulatedBackend(cfg SimulatedBackendConfig) *SimulatedBackend {
	cfg.applyDefaults()
	return &SimulatedBackend{cfg: cfg}
}

// Start implements Backend.
func (b *SimulatedBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts++
	b.running = true
	b.band = 0
	return nil
}

// Suspend implements Backend.
func (b *SimulatedBackend) Suspend() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.suspends++
	b.suspended = true
	b.band = 0
	return nil
}

// Resume implements Backend.
func (b *SimulatedBackend) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resumes++
	b.suspended = false
	b.band = 0
}

// MarkForStop implements Backend.
func (b *SimulatedBackend) MarkForStop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks++
	b.marked = true
}

// Stop implements Backend.
func (b *SimulatedBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stops++
	b.running = false
}

// Abort implements Backend.
func (b *SimulatedBackend) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborts++
	b.running = false
	b.band = 0
}

// AcquireStep implements Backend. It delivers the next horizontal band of
// the current frame for every channel; the last band reports complete.
func (b *SimulatedBackend) AcquireStep(ctx context.Context) ([]ChannelPartial, error) {
	b.mu.Lock()
	delay := b.cfg.StepDelay
	b.mu.Unlock()

	timer := time.NewTimer(delay)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return nil, errors.Wrap(ctx.Err(), "simulated exposure interrupted")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil, errors.New("simulated backend: acquire step while not running")
	}

	shape := Shape{Rows: b.cfg.Rows, Cols: b.cfg.Cols}
	bands := b.cfg.BandsPerFrame
	band := b.band
	if band == 0 {
		b.value++
	}

	top := band * shape.Rows / bands
	bottom := (band + 1) * shape.Rows / bands
	last := band == bands-1

	state := StatePartial
	if last {
		state = StateComplete
	}

	partials := make([]ChannelPartial, 0, b.cfg.Channels)
	for ch := 0; ch < b.cfg.Channels; ch++ {
		data := make([]float32, shape.Size())
		for i := top * shape.Cols; i < bottom*shape.Cols; i++ {
			data[i] = b.value + float32(ch)
		}
		partial := ChannelPartial{
			ChannelID: fmt.Sprintf("sim-%d", ch),
			Name:      fmt.Sprintf("Simulated %d", ch),
			Data:      data,
			Shape:     shape,
			State:     state,
			Properties: map[string]any{
				"exposure": b.cfg.Exposure,
			},
		}
		if bands > 1 {
			partial.SubArea = &SubArea{Top: top, Left: 0, Height: bottom - top, Width: shape.Cols}
		}
		partials = append(partials, partial)
	}

	if last {
		b.band = 0
	} else {
		b.band = band + 1
	}
	return partials, nil
}

// FrameValue returns the fill value of the most recently generated frame.
func (b *SimulatedBackend) FrameValue() float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Counters returns the lifetime hook invocation counts
// (start, suspend, resume, mark, stop, abort).
func (b *SimulatedBackend) Counters() (starts, suspends, resumes, marks, stops, aborts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starts, b.suspends, b.resumes, b.marks, b.stops, b.aborts
}
