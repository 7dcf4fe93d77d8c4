// Package acquire implements the acquisition engine for laboratory
// detectors: a per-source scheduler that arbitrates idle/view/record
// acquisition sessions on a single worker goroutine, assembles partially
// delivered frames, and publishes calibrated channel records.
package acquire

import (
	"fmt"
	"time"
)

// Slot names one of the three mutually exclusive acquisition priority
// channels. Priority order, lowest to highest: idle < view < record.
type Slot string

const (
	SlotIdle   Slot = "idle"
	SlotView   Slot = "view"
	SlotRecord Slot = "record"
)

// slotsByPriority lists slots from lowest to highest priority.
var slotsByPriority = []Slot{SlotIdle, SlotView, SlotRecord}

func validSlot(slot Slot) bool {
	switch slot {
	case SlotIdle, SlotView, SlotRecord:
		return true
	}
	return false
}

// ChannelState describes the delivery state of one channel within a frame.
type ChannelState string

const (
	// StateComplete means the channel's data covers the whole frame.
	StateComplete ChannelState = "complete"
	// StatePartial means more sub-area deliveries are expected.
	StatePartial ChannelState = "partial"
	// StateMarked means the delivery is partial but the session has been
	// asked to stop at the end of the current frame.
	StateMarked ChannelState = "marked"
)

// Shape is the row/column extent of a channel's data.
type Shape struct {
	Rows int
	Cols int
}

// Size returns the element count of the shape.
func (s Shape) Size() int { return s.Rows * s.Cols }

// SubArea describes the region of a channel covered by a delivery.
// Rows [Top, Top+Height) and columns [Left, Left+Width) are valid.
type SubArea struct {
	Top    int
	Left   int
	Height int
	Width  int
}

// Bottom returns the exclusive bottom row of the sub-area.
func (a SubArea) Bottom() int { return a.Top + a.Height }

func (a SubArea) String() string {
	return fmt.Sprintf("(%d,%d)+(%dx%d)", a.Top, a.Left, a.Height, a.Width)
}

// fullArea is the sub-area covering an entire shape.
func fullArea(shape Shape) SubArea {
	return SubArea{Top: 0, Left: 0, Height: shape.Rows, Width: shape.Cols}
}

// Calibration maps raw values to calibrated units: calibrated = offset + raw*scale.
type Calibration struct {
	Offset float64 `yaml:"offset"`
	Scale  float64 `yaml:"scale"`
	Units  string  `yaml:"units"`
}

// IdentityCalibration is the fallback used when a backend supplies none.
func IdentityCalibration() Calibration {
	return Calibration{Offset: 0, Scale: 1, Units: ""}
}

// ChannelPartial is one channel's payload within a backend delivery.
//
// Data always holds a full-shape backing buffer (Shape.Size() elements);
// when SubArea is non-nil only the rows/columns it names carry valid data
// for this delivery. A nil SubArea means the whole channel was delivered
// and, together with an empty or complete State, that the channel is done.
type ChannelPartial struct {
	ChannelID string
	Name      string
	Data      []float32
	Shape     Shape
	SubArea   *SubArea
	State     ChannelState

	// Calibration metadata; optional, identity is assumed when absent.
	Intensity   *Calibration
	Dimensional []Calibration

	// Properties carries backend metadata (exposure, detector settings).
	Properties map[string]any

	// FrameIndex is stamped by the acquisition task before publication.
	FrameIndex int
}

// state normalizes the delivery state; an empty state means complete.
func (p ChannelPartial) state() ChannelState {
	if p.State == "" {
		return StateComplete
	}
	return p.State
}

// done reports whether this channel has no outstanding sub-area.
func (p ChannelPartial) done() bool {
	return p.SubArea == nil || p.state() == StateComplete
}

// ChannelRecord is the published form of one channel's delivery: raw data
// plus calibration metadata and a capture timestamp. Records are immutable
// once published; ownership passes to the subscribers.
type ChannelRecord struct {
	ChannelID   string
	Index       int
	Name        string
	Data        []float32
	Shape       Shape
	SubArea     *SubArea
	State       ChannelState
	Intensity   Calibration
	Dimensional []Calibration
	Properties  map[string]any
	FrameIndex  int
	SessionID   string
	CapturedAt  time.Time
}

// ChannelsUpdate is published on every task delivery, partial or complete.
type ChannelsUpdate struct {
	SourceID  string
	SessionID string
	// Snapshot is true for single-pass (record) sessions.
	Snapshot bool
	Records  []ChannelRecord
}

// FrameSet is published only when a delivery completes a frame. It carries
// the merged raw payloads of every channel.
type FrameSet struct {
	SourceID   string
	SessionID  string
	FrameIndex int
	Channels   []ChannelPartial
}

// StateChange reports a slot becoming active or inactive.
type StateChange struct {
	SourceID string
	Slot     Slot
	Active   bool
}

// AbortNotice reports that a task was aborted, distinct from a normal
// completion.
type AbortNotice struct {
	SourceID string
	Slot     Slot
}
