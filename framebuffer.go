package acquire

import "github.com/pkg/errors"

// frameBuffer accumulates per-channel partial deliveries for one
// in-progress frame and merges them into a dimensionally consistent
// result. It is owned by a single task and only touched from the worker
// goroutine, so it needs no locking.
//
// Merge rules, per channel:
//   - the first delivery seeds the buffer as-is;
//   - a later delivery's top offset must not exceed the bottom edge of
//     the region covered so far (no gaps);
//   - a delivery starting below row 0 must span the full covered width
//     (partial-height updates are full-width horizontal bands only);
//   - rows already covered are overwritten by new data, and rows above
//     the new region are carried forward from the previous delivery.
//
// Violations are contract errors from a non-conformant backend and are
// surfaced, never silently corrected.
type frameBuffer struct {
	channels []ChannelPartial
}

// Merge folds one delivery into the buffer and reports whether the frame
// is now complete. The returned slice holds the merged per-channel
// payloads (the delivery's buffers, with prior rows carried forward).
// On completion the buffer resets for the next frame; otherwise it
// retains the merged state for the next call.
func (b *frameBuffer) Merge(partials []ChannelPartial) ([]ChannelPartial, bool, error) {
	if len(partials) == 0 {
		return nil, false, errors.New("framebuffer: empty delivery")
	}
	for i := range partials {
		if err := validatePartial(partials[i]); err != nil {
			return nil, false, errors.Wrapf(err, "framebuffer: channel %d", i)
		}
	}

	if b.channels == nil {
		b.channels = append([]ChannelPartial(nil), partials...)
	} else {
		if len(partials) != len(b.channels) {
			return nil, false, errors.Errorf("framebuffer: channel count changed from %d to %d mid-frame",
				len(b.channels), len(partials))
		}
		for i := range partials {
			merged, err := mergeChannel(b.channels[i], partials[i])
			if err != nil {
				return nil, false, errors.Wrapf(err, "framebuffer: channel %d", i)
			}
			b.channels[i] = merged
		}
	}

	complete := true
	for _, ch := range b.channels {
		if !ch.done() {
			complete = false
			break
		}
	}

	merged := b.channels
	if complete {
		b.channels = nil
	}
	return merged, complete, nil
}

// Reset discards any partially assembled frame.
func (b *frameBuffer) Reset() {
	b.channels = nil
}

func validatePartial(p ChannelPartial) error {
	if p.Shape.Rows <= 0 || p.Shape.Cols <= 0 {
		return errors.Errorf("invalid shape %dx%d", p.Shape.Rows, p.Shape.Cols)
	}
	if len(p.Data) != p.Shape.Size() {
		return errors.Errorf("data length %d does not match shape %dx%d",
			len(p.Data), p.Shape.Rows, p.Shape.Cols)
	}
	if a := p.SubArea; a != nil {
		if a.Top < 0 || a.Left < 0 || a.Height < 0 || a.Width < 0 ||
			a.Bottom() > p.Shape.Rows || a.Left+a.Width > p.Shape.Cols {
			return errors.Errorf("sub-area %s out of bounds for shape %dx%d",
				a, p.Shape.Rows, p.Shape.Cols)
		}
	}
	return nil
}

func mergeChannel(prev, next ChannelPartial) (ChannelPartial, error) {
	if prev.Shape != next.Shape {
		return ChannelPartial{}, errors.Errorf("shape changed from %dx%d to %dx%d mid-frame",
			prev.Shape.Rows, prev.Shape.Cols, next.Shape.Rows, next.Shape.Cols)
	}

	prevArea := fullArea(prev.Shape)
	if prev.SubArea != nil {
		prevArea = *prev.SubArea
	}
	nextArea := fullArea(next.Shape)
	if next.SubArea != nil {
		nextArea = *next.SubArea
	}

	if nextArea.Top > prevArea.Bottom() {
		return ChannelPartial{}, errors.Errorf("sub-area gap: new top %d beyond covered bottom %d",
			nextArea.Top, prevArea.Bottom())
	}
	if nextArea.Top > 0 {
		if nextArea.Width != prevArea.Width {
			return ChannelPartial{}, errors.Errorf("sub-area below row 0 must span full width %d, got %d",
				prevArea.Width, nextArea.Width)
		}
		// Carry rows [prevArea.Top, nextArea.Top) forward from the
		// previous delivery, then extend the covered region to the
		// union of old and new.
		cols := next.Shape.Cols
		for row := prevArea.Top; row < nextArea.Top; row++ {
			base := row * cols
			copy(next.Data[base+prevArea.Left:base+prevArea.Left+prevArea.Width],
				prev.Data[base+prevArea.Left:base+prevArea.Left+prevArea.Width])
		}
		next.SubArea = &SubArea{
			Top:    prevArea.Top,
			Left:   prevArea.Left,
			Height: nextArea.Bottom() - prevArea.Top,
			Width:  prevArea.Width,
		}
	}
	return next, nil
}
