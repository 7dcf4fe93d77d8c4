package acquire

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// deliveryFunc receives every task delivery, partial or complete.
// Deliveries arrive on the worker goroutine, in production order.
type deliveryFunc func(channels []ChannelPartial, continuous bool, sessionID string, complete, stopping bool)

// acquisitionTask tracks the state for one acquisition session.
//
// The scheduler drives it by calling execute repeatedly until isFinished
// reports true. abort and stop only set flags; every backend hook runs
// inside execute, suspend, or resume, which are worker-goroutine-only.
type acquisitionTask struct {
	backend        Backend
	continuous     bool
	sessionID      string
	minFramePeriod time.Duration
	deliver        deliveryFunc

	// Set from requester goroutines, read by the worker.
	aborted  atomic.Bool
	stopping atomic.Bool

	// Worker-goroutine state.
	started     bool
	finished    bool
	suspended   bool
	stopMarked  bool
	frameIndex  int
	lastAcquire time.Time
	buffer      frameBuffer
}

// newAcquisitionTask builds a session for the given backend. Continuous
// sessions share the source's stable session id; single-pass sessions get
// a fresh token. The session id stays stable across suspend/resume.
func newAcquisitionTask(backend Backend, sourceID string, continuous bool, minFramePeriod time.Duration, deliver deliveryFunc) *acquisitionTask {
	sessionID := sourceID
	if !continuous {
		sessionID = uuid.NewString()
	}
	if minFramePeriod <= 0 {
		minFramePeriod = time.Millisecond
	}
	return &acquisitionTask{
		backend:        backend,
		continuous:     continuous,
		sessionID:      sessionID,
		minFramePeriod: minFramePeriod,
		deliver:        deliver,
	}
}

func (t *acquisitionTask) isFinished() bool { return t.finished }

// abort requests immediate termination; it takes effect on the next
// execute call, even mid frame. Safe from any goroutine.
func (t *acquisitionTask) abort() {
	t.aborted.Store(true)
}

// stop requests graceful termination. A continuous session finishes after
// the in-flight frame completes; the backend's mark-for-stop hook runs on
// the worker at the start of the next execute. Safe from any goroutine.
func (t *acquisitionTask) stop() {
	t.stopping.Store(true)
}

// suspend pauses the session for a higher-priority one. Idempotent; the
// result reports whether the backend accepted the suspension.
func (t *acquisitionTask) suspend() bool {
	if t.suspended {
		return true
	}
	t.suspended = true
	t.buffer.Reset()
	return t.backend.Suspend() == nil
}

// resume continues a suspended session. It also fires for a session that
// was installed while a higher-priority session held the hardware and
// never got its first execution window: such a session may need to
// re-initialize state, so the backend hook is called unconditionally.
func (t *acquisitionTask) resume() {
	t.buffer.Reset()
	t.backend.Resume()
}

// markFinished fires the final, empty delivery and seals the task.
// finished is terminal; no further state transitions or deliveries occur.
func (t *acquisitionTask) markFinished() {
	t.finished = true
	t.deliver(nil, t.continuous, t.sessionID, false, t.stopping.Load())
}

// execute runs one scheduling step: start on first call, abort handling,
// or a single rate-limited acquisition step. The scheduler calls it
// repeatedly until isFinished reports true. Any error finishes the task
// and propagates to the caller, which isolates it from other slots.
func (t *acquisitionTask) execute(ctx context.Context) error {
	if t.finished {
		return nil
	}
	if !t.started {
		t.started = true
		t.buffer.Reset()
		if err := t.backend.Start(); err != nil {
			t.markFinished()
			return errors.Wrap(err, "backend start")
		}
		t.lastAcquire = time.Now().Add(-t.minFramePeriod)
	}
	if t.suspended {
		t.suspended = false
		t.resume()
	}
	if t.stopping.Load() && !t.stopMarked {
		t.stopMarked = true
		t.backend.MarkForStop()
	}
	if t.aborted.Load() {
		t.backend.Abort()
		t.backend.MarkForStop()
		t.backend.Stop()
		t.markFinished()
		return nil
	}
	complete, err := t.acquireStep(ctx)
	if err != nil {
		t.markFinished()
		return err
	}
	if complete && (t.stopping.Load() || !t.continuous) {
		t.backend.Stop()
		t.markFinished()
	}
	return nil
}

// acquireStep performs one backend acquisition, merges the delivery into
// the frame buffer, and publishes the (possibly partial) result.
func (t *acquisitionTask) acquireStep(ctx context.Context) (bool, error) {
	// Impose the minimum inter-frame period so a fast backend cannot
	// starve the rest of the process. The sleep stays interruptible by
	// shutdown within one period.
	if wait := t.minFramePeriod - time.Since(t.lastAcquire); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false, errors.Wrap(ctx.Err(), "acquisition interrupted")
		}
	}

	partials, err := t.backend.AcquireStep(ctx)
	if err != nil {
		return false, errors.Wrap(err, "backend acquire step")
	}
	if len(partials) == 0 {
		return false, errors.New("backend returned no channel payloads")
	}
	for i := range partials {
		partials[i].FrameIndex = t.frameIndex
	}

	merged, complete, err := t.buffer.Merge(partials)
	if err != nil {
		return false, err
	}
	t.lastAcquire = time.Now()

	t.deliver(merged, t.continuous, t.sessionID, complete, t.stopping.Load())

	if complete {
		t.frameIndex++
	}
	return complete, nil
}
