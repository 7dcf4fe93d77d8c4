package acquire

import (
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrFrameTimeout reports that a waiter gave up before a frame
	// completed.
	ErrFrameTimeout = errors.New("acquire: timed out waiting for frame")
	// ErrAborted reports that the acquisition was aborted while a waiter
	// was blocked on it.
	ErrAborted = errors.New("acquire: acquisition aborted")
)

// NextFrameToFinish blocks until the next frame completes on this source
// and returns its merged channel payloads. It returns ErrFrameTimeout
// when timeout elapses first and ErrAborted when a task aborts while
// waiting. A timeout of zero or less waits forever.
func (s *HardwareSource) NextFrameToFinish(timeout time.Duration) ([]ChannelPartial, error) {
	frames := make(chan FrameSet, 1)
	aborted := make(chan struct{}, 1)

	frameSub := s.SubscribeFrames(func(fs FrameSet) {
		select {
		case frames <- fs:
		default:
		}
	})
	defer frameSub.Close()
	abortSub := s.SubscribeAborts(func(AbortNotice) {
		select {
		case aborted <- struct{}{}:
		default:
		}
	})
	defer abortSub.Close()

	return waitForFrame(frames, aborted, timeout)
}

// NextFrameToStart blocks until a frame that started after this call
// completes, guaranteeing the returned data was captured entirely after
// the caller's request. It waits for the in-flight frame to finish, then
// returns the one after it.
func (s *HardwareSource) NextFrameToStart(timeout time.Duration) ([]ChannelPartial, error) {
	frames := make(chan FrameSet, 2)
	aborted := make(chan struct{}, 1)

	frameSub := s.SubscribeFrames(func(fs FrameSet) {
		select {
		case frames <- fs:
		default:
		}
	})
	defer frameSub.Close()
	abortSub := s.SubscribeAborts(func(AbortNotice) {
		select {
		case aborted <- struct{}{}:
		default:
		}
	})
	defer abortSub.Close()

	// Discard the frame already in flight.
	if _, err := waitForFrame(frames, aborted, timeout); err != nil {
		return nil, err
	}
	return waitForFrame(frames, aborted, timeout)
}

func waitForFrame(frames <-chan FrameSet, aborted <-chan struct{}, timeout time.Duration) ([]ChannelPartial, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case fs := <-frames:
		return fs.Channels, nil
	case <-aborted:
		return nil, ErrAborted
	case <-expired:
		return nil, ErrFrameTimeout
	}
}
