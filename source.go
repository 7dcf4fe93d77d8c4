package acquire

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/lumascope/acquire/internal/config"
	"github.com/lumascope/acquire/internal/pubsub"
)

// EnvMinFramePeriod overrides the default minimum inter-frame period for
// newly created sources (a time.Duration string, e.g. "5ms").
const EnvMinFramePeriod = "ACQ_MIN_FRAME_PERIOD"

const defaultMinFramePeriod = time.Millisecond

// TaskOptions controls one acquisition session.
type TaskOptions struct {
	// Continuous sessions stream frames until stopped; single-pass
	// sessions finish after one complete frame.
	Continuous bool
	// MinFramePeriod floors the time between acquisition steps. Zero
	// means the source default.
	MinFramePeriod time.Duration
}

// HardwareSource schedules acquisition sessions for one detector.
//
// It owns zero or one task per priority slot and a single worker
// goroutine that repeatedly selects and steps the highest-priority
// installed task, suspending the lower ones. All backend calls happen on
// that goroutine; callers only install/flag tasks and read published
// notifications.
type HardwareSource struct {
	id          string
	displayName string
	backend     Backend

	minFramePeriod time.Duration

	mu     sync.Mutex
	tasks  map[Slot]*acquisitionTask
	closed bool

	wake     chan struct{}
	closing  chan struct{}
	loopDone chan struct{}

	publisher *channelPublisher
}

// SourceOption customizes a HardwareSource.
type SourceOption func(*HardwareSource)

// WithMinFramePeriod sets the default minimum inter-frame period for
// sessions started on this source.
func WithMinFramePeriod(d time.Duration) SourceOption {
	return func(s *HardwareSource) {
		if d > 0 {
			s.minFramePeriod = d
		}
	}
}

// NewHardwareSource builds a source around the given backend and starts
// its worker goroutine. Callers must Close the source when done.
func NewHardwareSource(id, displayName string, backend Backend, opts ...SourceOption) *HardwareSource {
	if backend == nil {
		panic("acquire: nil backend")
	}
	s := &HardwareSource{
		id:             id,
		displayName:    displayName,
		backend:        backend,
		minFramePeriod: config.Duration(EnvMinFramePeriod, defaultMinFramePeriod),
		tasks:          make(map[Slot]*acquisitionTask),
		wake:           make(chan struct{}, 1),
		closing:        make(chan struct{}),
		loopDone:       make(chan struct{}),
		publisher:      newChannelPublisher(id),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.acquireLoop()
	return s
}

// ID returns the source identifier.
func (s *HardwareSource) ID() string { return s.id }

// DisplayName returns the human-readable source name.
func (s *HardwareSource) DisplayName() string { return s.displayName }

// Close shuts the worker down, aborting any installed task, and waits for
// the loop to exit. Close is not safe to call twice.
func (s *HardwareSource) Close() {
	close(s.closing)
	s.wakeWorker()
	<-s.loopDone
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// StartTask installs a new session in the given slot and wakes the
// worker. Installing into an occupied or unknown slot is a caller
// programming error and panics.
func (s *HardwareSource) StartTask(slot Slot, opts TaskOptions) {
	if !validSlot(slot) {
		panic(fmt.Sprintf("acquire: unknown slot %q", slot))
	}
	period := opts.MinFramePeriod
	if period <= 0 {
		period = s.minFramePeriod
	}
	task := newAcquisitionTask(s.backend, s.id, opts.Continuous, period, s.publisher.publish)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		panic("acquire: StartTask on closed source")
	}
	if _, occupied := s.tasks[slot]; occupied {
		s.mu.Unlock()
		panic(fmt.Sprintf("acquire: slot %q already occupied", slot))
	}
	s.tasks[slot] = task
	s.mu.Unlock()

	// Publish before waking so a fast-finishing session cannot report
	// inactive ahead of its active notification.
	s.publisher.stateChanges.Publish(StateChange{SourceID: s.id, Slot: slot, Active: true})
	s.wakeWorker()
}

// StopTask requests graceful termination of the slot's session; a
// continuous session finishes after the in-flight frame. No-op when the
// slot is empty.
func (s *HardwareSource) StopTask(slot Slot) {
	s.mu.Lock()
	task := s.tasks[slot]
	s.mu.Unlock()
	if task == nil {
		return
	}
	task.stop()
	s.wakeWorker()
}

// AbortTask requests immediate termination of the slot's session,
// discarding any in-flight frame. No-op when the slot is empty.
func (s *HardwareSource) AbortTask(slot Slot) {
	s.mu.Lock()
	task := s.tasks[slot]
	s.mu.Unlock()
	if task == nil {
		return
	}
	task.abort()
	s.publisher.aborts.Publish(AbortNotice{SourceID: s.id, Slot: slot})
	s.wakeWorker()
}

// IsTaskRunning reports whether the slot holds a session.
func (s *HardwareSource) IsTaskRunning(slot Slot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[slot] != nil
}

// IsViewing reports whether a continuous view session is installed.
func (s *HardwareSource) IsViewing() bool { return s.IsTaskRunning(SlotView) }

// StartViewing begins continuous acquisition in the view slot. No-op when
// already viewing.
func (s *HardwareSource) StartViewing() {
	if !s.IsViewing() {
		s.StartTask(SlotView, TaskOptions{Continuous: true})
	}
}

// StopViewing stops viewing at the end of the current frame.
func (s *HardwareSource) StopViewing() {
	if s.IsViewing() {
		s.StopTask(SlotView)
	}
}

// AbortViewing stops viewing immediately.
func (s *HardwareSource) AbortViewing() {
	if s.IsViewing() {
		s.AbortTask(SlotView)
	}
}

// IsRecording reports whether a record session is installed.
func (s *HardwareSource) IsRecording() bool { return s.IsTaskRunning(SlotRecord) }

// StartRecording begins a single-pass acquisition in the record slot,
// pre-empting any view session until it finishes. No-op when already
// recording.
func (s *HardwareSource) StartRecording() {
	if !s.IsRecording() {
		s.StartTask(SlotRecord, TaskOptions{Continuous: false})
	}
}

// StopRecording stops recording at the end of the current frame.
func (s *HardwareSource) StopRecording() {
	if s.IsRecording() {
		s.StopTask(SlotRecord)
	}
}

// AbortRecording stops recording immediately.
func (s *HardwareSource) AbortRecording() {
	if s.IsRecording() {
		s.AbortTask(SlotRecord)
	}
}

// SubscribeStateChanges registers a listener for per-slot active/inactive
// notifications.
func (s *HardwareSource) SubscribeStateChanges(fn func(StateChange)) *pubsub.Subscription[StateChange] {
	return s.publisher.stateChanges.Subscribe(fn)
}

// SubscribeChannelsUpdated registers a listener for per-delivery channel
// record updates.
func (s *HardwareSource) SubscribeChannelsUpdated(fn func(ChannelsUpdate)) *pubsub.Subscription[ChannelsUpdate] {
	return s.publisher.channelsUpdated.Subscribe(fn)
}

// SubscribeFrames registers a listener for whole-frame notifications.
func (s *HardwareSource) SubscribeFrames(fn func(FrameSet)) *pubsub.Subscription[FrameSet] {
	return s.publisher.frames.Subscribe(fn)
}

// SubscribeAborts registers a listener for task-aborted notifications.
func (s *HardwareSource) SubscribeAborts(fn func(AbortNotice)) *pubsub.Subscription[AbortNotice] {
	return s.publisher.aborts.Subscribe(fn)
}

func (s *HardwareSource) wakeWorker() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *HardwareSource) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// selectTask picks the highest-priority installed task and the installed
// lower-priority tasks that must be suspended for it.
func (s *HardwareSource) selectTask() (winner *acquisitionTask, winnerSlot Slot, lower []*acquisitionTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range slotsByPriority {
		task := s.tasks[slot]
		if task == nil {
			continue
		}
		if winner != nil {
			lower = append(lower, winner)
		}
		winner, winnerSlot = task, slot
	}
	return winner, winnerSlot, lower
}

func (s *HardwareSource) removeTask(slot Slot) {
	s.mu.Lock()
	delete(s.tasks, slot)
	s.mu.Unlock()
	s.publisher.stateChanges.Publish(StateChange{SourceID: s.id, Slot: slot, Active: false})
}

// acquireLoop is the single worker. It blocks on the wake channel and, on
// each wake, steps the winning task once, then re-wakes itself while any
// task remains installed. The loop exits only once shutdown has been
// requested and every installed task has been aborted to completion.
func (s *HardwareSource) acquireLoop() {
	defer close(s.loopDone)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.closing
		cancel()
	}()

	for range s.wake {
		closing := s.isClosing()
		winner, slot, lower := s.selectTask()
		if winner == nil {
			if closing {
				return
			}
			continue
		}

		if closing {
			// Final abort pass: run the abort hook sequence so the
			// backend is left in a defined state.
			winner.abort()
			s.publisher.aborts.Publish(AbortNotice{SourceID: s.id, Slot: slot})
		} else {
			for _, lowerTask := range lower {
				// Suspension failure is tolerated; it must not block
				// the higher-priority task.
				if !lowerTask.suspend() {
					log.Debug().Str("source", s.id).Msg("lower-priority task suspend failed")
				}
			}
		}

		if err := s.executeTask(ctx, winner); err != nil {
			winner.abort()
			s.publisher.aborts.Publish(AbortNotice{SourceID: s.id, Slot: slot})
			log.Error().Err(err).Str("source", s.id).Str("slot", string(slot)).
				Msg("acquisition step failed")
		}
		if winner.isFinished() {
			s.removeTask(slot)
		}
		s.wakeWorker()
	}
}

// executeTask steps the task once, converting a panic into an error so a
// misbehaving backend cannot take the worker loop down.
func (s *HardwareSource) executeTask(ctx context.Context, task *acquisitionTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("acquisition panic: %v", r)
		}
	}()
	return task.execute(ctx)
}
