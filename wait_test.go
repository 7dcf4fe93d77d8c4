package acquire

import (
	"testing"
	"time"
)

func TestNextFrameToFinishTimesOutWithoutTasks(t *testing.T) {
	source := NewHardwareSource("src", "Src", &scriptedBackend{}, WithMinFramePeriod(time.Millisecond))
	defer source.Close()

	if _, err := source.NextFrameToFinish(20 * time.Millisecond); err != ErrFrameTimeout {
		t.Fatalf("err = %v, want ErrFrameTimeout", err)
	}
}

func TestNextFrameToFinishReturnsMergedChannels(t *testing.T) {
	backend := NewSimulatedBackend(SimulatedBackendConfig{
		Rows: 8, Cols: 8, Channels: 2, BandsPerFrame: 2, StepDelay: time.Millisecond,
	})
	source := NewHardwareSource("sim", "Sim", backend, WithMinFramePeriod(time.Millisecond))
	defer source.Close()

	source.StartViewing()
	defer source.StopViewing()

	channels, err := source.NextFrameToFinish(5 * time.Second)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(channels))
	}
	for _, ch := range channels {
		// Every pixel filled: both bands merged into the frame.
		for i, v := range ch.Data {
			if v == 0 {
				t.Fatalf("channel %s pixel %d empty in completed frame", ch.ChannelID, i)
			}
		}
	}
}

func TestNextFrameToStartSkipsInFlightFrame(t *testing.T) {
	backend := NewSimulatedBackend(SimulatedBackendConfig{
		Rows: 8, Cols: 8, StepDelay: time.Millisecond,
	})
	source := NewHardwareSource("sim", "Sim", backend, WithMinFramePeriod(time.Millisecond))
	defer source.Close()

	source.StartViewing()
	defer source.StopViewing()

	first, err := source.NextFrameToFinish(5 * time.Second)
	if err != nil {
		t.Fatalf("first frame failed: %v", err)
	}
	next, err := source.NextFrameToStart(5 * time.Second)
	if err != nil {
		t.Fatalf("next frame failed: %v", err)
	}
	if next[0].FrameIndex <= first[0].FrameIndex {
		t.Fatalf("frame %d did not start after frame %d",
			next[0].FrameIndex, first[0].FrameIndex)
	}
	// The skipped in-flight frame leaves at least one frame gap.
	if next[0].FrameIndex < first[0].FrameIndex+2 {
		t.Fatalf("frame %d may overlap the waiter's request window", next[0].FrameIndex)
	}
}

func TestNextFrameToStartReportsAbort(t *testing.T) {
	source := NewHardwareSource("src", "Src", repeatingPartialBackend(),
		WithMinFramePeriod(time.Millisecond))
	defer source.Close()

	source.StartViewing()

	result := make(chan error, 1)
	go func() {
		_, err := source.NextFrameToStart(5 * time.Second)
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	source.AbortViewing()
	if err := <-result; err != ErrAborted {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
}
