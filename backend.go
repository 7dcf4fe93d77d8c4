package acquire

import "context"

// Backend is the pluggable hardware-specific implementation a task drives.
//
// Every method is invoked from the source's single worker goroutine; no
// internal concurrency is assumed or required of an implementation. The
// hook sequence over a session's life is:
//
//	Start, then repeated AcquireStep calls, interleaved with
//	Suspend/Resume when a higher-priority session takes over, then
//	MarkForStop once a graceful stop is requested, and finally Stop
//	(or Abort, MarkForStop, Stop when the session is aborted).
type Backend interface {
	// Start begins acquisition. A returned error finishes the session
	// immediately with no data produced.
	Start() error

	// AcquireStep blocks until the next delivery is available and returns
	// one partial payload per channel. It must never return an empty,
	// nil-error result. The context is canceled when the source shuts
	// down; implementations that sleep internally should honor it.
	AcquireStep(ctx context.Context) ([]ChannelPartial, error)

	// Suspend pauses acquisition so a higher-priority session can run.
	// A returned error means suspension failed; the scheduler tolerates
	// this and proceeds anyway.
	Suspend() error

	// Resume continues a suspended acquisition. Resume is also called,
	// without a prior Suspend, on a session that was installed while a
	// higher-priority session held the hardware and is now promoted.
	Resume()

	// MarkForStop marks a continuous acquisition to stop at the end of
	// the current frame.
	MarkForStop()

	// Stop is the final call of a session; implementations should
	// synchronize their shutdown here.
	Stop()

	// Abort terminates acquisition as soon as possible, discarding any
	// in-flight frame.
	Abort()
}
