// Package source provides the three source capabilities a publisher may
// implement (direct-pull, indirect-pull, private-loop) and a small set of
// concrete sources built on them: an iterable-backed source, a
// state-iterated generator, and an always-idle keep-alive source.
package source

import "github.com/cuemby/thingflow/pkg/stream"

// Attacher receives the scheduler's unschedule hook and enqueue trampoline
// before Observe/ObserveAndEnqueue/RunLoop may be called. *stream.Base
// implements it, so any source embedding Base gets it for free.
type Attacher interface {
	SchedulerAttach(unscheduleHook func(), enqueue stream.EnqueueFunc)
}

// DirectPuller is a source the scheduler may call inline, on the main loop.
// Observe must not block; it returns whether more events may follow.
type DirectPuller interface {
	stream.Publisher
	Attacher
	Observe() (more bool, err error)
}

// IndirectPuller is a source whose pull may block; the scheduler runs it on
// a dedicated worker goroutine and routes its dispatches through the
// enqueue trampoline supplied at SchedulerAttach.
type IndirectPuller interface {
	stream.Publisher
	Attacher
	ObserveAndEnqueue() (more bool, err error)
}

// PrivateLooper drives its own loop on a worker goroutine until exhausted
// or told to stop.
type PrivateLooper interface {
	stream.Publisher
	Attacher
	RunLoop()
	StopLoop()
}
