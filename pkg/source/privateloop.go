package source

import (
	"sync"
	"time"

	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// CountThenFail is a PrivateLooper: RunLoop dispatches a fixed run of
// events, sleeping delay between each, then fails. RunLoop returns
// nothing, so the scheduler's private-loop discipline has no channel for
// an error return; by convention (matching invokeGuarded's dispatch-path
// convention) a private loop reports its terminal outcome by panicking —
// a *stream.FatalError propagates to Scheduler.RunForever unchanged, any
// other panic value is wrapped in CodeScheduleError. StopLoop asks the
// loop to exit early instead, for schedules cancelled before they fail on
// their own.
//
// Grounded on the original implementation's EventLoopPublisherMixin and
// the TestOutputThing fixture in
// tests/test_fatal_error_in_private_loop.py, which dispatches four events
// on its own thread and then raises a FatalError to prove run_forever
// surfaces it rather than losing it.
type CountThenFail struct {
	*stream.Base
	count    int
	delay    time.Duration
	failMsg  string
	stop     chan struct{}
	stopOnce sync.Once
}

// NewCountThenFail builds a source that dispatches ints 0..count-1 on its
// own goroutine, pausing delay between each, then panics a *FatalError
// carrying failMsg.
func NewCountThenFail(name string, count int, delay time.Duration, failMsg string, logger zerolog.Logger) *CountThenFail {
	return &CountThenFail{
		Base:    stream.NewBase(name, []string{stream.DefaultTopic}, logger),
		count:   count,
		delay:   delay,
		failMsg: failMsg,
		stop:    make(chan struct{}),
	}
}

func (c *CountThenFail) RunLoop() {
	for i := 0; i < c.count; i++ {
		select {
		case <-c.stop:
			return
		default:
		}
		if err := c.DispatchNext(i, stream.DefaultTopic); err != nil {
			panic(err)
		}
		if c.delay > 0 {
			select {
			case <-c.stop:
				return
			case <-time.After(c.delay):
			}
		}
	}
	panic(stream.NewFatalError(stream.CodeScheduleError, c.failMsg, nil))
}

// StopLoop asks RunLoop to exit at its next opportunity, before it
// dispatches count events or panics.
func (c *CountThenFail) StopLoop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
