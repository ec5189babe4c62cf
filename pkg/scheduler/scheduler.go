// Package scheduler drives publishers and blocking sinks against a single
// cooperative main loop goroutine. It implements the five scheduling
// disciplines from the original antevents.base.Scheduler: schedule_recurring,
// schedule_periodic, schedule_periodic_on_separate_thread,
// schedule_on_private_event_loop, and schedule_later_one_time, translated
// from an asyncio event loop onto a Go task-channel trampoline.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/thingflow/pkg/metrics"
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// Cancel unschedules whatever it was returned from. Calling it more than
// once is safe: later calls are no-ops. A direct-pull schedule that finished
// by closing its last topic has already run its Cancel as the unschedule
// hook, so a later call is a no-op too; a direct-pull Cancel whose first
// call finds the schedule already retired by other means (a one-time
// schedule that has fired, or an Observe that returned more=false with
// topics still open) records a schedule-error on the scheduler.
type Cancel func()

// Scheduler owns the task queue every publisher dispatch and every timer
// firing is funneled through, so application code never runs concurrently
// with itself. Grounded on the teacher's Scheduler (select loop over a
// stop channel, zerolog field-by-field logging) generalized from a fixed
// five-second tick to an arbitrary task trampoline, per the specification's
// scheduling disciplines.
type Scheduler struct {
	logger zerolog.Logger

	tasks chan func()

	mu      sync.Mutex
	active  map[any]Cancel
	stopped bool
	stopCh  chan struct{}

	fatalMu  sync.Mutex
	fatalErr error

	wg sync.WaitGroup
}

// New builds a Scheduler. taskQueueDepth bounds how many pending posts the
// enqueue trampoline may buffer before a worker goroutine blocks; 0 picks a
// reasonable default.
func New(logger zerolog.Logger, taskQueueDepth int) *Scheduler {
	if taskQueueDepth <= 0 {
		taskQueueDepth = 256
	}
	return &Scheduler{
		logger: logger,
		tasks:  make(chan func(), taskQueueDepth),
		active: make(map[any]Cancel),
		stopCh: make(chan struct{}),
	}
}

// enqueue is the thread-safe trampoline handed to publishers via
// SchedulerAttach. It is safe to call from any goroutine, including the
// main loop itself.
func (s *Scheduler) enqueue(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.stopCh:
	}
}

func (s *Scheduler) recordActive(publisher any, cancel Cancel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[publisher] = cancel
}

func (s *Scheduler) removeActive(publisher any) {
	s.mu.Lock()
	delete(s.active, publisher)
	remaining := len(s.active)
	s.mu.Unlock()
	if remaining == 0 {
		s.requestStop()
	}
}

func (s *Scheduler) isActive(publisher any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[publisher]
	return ok
}

// setFatal records the scheduler's terminal error, if one hasn't already
// been recorded, and requests that the main loop stop.
func (s *Scheduler) setFatal(err error) {
	s.fatalMu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.fatalMu.Unlock()
	s.logger.Error().Err(err).Msg("scheduler aborting due to fatal error")
	s.requestStop()
}

func (s *Scheduler) requestStop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stopCh)
}

// attachable is satisfied by anything the scheduler can drive: *stream.Base
// and everything that embeds it (sources, filters).
type attachable interface {
	SchedulerAttach(unscheduleHook func(), enqueue stream.EnqueueFunc)
}

// Scheduling discipline names used as the "discipline" metric label.
const (
	disciplineRecurring      = "recurring"
	disciplinePeriodic       = "periodic"
	disciplineSeparateThread = "periodic_separate_thread"
	disciplinePrivateLoop    = "private_event_loop"
	disciplineLaterOneTime   = "later_one_time"
)

func observeOutcome(more bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case more:
		return "more"
	default:
		return "done"
	}
}

// ScheduleRecurring repeatedly calls publisher.Observe() on the main loop,
// re-posting itself as soon as each call returns more=true. Use this only
// for publishers whose Observe never blocks (an in-memory iterable); a
// publisher whose pull may block belongs on
// SchedulePeriodicOnSeparateThread instead.
func ScheduleRecurring(s *Scheduler, publisher directPuller) Cancel {
	cancel := s.makeDirectCancel(publisher)
	s.recordActive(publisher, cancel)
	publisher.SchedulerAttach(cancel, nil)
	metrics.ActiveSchedules.WithLabelValues(disciplineRecurring).Inc()

	var run func()
	run = func() {
		if !s.isActive(publisher) {
			metrics.ActiveSchedules.WithLabelValues(disciplineRecurring).Dec()
			return
		}
		more, err := publisher.Observe()
		metrics.ObservationsTotal.WithLabelValues(disciplineRecurring, observeOutcome(more, err)).Inc()
		if err != nil {
			metrics.ActiveSchedules.WithLabelValues(disciplineRecurring).Dec()
			s.setFatal(wrapScheduleError(publisher, err))
			return
		}
		if more && s.isActive(publisher) {
			s.enqueue(run)
		} else {
			metrics.ActiveSchedules.WithLabelValues(disciplineRecurring).Dec()
			s.removeActive(publisher)
		}
	}
	s.enqueue(run)
	return cancel
}

// SchedulePeriodic calls publisher.Observe() every interval, measured from
// the end of the previous call, on the main loop.
func SchedulePeriodic(s *Scheduler, publisher directPuller, interval time.Duration) Cancel {
	cancel := s.makeDirectCancel(publisher)
	s.recordActive(publisher, cancel)
	publisher.SchedulerAttach(cancel, nil)
	metrics.ActiveSchedules.WithLabelValues(disciplinePeriodic).Inc()

	var run func()
	run = func() {
		if !s.isActive(publisher) {
			metrics.ActiveSchedules.WithLabelValues(disciplinePeriodic).Dec()
			return
		}
		timer := metrics.NewTimer()
		more, err := publisher.Observe()
		timer.ObserveDurationVec(metrics.PollLatency, disciplinePeriodic)
		metrics.ObservationsTotal.WithLabelValues(disciplinePeriodic, observeOutcome(more, err)).Inc()
		if err != nil {
			metrics.ActiveSchedules.WithLabelValues(disciplinePeriodic).Dec()
			s.setFatal(wrapScheduleError(publisher, err))
			return
		}
		if more && s.isActive(publisher) {
			s.scheduleAfter(interval, run)
		} else {
			metrics.ActiveSchedules.WithLabelValues(disciplinePeriodic).Dec()
			s.removeActive(publisher)
		}
	}
	s.scheduleAfter(interval, run)
	return cancel
}

// SchedulePeriodicOnSeparateThread runs publisher.ObserveAndEnqueue() in a
// loop on a dedicated worker goroutine, sleeping whatever remains of interval
// after each call (nothing, if the call took longer), for publishers whose pull
// may block. Dispatches are routed back through the main loop's enqueue
// trampoline. Grounded on _ThreadForIndirectPublisher.
func SchedulePeriodicOnSeparateThread(s *Scheduler, publisher indirectPuller, interval time.Duration) Cancel {
	stop := make(chan struct{})
	var stopOnce sync.Once
	cancel := func() { stopOnce.Do(func() { close(stop) }) }

	s.recordActive(publisher, cancel)
	publisher.SchedulerAttach(nil, s.enqueue)
	metrics.ActiveSchedules.WithLabelValues(disciplineSeparateThread).Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.ActiveSchedules.WithLabelValues(disciplineSeparateThread).Dec()
		err := runIndirectLoop(publisher, interval, stop)
		outcome := "done"
		if err != nil {
			outcome = "error"
		}
		metrics.ObservationsTotal.WithLabelValues(disciplineSeparateThread, outcome).Inc()
		if err != nil {
			s.enqueue(func() { s.setFatal(wrapScheduleError(publisher, err)) })
			return
		}
		s.enqueue(func() { s.removeActive(publisher) })
	}()
	return cancel
}

func runIndirectLoop(publisher indirectPuller, interval time.Duration, stop <-chan struct{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r)
		}
	}()
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		start := time.Now()
		more, oErr := publisher.ObserveAndEnqueue()
		if oErr != nil {
			return oErr
		}
		if !more {
			return nil
		}
		remaining := interval - time.Since(start)
		if remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-stop:
				return nil
			}
		}
	}
}

// ScheduleOnPrivateEventLoop starts publisher's own RunLoop on a dedicated
// worker goroutine. The publisher drives its own termination by exiting
// RunLoop; StopLoop asks it to exit early. RunLoop returns nothing, so it
// has no way to return an error the way Observe/ObserveAndEnqueue do: a
// private loop that needs to fail panics instead, with a *stream.FatalError
// if it wants a specific code preserved, or any other value to be reported
// as CodeScheduleError. runPrivateLoop recovers the panic and folds it into
// the same setFatal path every other discipline uses. Grounded on
// schedule_on_private_event_loop / EventLoopPublisherMixin, whose Python
// equivalent raises a FatalError out of _observe_event_loop the same way.
func ScheduleOnPrivateEventLoop(s *Scheduler, publisher privateLooper) Cancel {
	cancel := Cancel(publisher.StopLoop)
	s.recordActive(publisher, cancel)
	publisher.SchedulerAttach(nil, s.enqueue)
	metrics.ActiveSchedules.WithLabelValues(disciplinePrivateLoop).Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.ActiveSchedules.WithLabelValues(disciplinePrivateLoop).Dec()
		err := runPrivateLoop(publisher)
		if err != nil {
			s.enqueue(func() { s.setFatal(wrapScheduleError(publisher, err)) })
			return
		}
		s.enqueue(func() { s.removeActive(publisher) })
	}()
	return cancel
}

func runPrivateLoop(publisher privateLooper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r)
		}
	}()
	publisher.RunLoop()
	return nil
}

// ScheduleLaterOneTime calls publisher.Observe() exactly once, after delay,
// then retires the schedule regardless of what Observe returns.
func ScheduleLaterOneTime(s *Scheduler, publisher directPuller, delay time.Duration) Cancel {
	cancel := s.makeDirectCancel(publisher)
	s.recordActive(publisher, cancel)
	// The unschedule hook only cancels while the timer is still pending: a
	// publisher that closes its last topic inside Observe has already been
	// retired below.
	publisher.SchedulerAttach(func() {
		if s.isActive(publisher) {
			cancel()
		}
	}, nil)
	metrics.ActiveSchedules.WithLabelValues(disciplineLaterOneTime).Inc()

	s.scheduleAfter(delay, func() {
		metrics.ActiveSchedules.WithLabelValues(disciplineLaterOneTime).Dec()
		if !s.isActive(publisher) {
			return // cancelled before the timer fired
		}
		// Removed before Observe runs: a one-time schedule retires
		// regardless of outcome, and Observe may itself reschedule the
		// publisher through a fresh call to the scheduler.
		s.removeActive(publisher)
		more, err := publisher.Observe()
		metrics.ObservationsTotal.WithLabelValues(disciplineLaterOneTime, observeOutcome(more, err)).Inc()
		if err != nil {
			s.setFatal(wrapScheduleError(publisher, err))
		}
	})
	return cancel
}

// scheduleAfter posts fn onto the main loop after interval elapses. The
// timer itself runs on its own goroutine (as time.AfterFunc always does);
// only the posted fn ever touches publisher state, preserving single-
// threaded dispatch semantics.
func (s *Scheduler) scheduleAfter(interval time.Duration, fn func()) {
	time.AfterFunc(interval, func() { s.enqueue(fn) })
}

// makeDirectCancel builds the Cancel returned by the direct-pull
// disciplines. The same closure also becomes the publisher's unschedule
// hook, so it fires exactly once whether the trigger is the schedule
// completing on its own (closeTopic, once every topic closes) or a caller
// invoking Cancel explicitly - the sync.Once makes a second call of either
// kind the safe no-op the Cancel type promises. A call that finds the
// schedule already gone by the time it runs (never recorded, or retired by
// its discipline's own bookkeeping without this closure having run) reports CodeScheduleError instead of pretending
// to succeed, per the original schedule_recurring/schedule_periodic cancel
// thunks, which raise ScheduleError out of an active_schedules KeyError
// (base.py:743).
func (s *Scheduler) makeDirectCancel(publisher any) Cancel {
	var once sync.Once
	return func() {
		once.Do(func() {
			if !s.isActive(publisher) {
				s.setFatal(stream.NewFatalError(stream.CodeScheduleError,
					fmt.Sprintf("cancel: %v has no active schedule", publisher), nil))
				return
			}
			s.removeActive(publisher)
		})
	}
}

// RunForever drains the task queue until every active schedule has retired
// or Stop is called, then returns the recorded fatal error, if any.
// Grounded on Scheduler.run_forever's try/except around event_loop.run_forever().
func (s *Scheduler) RunForever() error {
	for {
		select {
		case fn := <-s.tasks:
			s.runGuarded(fn)
		case <-s.stopCh:
			s.drainPending()
			s.wg.Wait()
			s.fatalMu.Lock()
			err := s.fatalErr
			s.fatalMu.Unlock()
			return err
		}
	}
}

// drainPending runs any tasks already queued before the stop signal was
// observed, so a dispatch racing with shutdown is not silently dropped.
func (s *Scheduler) drainPending() {
	for {
		select {
		case fn := <-s.tasks:
			s.runGuarded(fn)
		default:
			return
		}
	}
}

func (s *Scheduler) runGuarded(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.setFatal(stream.NewFatalError(stream.CodeScheduleError, "main loop task panicked", panicToError(r)))
		}
	}()
	fn()
}

// Stop cancels every active schedule and breaks RunForever out of its loop.
// Grounded on Scheduler.stop: iterate active_schedules, invoke each cancel
// thunk, then request the loop exit. The snapshot is not removed from
// active up front: each cancel thunk retires its own entry (makeDirectCancel
// checks isActive before deciding whether this is a legitimate cancel or a
// report-worthy unknown one), so invoking it here must see the same active
// bookkeeping a direct caller would.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancels := make([]Cancel, 0, len(s.active))
	for _, c := range s.active {
		cancels = append(cancels, c)
	}
	s.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	s.requestStop()
}

func wrapScheduleError(publisher any, err error) error {
	if stream.IsFatal(err) {
		return err
	}
	return stream.NewFatalError(stream.CodeScheduleError,
		fmt.Sprintf("schedule for %v exited with error", publisher), err)
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

type directPuller interface {
	attachable
	Observe() (bool, error)
}

type indirectPuller interface {
	attachable
	ObserveAndEnqueue() (bool, error)
}

type privateLooper interface {
	attachable
	RunLoop()
	StopLoop()
}
