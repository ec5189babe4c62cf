// Package sink implements the blocking-sink bridge: a subscriber whose
// on_next/on_completed/on_error may perform blocking I/O (writing a file,
// making a network call) runs on a dedicated worker goroutine so it never
// stalls the scheduler's main loop. Grounded on antevents.base's
// BlockingSubscriber and _ThreadForBlockingSubscriber.
package sink

import (
	"fmt"
	"sync"

	"github.com/cuemby/thingflow/pkg/metrics"
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// Handler implements the actual (possibly blocking) sink behavior. It is
// always invoked on the bridge's dedicated worker goroutine, never on the
// scheduler's main loop.
type Handler interface {
	// OnNext processes one event for topic.
	OnNext(topic string, event stream.Event)
	// OnCompleted processes topic completing. An empty implementation is
	// sufficient for sinks that only care about OnNext.
	OnCompleted(topic string)
	// OnError processes an in-band error delivered on topic.
	OnError(topic string, err error)
	// Close is called exactly once, after every topic has closed or a
	// stop was requested, to release resources (close a file, a socket).
	Close() error
}

type action struct {
	topic   string
	closing bool
	run     func()
}

// Bridge is a Subscriber that queues every callback to a worker goroutine.
// The queue is a bounded Go channel: once full, the publisher dispatching
// to the bridge blocks until the worker drains it. This is a deliberate,
// minimal backpressure policy — the alternative (drop or unbounded growth)
// trades a hang for silent data loss or unbounded memory, which is worse
// for a sensor pipeline that would rather slow its source than lose events.
type Bridge struct {
	name    string
	topics  []string
	handler Handler
	logger  zerolog.Logger

	queue chan *action

	mu            sync.Mutex
	closedCount   int
	requestedStop bool
	stopOnce      sync.Once

	done chan error // allocated by New with capacity 1; Run neither writes to nor closes it
}

// New builds a Bridge over handler for the given topics (DefaultTopic if
// none given), with a queue capacity of queueDepth (a non-positive value
// picks a modest default).
func New(name string, topics []string, handler Handler, logger zerolog.Logger, queueDepth int) *Bridge {
	if len(topics) == 0 {
		topics = []string{stream.DefaultTopic}
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Bridge{
		name:    name,
		topics:  topics,
		handler: handler,
		logger:  logger,
		queue:   make(chan *action, queueDepth),
		done:    make(chan error, 1),
	}
}

func (br *Bridge) String() string { return br.name }

// Topics returns the topic names this bridge subscribes to.
func (br *Bridge) Topics() []string { return br.topics }

// Topic implements stream.Subscriber: every declared topic's callbacks post
// to the shared queue rather than running inline.
func (br *Bridge) Topic(name string) (stream.NextFunc, stream.CompletedFunc, stream.ErrorFunc, bool) {
	declared := false
	for _, t := range br.topics {
		if t == name {
			declared = true
			break
		}
	}
	if !declared {
		return nil, nil, nil, false
	}

	next := func(e stream.Event) {
		br.post(&action{topic: name, run: func() { br.handler.OnNext(name, e) }})
	}
	completed := func() {
		br.post(&action{topic: name, closing: true, run: func() { br.handler.OnCompleted(name) }})
	}
	errFn := func(e error) {
		br.post(&action{topic: name, closing: true, run: func() { br.handler.OnError(name, e) }})
	}
	return next, completed, errFn, true
}

func (br *Bridge) post(a *action) {
	metrics.BridgeQueueDepth.WithLabelValues(br.name).Set(float64(len(br.queue)))
	br.queue <- a
}

// RequestStop asks the worker goroutine to exit before every topic closes
// on its own. Close() still runs exactly once, on the worker goroutine, as
// part of shutting down.
func (br *Bridge) RequestStop() {
	br.stopOnce.Do(func() { br.queue <- nil })
}

// Run is the worker goroutine's body: drain the queue, running each
// action's handler call, until either every declared topic has closed or a
// stop sentinel (nil) is read. It returns the fatal error to surface to the
// scheduler, if the handler panicked, or nil on a clean exit. Grounded on
// _ThreadForBlockingSubscriber.run / _wait_and_dispatch.
func (br *Bridge) Run() (err error) {
	defer func() {
		closeErr := br.handler.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("bridge %s: close: %w", br.name, closeErr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("bridge %s worker panicked: %v", br.name, r)
		}
	}()

	for a := range br.queue {
		if a == nil {
			return nil
		}
		a.run()
		kind := "next"
		if a.closing {
			kind = "terminal"
		}
		metrics.BridgeItemsProcessedTotal.WithLabelValues(br.name, kind).Inc()
		if a.closing {
			br.mu.Lock()
			br.closedCount++
			done := br.closedCount == len(br.topics)
			br.mu.Unlock()
			if done {
				br.logger.Debug().Str("bridge", br.name).Msg("all topics closed, stopping bridge worker")
				return nil
			}
		}
	}
	return nil
}
