package stream

import (
	"fmt"
	"sync"

	"github.com/cuemby/thingflow/pkg/metrics"
	"github.com/rs/zerolog"
)

// EnqueueFunc is the thread-safe trampoline a worker thread uses to post a
// closure to the main loop. The scheduler supplies it via SchedulerAttach;
// when set, Base routes dispatches through it instead of invoking
// subscribers inline.
type EnqueueFunc func(fn func())

// Publisher is the minimal surface every publisher, filter and source
// exposes: subscription, topic introspection, and a diagnostic string. It
// is satisfied by *Base and by anything that embeds it.
type Publisher interface {
	Subscribe(subscriber Subscriber, pubTopic, subTopic string) (Dispose, error)
	Topics() []string
	String() string
}

// Base is the publisher core: it owns the topic set and subscriber lists,
// performs dispatch, tracks closed topics, and links to the scheduler.
// Sources and filters embed a *Base to get the full publisher contract for
// free; they only need to call DispatchNext/DispatchCompleted/DispatchError
// from their own Observe/RunLoop/on_next logic.
//
// Grounded on the teacher's events.Broker (map of subscribers guarded by a
// mutex, closed over a background goroutine) but the dispatch discipline
// itself — per-topic closed-set tracking, copy-on-write subscriber lists,
// the enqueue-vs-inline branch — follows the publisher core description in
// the specification, which Broker does not implement.
type Base struct {
	name   string
	logger zerolog.Logger

	mu           sync.Mutex
	topics       map[string]struct{}
	closedTopics map[string]struct{}
	subscribers  map[string][]*subscription

	unscheduleHook func()
	unscheduleOnce sync.Once
	enqueue        EnqueueFunc
}

// NewBase constructs a publisher core declaring the given topics. If topics
// is empty, the publisher declares only DefaultTopic.
func NewBase(name string, topics []string, logger zerolog.Logger) *Base {
	if len(topics) == 0 {
		topics = []string{DefaultTopic}
	}
	b := &Base{
		name:         name,
		logger:       logger,
		topics:       make(map[string]struct{}, len(topics)),
		closedTopics: make(map[string]struct{}),
		subscribers:  make(map[string][]*subscription, len(topics)),
	}
	for _, t := range topics {
		b.topics[t] = struct{}{}
		b.subscribers[t] = nil
	}
	return b
}

func (b *Base) String() string {
	if b.name != "" {
		return b.name
	}
	return fmt.Sprintf("publisher(%p)", b)
}

// Topics returns the currently open topic names.
func (b *Base) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.topics))
	for t := range b.topics {
		out = append(out, t)
	}
	return out
}

// subscribersSnapshot returns a snapshot of topology for topology.go; it does not
// take ownership of the slice.
func (b *Base) subscribersSnapshot() map[string][]*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]*subscription, len(b.subscribers))
	for topic, subs := range b.subscribers {
		out[topic] = append([]*subscription(nil), subs...)
	}
	return out
}

// Subscribe binds subscriber's callbacks for subTopic to pubTopic. The
// triple is resolved immediately so later changes to the subscriber have no
// effect on this subscription, per spec's subscription invariant.
func (b *Base) Subscribe(subscriber Subscriber, pubTopic, subTopic string) (Dispose, error) {
	if pubTopic == "" {
		pubTopic = DefaultTopic
	}
	if subTopic == "" {
		subTopic = DefaultTopic
	}

	b.mu.Lock()
	if _, open := b.topics[pubTopic]; !open {
		b.mu.Unlock()
		return nil, NewTopicFatalError(CodeInvalidTopic, pubTopic,
			fmt.Sprintf("invalid publish topic on %s", b), nil)
	}
	b.mu.Unlock()

	next, completed, errFn, ok := subscriber.Topic(subTopic)
	if !ok {
		return nil, NewTopicFatalError(CodeInvalidTopic, subTopic,
			fmt.Sprintf("subscriber has no callbacks for subscribe topic on %s", b), nil)
	}

	sub := &subscription{next: next, completed: completed, err: errFn, subscriber: subscriber, subTopic: subTopic}

	b.mu.Lock()
	// Copy-on-write: install a fresh slice so a dispatch cascade currently
	// iterating the old slice is unaffected by this mutation.
	existing := b.subscribers[pubTopic]
	fresh := make([]*subscription, len(existing), len(existing)+1)
	copy(fresh, existing)
	fresh = append(fresh, sub)
	b.subscribers[pubTopic] = fresh
	b.mu.Unlock()

	var disposed bool
	var disposeMu sync.Mutex
	dispose := func() {
		disposeMu.Lock()
		defer disposeMu.Unlock()
		if disposed {
			return
		}
		disposed = true
		b.mu.Lock()
		defer b.mu.Unlock()
		cur, open := b.subscribers[pubTopic]
		if !open {
			return
		}
		fresh := make([]*subscription, 0, len(cur))
		for _, s := range cur {
			if s != sub {
				fresh = append(fresh, s)
			}
		}
		b.subscribers[pubTopic] = fresh
	}
	return dispose, nil
}

// SchedulerAttach is called by the scheduler before Observe/RunLoop can run.
// unscheduleHook lets this publisher tell the scheduler it is done once its
// last topic closes; enqueue, when non-nil, is the thread-safe trampoline a
// worker thread must route dispatches through.
func (b *Base) SchedulerAttach(unscheduleHook func(), enqueue EnqueueFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unscheduleHook = unscheduleHook
	b.enqueue = enqueue
}

func (b *Base) subscribersFor(topic string) ([]*subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, open := b.subscribers[topic]
	if !open {
		if _, closed := b.closedTopics[topic]; closed {
			return nil, NewTopicFatalError(CodeTopicAlreadyClosed, topic,
				fmt.Sprintf("dispatch on already-closed topic of %s", b), nil)
		}
		return nil, NewTopicFatalError(CodeUnknownTopic, topic,
			fmt.Sprintf("dispatch on unknown topic of %s", b), nil)
	}
	return subs, nil
}

// DispatchNext delivers event to every subscriber of topic, in subscription
// order. If an enqueue trampoline is set, the calls are posted to the main
// loop instead of run inline. A FatalError from an inline callback
// propagates unchanged; any other error is wrapped in CodeExcInDispatch.
func (b *Base) DispatchNext(event Event, topic string) error {
	if topic == "" {
		topic = DefaultTopic
	}
	subs, err := b.subscribersFor(topic)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DispatchLatency)

	enq := b.enqueueFn()
	if enq != nil {
		for _, s := range subs {
			next := s.next
			enq(func() { next(event) })
		}
		metrics.EventsDispatchedTotal.WithLabelValues(b.String(), topic).Inc()
		return nil
	}

	if err := b.invokeGuarded(topic, subs, func(s *subscription) { s.next(event) }); err != nil {
		return err
	}
	metrics.EventsDispatchedTotal.WithLabelValues(b.String(), topic).Inc()
	return nil
}

// DispatchCompleted delivers the terminal "completed" event to topic's
// subscribers and then closes the topic.
func (b *Base) DispatchCompleted(topic string) error {
	if topic == "" {
		topic = DefaultTopic
	}
	subs, err := b.subscribersFor(topic)
	if err != nil {
		return err
	}
	enq := b.enqueueFn()
	if enq != nil {
		for _, s := range subs {
			completed := s.completed
			enq(completed)
		}
	} else if err := b.invokeGuarded(topic, subs, func(s *subscription) { s.completed() }); err != nil {
		return err
	}
	metrics.TopicsClosedTotal.WithLabelValues(b.String(), topic, "completed").Inc()
	b.closeTopic(topic)
	return nil
}

// DispatchError delivers the terminal "error" event to topic's subscribers
// and then closes the topic. err is an in-band error, not necessarily
// fatal; it is handed to each subscriber's error callback verbatim.
func (b *Base) DispatchError(sourceErr error, topic string) error {
	if topic == "" {
		topic = DefaultTopic
	}
	subs, err := b.subscribersFor(topic)
	if err != nil {
		return err
	}
	enq := b.enqueueFn()
	if enq != nil {
		for _, s := range subs {
			errFn := s.err
			enq(func() { errFn(sourceErr) })
		}
	} else if err := b.invokeGuarded(topic, subs, func(s *subscription) { s.err(sourceErr) }); err != nil {
		return err
	}
	metrics.TopicsClosedTotal.WithLabelValues(b.String(), topic, "error").Inc()
	b.closeTopic(topic)
	return nil
}

func (b *Base) enqueueFn() EnqueueFunc {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enqueue
}

// invokeGuarded runs fn for each subscription inline, converting panics from
// subscriber code (standing in for "unexpected exceptions" in the original
// dynamically-typed implementation) into CodeExcInDispatch fatal errors. A
// FatalError raised directly (via panic, by convention — see
// defaultErrorHandler) propagates unchanged.
func (b *Base) invokeGuarded(topic string, subs []*subscription, fn func(*subscription)) (dispatchErr error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FatalError); ok {
				dispatchErr = fe
				return
			}
			if e, ok := r.(error); ok {
				dispatchErr = NewTopicFatalError(CodeExcInDispatch, topic,
					fmt.Sprintf("subscriber callback panicked while dispatching on %s", b), e)
				metrics.DispatchErrorsTotal.WithLabelValues(b.String(), string(CodeExcInDispatch)).Inc()
				return
			}
			dispatchErr = NewTopicFatalError(CodeExcInDispatch, topic,
				fmt.Sprintf("subscriber callback panicked while dispatching on %s: %v", b, r), nil)
			metrics.DispatchErrorsTotal.WithLabelValues(b.String(), string(CodeExcInDispatch)).Inc()
		}
	}()
	for _, s := range subs {
		fn(s)
	}
	return nil
}

// closeTopic removes topic from the open set, records it as closed, and
// discards its subscriber list. When the open set becomes empty, the
// unschedule hook fires exactly once and is released along with the
// enqueue trampoline.
func (b *Base) closeTopic(topic string) {
	b.mu.Lock()
	delete(b.topics, topic)
	delete(b.subscribers, topic)
	b.closedTopics[topic] = struct{}{}
	empty := len(b.topics) == 0
	hook := b.unscheduleHook
	b.mu.Unlock()

	if empty && hook != nil {
		b.unscheduleOnce.Do(func() {
			hook()
			b.mu.Lock()
			b.unscheduleHook = nil
			b.enqueue = nil
			b.mu.Unlock()
		})
	}
}
