package stream

import "github.com/rs/zerolog"

// Event is an opaque, immutable payload passed through the graph. The core
// never copies or inspects it; adapters agree on a concrete type out of
// band (see adapter/csv.RowMapper for an example).
type Event = any

// DefaultTopic is the topic name used when a caller does not specify one.
const DefaultTopic = "default"

// NextFunc receives one in-band event on a topic.
type NextFunc func(event Event)

// CompletedFunc receives the one-shot terminal "stream ended cleanly"
// notification for a topic.
type CompletedFunc func()

// ErrorFunc receives the one-shot terminal "stream ended with an error"
// notification for a topic. err is an in-band error unless it is a
// *FatalError, in which case the default handler re-raises it.
type ErrorFunc func(err error)

// Subscriber consumes events on zero or more named topics. Topic looks up
// the next/completed/error triple for a subscribe-side topic name; ok is
// false if the subscriber does not support that topic. This table lookup
// replaces the original implementation's runtime method-name composition
// (on_<topic>_next, etc.) with a static, reflection-free contract.
type Subscriber interface {
	Topic(name string) (next NextFunc, completed CompletedFunc, err ErrorFunc, ok bool)
}

// topicTable is the simplest possible Subscriber: a fixed map of topic name
// to callback triple, handed in at construction time. Most concrete
// subscribers (filters, adapters) build one of these rather than
// implementing Topic by hand.
type topicTable map[string]triple

type triple struct {
	next      NextFunc
	completed CompletedFunc
	err       ErrorFunc
}

func (t topicTable) Topic(name string) (NextFunc, CompletedFunc, ErrorFunc, bool) {
	v, ok := t[name]
	if !ok {
		return nil, nil, nil, false
	}
	return v.next, v.completed, v.err, true
}

// NewSubscriber builds a Subscriber that serves a single topic with an
// explicit next/completed/error triple. completed and err may be nil, in
// which case they default to no-ops and to the log-or-reraise policy used
// by NextOnly, respectively.
func NewSubscriber(topicName string, next NextFunc, completed CompletedFunc, err ErrorFunc, logger zerolog.Logger) Subscriber {
	if next == nil {
		next = func(Event) {}
	}
	if completed == nil {
		completed = func() {}
	}
	if err == nil {
		err = defaultErrorHandler(logger)
	}
	return topicTable{topicName: {next: next, completed: completed, err: err}}
}

// NextOnly wraps a bare callable as a Subscriber on DefaultTopic, the way a
// caller handing subscribe() a plain function expects it to work. completed
// is a no-op; error re-raises FatalErrors and otherwise logs at Warn,
// mirroring the original CallableAsSubscriber's default_error policy.
func NextOnly(next func(Event), logger zerolog.Logger) Subscriber {
	return NewSubscriber(DefaultTopic, next, nil, nil, logger)
}

func defaultErrorHandler(logger zerolog.Logger) ErrorFunc {
	return func(err error) {
		if IsFatal(err) {
			panic(err)
		}
		logger.Warn().Err(err).Msg("subscriber received on_error")
	}
}

// subscription is the immutable handle binding one publisher topic to one
// subscriber's resolved callback triple. The callbacks are resolved once,
// at subscribe time: retargeting the subscriber afterward has no effect,
// matching spec's subscription invariant.
type subscription struct {
	next       NextFunc
	completed  CompletedFunc
	err        ErrorFunc
	subscriber Subscriber
	subTopic   string
}

// Dispose cancels exactly one subscription. Calling it more than once, or
// after the owning topic has already closed, is a no-op.
type Dispose func()
