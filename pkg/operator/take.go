// Package operator provides a small library of stream transforms built on
// top of stream.Filter: Take, TakeLast, and Last. Each is grounded on the
// corresponding extension method in antevents/linq/take.py.
package operator

import (
	"github.com/cuemby/thingflow/pkg/source"
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// Take forwards at most count events from upstream, then dispatches
// completed and disposes the upstream subscription. count must be >= 0; a
// negative count is an argument-out-of-range fatal error.
//
// count == 0 never subscribes to upstream at all: it returns a
// source.Empty, a direct-pull source that defers its completed dispatch to
// the scheduler's first Observe call instead of firing it at construction
// time, so a subscriber attached to the returned publisher before it is
// scheduled still receives the completion. Grounded on the original
// implementation's take(0), which returns Publisher.empty() rather than
// building a Filter at all (linq/take.py).
func Take(upstream stream.Publisher, count int, logger zerolog.Logger) (stream.Publisher, error) {
	if count < 0 {
		return nil, stream.NewFatalError(stream.CodeArgumentOutOfRange, "take: count must not be negative", nil)
	}
	if count == 0 {
		return source.NewEmpty("take(0)", logger), nil
	}

	remaining := count
	finished := false
	var f *stream.Filter

	built, err := stream.NewFilter(upstream, "take", logger,
		stream.WithNext(func(event stream.Event, emit func(stream.Event)) {
			if finished || remaining <= 0 {
				return
			}
			remaining--
			emit(event)
			if remaining == 0 {
				finished = true
				f.DisposeUpstream()
				if err := f.DispatchCompleted(stream.DefaultTopic); err != nil {
					panic(err)
				}
			}
		}),
		stream.WithCompleted(func(dispatchCompleted func()) {
			// The upstream sequence may be shorter than count: only
			// forward completed if we haven't already synthesized one
			// after hitting the count.
			if finished {
				return
			}
			finished = true
			dispatchCompleted()
		}),
	)
	if err != nil {
		return nil, err
	}
	f = built
	return f, nil
}
