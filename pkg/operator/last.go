package operator

import (
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// Last dispatches only the final event of upstream, once upstream
// completes. If upstream never dispatches an event, Last dispatches
// defaultValue when one was provided (hasDefault); otherwise it dispatches
// a sequence-contains-no-elements fatal error.
func Last(upstream stream.Publisher, hasDefault bool, defaultValue stream.Event, logger zerolog.Logger) (*stream.Filter, error) {
	var (
		value = defaultValue
		seen  bool
		f     *stream.Filter
	)

	built, err := stream.NewFilter(upstream, "last", logger,
		stream.WithNext(func(event stream.Event, _ func(stream.Event)) {
			value = event
			seen = true
		}),
		stream.WithCompleted(func(dispatchCompleted func()) {
			if !seen && !hasDefault {
				if err := f.DispatchError(stream.NewFatalError(stream.CodeNoElements, "last: sequence contains no elements", nil), stream.DefaultTopic); err != nil {
					panic(err)
				}
				return
			}
			if err := f.DispatchNext(value, stream.DefaultTopic); err != nil {
				panic(err)
			}
			dispatchCompleted()
		}),
	)
	if err != nil {
		return nil, err
	}
	f = built
	return f, nil
}
