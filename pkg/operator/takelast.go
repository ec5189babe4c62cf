package operator

import (
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// TakeLast buffers the final count events of upstream and dispatches them,
// in order, only once upstream completes. This necessarily delays every
// event until the sequence ends. count must be >= 0.
func TakeLast(upstream stream.Publisher, count int, logger zerolog.Logger) (*stream.Filter, error) {
	if count < 0 {
		return nil, stream.NewFatalError(stream.CodeArgumentOutOfRange, "take_last: count must not be negative", nil)
	}

	buf := make([]stream.Event, 0, count)
	var f *stream.Filter

	built, err := stream.NewFilter(upstream, "take_last", logger,
		stream.WithNext(func(event stream.Event, _ func(stream.Event)) {
			if count == 0 {
				return
			}
			buf = append(buf, event)
			if len(buf) > count {
				buf = buf[1:]
			}
		}),
		stream.WithCompleted(func(dispatchCompleted func()) {
			for _, v := range buf {
				if err := f.DispatchNext(v, stream.DefaultTopic); err != nil {
					panic(err)
				}
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
