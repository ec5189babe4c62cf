package source

import (
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// Empty is a direct-pull source that dispatches nothing and completes its
// default topic the first time the scheduler observes it. Grounded on the
// original implementation's Publisher.empty(), used by take(0): completion
// is deferred to Observe rather than happening at construction time, so a
// subscriber that attaches before the source is scheduled still receives
// it.
type Empty struct {
	*stream.Base
	done bool
}

// NewEmpty builds an Empty source named name.
func NewEmpty(name string, logger zerolog.Logger) *Empty {
	return &Empty{Base: stream.NewBase(name, []string{stream.DefaultTopic}, logger)}
}

func (e *Empty) Observe() (bool, error) {
	if e.done {
		return false, nil
	}
	e.done = true
	if err := e.DispatchCompleted(stream.DefaultTopic); err != nil {
		return false, err
	}
	return false, nil
}
