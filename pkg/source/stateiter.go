package source

import (
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// StateIterated generates events from a fold-style state machine: a state
// value advances via step while condition holds, and project maps state to
// the event dispatched downstream. Grounded on FunctionIteratorAsPublisher,
// corrected so a successful advance on any call (first or later) reports
// more=true; the reference implementation only did this on the first call.
type StateIterated struct {
	*stream.Base
	state     any
	condition func(any) bool
	step      func(any) any
	project   func(any) any
	started   bool
	logger    zerolog.Logger
}

// NewStateIterated builds a DirectPuller that starts from initial and keeps
// producing project(state) for as long as condition(state) holds, advancing
// state with step between events.
func NewStateIterated(name string, initial any, condition func(any) bool, step func(any) any, project func(any) any, logger zerolog.Logger) *StateIterated {
	return &StateIterated{
		Base:      stream.NewBase(name, []string{stream.DefaultTopic}, logger),
		state:     initial,
		condition: condition,
		step:      step,
		project:   project,
		logger:    logger,
	}
}

func (s *StateIterated) Observe() (bool, error) {
	if !s.started {
		s.started = true
		if !s.condition(s.state) {
			if err := s.DispatchCompleted(stream.DefaultTopic); err != nil {
				return false, err
			}
			return false, nil
		}
		if err := s.DispatchNext(s.project(s.state), stream.DefaultTopic); err != nil {
			return false, err
		}
		return true, nil
	}

	s.state = s.step(s.state)
	if !s.condition(s.state) {
		if err := s.DispatchCompleted(stream.DefaultTopic); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := s.DispatchNext(s.project(s.state), stream.DefaultTopic); err != nil {
		return false, err
	}
	return true, nil
}
