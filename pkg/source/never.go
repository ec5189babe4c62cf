package source

import (
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// Never is a keep-alive source that never dispatches and never completes.
// Useful for holding a scheduler's main loop open while work happens
// entirely on indirect or private-loop sources. Grounded on
// antevents/linq/never.py's Never.
type Never struct {
	*stream.Base
}

// NewNever builds a Never source with no topics of its own significance;
// it is never expected to be subscribed to.
func NewNever(name string, logger zerolog.Logger) *Never {
	return &Never{Base: stream.NewBase(name, []string{stream.DefaultTopic}, logger)}
}

func (s *Never) Observe() (bool, error) {
	return true, nil
}
