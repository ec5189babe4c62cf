package source

import (
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// Iterator is a lazy pull-based sequence of events. Next returns ok=false
// at end of sequence (no error) or a non-nil err on failure. Close releases
// any resources (an open file, a socket) once the sequence is done.
type Iterator interface {
	Next() (event stream.Event, ok bool, err error)
	Close() error
}

// Iterable is a source backed by an Iterator: each Observe call pulls one
// element and dispatches next; exhaustion dispatches completed; an error
// that is a *stream.FatalError propagates, any other dispatches error.
// Grounded on the original IterableAsPublisher._observe.
type Iterable struct {
	*stream.Base
	it     Iterator
	logger zerolog.Logger
	closed bool
}

// NewIterable wraps it as a DirectPuller named name.
func NewIterable(name string, it Iterator, logger zerolog.Logger) *Iterable {
	return &Iterable{
		Base:   stream.NewBase(name, []string{stream.DefaultTopic}, logger),
		it:     it,
		logger: logger,
	}
}

func (s *Iterable) Observe() (bool, error) {
	event, ok, err := s.it.Next()
	if err != nil {
		s.close()
		if stream.IsFatal(err) {
			return false, err
		}
		if dErr := s.DispatchError(err, stream.DefaultTopic); dErr != nil {
			return false, dErr
		}
		return false, nil
	}
	if !ok {
		s.close()
		if dErr := s.DispatchCompleted(stream.DefaultTopic); dErr != nil {
			return false, dErr
		}
		return false, nil
	}
	if dErr := s.DispatchNext(event, stream.DefaultTopic); dErr != nil {
		return false, dErr
	}
	return true, nil
}

func (s *Iterable) close() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.it.Close(); err != nil {
		s.logger.Warn().Err(err).Str("source", s.String()).Msg("iterator close failed")
	}
}

// SliceIterator adapts a Go slice to Iterator, for tests and simple demo
// pipelines.
type SliceIterator[T any] struct {
	values []T
	pos    int
}

// NewSliceIterator builds an Iterator over values.
func NewSliceIterator[T any](values []T) *SliceIterator[T] {
	return &SliceIterator[T]{values: values}
}

func (s *SliceIterator[T]) Next() (stream.Event, bool, error) {
	if s.pos >= len(s.values) {
		return nil, false, nil
	}
	v := s.values[s.pos]
	s.pos++
	return v, true, nil
}

func (s *SliceIterator[T]) Close() error { return nil }
