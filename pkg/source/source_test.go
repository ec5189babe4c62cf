package source

import (
	"errors"
	"testing"

	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterableDispatchesThenCompletes(t *testing.T) {
	it := NewSliceIterator([]int{1, 2, 3})
	src := NewIterable("nums", it, zerolog.Nop())

	var got []stream.Event
	var completed bool
	_, err := src.Subscribe(stream.NewSubscriber("default", func(e stream.Event) { got = append(got, e) },
		func() { completed = true }, nil, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	for {
		more, oerr := src.Observe()
		require.NoError(t, oerr)
		if !more {
			break
		}
	}

	assert.Equal(t, []stream.Event{1, 2, 3}, got)
	assert.True(t, completed)
}

type failingIterator struct{ called bool }

func (f *failingIterator) Next() (stream.Event, bool, error) {
	f.called = true
	return nil, false, errors.New("disk error")
}
func (f *failingIterator) Close() error { return nil }

func TestIterableDispatchesErrorOnFailure(t *testing.T) {
	src := NewIterable("flaky", &failingIterator{}, zerolog.Nop())

	var gotErr error
	_, err := src.Subscribe(stream.NewSubscriber("default", func(stream.Event) {}, nil,
		func(e error) { gotErr = e }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	more, oerr := src.Observe()
	require.NoError(t, oerr)
	assert.False(t, more)
	require.Error(t, gotErr)
	assert.Equal(t, "disk error", gotErr.Error())
}

func TestIterableFatalErrorPropagates(t *testing.T) {
	fatal := stream.NewFatalError(stream.CodeArgumentOutOfRange, "bad state", nil)
	it := &fatalIterator{err: fatal}
	src := NewIterable("fatal", it, zerolog.Nop())

	more, err := src.Observe()
	assert.False(t, more)
	assert.Same(t, fatal, err)
}

type fatalIterator struct{ err error }

func (f *fatalIterator) Next() (stream.Event, bool, error) { return nil, false, f.err }
func (f *fatalIterator) Close() error                      { return nil }

func TestStateIteratedCountsUpAndReportsMoreEachStep(t *testing.T) {
	src := NewStateIterated("counter", 0,
		func(s any) bool { return s.(int) < 3 },
		func(s any) any { return s.(int) + 1 },
		func(s any) any { return s.(int) },
		zerolog.Nop())

	var got []stream.Event
	var completed bool
	_, err := src.Subscribe(stream.NewSubscriber("default", func(e stream.Event) { got = append(got, e) },
		func() { completed = true }, nil, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		more, oerr := src.Observe()
		require.NoError(t, oerr)
		if !more {
			break
		}
		// The corrected behavior: every successful advance reports more=true,
		// not only the first call.
		assert.True(t, more)
	}

	assert.Equal(t, []stream.Event{0, 1, 2}, got)
	assert.True(t, completed)
}

func TestStateIteratedEmptyAtStartCompletesImmediately(t *testing.T) {
	src := NewStateIterated("empty", 5,
		func(s any) bool { return s.(int) < 0 },
		func(s any) any { return s },
		func(s any) any { return s },
		zerolog.Nop())

	var completed bool
	_, err := src.Subscribe(stream.NewSubscriber("default", func(stream.Event) { t.Fatal("should never dispatch") },
		func() { completed = true }, nil, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	more, oerr := src.Observe()
	require.NoError(t, oerr)
	assert.False(t, more)
	assert.True(t, completed)
}

func TestNeverSourceAlwaysReportsMoreWithoutDispatch(t *testing.T) {
	src := NewNever("idle", zerolog.Nop())
	_, err := src.Subscribe(stream.NextOnly(func(stream.Event) { t.Fatal("never source must not dispatch") }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		more, oerr := src.Observe()
		require.NoError(t, oerr)
		assert.True(t, more)
	}
}
