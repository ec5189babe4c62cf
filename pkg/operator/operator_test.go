package operator

import (
	"testing"

	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeForwardsOnlyCount(t *testing.T) {
	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	f, err := Take(up, 2, zerolog.Nop())
	require.NoError(t, err)

	var got []stream.Event
	var completed bool
	_, err = f.Subscribe(stream.NewSubscriber("default", func(e stream.Event) { got = append(got, e) },
		func() { completed = true }, nil, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	require.NoError(t, up.DispatchNext(1, "default"))
	require.NoError(t, up.DispatchNext(2, "default"))
	assert.Equal(t, []stream.Event{1, 2}, got)
	assert.True(t, completed)

	// Further upstream dispatches are no-ops since take already disposed
	// its subscription.
	require.NoError(t, up.DispatchNext(3, "default"))
	assert.Equal(t, []stream.Event{1, 2}, got)
}

func TestTakeZeroCompletesImmediately(t *testing.T) {
	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	f, err := Take(up, 0, zerolog.Nop())
	require.NoError(t, err)

	var completed bool
	_, err = f.Subscribe(stream.NewSubscriber("default", func(stream.Event) { t.Fatal("must not dispatch") },
		func() { completed = true }, nil, zerolog.Nop()), "default", "default")
	require.NoError(t, err)
	assert.False(t, completed, "take(0) must defer completion until observed, not fire it at construction")

	observer, ok := f.(interface{ Observe() (bool, error) })
	require.True(t, ok, "take(0) must return a direct-pull source")
	more, err := observer.Observe()
	require.NoError(t, err)
	assert.False(t, more)
	assert.True(t, completed)
}

func TestTakeNegativeIsArgumentOutOfRange(t *testing.T) {
	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	_, err := Take(up, -1, zerolog.Nop())
	require.Error(t, err)
	var fe *stream.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, stream.CodeArgumentOutOfRange, fe.Code)
}

func TestTakeShorterThanCountStillCompletes(t *testing.T) {
	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	f, err := Take(up, 5, zerolog.Nop())
	require.NoError(t, err)

	var got []stream.Event
	var completed bool
	_, err = f.Subscribe(stream.NewSubscriber("default", func(e stream.Event) { got = append(got, e) },
		func() { completed = true }, nil, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	require.NoError(t, up.DispatchNext(1, "default"))
	require.NoError(t, up.DispatchCompleted("default"))
	assert.Equal(t, []stream.Event{1}, got)
	assert.True(t, completed)
}

func TestTakeLastBuffersUntilCompleted(t *testing.T) {
	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	f, err := TakeLast(up, 2, zerolog.Nop())
	require.NoError(t, err)

	var got []stream.Event
	var completed bool
	_, err = f.Subscribe(stream.NewSubscriber("default", func(e stream.Event) { got = append(got, e) },
		func() { completed = true }, nil, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	require.NoError(t, up.DispatchNext(1, "default"))
	require.NoError(t, up.DispatchNext(2, "default"))
	require.NoError(t, up.DispatchNext(3, "default"))
	assert.Empty(t, got, "take_last must not forward anything before completed")

	require.NoError(t, up.DispatchCompleted("default"))
	assert.Equal(t, []stream.Event{2, 3}, got)
	assert.True(t, completed)
}

func TestLastDispatchesFinalEvent(t *testing.T) {
	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	f, err := Last(up, false, nil, zerolog.Nop())
	require.NoError(t, err)

	var got stream.Event
	_, err = f.Subscribe(stream.NextOnly(func(e stream.Event) { got = e }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	require.NoError(t, up.DispatchNext(1, "default"))
	require.NoError(t, up.DispatchNext(2, "default"))
	require.NoError(t, up.DispatchCompleted("default"))
	assert.Equal(t, 2, got)
}

func TestLastOnEmptySequenceWithoutDefaultErrors(t *testing.T) {
	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	f, err := Last(up, false, nil, zerolog.Nop())
	require.NoError(t, err)

	var gotErr error
	_, err = f.Subscribe(stream.NewSubscriber("default", func(stream.Event) {}, nil, func(e error) { gotErr = e }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	require.NoError(t, up.DispatchCompleted("default"))
	require.Error(t, gotErr)
	var fe *stream.FatalError
	require.ErrorAs(t, gotErr, &fe)
	assert.Equal(t, stream.CodeNoElements, fe.Code)
}

func TestLastOnEmptySequenceWithDefaultUsesIt(t *testing.T) {
	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	f, err := Last(up, true, "fallback", zerolog.Nop())
	require.NoError(t, err)

	var got stream.Event
	_, err = f.Subscribe(stream.NextOnly(func(e stream.Event) { got = e }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	require.NoError(t, up.DispatchCompleted("default"))
	assert.Equal(t, "fallback", got)
}
