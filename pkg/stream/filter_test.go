package stream

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterPassThroughDefault(t *testing.T) {
	up := NewBase("up", []string{"default"}, zerolog.Nop())
	f, err := NewFilter(up, "identity", zerolog.Nop())
	require.NoError(t, err)

	var got []Event
	var completed bool
	_, err = f.Subscribe(NewSubscriber("default", func(e Event) { got = append(got, e) },
		func() { completed = true }, nil, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	require.NoError(t, up.DispatchNext(1, "default"))
	require.NoError(t, up.DispatchNext(2, "default"))
	require.NoError(t, up.DispatchCompleted("default"))

	assert.Equal(t, []Event{1, 2}, got)
	assert.True(t, completed)
}

func TestFilterOnNextHookCanTransform(t *testing.T) {
	up := NewBase("up", []string{"default"}, zerolog.Nop())
	f, err := NewFilter(up, "double", zerolog.Nop(), WithNext(func(e Event, emit func(Event)) {
		emit(e.(int) * 2)
	}))
	require.NoError(t, err)

	var got []Event
	_, err = f.Subscribe(NextOnly(func(e Event) { got = append(got, e) }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	require.NoError(t, up.DispatchNext(5, "default"))
	assert.Equal(t, []Event{10}, got)
}

func TestFilterHookErrorDisposesUpstream(t *testing.T) {
	up := NewBase("up", []string{"default"}, zerolog.Nop())
	f, err := NewFilter(up, "flaky", zerolog.Nop(), WithNext(func(e Event, emit func(Event)) {
		panic(errors.New("bad event"))
	}))
	require.NoError(t, err)

	var gotErr error
	_, err = f.Subscribe(NewSubscriber("default", func(Event) {}, nil, func(e error) { gotErr = e }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	require.NoError(t, up.DispatchNext(1, "default"))
	require.Error(t, gotErr)
	assert.Equal(t, "bad event", gotErr.Error())

	// Upstream subscription was disposed: further dispatch on "up" sees no
	// subscribers and does not reach the filter again.
	require.NoError(t, up.DispatchNext(2, "default"))
}
