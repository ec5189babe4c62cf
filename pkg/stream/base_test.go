package stream

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBase(t *testing.T, topics ...string) *Base {
	t.Helper()
	return NewBase("test", topics, zerolog.Nop())
}

func TestSubscribeInvalidPubTopic(t *testing.T) {
	b := newTestBase(t, "default")
	_, err := b.Subscribe(NextOnly(func(Event) {}, zerolog.Nop()), "nope", "default")
	require.Error(t, err)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, CodeInvalidTopic, fe.Code)
}

func TestSubscribeInvalidSubTopic(t *testing.T) {
	b := newTestBase(t, "default")
	sub := NewSubscriber("only-this-topic", func(Event) {}, nil, nil, zerolog.Nop())
	_, err := b.Subscribe(sub, "default", "default")
	require.Error(t, err)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, CodeInvalidTopic, fe.Code)
}

func TestDispatchNextDeliversInOrder(t *testing.T) {
	b := newTestBase(t, "default")
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		_, err := b.Subscribe(NextOnly(func(e Event) { got = append(got, i*100+e.(int)) }, zerolog.Nop()), "default", "default")
		require.NoError(t, err)
	}
	require.NoError(t, b.DispatchNext(1, "default"))
	assert.Equal(t, []int{1, 101, 201}, got)
}

func TestDispatchOnUnknownTopic(t *testing.T) {
	b := newTestBase(t, "default")
	err := b.DispatchNext(1, "nope")
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, CodeUnknownTopic, fe.Code)
}

func TestTopicClosesAfterCompleted(t *testing.T) {
	b := newTestBase(t, "default")
	require.NoError(t, b.DispatchCompleted("default"))
	err := b.DispatchNext(1, "default")
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, CodeTopicAlreadyClosed, fe.Code)
}

func TestTopicClosesAfterError(t *testing.T) {
	b := newTestBase(t, "default")
	require.NoError(t, b.DispatchError(errors.New("boom"), "default"))
	err := b.DispatchCompleted("default")
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, CodeTopicAlreadyClosed, fe.Code)
}

func TestUnscheduleHookFiresOnceWhenAllTopicsClose(t *testing.T) {
	b := newTestBase(t, "a", "b")
	var calls int
	b.SchedulerAttach(func() { calls++ }, nil)

	require.NoError(t, b.DispatchCompleted("a"))
	assert.Equal(t, 0, calls, "hook must not fire until every topic is closed")
	require.NoError(t, b.DispatchCompleted("b"))
	assert.Equal(t, 1, calls)
}

func TestDisposeRemovesExactlyOneSubscription(t *testing.T) {
	b := newTestBase(t, "default")
	var aCount, bCount int
	disposeA, err := b.Subscribe(NextOnly(func(Event) { aCount++ }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)
	_, err = b.Subscribe(NextOnly(func(Event) { bCount++ }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	disposeA()
	require.NoError(t, b.DispatchNext(1, "default"))
	assert.Equal(t, 0, aCount)
	assert.Equal(t, 1, bCount)

	// idempotent
	disposeA()
}

func TestDisposeSafeDuringDispatch(t *testing.T) {
	b := newTestBase(t, "default")
	var dispose Dispose
	var selfDisposeCalls, otherCalls int
	dispose, _ = b.Subscribe(NextOnly(func(Event) {
		selfDisposeCalls++
		dispose()
	}, zerolog.Nop()), "default", "default")
	_, err := b.Subscribe(NextOnly(func(Event) { otherCalls++ }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	require.NoError(t, b.DispatchNext(1, "default"))
	assert.Equal(t, 1, selfDisposeCalls)
	assert.Equal(t, 1, otherCalls)

	// The self-disposing subscriber must not be invoked again.
	require.NoError(t, b.DispatchNext(2, "default"))
	assert.Equal(t, 1, selfDisposeCalls)
	assert.Equal(t, 2, otherCalls)
}

func TestInlinePanicBecomesExcInDispatch(t *testing.T) {
	b := newTestBase(t, "default")
	_, err := b.Subscribe(NextOnly(func(Event) { panic(errors.New("subscriber broke")) }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	err = b.DispatchNext(1, "default")
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, CodeExcInDispatch, fe.Code)
}

func TestFatalErrorPropagatesUnchanged(t *testing.T) {
	b := newTestBase(t, "default")
	want := NewFatalError(CodeScheduleError, "boom", nil)
	_, err := b.Subscribe(NextOnly(func(Event) { panic(want) }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	err = b.DispatchNext(1, "default")
	assert.Same(t, want, err)
}

func TestEnqueuedDispatchRunsOnTrampoline(t *testing.T) {
	b := newTestBase(t, "default")
	var got Event
	_, err := b.Subscribe(NextOnly(func(e Event) { got = e }, zerolog.Nop()), "default", "default")
	require.NoError(t, err)

	var mu sync.Mutex
	var posted []func()
	b.SchedulerAttach(nil, func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		posted = append(posted, fn)
	})

	require.NoError(t, b.DispatchNext(42, "default"))
	assert.Nil(t, got, "must not run inline once enqueue is set")

	mu.Lock()
	toRun := posted
	mu.Unlock()
	for _, fn := range toRun {
		fn()
	}
	assert.Equal(t, 42, got)
}
