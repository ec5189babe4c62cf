package stream

import "github.com/rs/zerolog"

// NextHook transforms or reacts to an upstream event. emit dispatches a
// value downstream on the filter's own topic; hooks that want to drop an
// event simply don't call emit.
type NextHook func(event Event, emit func(Event))

// CompletedHook reacts to the upstream topic completing. The default
// (nil) rebroadcasts completed immediately.
type CompletedHook func(dispatchCompleted func())

// ErrorHook reacts to an upstream in-band error. The default (nil)
// rebroadcasts the error immediately.
type ErrorHook func(err error, dispatchError func(error))

// FilterOption configures a Filter at construction time.
type FilterOption func(*Filter)

// WithNext overrides the filter's pass-through next behavior.
func WithNext(h NextHook) FilterOption { return func(f *Filter) { f.onNext = h } }

// WithCompleted overrides the filter's pass-through completed behavior.
func WithCompleted(h CompletedHook) FilterOption { return func(f *Filter) { f.onCompleted = h } }

// WithError overrides the filter's pass-through error behavior.
func WithError(h ErrorHook) FilterOption { return func(f *Filter) { f.onError = h } }

// Filter is a publisher and a subscriber combined: it subscribes to an
// upstream publisher and rebroadcasts (optionally transformed) events on
// its own DefaultTopic. Concrete stream operators (operator.Take,
// operator.Last, ...) are built on top of Filter.
//
// Default behavior, absent hooks, is pure pass-through: upstream's
// next/completed/error are rebroadcast unchanged. This mirrors the
// original implementation's Filter(previous_in_chain, on_next=None, ...).
type Filter struct {
	*Base
	logger          zerolog.Logger
	upstreamDispose Dispose

	onNext      NextHook
	onCompleted CompletedHook
	onError     ErrorHook
}

// NewFilter subscribes to upstream's DefaultTopic (as DefaultTopic on the
// filter) and returns a Filter ready to
// be scheduled downstream. name is used for diagnostics.
func NewFilter(upstream Publisher, name string, logger zerolog.Logger, opts ...FilterOption) (*Filter, error) {
	f := &Filter{
		Base:   NewBase(name, []string{DefaultTopic}, logger),
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}

	dispose, err := upstream.Subscribe(f.asSubscriber(), DefaultTopic, DefaultTopic)
	if err != nil {
		return nil, err
	}
	f.upstreamDispose = dispose
	return f, nil
}

// DisposeUpstream cancels the filter's subscription to its upstream
// publisher. Stream operators call this once they have all the events they
// need (operator.Take after its count is reached) so upstream can close its
// topic and the scheduler can retire it.
func (f *Filter) DisposeUpstream() {
	if f.upstreamDispose != nil {
		f.upstreamDispose()
	}
}

// filterSubscriber is the Subscriber a Filter registers upstream. Embedding
// the Filter makes it a Walker and a fmt.Stringer, so topology dumps recurse
// through filters to their own subscribers.
type filterSubscriber struct {
	topicTable
	*Filter
}

func (f *Filter) asSubscriber() Subscriber {
	return filterSubscriber{
		topicTable: topicTable{
			DefaultTopic: {
				next:      f.handleNext,
				completed: f.handleCompleted,
				err:       f.handleError,
			},
		},
		Filter: f,
	}
}

func (f *Filter) handleNext(event Event) {
	emit := func(e Event) {
		if err := f.DispatchNext(e, DefaultTopic); err != nil {
			panic(err)
		}
	}
	if f.onNext == nil {
		emit(event)
		return
	}

	if err := f.safeCall(func() { f.onNext(event, emit) }); err != nil {
		// A user hook failed with a non-fatal error: dispatch error
		// downstream, dispose the upstream subscription to stop further
		// input, and swallow the error rather than propagate it inline.
		// This is the single consistent policy Design Notes calls for:
		// any downstream-visible error disposes upstream, not just
		// errors surfaced from on_next.
		f.logger.Warn().Err(err).Str("filter", f.String()).Msg("filter hook failed, disposing upstream")
		_ = f.DispatchError(err, DefaultTopic)
		if f.upstreamDispose != nil {
			f.upstreamDispose()
		}
	}
}

func (f *Filter) handleCompleted() {
	dispatch := func() {
		if err := f.DispatchCompleted(DefaultTopic); err != nil {
			panic(err)
		}
	}
	if f.onCompleted == nil {
		dispatch()
		return
	}
	f.onCompleted(dispatch)
}

func (f *Filter) handleError(err error) {
	dispatch := func(e error) {
		if dErr := f.DispatchError(e, DefaultTopic); dErr != nil {
			panic(dErr)
		}
	}
	if f.onError == nil {
		dispatch(err)
		if f.upstreamDispose != nil {
			f.upstreamDispose()
		}
		return
	}
	f.onError(err, dispatch)
	if f.upstreamDispose != nil {
		f.upstreamDispose()
	}
}

// safeCall runs fn and converts a panic that is not a *FatalError into a
// plain error, so handleNext can apply the dispose-and-swallow policy. A
// *FatalError panic is re-raised unchanged.
func (f *Filter) safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FatalError); ok {
				panic(fe)
			}
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil
}
