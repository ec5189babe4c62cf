package stream

import (
	"errors"
	"fmt"
)

// Code identifies a class of fatal error raised by the dispatch engine or
// the scheduler. Fatal errors terminate the main loop; they are distinct
// from in-stream errors, which are delivered to subscribers via on_error
// and leave the rest of the pipeline running.
type Code string

const (
	// CodeInvalidTopic: subscribe referenced a publish topic that does not
	// exist, or the subscriber has no callbacks for the requested subscribe
	// topic.
	CodeInvalidTopic Code = "invalid-topic"
	// CodeUnknownTopic: a dispatch call named a topic the publisher never
	// declared.
	CodeUnknownTopic Code = "unknown-topic"
	// CodeTopicAlreadyClosed: a dispatch call targeted a topic that already
	// received a terminal event.
	CodeTopicAlreadyClosed Code = "topic-already-closed"
	// CodeExcInDispatch: a subscriber callback raised a non-fatal error
	// during inline dispatch.
	CodeExcInDispatch Code = "exc-in-dispatch"
	// CodeScheduleError: a scheduling invariant was violated, or a worker
	// thread or the main loop aborted.
	CodeScheduleError Code = "schedule-error"
	// CodeArgumentOutOfRange: an operator received an out-of-range argument
	// (e.g. take(n) with n < 0).
	CodeArgumentOutOfRange Code = "argument-out-of-range"
	// CodeNoElements: last() was applied to an empty stream with no default.
	CodeNoElements Code = "sequence-contains-no-elements"
)

// FatalError is the surface type for every error that must terminate the
// main loop rather than be delivered as an in-band event. It wraps an
// optional underlying cause and carries the topic involved, when there is
// one, for diagnostics.
type FatalError struct {
	Code  Code
	Topic string
	Msg   string
	Err   error
}

func (e *FatalError) Error() string {
	if e.Topic != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s (topic %q): %v", e.Code, e.Msg, e.Topic, e.Err)
		}
		return fmt.Sprintf("%s: %s (topic %q)", e.Code, e.Msg, e.Topic)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, &FatalError{Code: CodeXxx}) match any FatalError
// with the same code, regardless of message or wrapped cause.
func (e *FatalError) Is(target error) bool {
	t, ok := target.(*FatalError)
	if !ok {
		return false
	}
	if t.Code == "" {
		return true
	}
	return t.Code == e.Code
}

// NewFatalError builds a FatalError not tied to a specific topic.
func NewFatalError(code Code, msg string, wrapped error) *FatalError {
	return &FatalError{Code: code, Msg: msg, Err: wrapped}
}

// NewTopicFatalError builds a FatalError tied to a specific topic.
func NewTopicFatalError(code Code, topic, msg string, wrapped error) *FatalError {
	return &FatalError{Code: code, Topic: topic, Msg: msg, Err: wrapped}
}

// IsFatal reports whether err is, or wraps, a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
