// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thorn

import (
	"errors"
	"fmt"
)

// TypeError represents misuse of the API surface: invoking Next on a
// receiver without the net-server slots, constructing a Promise with a
// non-function, an executor invoked twice, or a non-object `this` on
// Promise.resolve/reject.
type TypeError struct {
	Cause   error
	Message string
}

func (e *TypeError) Error() string {
	if e.Message == "" {
		return "type error"
	}
	return e.Message
}

func (e *TypeError) Unwrap() error { return e.Cause }

// RangeError represents a value outside its expected range.
type RangeError struct {
	Cause   error
	Message string
}

func (e *RangeError) Error() string {
	if e.Message == "" {
		return "range error"
	}
	return e.Message
}

func (e *RangeError) Unwrap() error { return e.Cause }

// TimeoutError represents a timed-out operation. The core itself never
// produces one (there is no cancellation or timeout machinery per spec),
// but it is exposed for hosts layering timers/races over [Runtime.Then].
type TimeoutError struct {
	Cause   error
	Message string
}

func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "operation timed out"
	}
	return e.Message
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// PanicError wraps a value recovered from a panicking reaction handler or
// executor, converting it into a rejection reason rather than letting it
// escape the job queue.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value was itself an
// error, enabling errors.Is/errors.As through the recovered value.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// AggregateError collects multiple errors, e.g. when every branch of a
// combinator over several promises rejects.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("aggregate error: %d errors", len(e.Errors))
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// Is reports whether target is an *AggregateError, or matches any of the
// wrapped errors.
func (e *AggregateError) Is(target error) bool {
	var aggTarget *AggregateError
	return errors.As(target, &aggTarget)
}

// WrapError wraps cause with a message, preserving errors.Is/errors.As
// matching against cause.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

// errorValue converts a Go error into a Value suitable for use as a
// rejection reason. Errors are represented as opaque host objects carrying
// the original error in their host field, so errors.As/errors.Is keeps
// working if the value round-trips back through [AsError].
func errorValue(err error) Value {
	if err == nil {
		return Null{}
	}
	o := NewObject(Null{})
	o.host = err
	o.setSlot("message", String(err.Error()))
	return o
}

// AsError extracts the underlying Go error from a rejection reason value
// produced by [errorValue]/host error propagation, or nil if v does not
// carry one.
func AsError(v Value) error {
	o, ok := v.(*Object)
	if !ok {
		return nil
	}
	err, _ := o.host.(error)
	return err
}
