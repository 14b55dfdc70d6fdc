// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thorn

import "sync/atomic"

// Capability slot keys (spec.md 3, "Capability").
const (
	slotCapPromise = "promise"
	slotCapResolve = "resolve"
	slotCapReject  = "reject"
)

// Capability is a thin, typed view over an Object exposing the `promise`,
// `resolve`, `reject` triple (spec.md 3). It lets code other than the
// promise constructor's executor settle a promise.
type Capability struct {
	Object *Object
}

// PromiseValue returns the capability's promise.
func (c Capability) PromiseValue() *Object {
	v, _ := GetSlot(c.Object, slotCapPromise)
	o, _ := v.(*Object)
	return o
}

// ResolveFn returns the capability's resolving function.
func (c Capability) ResolveFn() *Object {
	v, _ := GetSlot(c.Object, slotCapResolve)
	o, _ := v.(*Object)
	return o
}

// RejectFn returns the capability's rejecting function.
func (c Capability) RejectFn() *Object {
	v, _ := GetSlot(c.Object, slotCapReject)
	o, _ := v.(*Object)
	return o
}

// Resolve invokes the capability's resolving function.
func (c Capability) Resolve(value Value) {
	_, _ = Call(c.ResolveFn(), Null{}, []Value{value})
}

// Reject invokes the capability's rejecting function.
func (c Capability) Reject(reason Value) {
	_, _ = Call(c.RejectFn(), Null{}, []Value{reason})
}

// NewPromiseCapability implements spec.md 4.3: allocate a capturing
// executor, invoke constructor.construct([executor]), and require that the
// constructor called the executor synchronously with two callables.
func (rt *Runtime) NewPromiseCapability(constructor Value) (Capability, error) {
	var capability Capability
	var resolveFn, rejectFn *Object
	var executorCalled atomic.Bool

	executor := NewCallable(func(_ Value, args []Value) (Value, error) {
		if !executorCalled.CompareAndSwap(false, true) {
			return nil, &TypeError{Message: "capability executor invoked twice"}
		}
		if len(args) < 2 {
			return nil, &TypeError{Message: "capability executor requires resolve and reject arguments"}
		}
		r, ok1 := args[0].(*Object)
		j, ok2 := args[1].(*Object)
		if !ok1 || !ok2 || !r.IsCallable() || !j.IsCallable() {
			return nil, &TypeError{Message: "capability executor arguments must be callables"}
		}
		resolveFn, rejectFn = r, j
		return Null{}, nil
	})

	promiseObj, err := Construct(constructor, []Value{executor})
	if err != nil {
		return capability, err
	}
	if resolveFn == nil || rejectFn == nil {
		return capability, &TypeError{Message: "promise constructor did not invoke its executor synchronously"}
	}

	obj := NewObject(Null{})
	obj.setSlot(slotCapPromise, promiseObj)
	obj.setSlot(slotCapResolve, resolveFn)
	obj.setSlot(slotCapReject, rejectFn)
	capability.Object = obj
	return capability, nil
}
