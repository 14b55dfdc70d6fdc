// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thorn

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// PromiseState is the lifecycle state of a promise object (spec.md 4.4.1).
// Transitions are one-way: Pending to Fulfilled, or Pending to Rejected.
type PromiseState int

const (
	Pending PromiseState = iota
	Fulfilled
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Promise slot keys (spec.md 3, "Promise").
const (
	slotState            = "state"
	slotResult           = "result"
	slotFulfillReactions = "fulfill reactions"
	slotRejectReactions  = "reject reactions"
)

// Reaction slot keys (spec.md 4.4.5).
const (
	slotReactionKind       = "kind"
	slotReactionHandler    = "handler"
	slotReactionCapability = "capability"
)

const (
	reactionKindFulfill = "fulfill"
	reactionKindReject  = "reject"
)

// Runtime owns the promise constructor intrinsic and dispatches settled
// reactions onto a [Queue]. One Runtime is shared by every promise it
// creates, mirroring the teacher's *JS adapter that every ChainedPromise
// carries a reference back to for scheduling.
type Runtime struct {
	queue      *Queue
	logger     *Logger
	debugStack bool

	promiseCtor *Object
}

// RuntimeOption configures a [Runtime] built by [NewRuntime].
type RuntimeOption func(*Runtime)

// WithRuntimeLogger overrides the logger used for diagnostic side-channel
// output (spec.md 9, Open Question on handler errors with no capability).
// Defaults to [DefaultLogger].
func WithRuntimeLogger(l *Logger) RuntimeOption {
	return func(rt *Runtime) { rt.logger = l }
}

// NewRuntime builds a Runtime dispatching reaction jobs onto queue.
func NewRuntime(queue *Queue, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{queue: queue, logger: DefaultLogger()}
	for _, opt := range opts {
		opt(rt)
	}
	rt.promiseCtor = NewConstructor(
		func(_ Value, _ []Value) (Value, error) {
			return nil, &TypeError{Message: "Promise constructor requires new"}
		},
		func(args []Value) (*Object, error) {
			if len(args) == 0 || !IsCallable(args[0]) {
				return nil, &TypeError{Message: "Promise constructor requires an executor function"}
			}
			return rt.newPromiseFromExecutor(args[0])
		},
	)
	return rt
}

// PromiseConstructor returns the intrinsic %Promise% constructor, suitable
// for passing to [Runtime.NewPromiseCapability].
func (rt *Runtime) PromiseConstructor() *Object { return rt.promiseCtor }

// newPromise allocates a pending promise object with empty reaction lists.
func newPromise() *Object {
	p := NewObject(Null{})
	p.setSlot(slotState, String(Pending.String()))
	p.setSlot(slotResult, Null{})
	p.setSlot(slotFulfillReactions, NewList())
	p.setSlot(slotRejectReactions, NewList())
	return p
}

func promiseState(p *Object) PromiseState {
	switch s, _ := GetSlot(p, slotState); s {
	case String(Fulfilled.String()):
		return Fulfilled
	case String(Rejected.String()):
		return Rejected
	default:
		return Pending
	}
}

// IsPromiseLike reports whether v is a promise-shaped object: the narrow
// structural predicate spec.md 4.4.3 mandates for thenable assimilation,
// intentionally not checking for a callable `then` property so that plain
// objects are never mistaken for thenables.
func IsPromiseLike(v Value) bool {
	return HasSlot(v, slotState)
}

// NewPromise is the executor-taking constructor, spec.md 4.4.2: allocate a
// promise, synchronously invoke executor with its resolving functions, and
// reject on executor panic or error.
func (rt *Runtime) NewPromise(executor CallableFunc) (*Object, error) {
	return rt.newPromiseFromExecutor(NewCallable(executor))
}

func (rt *Runtime) newPromiseFromExecutor(executor Value) (p *Object, err error) {
	p = newPromise()
	if rt.debugStack {
		pcs := make([]uintptr, 32)
		n := runtime.Callers(3, pcs)
		p.host = pcs[:n]
	}
	resolve, reject := rt.resolvingFunctions(p)

	defer func() {
		if r := recover(); r != nil {
			_, _ = Call(reject, Null{}, []Value{errorValue(PanicError{Value: r})})
		}
	}()

	if _, callErr := Call(executor, Null{}, []Value{resolve, reject}); callErr != nil {
		_, _ = Call(reject, Null{}, []Value{errorValue(callErr)})
	}
	return p, nil
}

// resolvingFunctions builds the resolve/reject pair for promise, each
// single-settle (spec.md 4.4.3/4.4.4): only the first call of either has
// any effect, guarded by an "already resolved" latch captured by both
// closures, distinct from the capability executor's own call-once guard.
func (rt *Runtime) resolvingFunctions(promise *Object) (resolve, reject *Object) {
	var alreadyResolved latch

	resolve = NewCallable(func(_ Value, args []Value) (Value, error) {
		if !alreadyResolved.trip() {
			return Null{}, nil
		}
		var value Value = Null{}
		if len(args) > 0 {
			value = args[0]
		}
		if err := rt.resolvePromise(promise, value); err != nil {
			rt.reject(promise, errorValue(err))
		}
		return Null{}, nil
	})

	reject = NewCallable(func(_ Value, args []Value) (Value, error) {
		if !alreadyResolved.trip() {
			return Null{}, nil
		}
		var reason Value = Null{}
		if len(args) > 0 {
			reason = args[0]
		}
		rt.reject(promise, reason)
		return Null{}, nil
	})

	return resolve, reject
}

// resolvePromise implements spec.md 4.4.3's resolution procedure: reject on
// self-chaining, assimilate thenables synchronously (attaching fresh
// resolving functions to the inner thenable right here, at resolve time),
// otherwise fulfill immediately with the plain value. Only the reactions
// that assimilation schedules are ever deferred to jobs - the attachment
// itself must not lose its place in registration order relative to any
// other .then() call racing it on the same thenable.
func (rt *Runtime) resolvePromise(promise *Object, value Value) error {
	if o, ok := value.(*Object); ok && o == promise {
		return &TypeError{Message: "a promise cannot resolve to itself"}
	}

	if IsPromiseLike(value) {
		rt.assimilateThenable(promise, value)
		return nil
	}

	rt.fulfill(promise, value)
	return nil
}

// assimilateThenable implements spec.md 4.4.3's "thenable job" synchronously:
// it attaches fresh resolving functions for promise to value via
// [Runtime.addReaction], so value's eventual settlement (however it arrives)
// settles promise.
func (rt *Runtime) assimilateThenable(promise *Object, value Value) {
	resolve, reject := rt.resolvingFunctions(promise)
	thenable, _ := value.(*Object)
	onFulfilled := NewCallable(func(_ Value, args []Value) (Value, error) {
		return Call(resolve, Null{}, args)
	})
	onRejected := NewCallable(func(_ Value, args []Value) (Value, error) {
		return Call(reject, Null{}, args)
	})
	if _, err := rt.addReaction(thenable, onFulfilled, onRejected, nil); err != nil {
		_, _ = Call(reject, Null{}, []Value{errorValue(err)})
	}
}

func (rt *Runtime) fulfill(promise *Object, value Value) { rt.settle(promise, Fulfilled, value) }

func (rt *Runtime) reject(promise *Object, reason Value) { rt.settle(promise, Rejected, reason) }

// settle transitions promise out of Pending exactly once (spec.md 4.4.1),
// then enqueues every already-registered reaction as its own job, in
// registration order, matching spec.md 4.1's FIFO ordering guarantee.
func (rt *Runtime) settle(promise *Object, state PromiseState, result Value) {
	if promiseState(promise) != Pending {
		return
	}
	promise.setSlot(slotState, String(state.String()))
	promise.setSlot(slotResult, result)

	var reactionsSlot string
	if state == Fulfilled {
		reactionsSlot = slotFulfillReactions
	} else {
		reactionsSlot = slotRejectReactions
	}
	reactions, _ := promise.getSlot(reactionsSlot).(*List)
	promise.setSlot(slotFulfillReactions, Null{})
	promise.setSlot(slotRejectReactions, Null{})

	if reactions == nil {
		return
	}
	for _, r := range reactions.Snapshot() {
		reaction := r.(*Object)
		rt.enqueueReactionJob(reaction, result)
	}
}

// addReaction implements spec.md 4.4.5's PerformPromiseThen: attach a
// fulfill/reject reaction pair to promise, scheduling immediately if
// already settled, and returns the derived promise (nil resultCapability
// means no derived promise is needed, e.g. internal thenable assimilation).
func (rt *Runtime) addReaction(promise Value, onFulfilled, onRejected Value, resultCapability *Capability) (*Object, error) {
	if !IsPromiseLike(promise) {
		return nil, &TypeError{Message: "then: receiver is not a promise"}
	}

	var capObj Value = Null{}
	if resultCapability != nil {
		capObj = resultCapability.Object
	}

	fulfillReaction := newReaction(reactionKindFulfill, onFulfilled, capObj)
	rejectReaction := newReaction(reactionKindReject, onRejected, capObj)

	p := promise.(*Object)
	switch promiseState(p) {
	case Pending:
		fulfillList, _ := p.getSlot(slotFulfillReactions).(*List)
		rejectList, _ := p.getSlot(slotRejectReactions).(*List)
		fulfillList.Append(fulfillReaction)
		rejectList.Append(rejectReaction)
	case Fulfilled:
		result, _ := GetSlot(p, slotResult)
		rt.enqueueReactionJob(fulfillReaction, result)
	case Rejected:
		reason, _ := GetSlot(p, slotResult)
		rt.enqueueReactionJob(rejectReaction, reason)
	}

	if resultCapability != nil {
		return resultCapability.PromiseValue(), nil
	}
	return nil, nil
}

func newReaction(kind string, handler, capability Value) *Object {
	r := NewObject(Null{})
	r.setSlot(slotReactionKind, String(kind))
	if handler == nil {
		handler = Null{}
	}
	r.setSlot(slotReactionHandler, handler)
	r.setSlot(slotReactionCapability, capability)
	return r
}

// enqueueReactionJob enqueues the single job spec.md 4.4.5 describes for one
// reaction firing with the given settled value/reason.
func (rt *Runtime) enqueueReactionJob(reaction *Object, argument Value) {
	rt.queue.Enqueue(func([]Value) error {
		rt.runReactionJob(reaction, argument)
		return nil
	})
}

// runReactionJob runs one reaction: no handler means pass the settlement
// straight through to the derived capability (spec.md 4.4.5's "identity"/
// "thrower" default handlers); a handler's panic becomes a PanicError
// rejection rather than escaping onto the job queue (spec.md 9).
func (rt *Runtime) runReactionJob(reaction *Object, argument Value) (err error) {
	kind, _ := GetSlot(reaction, slotReactionKind)
	handler, _ := GetSlot(reaction, slotReactionHandler)
	capValue, _ := GetSlot(reaction, slotReactionCapability)
	capObj, hasCapability := capValue.(*Object)

	settleDerived := func(ok bool, v Value) {
		if !hasCapability {
			if !ok {
				rt.reportOrphanRejection(v)
			}
			return
		}
		derived := Capability{Object: capObj}
		if ok {
			derived.Resolve(v)
		} else {
			derived.Reject(v)
		}
	}

	if !IsCallable(handler) {
		if kind == String(reactionKindFulfill) {
			settleDerived(true, argument)
		} else {
			settleDerived(false, argument)
		}
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			settleDerived(false, errorValue(PanicError{Value: r}))
		}
	}()

	result, callErr := Call(handler, Null{}, []Value{argument})
	if callErr != nil {
		settleDerived(false, errorValue(callErr))
		return nil
	}
	settleDerived(true, result)
	return nil
}

// reportOrphanRejection is the diagnostic side-channel spec.md 9 calls for:
// a reaction handler ran (or a default reject passthrough fired) with no
// derived capability to route the result to. It never changes any promise's
// state; it only gives the host a chance to see the error.
func (rt *Runtime) reportOrphanRejection(reason Value) {
	if rt.logger == nil {
		return
	}
	var err error
	if e := AsError(reason); e != nil {
		err = e
	} else {
		err = fmt.Errorf("unhandled promise rejection: %v", reason)
	}
	rt.logger.Err().Err(err).Log("promise reaction settled with no derived capability")
}

// Then implements spec.md 4.4.6: build a fresh capability from the
// receiver's constructor-equivalent (the Runtime's %Promise%) and attach
// onFulfilled/onRejected to it, returning the derived promise. Either
// handler may be Null{} (or omitted via nil) for pass-through.
func (rt *Runtime) Then(promise Value, onFulfilled, onRejected Value) (*Object, error) {
	capability, err := rt.NewPromiseCapability(rt.promiseCtor)
	if err != nil {
		return nil, err
	}
	return rt.addReaction(promise, onFulfilled, onRejected, &capability)
}

// StaticResolve implements Promise.resolve(value): returns value unchanged
// if it is promise-like ([IsPromiseLike]), otherwise wraps it in a new,
// already-fulfilled promise. The pass-through does not check which
// constructor or Runtime produced value: any object carrying the promise
// state slot is returned as is.
func (rt *Runtime) StaticResolve(value Value) (*Object, error) {
	if IsPromiseLike(value) {
		return value.(*Object), nil
	}
	capability, err := rt.NewPromiseCapability(rt.promiseCtor)
	if err != nil {
		return nil, err
	}
	capability.Resolve(value)
	return capability.PromiseValue(), nil
}

// StaticReject implements Promise.reject(reason): always a fresh, already
// rejected promise, even if reason is itself a promise (no assimilation).
func (rt *Runtime) StaticReject(reason Value) (*Object, error) {
	capability, err := rt.NewPromiseCapability(rt.promiseCtor)
	if err != nil {
		return nil, err
	}
	capability.Reject(reason)
	return capability.PromiseValue(), nil
}

// PromiseCreationStack formats the stack trace captured for promise when
// [WithDebugCreationStack] was enabled on its Runtime, or "" if none was
// captured (the common case).
func PromiseCreationStack(promise *Object) string {
	o, ok := promise.host.([]uintptr)
	if !ok || len(o) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(o)
	var out string
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			if out != "" {
				out += "\n"
			}
			out += fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return out
}

// latch is a single-shot gate: trip reports true the first time it is
// called, false on every call thereafter, across any number of goroutines.
type latch struct{ done atomic.Bool }

func (l *latch) trip() bool { return l.done.CompareAndSwap(false, true) }
