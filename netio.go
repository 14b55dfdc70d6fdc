// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// netio.go implements the async-iterator bridge (spec.md 4.5): the
// next()/close() protocol coupling an externally-driven [Reactor] readiness
// source to a promise stream, with the queue/buffer mutual-exclusivity
// invariant enforced by construction rather than by a runtime assertion.
// Grounded on the teacher's registry.go weak-pointer queue/scavenge pattern
// for the waiting-consumer bookkeeping, and poller.go/poller_linux.go for
// the producer-side readiness contract this bridges into promise settlement.
package thorn

import (
	"errors"
	"sync"
)

// errEndpointEOF is the Readiness.Err value a [Reactor] reports when a
// registered descriptor reaches end-of-stream, translated by the producer
// side into a rejected (not fulfilled) delivery, matching spec.md 4.5's
// treatment of "V (or error E)" uniformly.
var errEndpointEOF = errors.New("thorn: endpoint reached end of stream")

// Endpoint slot keys (spec.md 3, "net server queue"/"net server
// buffer"/"net server token").
const (
	slotNetQueue  = "net server queue"
	slotNetBuffer = "net server buffer"
	slotNetToken  = "net server token"
)

// endpointState tracks what the producer side needs besides the two public
// Lists: the Runtime to mint capabilities on, the Reactor token to
// deregister on Close, and a mutex guarding the closed flag in
// [EndpointClose]. [EndpointNext] and [deliverReadiness] do not take the
// mutex: producer callbacks arrive on whichever goroutine the Reactor's Poll
// runs on (the loop goroutine), and Next is invoked by host/VM code running
// on that same goroutine.
type endpointState struct {
	mu      sync.Mutex
	rt      *Runtime
	reactor Reactor
	token   Token
	closed  bool
}

// NewEndpoint allocates a net-server endpoint object, registers it with
// reactor under a fresh token, and wires that token's readiness callback to
// [deliverReadiness]. The returned Object carries the three slots spec.md 3
// names; a host exposes next()/close() as methods on whatever prototype it
// builds around this Object.
func NewEndpoint(rt *Runtime, reactor Reactor) *Object {
	e := NewObject(Null{})
	e.setSlot(slotNetQueue, NewList())
	e.setSlot(slotNetBuffer, NewList())

	state := &endpointState{rt: rt, reactor: reactor}
	e.host = state

	token := reactor.RegisterToken(func(r Readiness) {
		deliverReadiness(rt, e, r)
	})
	state.token = token
	e.setSlot(slotNetToken, Number(token))

	return e
}

// EndpointNext implements spec.md 4.5's next() algorithm.
func EndpointNext(rt *Runtime, endpoint Value) (*Object, error) {
	e, ok := endpoint.(*Object)
	if !ok || !HasSlot(e, slotNetQueue) {
		return nil, &TypeError{Message: "next: receiver is not a net-server endpoint"}
	}

	buffer, _ := e.getSlot(slotNetBuffer).(*List)
	if buffer != nil {
		if v, ok := buffer.Shift(); ok {
			return v.(*Object), nil
		}
	}

	capability, err := rt.NewPromiseCapability(rt.promiseCtor)
	if err != nil {
		return nil, err
	}
	queue, _ := e.getSlot(slotNetQueue).(*List)
	queue.Append(capability.Object)
	return capability.PromiseValue(), nil
}

// deliverReadiness is the producer side (spec.md 4.5): route an incoming
// Readiness event to a waiting consumer's capability if one exists, else
// buffer a freshly settled promise for the next Next() call. At most one of
// queue/buffer holds anything at any observation point (spec.md 3).
func deliverReadiness(rt *Runtime, endpoint *Object, r Readiness) {
	queue, _ := endpoint.getSlot(slotNetQueue).(*List)
	buffer, _ := endpoint.getSlot(slotNetBuffer).(*List)

	if head, ok := queue.Shift(); ok {
		capability := Capability{Object: head.(*Object)}
		if r.Err != nil {
			capability.Reject(errorValue(r.Err))
		} else {
			capability.Resolve(r.Value)
		}
		return
	}

	capability, err := rt.NewPromiseCapability(rt.promiseCtor)
	if err != nil {
		rt.reportOrphanRejection(errorValue(err))
		return
	}
	if r.Err != nil {
		capability.Reject(errorValue(r.Err))
	} else {
		capability.Resolve(r.Value)
	}
	buffer.Append(capability.PromiseValue())
}

// EndpointClose implements spec.md 4.5's close(): deregister the token from
// the reactor. Per spec.md 9's resolved Open Question, already-queued
// waiting capabilities are left pending forever rather than being resolved
// with a synthetic end-of-stream value - matching the behaviour spec.md
// notes the source version exhibits. Idempotent.
func EndpointClose(endpoint Value) error {
	e, ok := endpoint.(*Object)
	if !ok || !HasSlot(e, slotNetQueue) {
		return &TypeError{Message: "close: receiver is not a net-server endpoint"}
	}
	state, _ := e.host.(*endpointState)
	if state == nil {
		return &TypeError{Message: "close: endpoint missing internal state"}
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.closed {
		return nil
	}
	state.closed = true
	state.reactor.UnregisterToken(state.token)
	return nil
}
