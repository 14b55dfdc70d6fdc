// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thorn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Token identifies a registration with a [Reactor].
type Token uint64

// Readiness describes one delivered event: either a value (success) or an
// error (failure), addressed to the handler registered under Token.
type Readiness struct {
	Token Token
	Value Value
	Err   error
}

// Reactor is the contract the core requires of the host's I/O readiness
// source (spec.md 6): register a handler under an opaque token, unregister
// it later, and deliver events to whichever single goroutine calls Poll -
// the "interpreter thread" per spec.md 5. Handlers must never be invoked
// concurrently with Poll; Poll itself is where that serialization happens.
type Reactor interface {
	// RegisterToken associates handler with a freshly allocated Token.
	RegisterToken(handler func(Readiness)) Token

	// UnregisterToken deregisters token. Idempotent: unregistering an
	// already-unregistered (or unknown) token is a no-op, matching
	// spec.md 9's requirement that [EndpointClose] be idempotent.
	UnregisterToken(token Token)

	// Poll waits for at least one readiness event and dispatches it to
	// its registered handler, synchronously, on the calling goroutine.
	// A negative timeout blocks until ctx is done or an event arrives.
	// A zero timeout polls without blocking. Returns true if it consumed at
	// least one event (ChanReactor also reports true for an event whose
	// token has no registered handler), false if it returned because of
	// ctx, the timeout, or a closed reactor.
	Poll(ctx context.Context, timeout time.Duration) (ran bool, err error)
}

// ChanReactor is a portable Reactor backed by a single-consumer channel
// mailbox, matching spec.md 5's requirement that "the external reactor may
// use OS threads internally but delivers readiness events onto the
// interpreter thread via a single-consumer mailbox". Any goroutine may
// call Notify; only the goroutine calling Poll ever runs a handler.
type ChanReactor struct {
	mu       sync.Mutex
	handlers map[Token]func(Readiness)
	nextID   atomic.Uint64
	events   chan Readiness
	closed   atomic.Bool
}

// NewChanReactor builds a ChanReactor with the given mailbox capacity.
func NewChanReactor(capacity int) *ChanReactor {
	if capacity < 1 {
		capacity = 1
	}
	return &ChanReactor{
		handlers: make(map[Token]func(Readiness)),
		events:   make(chan Readiness, capacity),
	}
}

var _ Reactor = (*ChanReactor)(nil)

func (r *ChanReactor) RegisterToken(handler func(Readiness)) Token {
	id := Token(r.nextID.Add(1))
	r.mu.Lock()
	r.handlers[id] = handler
	r.mu.Unlock()
	return id
}

func (r *ChanReactor) UnregisterToken(token Token) {
	r.mu.Lock()
	delete(r.handlers, token)
	r.mu.Unlock()
}

// Notify delivers ev from a producer goroutine (e.g. an OS I/O thread).
// If the reactor has been closed, Notify is a silent no-op.
func (r *ChanReactor) Notify(ev Readiness) {
	if r.closed.Load() {
		return
	}
	r.events <- ev
}

// Close stops accepting new events. Idempotent.
func (r *ChanReactor) Close() {
	if r.closed.CompareAndSwap(false, true) {
		close(r.events)
	}
}

func (r *ChanReactor) Poll(ctx context.Context, timeout time.Duration) (bool, error) {
	var timeoutCh <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case ev, ok := <-r.events:
		if !ok {
			return false, nil
		}
		r.mu.Lock()
		h := r.handlers[ev.Token]
		r.mu.Unlock()
		if h != nil {
			h(ev)
		}
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timeoutCh:
		return false, nil
	}
}
