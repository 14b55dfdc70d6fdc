//go:build linux

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

	"golang.org/x/sys/unix"
)

// EpollReactor is a Linux epoll-backed Reactor. Each token registered via
// [EpollReactor.RegisterFD] maps 1:1 to a file descriptor; when the fd
// becomes readable the registered handler is invoked with the byte read (or
// the read error), letting a network endpoint ([NewEndpoint]) treat
// arbitrary readable fds as a readiness source
// without the host writing its own poll loop.
type EpollReactor struct {
	epfd int

	mu       sync.RWMutex
	handlers map[Token]func(Readiness)
	fdOf     map[Token]int
	tokOf    map[int]Token
	nextID   atomic.Uint64

	closed atomic.Bool
}

var _ Reactor = (*EpollReactor)(nil)

// NewEpollReactor creates and initialises an epoll instance.
func NewEpollReactor() (*EpollReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &EpollReactor{
		epfd:     epfd,
		handlers: make(map[Token]func(Readiness)),
		fdOf:     make(map[Token]int),
		tokOf:    make(map[int]Token),
	}, nil
}

// RegisterFD registers fd for readability under a fresh token, whose
// handler receives a one-byte read result each time the fd becomes ready.
func (r *EpollReactor) RegisterFD(fd int, handler func(Readiness)) (Token, error) {
	tok := Token(r.nextID.Add(1))

	r.mu.Lock()
	r.handlers[tok] = handler
	r.fdOf[tok] = fd
	r.tokOf[fd] = tok
	r.mu.Unlock()

	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		r.mu.Lock()
		delete(r.handlers, tok)
		delete(r.fdOf, tok)
		delete(r.tokOf, fd)
		r.mu.Unlock()
		return 0, err
	}
	return tok, nil
}

// RegisterToken satisfies [Reactor] for tokens not backed by a real fd
// (e.g. tests, or a host delivering events out-of-band). Such tokens never
// fire from Poll's epoll_wait; the caller is expected to deliver events via
// a fd-backed registration instead, or not use this reactor for them.
func (r *EpollReactor) RegisterToken(handler func(Readiness)) Token {
	tok := Token(r.nextID.Add(1))
	r.mu.Lock()
	r.handlers[tok] = handler
	r.mu.Unlock()
	return tok
}

func (r *EpollReactor) UnregisterToken(token Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fd, ok := r.fdOf[token]; ok {
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(r.fdOf, token)
		delete(r.tokOf, fd)
	}
	delete(r.handlers, token)
}

// Close releases the epoll file descriptor. Subsequent Poll calls fail.
func (r *EpollReactor) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		return unix.Close(r.epfd)
	}
	return nil
}

// Poll waits up to timeout (or indefinitely if negative, subject to ctx)
// for one epoll_wait round, dispatching every ready fd's handler inline,
// on the calling goroutine. Returns true if any handler ran.
func (r *EpollReactor) Poll(ctx context.Context, timeout time.Duration) (bool, error) {
	if r.closed.Load() {
		return false, nil
	}
	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout.Milliseconds())
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeoutMs < 0 || remaining < timeout {
			if remaining < 0 {
				remaining = 0
			}
			timeoutMs = int(remaining.Milliseconds())
		}
	}

	var events [64]unix.EpollEvent
	n, err := unix.EpollWait(r.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	if n == 0 {
		return false, ctx.Err()
	}

	ran := false
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		r.mu.RLock()
		tok, ok := r.tokOf[fd]
		var h func(Readiness)
		if ok {
			h = r.handlers[tok]
		}
		r.mu.RUnlock()
		if !ok || h == nil {
			continue
		}

		buf := make([]byte, 1)
		readN, readErr := unix.Read(fd, buf)
		var rd Readiness
		rd.Token = tok
		switch {
		case readErr != nil:
			rd.Err = readErr
		case readN == 0:
			rd.Err = errEndpointEOF
		default:
			rd.Value = Number(buf[0])
		}
		h(rd)
		ran = true
	}
	return ran, nil
}
