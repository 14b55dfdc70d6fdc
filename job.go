// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thorn

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
)

// JobFunc is the body of a deferred unit of work. Jobs never return a
// value to the queue (spec.md 3: "Job"); an error return is surfaced to
// the host unhandled-error hook per spec.md 7, and never aborts the drain
// loop.
type JobFunc func(args []Value) error

type queuedJob struct {
	fn   JobFunc
	args []Value
}

// Queue is a FIFO of deferred work. It is single-consumer: exactly one
// goroutine (the "loop goroutine") may call DrainOne/DrainAll/
// DrainUntilIdle at a time, but Enqueue is safe from any goroutine -
// mirroring the teacher's Loop.Submit / external-ingress split, since the
// reactor's readiness callbacks arrive on arbitrary OS threads and must be
// able to hand work to the loop goroutine without blocking it.
//
// Ordering guarantee: if Enqueue(A) happens-before Enqueue(B) on a single
// thread, A runs before B (spec.md 4.1). There is no priority,
// cancellation, or deduplication.
type Queue struct {
	mu      sync.Mutex
	items   []queuedJob
	reactor Reactor

	onUnhandledError func(error)
	logger           *Logger
	errLimiter       *catrate.Limiter
}

// QueueOption configures a [Queue] built by [NewQueue].
type QueueOption func(*Queue)

// WithReactor attaches the external readiness source DrainUntilIdle
// blocks on once the queue runs dry.
func WithReactor(r Reactor) QueueOption {
	return func(q *Queue) { q.reactor = r }
}

// WithUnhandledErrorHook registers the host sink for errors escaping job
// execution (spec.md 6, "An unhandled-error sink for errors escaping job
// execution").
func WithUnhandledErrorHook(fn func(error)) QueueOption {
	return func(q *Queue) { q.onUnhandledError = fn }
}

// WithQueueLogger overrides the structured logger used for diagnostics.
// Defaults to [DefaultLogger].
func WithQueueLogger(l *Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithErrorRateLimit throttles how often an unhandled job error reaches
// the logger/hook, using a sliding-window limiter (see
// github.com/joeycumines/go-catrate) keyed on a single
// "unhandled-job-error" category. A script that enters a tight throw/forget loop must not be
// able to flood the host's log sink.
func WithErrorRateLimit(rates map[time.Duration]int) QueueOption {
	return func(q *Queue) { q.errLimiter = catrate.NewLimiter(rates) }
}

// NewQueue builds an empty, ready-to-use job queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{logger: DefaultLogger()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a job to the tail. Non-blocking, never fails. Safe to
// call from any goroutine.
func (q *Queue) Enqueue(fn JobFunc, args ...Value) {
	q.mu.Lock()
	q.items = append(q.items, queuedJob{fn: fn, args: args})
	q.mu.Unlock()
}

// Len reports the number of jobs currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// DrainOne pops and invokes the head job, if any. Returns false if the
// queue was empty. An error returned by the job is routed to the
// unhandled-error hook and does not propagate to the caller.
func (q *Queue) DrainOne() bool {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return false
	}
	j := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()

	if err := j.fn(j.args); err != nil {
		q.reportUnhandled(err)
	}
	return true
}

// DrainAll drains the queue to empty, including jobs enqueued as a side
// effect of running an earlier job in the same call (e.g. a promise
// reaction that schedules another reaction), returning the number
// executed.
func (q *Queue) DrainAll() int {
	n := 0
	for q.DrainOne() {
		n++
	}
	return n
}

// DrainUntilIdle repeatedly drains the queue; once it runs dry it blocks
// on the attached Reactor for the next readiness event (which typically
// enqueues more jobs via a promise resolving function), then resumes
// draining. Returns immediately once drained if no Reactor is attached;
// otherwise returns when a Poll call fails, or when a Poll call returns
// without running anything (ctx done, or e.g. a closed Reactor), in which
// case the result is ctx.Err() (nil if ctx is not done).
func (q *Queue) DrainUntilIdle(ctx context.Context) error {
	for {
		q.DrainAll()
		if q.reactor == nil {
			return nil
		}
		ran, err := q.reactor.Poll(ctx, -1)
		if err != nil {
			return err
		}
		if !ran {
			return ctx.Err()
		}
	}
}

func (q *Queue) reportUnhandled(err error) {
	if q.errLimiter != nil {
		if _, ok := q.errLimiter.Allow("unhandled-job-error"); !ok {
			return
		}
	}
	if q.onUnhandledError != nil {
		q.onUnhandledError(err)
	}
	if q.logger != nil {
		q.logger.Err().Err(err).Log("unhandled error escaped job execution")
	}
}
