// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thorn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOOrdering(t *testing.T) {
	q := NewQueue()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		q.Enqueue(func([]Value) error {
			order = append(order, i)
			return nil
		})
	}
	assert.Equal(t, 5, q.Len())
	n := q.DrainAll()
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DrainAllPicksUpCascadedJobs(t *testing.T) {
	q := NewQueue()
	var ran []string
	q.Enqueue(func([]Value) error {
		ran = append(ran, "first")
		q.Enqueue(func([]Value) error {
			ran = append(ran, "second")
			return nil
		})
		return nil
	})
	n := q.DrainAll()
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestQueue_UnhandledErrorHook(t *testing.T) {
	var got error
	q := NewQueue(
		WithUnhandledErrorHook(func(err error) { got = err }),
		WithQueueLogger(noOpLogger()),
	)
	boom := errors.New("boom")
	q.Enqueue(func([]Value) error { return boom })
	q.DrainAll()
	require.Error(t, got)
	assert.ErrorIs(t, got, boom)
}

func TestQueue_ErrorRateLimitThrottlesHook(t *testing.T) {
	var hits int
	q := NewQueue(
		WithUnhandledErrorHook(func(error) { hits++ }),
		WithQueueLogger(noOpLogger()),
		WithErrorRateLimit(map[time.Duration]int{time.Minute: 1}),
	)
	failing := errors.New("fail")
	for i := 0; i < 5; i++ {
		q.Enqueue(func([]Value) error { return failing })
	}
	q.DrainAll()
	assert.Equal(t, 1, hits)
}

func TestQueue_DrainUntilIdleWithReactor(t *testing.T) {
	reactor := NewChanReactor(4)
	q := NewQueue(WithReactor(reactor))

	tok := reactor.RegisterToken(func(r Readiness) {
		q.Enqueue(func([]Value) error { return nil })
	})
	_ = tok

	go func() {
		time.Sleep(10 * time.Millisecond)
		reactor.Notify(Readiness{Token: tok, Value: Number(1)})
		reactor.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := q.DrainUntilIdle(ctx)
	assert.NoError(t, err)
}
