// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thorn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanReactor_DispatchesToRegisteredHandler(t *testing.T) {
	r := NewChanReactor(1)
	var got Readiness
	tok := r.RegisterToken(func(rd Readiness) { got = rd })

	r.Notify(Readiness{Token: tok, Value: Number(42)})

	ctx := context.Background()
	ran, err := r.Poll(ctx, -1)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, Number(42), got.Value)
}

func TestChanReactor_UnregisterStopsDelivery(t *testing.T) {
	r := NewChanReactor(2)
	called := false
	tok := r.RegisterToken(func(Readiness) { called = true })
	r.UnregisterToken(tok)

	r.Notify(Readiness{Token: tok, Value: Number(1)})

	ran, err := r.Poll(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ran) // the event is still dequeued...
	assert.False(t, called) // ...but no handler is registered to receive it
}

func TestChanReactor_PollRespectsContextCancellation(t *testing.T) {
	r := NewChanReactor(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran, err := r.Poll(ctx, -1)
	assert.False(t, ran)
	assert.Error(t, err)
}

func TestChanReactor_PollTimesOut(t *testing.T) {
	r := NewChanReactor(1)
	ran, err := r.Poll(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestChanReactor_CloseIsIdempotentAndStopsNotify(t *testing.T) {
	r := NewChanReactor(1)
	r.Close()
	r.Close() // must not panic
	r.Notify(Readiness{Value: Number(1)}) // must not panic/block
}
