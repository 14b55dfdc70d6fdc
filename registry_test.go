// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package thorn

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromiseRegistry_TrackAndPending(t *testing.T) {
	rt, _ := newTestRuntime()
	r := NewPromiseRegistry()

	pending, err := rt.NewPromise(func(Value, []Value) (Value, error) { return Null{}, nil })
	require.NoError(t, err)
	r.Track(pending)

	capability, err := rt.NewPromiseCapability(rt.PromiseConstructor())
	require.NoError(t, err)
	capability.Resolve(Number(1))
	r.Track(capability.PromiseValue())

	assert.Equal(t, 2, r.Len())
	got := r.Pending()
	require.Len(t, got, 1)
	assert.Same(t, pending, got[0])
}

func TestPromiseRegistry_ScavengeRemovesSettledEntries(t *testing.T) {
	rt, _ := newTestRuntime()
	r := NewPromiseRegistry()

	capability, err := rt.NewPromiseCapability(rt.PromiseConstructor())
	require.NoError(t, err)
	id := r.Track(capability.PromiseValue())
	capability.Resolve(Number(1))

	r.Scavenge(100)

	r.mu.RLock()
	_, found := r.data[id]
	r.mu.RUnlock()
	assert.False(t, found, "settled promise should have been scavenged")
}

func TestPromiseRegistry_ScavengeLeavesPendingEntries(t *testing.T) {
	rt, _ := newTestRuntime()
	r := NewPromiseRegistry()

	capability, err := rt.NewPromiseCapability(rt.PromiseConstructor())
	require.NoError(t, err)
	id := r.Track(capability.PromiseValue())

	r.Scavenge(100)

	r.mu.RLock()
	_, found := r.data[id]
	r.mu.RUnlock()
	assert.True(t, found, "pending promise must survive a scavenge pass")
}

func TestPromiseRegistry_ScavengeBatchesAcrossCalls(t *testing.T) {
	rt, _ := newTestRuntime()
	r := NewPromiseRegistry()

	for i := 0; i < 10; i++ {
		capability, err := rt.NewPromiseCapability(rt.PromiseConstructor())
		require.NoError(t, err)
		capability.Resolve(Number(int64(i)))
		r.Track(capability.PromiseValue())
	}

	r.Scavenge(4)
	assert.Equal(t, 6, r.Len())
	r.Scavenge(4)
	assert.Equal(t, 2, r.Len())
	r.Scavenge(4)
	assert.Equal(t, 0, r.Len())
}

func TestPromiseRegistry_CompactAndRenewTriggersPastLoadFactorThreshold(t *testing.T) {
	rt, _ := newTestRuntime()
	r := NewPromiseRegistry()

	const count = 1024
	for i := 0; i < count; i++ {
		capability, err := rt.NewPromiseCapability(rt.PromiseConstructor())
		require.NoError(t, err)
		capability.Resolve(Number(int64(i)))
		r.Track(capability.PromiseValue())
	}

	// One full cycle, scavenging everything: load factor drops to 0, well
	// under the 25% threshold, so compactAndRenew runs and the ring shrinks
	// down to just the live (here: zero) entries instead of keeping count
	// null markers around.
	r.Scavenge(count)

	assert.Equal(t, 0, r.Len())
	r.mu.RLock()
	ringLen := len(r.ring)
	r.mu.RUnlock()
	assert.Less(t, ringLen, count, "compactAndRenew should have shrunk the ring")
}

func TestPromiseRegistry_RejectAllSettlesPendingAndClears(t *testing.T) {
	rt, q := newTestRuntime()
	r := NewPromiseRegistry()

	capability, err := rt.NewPromiseCapability(rt.PromiseConstructor())
	require.NoError(t, err)
	r.Track(capability.PromiseValue())

	already, err := rt.StaticResolve(Number(1))
	require.NoError(t, err)
	q.DrainAll()
	r.Track(already)

	reason := errorValue(&TimeoutError{Message: "shutting down"})
	r.RejectAll(rt, reason)

	assert.Equal(t, Rejected, promiseState(capability.PromiseValue()))
	assert.Equal(t, Fulfilled, promiseState(already), "already-settled promises are untouched")
	assert.Equal(t, 0, r.Len())
}

func TestPromiseRegistry_ConcurrentTrackAndScavenge(t *testing.T) {
	rt, _ := newTestRuntime()
	r := NewPromiseRegistry()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				capability, err := rt.NewPromiseCapability(rt.PromiseConstructor())
				if err != nil {
					panic(err)
				}
				r.Track(capability.PromiseValue())
			}
		}()
	}

	stop := make(chan struct{})
	var scavengerWG sync.WaitGroup
	scavengerWG.Add(1)
	go func() {
		defer scavengerWG.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Scavenge(8)
				runtime.Gosched()
			}
		}
	}()

	wg.Wait()
	close(stop)
	scavengerWG.Wait()

	assert.Equal(t, producers*perProducer, r.Len())
}
