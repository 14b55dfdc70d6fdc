// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// registry.go is a SUPPLEMENTED FEATURE: tracking every live, still-pending
// promise via weak pointers so a host can answer "what is this script still
// waiting on?" (e.g. for an unhandled-rejection-at-exit report) without
// keeping settled promises reachable forever. Adapted from the teacher's
// weak-pointer ring-buffer registry.
package thorn

import (
	"sync"
	"weak"
)

// PromiseRegistry tracks pending promises with weak references, scavenging
// settled or garbage-collected entries in small batches rather than all at
// once, so a host can call [PromiseRegistry.Scavenge] periodically (e.g.
// once per [Queue.DrainAll] round) without a latency spike proportional to
// total promise count.
type PromiseRegistry struct {
	mu sync.RWMutex

	data map[uint64]weak.Pointer[Object]
	ring []uint64
	head int

	nextID uint64

	scavengeMu sync.Mutex
}

// NewPromiseRegistry builds an empty registry.
func NewPromiseRegistry() *PromiseRegistry {
	return &PromiseRegistry{
		data:   make(map[uint64]weak.Pointer[Object]),
		ring:   make([]uint64, 0, 256),
		nextID: 1,
	}
}

// Track registers p for weak tracking and returns its registry ID. A
// Runtime has no built-in call to this - a host wires it in, typically
// from the same place it calls [Runtime.NewPromise].
func (r *PromiseRegistry) Track(p *Object) uint64 {
	wp := weak.Make(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.data[id] = wp
	r.ring = append(r.ring, id)
	return id
}

// Len reports how many entries the registry currently holds, including
// ones that Scavenge has not yet reaped.
func (r *PromiseRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Pending returns the still-live, still-pending promises currently tracked,
// for diagnostics such as an end-of-program unhandled-promise report.
func (r *PromiseRegistry) Pending() []*Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Object, 0, len(r.data))
	for _, wp := range r.data {
		p := wp.Value()
		if p != nil && promiseState(p) == Pending {
			out = append(out, p)
		}
	}
	return out
}

// Scavenge walks up to batchSize ring slots starting from where the last
// call left off, removing entries whose promise has either been garbage
// collected or settled (a settled promise has nothing left for a pending-
// promise report to say about it). Safe to call from any single goroutine
// at a time; overlapping calls serialize rather than race.
func (r *PromiseRegistry) Scavenge(batchSize int) {
	if batchSize <= 0 {
		return
	}
	r.scavengeMu.Lock()
	defer r.scavengeMu.Unlock()

	r.mu.RLock()
	ringLen := len(r.ring)
	if ringLen == 0 {
		r.mu.RUnlock()
		return
	}
	start := r.head
	end := start + batchSize
	if end > ringLen {
		end = ringLen
	}

	type item struct {
		id  uint64
		idx int
	}
	candidates := make([]item, 0, end-start)
	for i := start; i < end; i++ {
		if id := r.ring[i]; id != 0 {
			candidates = append(candidates, item{id: id, idx: i})
		}
	}
	wps := make([]weak.Pointer[Object], len(candidates))
	for i, c := range candidates {
		wps[i] = r.data[c.id]
	}
	nextHead := end
	if nextHead >= ringLen {
		nextHead = 0
	}
	r.mu.RUnlock()

	var toRemove []item
	for i, c := range candidates {
		p := wps[i].Value()
		if p == nil || promiseState(p) != Pending {
			toRemove = append(toRemove, c)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range toRemove {
		delete(r.data, c.id)
		if c.idx < len(r.ring) && r.ring[c.idx] == c.id {
			r.ring[c.idx] = 0
		}
	}
	r.head = nextHead

	// Only worth rebuilding once a full cycle has passed (so every null
	// marker still live has had a chance to accumulate) and only once the
	// ring has grown enough, and gone sparse enough, that the rebuild's
	// cost is paid back by the space it reclaims.
	if nextHead == 0 {
		const minRingForCompaction = 256
		const compactionLoadFactor = 0.25
		if capacity := len(r.ring); capacity > minRingForCompaction &&
			float64(len(r.data)) < float64(capacity)*compactionLoadFactor {
			r.compactAndRenew()
		}
	}
}

// compactAndRenew drops null markers from ring and rebuilds data into a
// freshly allocated map. Go's delete doesn't shrink a map's backing array,
// so once Scavenge has pushed the live/capacity ratio low enough, only a
// fresh map actually reclaims the memory. Caller holds r.mu for writing.
func (r *PromiseRegistry) compactAndRenew() {
	newRing := make([]uint64, 0, len(r.data))
	newData := make(map[uint64]weak.Pointer[Object], len(r.data))
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if wp, ok := r.data[id]; ok {
			newRing = append(newRing, id)
			newData[id] = wp
		}
	}
	r.ring = newRing
	r.data = newData
	r.head = 0
}

// RejectAll force-rejects every still-pending tracked promise with reason,
// via rt (which must be the Runtime that created them), and clears the
// registry. Intended for host shutdown: a script that exits while promises
// are still pending must not leave them silently unsettled forever.
func (r *PromiseRegistry) RejectAll(rt *Runtime, reason Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, wp := range r.data {
		if p := wp.Value(); p != nil && promiseState(p) == Pending {
			rt.reject(p, reason)
		}
		delete(r.data, id)
	}
	r.ring = r.ring[:0]
	r.head = 0
}
