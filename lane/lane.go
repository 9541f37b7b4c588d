// Package lane implements component B of the tracing data path: a pool
// of K rings plus the free and submitted index queues that hand them
// back and forth between one producer goroutine and the drain goroutine.
package lane

import (
	"sync/atomic"

	"github.com/wezzard/atfcore/ring"
)

// NoRing is the sentinel returned by GetFreeRing/TakeRing when no index
// is available.
const NoRing = sentinel

// Lane bundles K rings with a free queue (indices available to the
// producer) and a submitted queue (indices published to the drain).
// Invariant: every ring index in [0, K) is in exactly one of {free
// queue, submitted queue, active slot} at any instant; the union's size
// is exactly K.
type Lane struct {
	rings     []*ring.Ring
	free      *indexQueue
	submitted *indexQueue
	active    atomic.Uint32
}

// New creates a Lane with k rings (k >= 2), each of the given ring
// capacity and record size. Ring index 0 starts out active; the
// remaining k-1 indices start in the free queue.
func New(k int, ringCapacity, recordSize uint32) *Lane {
	if k < 2 {
		panic("lane: k must be at least 2")
	}
	l := &Lane{
		rings:     make([]*ring.Ring, k),
		free:      newIndexQueue(uint32(k)),
		submitted: newIndexQueue(uint32(k)),
	}
	for i := 0; i < k; i++ {
		l.rings[i] = ring.New(ringCapacity, recordSize)
	}
	l.active.Store(0)
	for i := 1; i < k; i++ {
		l.free.push(uint32(i))
	}
	return l
}

// Count returns K, the number of rings in the lane.
func (l *Lane) Count() int { return len(l.rings) }

// RingAt returns the ring at the given index, or nil if idx is out of
// range.
func (l *Lane) RingAt(idx uint32) *ring.Ring {
	if idx >= uint32(len(l.rings)) {
		return nil
	}
	return l.rings[idx]
}

// ActiveIdx returns the index of the ring the producer is currently
// writing to.
func (l *Lane) ActiveIdx() uint32 { return l.active.Load() }

// SetActiveIdx records the index of the ring the producer is now writing
// to. Only the owning producer calls this.
func (l *Lane) SetActiveIdx(idx uint32) { l.active.Store(idx) }

// ActiveRing returns the ring the producer is currently writing to.
func (l *Lane) ActiveRing() *ring.Ring { return l.rings[l.active.Load()] }

// GetFreeRing pops an index from the free queue. It returns (NoRing,
// false) when the queue is empty.
func (l *Lane) GetFreeRing() (uint32, bool) { return l.free.pop() }

// ReturnRing pushes idx back into the free queue. It returns false only
// under transient contention; callers that must not lose the ring retry
// (spec §4.F: bounded yield then busy-wait, implemented by the drain
// package, not here).
func (l *Lane) ReturnRing(idx uint32) bool { return l.free.push(idx) }

// SubmitRing pushes idx into the submitted queue, publishing it to the
// drain goroutine.
func (l *Lane) SubmitRing(idx uint32) bool { return l.submitted.push(idx) }

// TakeRing pops an index from the submitted queue. It returns (NoRing,
// false) when the queue is empty. The drain goroutine calls this on
// every cycle; the pool package's exhaustion handler also calls it,
// rarely, to reclaim a ring when the free queue is empty — the
// submitted queue is safe for both to pop from concurrently.
func (l *Lane) TakeRing() (uint32, bool) { return l.submitted.pop() }

// FreeCount returns an approximate count of rings currently in the free
// queue, used by the backpressure state machine's pool-occupancy sample.
func (l *Lane) FreeCount() uint32 { return l.free.len() }

// SubmittedCount returns an approximate count of rings currently
// awaiting drain, exposed for the queue-depth metric (spec §4.G).
func (l *Lane) SubmittedCount() uint32 { return l.submitted.len() }

// Reset restores the lane to its just-constructed layout: every ring
// cleared, index 0 active, and the remaining K-1 indices back in the
// free queue with nothing submitted. Callers (the registry, on slot
// reuse) must ensure no producer or drain goroutine is still touching
// this lane when calling Reset.
func (l *Lane) Reset() {
	for _, r := range l.rings {
		r.Reset()
	}
	k := uint32(len(l.rings))
	l.free = newIndexQueue(k)
	l.submitted = newIndexQueue(k)
	l.active.Store(0)
	for i := uint32(1); i < k; i++ {
		l.free.push(i)
	}
}

