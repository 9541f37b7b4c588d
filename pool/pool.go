// Package pool implements component E: the producer-side helper that
// wraps a lane, choosing which ring to write into, swapping to a free
// ring when the active one fills, and reclaiming space from the
// backpressure state machine when the lane is fully exhausted. The
// control flow (swap, retry once, drop) follows spec §4.E; there is no
// original_source file for this component to port line-for-line, so it
// is written in the same style as backpressure/state.go: small atomic
// counters and no locks.
package pool

import (
	"sync/atomic"

	"github.com/wezzard/atfcore/backpressure"
	"github.com/wezzard/atfcore/lane"
	"github.com/wezzard/atfcore/metrics"
)

// Pool is a per-thread producer-side wrapper around one lane.
type Pool struct {
	lane *lane.Lane
	bp   *backpressure.State
	tm   *metrics.ThreadMetrics

	nowNs        func() uint64
	swapsDropped atomic.Uint64
}

// New wraps lane l with backpressure state bp and metrics sink tm. nowNs
// supplies the current time in nanoseconds; callers in tests typically
// pass a fake clock.
func New(l *lane.Lane, bp *backpressure.State, tm *metrics.ThreadMetrics, nowNs func() uint64) *Pool {
	bp.SetTotalRings(uint32(l.Count()))
	return &Pool{lane: l, bp: bp, tm: tm, nowNs: nowNs}
}

func (p *Pool) sampleBackpressure() {
	p.bp.Sample(p.lane.FreeCount(), p.nowNs())
}

// SwapActive publishes the currently active ring to the submitted queue
// and acquires a new active ring from the free queue. On success it
// reports the previous active index in prevIdx and returns true. If
// no free ring is available it calls HandleExhaustion once and retries;
// if that also fails, it returns false and the caller must drop the
// pending write.
func (p *Pool) SwapActive() (prevIdx uint32, ok bool) {
	prevIdx = p.lane.ActiveIdx()

	newIdx, gotFree := p.lane.GetFreeRing()
	if !gotFree {
		if !p.HandleExhaustion() {
			p.sampleBackpressure()
			return prevIdx, false
		}
		newIdx, gotFree = p.lane.GetFreeRing()
		if !gotFree {
			p.sampleBackpressure()
			return prevIdx, false
		}
	}

	token := p.tm.SwapBegin(p.nowNs())
	p.lane.SubmitRing(prevIdx)
	p.lane.SetActiveIdx(newIdx)
	p.tm.SwapEnd(token, p.nowNs())
	p.sampleBackpressure()
	return prevIdx, true
}

// HandleExhaustion reclaims a ring when the free queue is empty. It
// takes the oldest submitted ring away from the drain thread's normal
// path, drops its oldest record to account for the discarded data, then
// resets and returns the whole ring to the free queue — the "discards
// the entire ring" branch of spec §4.E, chosen because a partial
// reclaim (dropping a single record but leaving the ring submitted)
// would not actually produce a free ring for the caller's retry. It
// notifies the backpressure state machine either way and returns true
// iff a ring was actually reclaimed.
func (p *Pool) HandleExhaustion() bool {
	now := p.nowNs()
	p.bp.OnExhaustion(now)

	idx, ok := p.lane.TakeRing()
	if !ok {
		return false
	}
	r := p.lane.RingAt(idx)
	if r == nil {
		return false
	}
	r.DropOldest()
	recordSize := r.RecordSize()
	r.Reset()

	p.tm.IncEventsDropped()
	p.bp.OnDrop(uint64(recordSize), now)
	p.swapsDropped.Add(1)
	p.lane.ReturnRing(idx)
	return true
}

// WriteRecord writes payload (exactly RecordSize bytes for the active
// ring) into the active ring, swapping to a fresh ring and retrying
// once if the active ring is full. It returns false, incrementing
// events_dropped, if the write cannot be completed even after a swap.
func (p *Pool) WriteRecord(payload []byte) bool {
	if p.lane.ActiveRing().Write(payload) {
		p.tm.IncEventsWritten(1)
		p.tm.AddBytesWritten(uint64(len(payload)))
		return true
	}

	if _, ok := p.SwapActive(); !ok {
		p.tm.IncEventsDropped()
		return false
	}

	if p.lane.ActiveRing().Write(payload) {
		p.tm.IncEventsWritten(1)
		p.tm.AddBytesWritten(uint64(len(payload)))
		return true
	}

	p.tm.IncEventsDropped()
	return false
}

// DroppedByExhaustion returns the number of rings this pool has
// reclaimed via HandleExhaustion, for tests and diagnostics.
func (p *Pool) DroppedByExhaustion() uint64 { return p.swapsDropped.Load() }
