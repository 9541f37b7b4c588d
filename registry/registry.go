// Package registry implements component C: a fixed-capacity slot table
// mapping a registered thread's identity to its ThreadLaneSet and
// ThreadMetrics. Slot claiming/releasing follows the CAS-guarded
// used-flag pattern the original backend uses in
// tracer_backend/src/registry_selector.rs's C implementation path,
// generalized here into the single Go implementation (there is no
// C/C++ selector to make in this port).
package registry

import (
	"sync/atomic"

	"github.com/wezzard/atfcore/lane"
	"github.com/wezzard/atfcore/metrics"
	"github.com/wezzard/atfcore/record"
	"github.com/wezzard/atfcore/ring"
)

// ThreadLaneSet bundles the two lanes spec §3 assigns to every
// registered thread: the index lane (small function entry/exit/sample
// records) and the detail lane (larger stack-snapshot records).
type ThreadLaneSet struct {
	Index  *lane.Lane
	Detail *lane.Lane
}

// newThreadLaneSet builds a lane set with ringsPerLane rings of
// ringCapacity slots each (ringCapacity-1 usable records), one lane
// sized for index records and one for detail records.
func newThreadLaneSet(ringsPerLane int, ringCapacity uint32) *ThreadLaneSet {
	return &ThreadLaneSet{
		Index:  lane.New(ringsPerLane, ringCapacity, record.IndexRecordSize),
		Detail: lane.New(ringsPerLane, ringCapacity, record.DetailRecordSize),
	}
}

type slot struct {
	used     atomic.Bool
	threadID atomic.Uint64
	lanes    *ThreadLaneSet
	metrics  *metrics.ThreadMetrics
}

// Registry is the fixed-capacity, fixed-at-construction slot table.
// Capacity never changes after New; slots are claimed by Register and
// released by Unregister, and a claimed slot is never relocated.
type Registry struct {
	slots        []slot
	ringsPerLane int
	ringCapacity uint32
}

// New allocates a Registry with the given slot capacity. Each slot's
// lanes hold ringsPerLane rings of ringCapacity slots; both lanes of
// every slot are pre-allocated up front, mirroring the original's
// externally-provided byte arena — there is no per-register allocation
// on the hot path.
func New(capacity int, ringsPerLane int, ringCapacity uint32) *Registry {
	if capacity <= 0 {
		panic("registry: capacity must be positive")
	}
	r := &Registry{
		slots:        make([]slot, capacity),
		ringsPerLane: ringsPerLane,
		ringCapacity: ringCapacity,
	}
	for i := range r.slots {
		r.slots[i].lanes = newThreadLaneSet(ringsPerLane, ringCapacity)
		r.slots[i].metrics = metrics.NewThreadMetrics()
	}
	return r
}

// Capacity returns the fixed slot count.
func (r *Registry) Capacity() uint32 { return uint32(len(r.slots)) }

// Register claims the first empty slot for threadID, resets its lane
// set to a clean state, and returns the slot index and lane set. ok is
// false when every slot is occupied; callers must silently drop events
// for the calling thread in that case, per spec §4.C.
func (r *Registry) Register(threadID uint64) (slotIndex uint32, lanes *ThreadLaneSet, metricsHandle *metrics.ThreadMetrics, ok bool) {
	for i := range r.slots {
		s := &r.slots[i]
		if !s.used.CompareAndSwap(false, true) {
			continue
		}
		s.threadID.Store(threadID)
		s.lanes.Index.Reset()
		s.lanes.Detail.Reset()
		return uint32(i), s.lanes, s.metrics, true
	}
	return 0, nil, nil, false
}

// Unregister releases slotIndex, but only once both lanes have fully
// quiesced: nothing left in the submitted queue and no ring currently
// active-but-unsubmitted beyond the one always-active slot. Per spec
// §4.C the caller is responsible for having stopped producing before
// calling this; Unregister itself only waits for the drain side to
// finish emptying what's already submitted.
func (r *Registry) Unregister(slotIndex uint32) bool {
	if slotIndex >= uint32(len(r.slots)) {
		return false
	}
	s := &r.slots[slotIndex]
	if !s.used.Load() {
		return false
	}
	for s.lanes.Index.SubmittedCount() > 0 || s.lanes.Detail.SubmittedCount() > 0 {
		// The drain thread is expected to be running concurrently and
		// will empty these queues; busy-wait is bounded by how far
		// behind the drain cycle currently is.
	}
	s.threadID.Store(0)
	s.used.Store(false)
	return true
}

// GetThreadAt returns the thread identity registered at slotIndex, and
// whether that slot is currently occupied.
func (r *Registry) GetThreadAt(slotIndex uint32) (uint64, bool) {
	if slotIndex >= uint32(len(r.slots)) {
		return 0, false
	}
	s := &r.slots[slotIndex]
	if !s.used.Load() {
		return 0, false
	}
	return s.threadID.Load(), true
}

// LanesAt returns the ThreadLaneSet occupying slotIndex, or nil if the
// slot is currently free.
func (r *Registry) LanesAt(slotIndex uint32) *ThreadLaneSet {
	if slotIndex >= uint32(len(r.slots)) {
		return nil
	}
	s := &r.slots[slotIndex]
	if !s.used.Load() {
		return nil
	}
	return s.lanes
}

// GetRingHeaderByIdx returns the header of ring idx in the requested
// lane at slotIndex (detail=false selects the index lane, true the
// detail lane), and whether the slot/index pair is valid.
func (r *Registry) GetRingHeaderByIdx(slotIndex uint32, detail bool, ringIdx uint32) (ring.Header, bool) {
	lanes := r.LanesAt(slotIndex)
	if lanes == nil {
		return ring.Header{}, false
	}
	l := lanes.Index
	if detail {
		l = lanes.Detail
	}
	ringPtr := l.RingAt(ringIdx)
	if ringPtr == nil {
		return ring.Header{}, false
	}
	return ringPtr.Header(), true
}

// metrics.SlotSource implementation. QueueDepthAt reports the maximum
// of the two lanes' submitted-queue depth, matching the original's
// single "queue depth" figure per thread reported in text output.

// Capacity, GetThreadAt already satisfy the shape metrics.SlotSource
// needs; MetricsAt and QueueDepthAt close it out.

// MetricsAt returns the ThreadMetrics handle for slotIndex, or nil if
// unoccupied, satisfying metrics.SlotSource.
func (r *Registry) MetricsAt(slotIndex uint32) *metrics.ThreadMetrics {
	if slotIndex >= uint32(len(r.slots)) {
		return nil
	}
	s := &r.slots[slotIndex]
	if !s.used.Load() {
		return nil
	}
	return s.metrics
}

// QueueDepthAt returns the larger of the two lanes' submitted-queue
// depth for slotIndex, satisfying metrics.SlotSource.
func (r *Registry) QueueDepthAt(slotIndex uint32) uint32 {
	lanes := r.LanesAt(slotIndex)
	if lanes == nil {
		return 0
	}
	idxDepth := lanes.Index.SubmittedCount()
	detDepth := lanes.Detail.SubmittedCount()
	if detDepth > idxDepth {
		return detDepth
	}
	return idxDepth
}
