// Package metrics implements component G: per-thread atomic counters,
// the sliding-window rate computation over them, and the global
// collection pass that snapshots every registered thread into a
// caller-facing view. Field-for-field layout follows the original
// backend's ada_thread_metrics_snapshot_t
// (tracer_backend/src/metrics/formatter.cpp:write_thread_text_line).
package metrics

import (
	"math"
	"sync/atomic"
)

const defaultWindowDurationNs = 1_000_000_000

// ThreadMetrics holds one registered thread's atomic counters. Producers
// increment these with relaxed ordering — spec §4.G accepts losing an
// event counter by one on a shutdown race — so plain atomic adds are
// sufficient; Go gives no weaker option than that.
type ThreadMetrics struct {
	eventsWritten  atomic.Uint64
	bytesWritten   atomic.Uint64
	eventsDropped  atomic.Uint64
	eventsFiltered atomic.Uint64

	swapCount      atomic.Uint64
	swapDurationNs atomic.Uint64

	windowDurationNs atomic.Uint64
	windowSeeded     atomic.Bool
	windowStartNs    atomic.Uint64
	prevEvents       atomic.Uint64
	prevBytes        atomic.Uint64
	prevSwaps        atomic.Uint64

	cachedEPSBits  atomic.Uint64
	cachedBPSBits  atomic.Uint64
	cachedSWPSBits atomic.Uint64
}

// NewThreadMetrics returns a zeroed ThreadMetrics with the default one
// second rate window.
func NewThreadMetrics() *ThreadMetrics {
	m := &ThreadMetrics{}
	m.windowDurationNs.Store(defaultWindowDurationNs)
	return m
}

// IncEventsWritten adds n to the events-written counter.
func (m *ThreadMetrics) IncEventsWritten(n uint64) { m.eventsWritten.Add(n) }

// AddBytesWritten adds n to the bytes-written counter.
func (m *ThreadMetrics) AddBytesWritten(n uint64) { m.bytesWritten.Add(n) }

// IncEventsDropped increments the events-dropped counter by one.
func (m *ThreadMetrics) IncEventsDropped() { m.eventsDropped.Add(1) }

// IncEventsFiltered increments the events-filtered counter by one.
func (m *ThreadMetrics) IncEventsFiltered() { m.eventsFiltered.Add(1) }

// SwapToken is the opaque value SwapBegin returns and SwapEnd consumes.
type SwapToken uint64

// SwapBegin captures the start time of a ring swap.
func (m *ThreadMetrics) SwapBegin(nowNs uint64) SwapToken { return SwapToken(nowNs) }

// SwapEnd adds the elapsed duration since token was captured to the
// swap-duration accumulator and increments the swap counter.
func (m *ThreadMetrics) SwapEnd(token SwapToken, nowNs uint64) {
	if nowNs > uint64(token) {
		m.swapDurationNs.Add(nowNs - uint64(token))
	}
	m.swapCount.Add(1)
}

// SetWindowDuration sets the sliding-window length used by sampleRates.
// A zero duration is ignored.
func (m *ThreadMetrics) SetWindowDuration(ns uint64) {
	if ns == 0 {
		return
	}
	m.windowDurationNs.Store(ns)
}

func float64FromBits(b uint64) float64 { return math.Float64frombits(b) }

func (m *ThreadMetrics) cachedRates() (eps, bps, swps float64) {
	return float64FromBits(m.cachedEPSBits.Load()),
		float64FromBits(m.cachedBPSBits.Load()),
		float64FromBits(m.cachedSWPSBits.Load())
}

func (m *ThreadMetrics) storeCachedRates(eps, bps, swps float64) {
	m.cachedEPSBits.Store(math.Float64bits(eps))
	m.cachedBPSBits.Store(math.Float64bits(bps))
	m.cachedSWPSBits.Store(math.Float64bits(swps))
}

// sampleRates implements spec §4.G's sample_rate(now): if the window has
// elapsed, it recomputes events/bytes/swaps-per-second from the deltas
// since the previous sample and advances the window; otherwise it
// returns the cached rates unchanged.
func (m *ThreadMetrics) sampleRates(nowNs uint64) (eps, bps, swps float64) {
	if !m.windowSeeded.Load() {
		m.windowSeeded.Store(true)
		m.windowStartNs.Store(nowNs)
		m.prevEvents.Store(m.eventsWritten.Load())
		m.prevBytes.Store(m.bytesWritten.Load())
		m.prevSwaps.Store(m.swapCount.Load())
		return m.cachedRates()
	}

	windowStart := m.windowStartNs.Load()
	windowDuration := m.windowDurationNs.Load()
	if nowNs < windowStart || nowNs-windowStart < windowDuration {
		return m.cachedRates()
	}

	curEvents := m.eventsWritten.Load()
	curBytes := m.bytesWritten.Load()
	curSwaps := m.swapCount.Load()

	elapsedSec := float64(nowNs-windowStart) / 1e9
	if elapsedSec > 0 {
		eps = float64(curEvents-m.prevEvents.Load()) / elapsedSec
		bps = float64(curBytes-m.prevBytes.Load()) / elapsedSec
		swps = float64(curSwaps-m.prevSwaps.Load()) / elapsedSec
	}
	m.storeCachedRates(eps, bps, swps)

	m.prevEvents.Store(curEvents)
	m.prevBytes.Store(curBytes)
	m.prevSwaps.Store(curSwaps)
	m.windowStartNs.Store(nowNs)
	return eps, bps, swps
}

func (m *ThreadMetrics) dropRatePercent() float64 {
	written := m.eventsWritten.Load()
	dropped := m.eventsDropped.Load()
	total := written + dropped
	if total == 0 {
		return 0
	}
	return float64(dropped) / float64(total) * 100
}

// Snapshot renders a point-in-time view of this thread's counters,
// including the queue-depth figures the caller (the global collector)
// already knows for this slot.
func (m *ThreadMetrics) Snapshot(nowNs uint64, threadID uint64, slotIndex uint32, maxQueueDepth uint32) ThreadSnapshot {
	eps, bps, swps := m.sampleRates(nowNs)
	swapCount := m.swapCount.Load()
	var avgSwapNs uint64
	if swapCount > 0 {
		avgSwapNs = m.swapDurationNs.Load() / swapCount
	}
	return ThreadSnapshot{
		ThreadID:          threadID,
		SlotIndex:         slotIndex,
		EventsWritten:     m.eventsWritten.Load(),
		EventsDropped:     m.eventsDropped.Load(),
		EventsFiltered:    m.eventsFiltered.Load(),
		BytesWritten:      m.bytesWritten.Load(),
		EventsPerSecond:   eps,
		BytesPerSecond:    bps,
		DropRatePercent:   m.dropRatePercent(),
		SwapCount:         swapCount,
		SwapsPerSecond:    swps,
		AvgSwapDurationNs: avgSwapNs,
		MaxQueueDepth:     maxQueueDepth,
	}
}
