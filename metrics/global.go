package metrics

import (
	"sync"

	"golang.org/x/exp/slices"
)

// ThreadSnapshot is a point-in-time view of one registered thread's
// counters, laid out to match formatter.cpp's per-thread text line.
type ThreadSnapshot struct {
	ThreadID          uint64
	SlotIndex         uint32
	EventsWritten     uint64
	EventsDropped     uint64
	EventsFiltered    uint64
	BytesWritten      uint64
	EventsPerSecond   float64
	BytesPerSecond    float64
	DropRatePercent   float64
	SwapCount         uint64
	SwapsPerSecond    float64
	AvgSwapDurationNs uint64
	MaxQueueDepth     uint32
}

// Totals aggregates every active thread's counters as of the last Collect.
type Totals struct {
	EventsWritten     uint64
	EventsDropped     uint64
	EventsFiltered    uint64
	BytesWritten      uint64
	ActiveThreadCount uint32
}

// Rates aggregates system-wide throughput as of the last Collect.
type Rates struct {
	EventsPerSecond float64
	BytesPerSecond  float64
	WindowNs        uint64
}

// SlotSource is the interface the global collector walks to gather
// per-thread state. registry.Registry satisfies it by duck typing so
// this package never imports registry, breaking what would otherwise be
// a registry <-> metrics import cycle (registry stores *ThreadMetrics
// per slot, metrics.Global collects across registry slots).
type SlotSource interface {
	Capacity() uint32
	GetThreadAt(slot uint32) (threadID uint64, ok bool)
	MetricsAt(slot uint32) *ThreadMetrics
	QueueDepthAt(slot uint32) uint32
}

// Global aggregates ThreadMetrics across every registered thread into a
// bounded snapshot array, mirroring ada_global_metrics_t's externally
// sized snapshot buffer — sized once at construction rather than grown.
type Global struct {
	mu         sync.Mutex
	snapshots  []ThreadSnapshot
	count      int
	totals     Totals
	rates      Rates
	intervalNs uint64
	enabled    bool
}

// NewGlobal returns a Global sized to collect at most capacity thread
// snapshots per pass.
func NewGlobal(capacity int) *Global {
	if capacity <= 0 {
		capacity = 1
	}
	return &Global{
		snapshots:  make([]ThreadSnapshot, capacity),
		intervalNs: defaultWindowDurationNs,
		enabled:    true,
	}
}

// SetInterval sets the rate-sampling window applied to every thread's
// metrics on the next Collect. Zero is ignored.
func (g *Global) SetInterval(ns uint64) {
	if ns == 0 {
		return
	}
	g.mu.Lock()
	g.intervalNs = ns
	g.mu.Unlock()
}

// SetCollectionEnabled toggles whether Collect does any work. Disabling
// it makes Collect a cheap no-op, matching the original's
// collection_enabled flag used to pause reporting without stopping the
// reporter thread.
func (g *Global) SetCollectionEnabled(enabled bool) {
	g.mu.Lock()
	g.enabled = enabled
	g.mu.Unlock()
}

// Collect walks every populated slot in source, snapshots its
// ThreadMetrics, and recomputes the aggregate totals and system-wide
// rates. It reports whether it actually collected (false if collection
// is disabled).
func (g *Global) Collect(source SlotSource, nowNs uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.enabled {
		return false
	}

	interval := g.intervalNs
	capacity := source.Capacity()
	count := 0
	var totals Totals

	for slot := uint32(0); slot < capacity && count < len(g.snapshots); slot++ {
		threadID, ok := source.GetThreadAt(slot)
		if !ok {
			continue
		}
		tm := source.MetricsAt(slot)
		if tm == nil {
			continue
		}
		tm.SetWindowDuration(interval)
		depth := source.QueueDepthAt(slot)
		snap := tm.Snapshot(nowNs, threadID, slot, depth)

		g.snapshots[count] = snap
		count++

		totals.EventsWritten += snap.EventsWritten
		totals.EventsDropped += snap.EventsDropped
		totals.EventsFiltered += snap.EventsFiltered
		totals.BytesWritten += snap.BytesWritten
	}
	totals.ActiveThreadCount = uint32(count)

	slices.SortFunc(g.snapshots[:count], func(a, b ThreadSnapshot) bool {
		return a.ThreadID < b.ThreadID
	})

	var eps, bps float64
	for _, s := range g.snapshots[:count] {
		eps += s.EventsPerSecond
		bps += s.BytesPerSecond
	}

	g.count = count
	g.totals = totals
	g.rates = Rates{EventsPerSecond: eps, BytesPerSecond: bps, WindowNs: interval}
	return true
}

// Snapshots returns the thread snapshots collected on the last Collect
// call, sorted by thread ID. The returned slice is a copy of Global's
// internal buffer, so a later Collect does not change it.
func (g *Global) Snapshots() []ThreadSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ThreadSnapshot(nil), g.snapshots[:g.count]...)
}

// Totals returns the aggregate counters from the last Collect.
func (g *Global) Totals() Totals {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totals
}

// Rates returns the system-wide throughput from the last Collect.
func (g *Global) Rates() Rates {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rates
}
