// Package drain implements component F: the single background worker
// that round-robins the thread registry, reclaiming submitted rings and
// handing them to an external writer collaborator before returning them
// to their producers. Lifecycle, cycle structure, and metric names are
// ported from tracer_backend/src/drain_thread/drain_thread.c; the
// pthread mutex/thread/join triple becomes a goroutine plus a done
// channel, and the weak-symbol test-override hooks become the
// unexported hooks struct below.
package drain

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wezzard/atfcore/lane"
	"github.com/wezzard/atfcore/registry"
	"github.com/wezzard/atfcore/ring"
)

// state is the drain worker's lifecycle state.
type state int32

const (
	uninitialized state = iota
	initialized
	running
	stopping
	stopped
)

const unbounded = ^uint32(0)

// Config holds the drain worker's tunables. Defaults match
// drain_config_default: a 1ms idle sleep, batches of 8, a fairness
// quantum of 8, and sleeping (not yielding) when idle.
type Config struct {
	PollIntervalUs  uint32
	MaxBatchSize    uint32
	FairnessQuantum uint32
	YieldOnIdle     bool
}

// DefaultConfig returns the backend's hard-coded drain defaults.
func DefaultConfig() Config {
	return Config{PollIntervalUs: 1000, MaxBatchSize: 8, FairnessQuantum: 8, YieldOnIdle: false}
}

// Writer processes a ring reclaimed from a registered thread's lane.
// The drain worker calls it once per submitted ring, before returning
// that ring to the producer's free queue; implementations that need to
// read the ring's contents must do so before returning (Process runs
// synchronously in the drain loop).
type Writer interface {
	Process(slotIndex uint32, detail bool, r *ring.Ring) error
}

// Metrics is a point-in-time export of the drain worker's counters,
// matching DrainMetrics/drain_metrics_snapshot field for field.
type Metrics struct {
	CyclesTotal      uint64
	CyclesIdle       uint64
	RingsTotal       uint64
	RingsIndex       uint64
	RingsDetail      uint64
	FairnessSwitches uint64
	Sleeps           uint64
	Yields           uint64
	FinalDrains      uint64
	TotalSleepUs     uint64
	// RingsPerThread[slot][0] is index-lane rings, [slot][1] detail-lane.
	RingsPerThread [][2]uint64
}

// hooks lets tests substitute the wall clock and sleep primitive, the
// same role the original's weak-symbol test overrides played for
// pthread/lane calls.
type hooks struct {
	nowNs func() uint64
	sleep func(time.Duration)
}

// Drain is the single background worker described in spec §4.F.
type Drain struct {
	reg    *registry.Registry
	writer Writer
	cfg    Config
	hooks  hooks

	lifecycleMu sync.Mutex
	state       atomic.Int32
	done        chan struct{}

	cursor      atomic.Uint32
	lastCycleNs atomic.Uint64

	cyclesTotal      atomic.Uint64
	cyclesIdle       atomic.Uint64
	ringsTotal       atomic.Uint64
	ringsIndex       atomic.Uint64
	ringsDetail      atomic.Uint64
	fairnessSwitches atomic.Uint64
	sleeps           atomic.Uint64
	yields           atomic.Uint64
	finalDrains      atomic.Uint64
	totalSleepUs     atomic.Uint64

	perThreadIndex  []atomic.Uint64
	perThreadDetail []atomic.Uint64
}

// New creates a Drain in state INITIALIZED, scanning reg on every
// cycle and handing reclaimed rings to writer.
func New(reg *registry.Registry, writer Writer, cfg Config) *Drain {
	if cfg.PollIntervalUs == 0 {
		cfg.PollIntervalUs = DefaultConfig().PollIntervalUs
	}
	d := &Drain{
		reg:    reg,
		writer: writer,
		cfg:    cfg,
		hooks: hooks{
			nowNs: func() uint64 { return uint64(time.Now().UnixNano()) },
			sleep: time.Sleep,
		},
		perThreadIndex:  make([]atomic.Uint64, reg.Capacity()),
		perThreadDetail: make([]atomic.Uint64, reg.Capacity()),
	}
	d.state.Store(int32(initialized))
	return d
}

var errNotInitialized = errors.New("drain: not in INITIALIZED state")

// Start transitions INITIALIZED -> RUNNING and launches the background
// worker goroutine. It returns nil if the worker is already running.
func (d *Drain) Start() error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if state(d.state.Load()) == running {
		return nil
	}
	if !d.state.CompareAndSwap(int32(initialized), int32(running)) {
		return errNotInitialized
	}
	d.done = make(chan struct{})
	go d.loop(d.done)
	return nil
}

// Stop transitions RUNNING -> STOPPING, waits for the worker to finish
// its final drain pass, and leaves the state STOPPED. Calling Stop when
// already stopped is a no-op.
func (d *Drain) Stop() error {
	d.lifecycleMu.Lock()
	cur := state(d.state.Load())
	if cur == initialized || cur == uninitialized {
		d.lifecycleMu.Unlock()
		return nil
	}
	if cur == stopped {
		d.lifecycleMu.Unlock()
		return nil
	}
	if cur == running {
		d.state.CompareAndSwap(int32(running), int32(stopping))
	}
	done := d.done
	d.lifecycleMu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

// State returns the current lifecycle state as a string, for tests and
// diagnostics.
func (d *Drain) State() string {
	switch state(d.state.Load()) {
	case uninitialized:
		return "UNINITIALIZED"
	case initialized:
		return "INITIALIZED"
	case running:
		return "RUNNING"
	case stopping:
		return "STOPPING"
	case stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

func (d *Drain) loop(done chan struct{}) {
	defer close(done)

	for state(d.state.Load()) == running {
		work := d.cycle(false)
		d.cyclesTotal.Add(1)
		if !work {
			d.cyclesIdle.Add(1)
			if d.cfg.YieldOnIdle {
				runtime.Gosched()
				d.yields.Add(1)
			} else if d.cfg.PollIntervalUs > 0 {
				d.hooks.sleep(time.Duration(d.cfg.PollIntervalUs) * time.Microsecond)
				d.sleeps.Add(1)
				d.totalSleepUs.Add(uint64(d.cfg.PollIntervalUs))
			}
		}
	}

	d.finalDrains.Add(1)
	for {
		hadWork := d.cycle(true)
		d.cyclesTotal.Add(1)
		if !hadWork {
			break
		}
	}
	d.state.Store(int32(stopped))
}

// computeEffectiveLimit mirrors compute_effective_limit: on the final
// pass the limit is unbounded; otherwise it is the smaller of
// max_batch_size and fairness_quantum, with zero on either meaning
// "use the other", and both zero meaning unbounded.
func computeEffectiveLimit(cfg Config, finalPass bool) uint32 {
	if finalPass {
		return unbounded
	}
	limit := cfg.MaxBatchSize
	quantum := cfg.FairnessQuantum
	if limit == 0 {
		limit = quantum
	} else if quantum > 0 && quantum < limit {
		limit = quantum
	}
	if limit == 0 {
		return unbounded
	}
	return limit
}

// cycle runs one round-robin pass over every registry slot, draining
// both lanes of each populated slot, and advances the cursor by one for
// next time. It reports whether any ring was processed.
func (d *Drain) cycle(finalPass bool) bool {
	capacity := d.reg.Capacity()
	if capacity == 0 {
		return false
	}

	start := d.cursor.Load()
	if start >= capacity {
		start = 0
	}

	workDone := false
	limit := computeEffectiveLimit(d.cfg, finalPass)

	for offset := uint32(0); offset < capacity; offset++ {
		slot := (start + offset) % capacity
		lanes := d.reg.LanesAt(slot)
		if lanes == nil {
			continue
		}

		processed, hitLimit := d.drainLane(slot, lanes.Index, false, limit)
		if processed > 0 {
			workDone = true
		}
		if hitLimit {
			d.fairnessSwitches.Add(1)
		}

		processed, hitLimit = d.drainLane(slot, lanes.Detail, true, limit)
		if processed > 0 {
			workDone = true
		}
		if hitLimit {
			d.fairnessSwitches.Add(1)
		}
	}

	d.cursor.Store((start + 1) % capacity)
	d.lastCycleNs.Store(d.hooks.nowNs())
	return workDone
}

// LastCycleNs returns the timestamp of the most recently completed
// cycle, for tests and liveness diagnostics.
func (d *Drain) LastCycleNs() uint64 { return d.lastCycleNs.Load() }

// drainLane pops submitted rings from l until either the queue is empty
// or limit rings have been processed, handing each to the writer before
// returning it to the producer's free queue.
func (d *Drain) drainLane(slot uint32, l *lane.Lane, detail bool, limit uint32) (processed uint32, hitLimit bool) {
	for processed < limit {
		idx, ok := l.TakeRing()
		if !ok {
			break
		}
		r := l.RingAt(idx)
		if r != nil && d.writer != nil {
			_ = d.writer.Process(slot, detail, r)
		}
		if r != nil {
			r.Reset()
		}
		d.returnRingToProducer(l, idx)
		processed++
	}

	if processed == 0 {
		return 0, limit != unbounded && processed == limit
	}

	d.ringsTotal.Add(uint64(processed))
	if detail {
		d.ringsDetail.Add(uint64(processed))
		if int(slot) < len(d.perThreadDetail) {
			d.perThreadDetail[slot].Add(uint64(processed))
		}
	} else {
		d.ringsIndex.Add(uint64(processed))
		if int(slot) < len(d.perThreadIndex) {
			d.perThreadIndex[slot].Add(uint64(processed))
		}
	}

	return processed, limit != unbounded && processed == limit
}

// returnRingToProducer retries ReturnRing under a bounded yield loop,
// then falls back to an unbounded busy-wait: the ring must never be
// lost, matching return_ring_to_producer's 1000-attempt-then-forever
// pattern.
func (d *Drain) returnRingToProducer(l *lane.Lane, idx uint32) {
	for attempt := 0; attempt < 1000; attempt++ {
		if l.ReturnRing(idx) {
			return
		}
		runtime.Gosched()
	}
	for !l.ReturnRing(idx) {
		runtime.Gosched()
	}
}

// Export returns a point-in-time snapshot of every drain counter.
func (d *Drain) Export() Metrics {
	perThread := make([][2]uint64, len(d.perThreadIndex))
	for i := range perThread {
		perThread[i][0] = d.perThreadIndex[i].Load()
		perThread[i][1] = d.perThreadDetail[i].Load()
	}
	return Metrics{
		CyclesTotal:      d.cyclesTotal.Load(),
		CyclesIdle:       d.cyclesIdle.Load(),
		RingsTotal:       d.ringsTotal.Load(),
		RingsIndex:       d.ringsIndex.Load(),
		RingsDetail:      d.ringsDetail.Load(),
		FairnessSwitches: d.fairnessSwitches.Load(),
		Sleeps:           d.sleeps.Load(),
		Yields:           d.yields.Load(),
		FinalDrains:      d.finalDrains.Load(),
		TotalSleepUs:     d.totalSleepUs.Load(),
		RingsPerThread:   perThread,
	}
}

