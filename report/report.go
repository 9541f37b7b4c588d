// Package report implements component H: an interval-driven background
// reporter that periodically snapshots metrics.Global into a ReportView
// and pushes it through pluggable sinks (a text writer, an appended
// JSON file, and an arbitrary callback). Lifecycle and report-kind
// semantics are ported from
// tracer_backend/src/metrics/metrics_reporter.cpp's reporter_thread_main
// and emit_report; Go has no pthread_cond_timedwait equivalent on
// sync.Cond, so the mutex-guarded flags plus condition-variable wait are
// reified here as a mutex-guarded flag set plus a buffered wake channel
// that a timer-driven select races against, which gives the same
// wait/notify shape without a busy poll.
package report

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/wezzard/atfcore/internal/alog"
	"github.com/wezzard/atfcore/metrics"
)

// Kind distinguishes why a report was emitted.
type Kind int

const (
	Periodic Kind = iota
	Forced
	Summary
)

func (k Kind) String() string {
	switch k {
	case Periodic:
		return "periodic"
	case Forced:
		return "forced"
	case Summary:
		return "summary"
	default:
		return "unknown"
	}
}

const defaultReportIntervalMs = 5000

// ReportView is the immutable value passed to every sink on each emit.
type ReportView struct {
	TimestampNs uint64
	Kind        Kind
	Totals      metrics.Totals
	Rates       metrics.Rates
	Snapshots   []metrics.ThreadSnapshot
}

// Sink receives every emitted report, in addition to the text/JSON
// outputs Config configures directly.
type Sink func(view ReportView)

// Config configures a Reporter. Registry is required; every other field
// has a zero-value-safe default.
type Config struct {
	Registry         metrics.SlotSource
	ReportIntervalMs uint64
	StartPaused      bool
	OutputWriter     io.Writer
	JSONOutputPath   string
	Sink             Sink
	SnapshotCapacity int
}

// hooks lets in-package tests substitute the wall clock, mirroring the
// original's ADA_TESTING timedwait/collect-failure injection points.
type hooks struct {
	nowNs            func() uint64
	forceCollectFail bool
}

// Reporter is the background metrics reporter described in spec §4.H.
type Reporter struct {
	cfg    Config
	global *metrics.Global
	log    *alog.Logger
	hooks  hooks

	mu             sync.Mutex
	threadStarted  bool
	running        bool
	paused         bool
	forceRequested bool
	summaryEmitted bool
	intervalMs     uint64
	jsonPath       string

	wake       chan struct{}
	shutdownCh chan struct{}
	done       chan struct{}
}

// New creates a Reporter over cfg. The background goroutine is not
// started until the first call to Start.
func New(cfg Config) *Reporter {
	interval := cfg.ReportIntervalMs
	if interval == 0 {
		interval = defaultReportIntervalMs
	}
	capacity := cfg.SnapshotCapacity
	if capacity <= 0 {
		capacity = 256
	}
	if cfg.OutputWriter == nil {
		cfg.OutputWriter = os.Stderr
	}

	r := &Reporter{
		cfg:        cfg,
		global:     metrics.NewGlobal(capacity),
		log:        alog.New("report"),
		paused:     cfg.StartPaused,
		intervalMs: interval,
		jsonPath:   cfg.JSONOutputPath,
		wake:       make(chan struct{}, 1),
	}
	r.hooks.nowNs = func() uint64 { return uint64(time.Now().UnixNano()) }
	r.global.SetInterval(interval * 1_000_000)
	return r
}

func (r *Reporter) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start launches the background goroutine on first call. Later calls
// only set the running flag again and wake the goroutine; they do not
// clear a prior Pause.
func (r *Reporter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = true
	if !r.threadStarted {
		r.threadStarted = true
		r.shutdownCh = make(chan struct{})
		r.done = make(chan struct{})
		go r.loop()
		return nil
	}
	r.notify()
	return nil
}

// Stop signals the background goroutine to shut down, waits for it to
// emit its one-and-only SUMMARY report, and returns. If the background
// goroutine was never started, Stop emits that SUMMARY itself instead of
// skipping it: a reporter that stops before starting still owes exactly
// one SUMMARY. Calling Stop twice is a no-op.
func (r *Reporter) Stop() error {
	r.mu.Lock()
	if !r.threadStarted {
		r.mu.Unlock()
		r.emit(Summary)
		return nil
	}
	select {
	case <-r.shutdownCh:
		r.mu.Unlock()
		return nil
	default:
		close(r.shutdownCh)
	}
	done := r.done
	r.mu.Unlock()

	<-done
	return nil
}

// Pause suppresses periodic reports until Resume is called; forced
// reports still fire while paused.
func (r *Reporter) Pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

// Resume clears a prior Pause.
func (r *Reporter) Resume() {
	r.mu.Lock()
	r.paused = false
	r.notify()
	r.mu.Unlock()
}

// IsPaused reports whether periodic reporting is currently suppressed.
func (r *Reporter) IsPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// ForceReport requests an out-of-band FORCED report as soon as the
// background goroutine next wakes, bypassing both the pause flag and
// the remaining wait on the periodic interval.
func (r *Reporter) ForceReport() {
	r.mu.Lock()
	r.forceRequested = true
	r.notify()
	r.mu.Unlock()
}

// SetInterval changes the periodic report interval, taking effect on
// the next wait cycle.
func (r *Reporter) SetInterval(ms uint64) {
	if ms == 0 {
		return
	}
	r.mu.Lock()
	r.intervalMs = ms
	r.mu.Unlock()
	r.global.SetInterval(ms * 1_000_000)
}

// EnableJSONOutput sets (or clears, with an empty path) the file every
// report is additionally appended to as JSON.
func (r *Reporter) EnableJSONOutput(path string) {
	r.mu.Lock()
	r.jsonPath = path
	r.mu.Unlock()
}

func (r *Reporter) currentIntervalMs() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intervalMs
}

// loop mirrors reporter_thread_main: wait for running, wait through any
// pause (unless a force is pending), race a periodic timer against a
// wake notification, and always end with exactly one SUMMARY report.
func (r *Reporter) loop() {
	defer close(r.done)

	for {
		if r.waitFor(func() bool { return r.running }) {
			goto summary
		}
		if r.waitFor(func() bool { return !r.paused || r.forceRequested }) {
			goto summary
		}

		r.mu.Lock()
		if r.forceRequested {
			r.forceRequested = false
			r.mu.Unlock()
			r.emit(Forced)
			continue
		}
		r.mu.Unlock()

		timer := time.NewTimer(time.Duration(r.currentIntervalMs()) * time.Millisecond)
		var timedOut bool
		select {
		case <-timer.C:
			timedOut = true
		case <-r.wake:
			timer.Stop()
		case <-r.shutdownCh:
			timer.Stop()
		}
		if !timedOut {
			select {
			case <-r.shutdownCh:
				goto summary
			default:
			}
			continue
		}

		r.mu.Lock()
		select {
		case <-r.shutdownCh:
			r.mu.Unlock()
			goto summary
		default:
		}
		if !r.running {
			r.mu.Unlock()
			continue
		}
		if r.paused && !r.forceRequested {
			r.mu.Unlock()
			continue
		}
		forced := r.forceRequested
		r.forceRequested = false
		r.mu.Unlock()

		kind := Periodic
		if forced {
			kind = Forced
		}
		r.emit(kind)
	}

summary:
	r.emit(Summary)
}

// waitFor blocks until pred() is true or shutdown is signaled, without
// holding the lock while parked. It reports whether shutdown fired.
func (r *Reporter) waitFor(pred func() bool) (shutdown bool) {
	for {
		select {
		case <-r.shutdownCh:
			return true
		default:
		}
		r.mu.Lock()
		ok := pred()
		r.mu.Unlock()
		if ok {
			return false
		}
		select {
		case <-r.shutdownCh:
			return true
		case <-r.wake:
		}
	}
}

// emit runs one collection pass and pushes the resulting view through
// every configured sink. Summary reports are emitted at most once per
// Reporter lifetime.
func (r *Reporter) emit(kind Kind) bool {
	if kind == Summary {
		r.mu.Lock()
		if r.summaryEmitted {
			r.mu.Unlock()
			return true
		}
		r.mu.Unlock()
	}

	if r.hooks.forceCollectFail {
		return false
	}

	now := r.hooks.nowNs()
	if !r.global.Collect(r.cfg.Registry, now) {
		return false
	}

	view := ReportView{
		TimestampNs: now,
		Kind:        kind,
		Totals:      r.global.Totals(),
		Rates:       r.global.Rates(),
		Snapshots:   r.global.Snapshots(),
	}

	if r.cfg.OutputWriter != nil {
		if err := writeText(r.cfg.OutputWriter, view); err != nil {
			r.log.Warn("failed to write text report: %v", err)
		}
	}

	r.mu.Lock()
	jsonPath := r.jsonPath
	r.mu.Unlock()
	if jsonPath != "" {
		if err := appendJSON(jsonPath, view); err != nil {
			r.log.Warn("failed to append JSON report to %s: %v", jsonPath, err)
		}
	}

	if r.cfg.Sink != nil {
		r.cfg.Sink(view)
	}

	if kind == Summary {
		r.mu.Lock()
		r.summaryEmitted = true
		r.mu.Unlock()
	}
	return true
}
