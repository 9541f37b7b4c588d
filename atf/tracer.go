package atf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/wezzard/atfcore/backpressure"
	"github.com/wezzard/atfcore/drain"
	"github.com/wezzard/atfcore/manifest"
	"github.com/wezzard/atfcore/pool"
	"github.com/wezzard/atfcore/record"
	"github.com/wezzard/atfcore/registry"
	"github.com/wezzard/atfcore/report"
)

// Config controls a Tracer's shape. Every field has a zero-value-safe
// default applied by New.
type Config struct {
	SessionDir       string
	MaxThreads       int
	RingsPerLane     int
	RingCapacity     uint32
	Backpressure     backpressure.Config
	DrainConfig      drain.Config
	ReportIntervalMs uint64
}

func nowNs() uint64 { return uint64(time.Now().UnixNano()) }

// Tracer is the facade a host process embeds: Register/Unregister a
// calling goroutine, write index/detail events through the returned
// handle, and read aggregate metrics via Reporter.
type Tracer struct {
	cfg      Config
	reg      *registry.Registry
	drainW   *drain.Drain
	reporter *report.Reporter
	writer   *FileWriter
	manifest *manifest.Builder

	mu      sync.Mutex
	started bool
	pools   map[uint64]*threadPools
}

type threadPools struct {
	slot   uint32
	index  *pool.Pool
	detail *pool.Pool
	bpIdx  *backpressure.State
	bpDet  *backpressure.State
}

// New wires a Tracer from cfg, creating the session directory's
// FileWriter and preparing (but not starting) the drain goroutine and
// reporter.
func New(cfg Config) (*Tracer, error) {
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = 64
	}
	if cfg.RingsPerLane <= 0 {
		cfg.RingsPerLane = 4
	}
	if cfg.RingCapacity == 0 {
		cfg.RingCapacity = 1024
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = filepath.Join(os.TempDir(), fmt.Sprintf("atfcore-session-%d", os.Getpid()))
	}

	reg := registry.New(cfg.MaxThreads, cfg.RingsPerLane, cfg.RingCapacity)
	w, err := NewFileWriter(cfg.SessionDir)
	if err != nil {
		return nil, err
	}
	d := drain.New(reg, w, cfg.DrainConfig)
	rep := report.New(report.Config{
		Registry:         reg,
		ReportIntervalMs: cfg.ReportIntervalMs,
		JSONOutputPath:   filepath.Join(cfg.SessionDir, "metrics.jsonl"),
	})

	return &Tracer{
		cfg:      cfg,
		reg:      reg,
		drainW:   d,
		reporter: rep,
		writer:   w,
		manifest: manifest.NewBuilder(),
		pools:    make(map[uint64]*threadPools),
	}, nil
}

// Start launches the drain goroutine and the reporter's background
// loop.
func (t *Tracer) Start() error {
	t.manifest.SetSession(manifest.Session{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		PID:         os.Getpid(),
		SessionID:   fmt.Sprintf("%d-%d", os.Getpid(), nowNs()),
		TimeStartNs: nowNs(),
	})
	if err := t.drainW.Start(); err != nil {
		return err
	}
	if err := t.reporter.Start(); err != nil {
		return err
	}
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
	return nil
}

// Stop stops the reporter (which emits its final SUMMARY) and then the
// drain goroutine (which runs its final pass), then writes manifest.json
// and closes every open lane file. The SUMMARY is emitted before the
// drain's final pass; its counters are the producer-side ones, which the
// drain does not update.
func (t *Tracer) Stop() error {
	if err := t.reporter.Stop(); err != nil {
		return err
	}
	if err := t.drainW.Stop(); err != nil {
		return err
	}

	m := t.manifest.Build()
	m.Session.TimeEndNs = nowNs()
	if err := m.Validate(); err != nil {
		return err
	}
	if err := writeManifestFile(filepath.Join(t.cfg.SessionDir, "manifest.json"), m); err != nil {
		return err
	}
	return t.writer.Close()
}

// Register claims a registry slot for the calling goroutine's logical
// thread ID and returns a Handle for writing events, or ok=false if the
// registry is full.
func (t *Tracer) Register(threadID uint64) (h Handle, ok bool) {
	slot, lanes, tm, ok := t.reg.Register(threadID)
	if !ok {
		return Handle{}, false
	}

	bpIdx := backpressure.NewState(t.cfg.Backpressure)
	bpDet := backpressure.NewState(t.cfg.Backpressure)

	tp := &threadPools{
		slot:   slot,
		index:  pool.New(lanes.Index, bpIdx, tm, nowNs),
		detail: pool.New(lanes.Detail, bpDet, tm, nowNs),
		bpIdx:  bpIdx,
		bpDet:  bpDet,
	}

	t.mu.Lock()
	t.pools[threadID] = tp
	t.mu.Unlock()

	return Handle{threadID: threadID, slot: slot, index: tp.index, detail: tp.detail}, true
}

// Unregister releases threadID's registry slot once its lanes have
// quiesced.
func (t *Tracer) Unregister(threadID uint64) bool {
	t.mu.Lock()
	tp, ok := t.pools[threadID]
	if ok {
		delete(t.pools, threadID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	return t.reg.Unregister(tp.slot)
}

// RegisterSymbol records a resolvable function in the session manifest,
// returning its function_id for embedding in index-lane records.
func (t *Tracer) RegisterSymbol(modulePath, name string) uint64 {
	return t.manifest.RegisterSymbol(modulePath, name)
}

// Reporter exposes the underlying report.Reporter for callers that want
// direct Pause/Resume/ForceReport control.
func (t *Tracer) Reporter() *report.Reporter { return t.reporter }

// Handle is a per-thread capability returned by Register, wrapping that
// thread's index and detail pools.
type Handle struct {
	threadID uint64
	slot     uint32
	index    *pool.Pool
	detail   *pool.Pool
}

// WriteEnter records a function-entry event on the index lane.
func (h Handle) WriteEnter(timestampNs int64, functionID uint64, depth uint16) bool {
	return h.writeIndex(record.IndexRecord{TimestampNs: timestampNs, FunctionID: functionID, ThreadID: h.threadID, Kind: record.KindEnter, Depth: depth})
}

// WriteExit records a function-exit event on the index lane.
func (h Handle) WriteExit(timestampNs int64, functionID uint64, depth uint16) bool {
	return h.writeIndex(record.IndexRecord{TimestampNs: timestampNs, FunctionID: functionID, ThreadID: h.threadID, Kind: record.KindExit, Depth: depth})
}

func (h Handle) writeIndex(r record.IndexRecord) bool {
	b := r.Encode()
	return h.index.WriteRecord(b[:])
}

// WriteStackSnapshot records a detail-lane event carrying raw stack
// bytes. It returns false without writing if stack exceeds
// record.DetailMaxStackBytes.
func (h Handle) WriteStackSnapshot(timestampNs int64, stack []byte) bool {
	b, ok := record.DetailRecord{TimestampNs: timestampNs, ThreadID: h.threadID, Kind: record.KindSample, Stack: stack}.Encode()
	if !ok {
		return false
	}
	return h.detail.WriteRecord(b[:])
}
