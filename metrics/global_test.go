package metrics

import "testing"

type fakeSlot struct {
	threadID uint64
	used     bool
	tm       *ThreadMetrics
	depth    uint32
}

type fakeSource struct {
	slots []fakeSlot
}

func (f *fakeSource) Capacity() uint32 { return uint32(len(f.slots)) }

func (f *fakeSource) GetThreadAt(slot uint32) (uint64, bool) {
	s := f.slots[slot]
	return s.threadID, s.used
}

func (f *fakeSource) MetricsAt(slot uint32) *ThreadMetrics { return f.slots[slot].tm }

func (f *fakeSource) QueueDepthAt(slot uint32) uint32 { return f.slots[slot].depth }

func TestGlobalCollectAggregatesActiveSlots(t *testing.T) {
	tm1 := NewThreadMetrics()
	tm1.IncEventsWritten(10)
	tm1.AddBytesWritten(100)
	tm2 := NewThreadMetrics()
	tm2.IncEventsWritten(20)
	tm2.AddBytesWritten(200)

	src := &fakeSource{slots: []fakeSlot{
		{threadID: 5, used: true, tm: tm1, depth: 3},
		{used: false},
		{threadID: 2, used: true, tm: tm2, depth: 1},
	}}

	g := NewGlobal(8)
	if !g.Collect(src, 0) {
		t.Fatal("expected Collect to run")
	}

	totals := g.Totals()
	if totals.EventsWritten != 30 || totals.BytesWritten != 300 || totals.ActiveThreadCount != 2 {
		t.Fatalf("unexpected totals: %+v", totals)
	}

	snaps := g.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].ThreadID != 2 || snaps[1].ThreadID != 5 {
		t.Fatalf("expected snapshots sorted by thread id, got %+v", snaps)
	}
}

func TestGlobalCollectDisabledIsNoOp(t *testing.T) {
	g := NewGlobal(4)
	g.SetCollectionEnabled(false)
	src := &fakeSource{slots: []fakeSlot{{threadID: 1, used: true, tm: NewThreadMetrics()}}}
	if g.Collect(src, 0) {
		t.Fatal("expected Collect to be a no-op when disabled")
	}
	if len(g.Snapshots()) != 0 {
		t.Fatal("expected no snapshots when collection disabled")
	}
}

func TestGlobalCollectRespectsCapacity(t *testing.T) {
	src := &fakeSource{slots: []fakeSlot{
		{threadID: 1, used: true, tm: NewThreadMetrics()},
		{threadID: 2, used: true, tm: NewThreadMetrics()},
		{threadID: 3, used: true, tm: NewThreadMetrics()},
	}}
	g := NewGlobal(2)
	g.Collect(src, 0)
	if len(g.Snapshots()) != 2 {
		t.Fatalf("expected snapshot count capped at 2, got %d", len(g.Snapshots()))
	}
}
