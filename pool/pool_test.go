package pool

import (
	"testing"

	"github.com/wezzard/atfcore/backpressure"
	"github.com/wezzard/atfcore/lane"
	"github.com/wezzard/atfcore/metrics"
)

func fakeClock(t *uint64) func() uint64 {
	return func() uint64 { return *t }
}

func TestWriteRecordFillsThenSwaps(t *testing.T) {
	var now uint64
	l := lane.New(2, 4, 8) // 4 slots => 3 usable records per ring
	bp := backpressure.NewState(backpressure.DefaultConfig())
	tm := metrics.NewThreadMetrics()
	p := New(l, bp, tm, fakeClock(&now))

	payload := make([]byte, 8)
	for i := 0; i < 3; i++ {
		if !p.WriteRecord(payload) {
			t.Fatalf("write %d should succeed within one ring's capacity", i)
		}
	}
	// The 4th write should force a swap to the other ring and still succeed.
	if !p.WriteRecord(payload) {
		t.Fatal("write should succeed after an active-ring swap")
	}
	if l.ActiveIdx() == 0 {
		// swapping from ring 0 must have moved off it
		t.Fatalf("expected active ring to have changed from 0")
	}
}

func TestHandleExhaustionReclaimsOldestRecord(t *testing.T) {
	var now uint64
	l := lane.New(2, 2, 8) // capacity 2 => 1 usable record per ring
	bp := backpressure.NewState(backpressure.DefaultConfig())
	tm := metrics.NewThreadMetrics()
	p := New(l, bp, tm, fakeClock(&now))

	payload := make([]byte, 8)
	// Fill ring 0's single slot, forcing a swap to ring 1.
	if !p.WriteRecord(payload) {
		t.Fatal("first write should succeed")
	}
	if !p.WriteRecord(payload) {
		t.Fatal("second write should succeed via swap")
	}
	// Now both rings are occupied (one submitted, one active-full); a
	// third write must exhaust the free queue and force reclamation.
	if !p.WriteRecord(payload) {
		t.Fatal("third write should succeed via exhaustion handling")
	}
	if p.DroppedByExhaustion() == 0 {
		t.Fatal("expected at least one record reclaimed via exhaustion")
	}
	if bp.EventsDropped() == 0 {
		t.Fatal("expected backpressure to record the drop")
	}
}

func TestSwapActiveReportsPreviousIndex(t *testing.T) {
	var now uint64
	l := lane.New(3, 4, 8)
	bp := backpressure.NewState(backpressure.DefaultConfig())
	tm := metrics.NewThreadMetrics()
	p := New(l, bp, tm, fakeClock(&now))

	prev, ok := p.SwapActive()
	if !ok {
		t.Fatal("expected swap to succeed with free rings available")
	}
	if prev != 0 {
		t.Fatalf("expected previous active idx 0, got %d", prev)
	}
	if l.ActiveIdx() == prev {
		t.Fatal("expected active idx to change after swap")
	}
}
