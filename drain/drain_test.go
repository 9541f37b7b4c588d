package drain

import (
	"testing"

	"github.com/wezzard/atfcore/lane"
	"github.com/wezzard/atfcore/registry"
	"github.com/wezzard/atfcore/ring"
)

type noopWriter struct{ calls int }

func (w *noopWriter) Process(slotIndex uint32, detail bool, r *ring.Ring) error {
	w.calls++
	return nil
}

// submitN drives n rings through a valid free-queue/submitted-queue
// history: pop a genuinely free index, then submit that same index. A
// test that instead hand-submits one fixed index repeatedly bypasses the
// free queue entirely, so the drain's returns of that index eventually
// overflow it (free queue capacity is K, and nothing ever pops from
// free), wedging returnRingToProducer's busy-wait forever.
func submitN(t *testing.T, l *lane.Lane, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		idx, ok := l.GetFreeRing()
		if !ok {
			t.Fatalf("expected a free ring at submission %d", i)
		}
		if !l.SubmitRing(idx) {
			t.Fatalf("expected submit %d to succeed", i)
		}
	}
}

func TestDrainFairnessAcrossFourThreads(t *testing.T) {
	// spec.md §8 scenario 3: 4 threads x 200 submitted index rings each,
	// max_batch_size=2, fairness_quantum=2.
	reg := registry.New(4, 256, 4)
	slots := make([]uint32, 4)
	for i := 0; i < 4; i++ {
		slot, lanes, _, ok := reg.Register(uint64(i + 1))
		if !ok {
			t.Fatalf("expected registration %d to succeed", i)
		}
		slots[i] = slot
		submitN(t, lanes.Index, 200)
	}

	w := &noopWriter{}
	d := New(reg, w, Config{MaxBatchSize: 2, FairnessQuantum: 2, PollIntervalUs: 1})

	for i := 0; i < 1000 && d.Export().RingsTotal < 800; i++ {
		d.cycle(false)
	}

	m := d.Export()
	if m.RingsTotal != 800 {
		t.Fatalf("expected rings_total=800, got %d", m.RingsTotal)
	}
	if m.RingsDetail != 0 {
		t.Fatalf("expected rings_detail=0 (only index lane used), got %d", m.RingsDetail)
	}
	var sum uint64
	for _, pt := range m.RingsPerThread {
		sum += pt[0] + pt[1]
	}
	if sum != 800 {
		t.Fatalf("expected per-thread rings to sum to 800, got %d", sum)
	}
}

func TestDrainGracefulShutdownDrainsEverything(t *testing.T) {
	// spec.md §8 scenario 6: 400 submitted rings, max_batch_size=2,
	// graceful shutdown must process every one of them.
	reg := registry.New(1, 512, 4)
	slot, lanes, _, ok := reg.Register(1)
	if !ok {
		t.Fatal("expected registration to succeed")
	}
	submitN(t, lanes.Index, 400)

	w := &noopWriter{}
	d := New(reg, w, Config{MaxBatchSize: 2, FairnessQuantum: 2, PollIntervalUs: 1})

	if err := d.Start(); err != nil {
		t.Fatalf("expected Start to succeed, got %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("expected Stop to succeed, got %v", err)
	}

	m := d.Export()
	if m.RingsTotal != 400 {
		t.Fatalf("expected rings_total=400 after graceful shutdown, got %d", m.RingsTotal)
	}
	if m.FinalDrains < 1 {
		t.Fatal("expected at least one final drain pass")
	}
	if d.State() != "STOPPED" {
		t.Fatalf("expected state STOPPED, got %s", d.State())
	}
	if _, ok := lanes.Index.TakeRing(); ok {
		t.Fatal("expected submitted queue to be fully drained")
	}
	_ = slot
}

func TestComputeEffectiveLimit(t *testing.T) {
	cases := []struct {
		name      string
		cfg       Config
		finalPass bool
		want      uint32
	}{
		{"final pass unbounded", Config{MaxBatchSize: 2, FairnessQuantum: 2}, true, unbounded},
		{"quantum smaller wins", Config{MaxBatchSize: 8, FairnessQuantum: 2}, false, 2},
		{"batch smaller wins", Config{MaxBatchSize: 2, FairnessQuantum: 8}, false, 2},
		{"zero batch falls back to quantum", Config{MaxBatchSize: 0, FairnessQuantum: 5}, false, 5},
		{"both zero unbounded", Config{MaxBatchSize: 0, FairnessQuantum: 0}, false, unbounded},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := computeEffectiveLimit(c.cfg, c.finalPass); got != c.want {
				t.Fatalf("got %d, want %d", got, c.want)
			}
		})
	}
}

func TestStartTwiceIsIdempotent(t *testing.T) {
	reg := registry.New(1, 4, 4)
	d := New(reg, &noopWriter{}, DefaultConfig())
	if err := d.Start(); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}
	_ = d.Stop()
}
