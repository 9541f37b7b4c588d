package ring

import "testing"

func TestCapacityTwoSupportsExactlyOneOutstandingRecord(t *testing.T) {
	r := New(2, 4)
	if !r.IsEmpty() {
		t.Fatal("new ring must be empty")
	}
	if !r.Write([]byte{1, 2, 3, 4}) {
		t.Fatal("first write must succeed")
	}
	if r.Write([]byte{5, 6, 7, 8}) {
		t.Fatal("second write must fail: capacity 2 holds exactly one record")
	}
	if !r.IsFull() {
		t.Fatal("ring should report full after one write")
	}
	out := make([]byte, 4)
	if !r.ReadOldest(out) {
		t.Fatal("read must succeed")
	}
	if out[0] != 1 || out[3] != 4 {
		t.Fatalf("unexpected record contents: %v", out)
	}
	if !r.IsEmpty() {
		t.Fatal("ring should be empty after draining its only record")
	}
}

func TestWriteFailsOnWrongRecordSize(t *testing.T) {
	r := New(4, 8)
	if r.Write([]byte{1, 2, 3}) {
		t.Fatal("write with wrong size must fail")
	}
}

func TestReadOldestOnEmptyFails(t *testing.T) {
	r := New(4, 4)
	out := make([]byte, 4)
	if r.ReadOldest(out) {
		t.Fatal("read on empty ring must fail")
	}
	if r.DropOldest() {
		t.Fatal("drop on empty ring must fail")
	}
}

func TestFIFOOrdering(t *testing.T) {
	r := New(8, 1)
	for i := byte(0); i < 7; i++ {
		if !r.Write([]byte{i}) {
			t.Fatalf("write %d should succeed", i)
		}
	}
	out := make([]byte, 1)
	for i := byte(0); i < 7; i++ {
		if !r.ReadOldest(out) {
			t.Fatalf("read %d should succeed", i)
		}
		if out[0] != i {
			t.Fatalf("expected FIFO order, got %d want %d", out[0], i)
		}
	}
}

func TestResetRestoresPositions(t *testing.T) {
	r := New(4, 1)
	r.Write([]byte{1})
	r.Write([]byte{2})
	r.Reset()
	if !r.IsEmpty() {
		t.Fatal("reset ring must be empty")
	}
	h := r.Header()
	if h.WritePos != 0 || h.ReadPos != 0 {
		t.Fatalf("reset must zero both positions, got %+v", h)
	}
}

func TestDropOldestAdvancesWithoutCopy(t *testing.T) {
	r := New(4, 1)
	r.Write([]byte{9})
	r.Write([]byte{10})
	if !r.DropOldest() {
		t.Fatal("drop should succeed")
	}
	out := make([]byte, 1)
	if !r.ReadOldest(out) {
		t.Fatal("read should succeed after drop")
	}
	if out[0] != 10 {
		t.Fatalf("expected 10 after dropping 9, got %d", out[0])
	}
}
