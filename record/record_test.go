package record

import (
	"bytes"
	"testing"
)

func TestIndexRecordRoundTrip(t *testing.T) {
	r := IndexRecord{TimestampNs: 123456789, FunctionID: 0xdeadbeef, ThreadID: 42, Kind: KindEnter, Depth: 7}
	enc := r.Encode()
	got := DecodeIndexRecord(enc[:])
	if got != r {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, r)
	}
}

func TestDetailRecordRoundTrip(t *testing.T) {
	stack := []byte{1, 2, 3, 4, 5}
	r := DetailRecord{TimestampNs: 99, ThreadID: 5, Kind: KindSample, Stack: stack}
	enc, ok := r.Encode()
	if !ok {
		t.Fatal("encode should succeed for small stack")
	}
	got := DecodeDetailRecord(enc[:])
	if got.TimestampNs != r.TimestampNs || got.ThreadID != r.ThreadID || got.Kind != r.Kind {
		t.Fatalf("header mismatch: %+v", got)
	}
	if !bytes.Equal(got.Stack, stack) {
		t.Fatalf("stack mismatch: got %v want %v", got.Stack, stack)
	}
}

func TestDetailRecordRejectsOversizedStack(t *testing.T) {
	r := DetailRecord{Stack: make([]byte, DetailMaxStackBytes+1)}
	if _, ok := r.Encode(); ok {
		t.Fatal("encode must fail for oversized stack")
	}
}

func FuzzDetailRecordRoundTrip(f *testing.F) {
	f.Add(int64(1), uint64(2), uint8(0), []byte("abc"))
	f.Fuzz(func(t *testing.T, ts int64, tid uint64, kind uint8, stack []byte) {
		if len(stack) > DetailMaxStackBytes {
			stack = stack[:DetailMaxStackBytes]
		}
		r := DetailRecord{TimestampNs: ts, ThreadID: tid, Kind: Kind(kind), Stack: stack}
		enc, ok := r.Encode()
		if !ok {
			t.Fatal("encode should succeed within bounds")
		}
		got := DecodeDetailRecord(enc[:])
		if !bytes.Equal(got.Stack, stack) {
			t.Fatalf("stack mismatch: got %v want %v", got.Stack, stack)
		}
	})
}
