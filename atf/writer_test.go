package atf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wezzard/atfcore/ring"
)

func TestFileWriterWritesHeaderAndIndexRecords(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}

	r := ring.New(8, 4)
	for i := byte(0); i < 3; i++ {
		if !r.Write([]byte{i, i, i, i}) {
			t.Fatalf("write %d should succeed", i)
		}
	}

	if err := w.Process(0, false, r); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "thread_0", "index.atf"))
	if err != nil {
		t.Fatalf("expected index.atf to exist: %v", err)
	}
	// 16-byte header + 3 records of 4 bytes each.
	if len(data) != 16+12 {
		t.Fatalf("expected 28 bytes, got %d", len(data))
	}
	if data[0] != 0xF0 || data[1] != 0xA7 || data[2] != 0xF0 || data[3] != 0xA7 {
		t.Fatalf("unexpected magic bytes: %v", data[:4])
	}
}

func TestFileWriterCompressesDetailLane(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}

	r := ring.New(4, 16)
	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(i)
	}
	if !r.Write(payload) {
		t.Fatal("write should succeed")
	}

	if err := w.Process(1, true, r); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "thread_1", "detail.atf"))
	if err != nil {
		t.Fatalf("expected detail.atf to exist: %v", err)
	}
	if len(data) <= 16 {
		t.Fatalf("expected header plus a length-prefixed compressed block, got %d bytes", len(data))
	}
}

func TestFileWriterReopensExistingFileWithMatchingHeader(t *testing.T) {
	dir := t.TempDir()

	r := ring.New(8, 4)
	if !r.Write([]byte{1, 1, 1, 1}) {
		t.Fatal("write should succeed")
	}
	w1, err := NewFileWriter(dir)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	if err := w1.Process(0, false, r); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if err := w1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A second FileWriter over the same session directory must read back
	// the existing file's header rather than overwrite it, then append.
	r2 := ring.New(8, 4)
	if !r2.Write([]byte{2, 2, 2, 2}) {
		t.Fatal("write should succeed")
	}
	w2, err := NewFileWriter(dir)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	if err := w2.Process(0, false, r2); err != nil {
		t.Fatalf("Process on reopened file failed: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "thread_0", "index.atf"))
	if err != nil {
		t.Fatalf("expected index.atf to exist: %v", err)
	}
	// One header, two 4-byte records appended across two writers.
	if len(data) != 16+4+4 {
		t.Fatalf("expected 24 bytes, got %d", len(data))
	}
}

func TestFileWriterRejectsMismatchedHeaderOnReopen(t *testing.T) {
	dir := t.TempDir()

	r := ring.New(8, 4)
	if !r.Write([]byte{1, 1, 1, 1}) {
		t.Fatal("write should succeed")
	}
	w1, err := NewFileWriter(dir)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	if err := w1.Process(0, false, r); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if err := w1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A different record size against the same on-disk file must fail
	// instead of silently mixing record shapes.
	r2 := ring.New(8, 8)
	if !r2.Write([]byte{2, 2, 2, 2, 2, 2, 2, 2}) {
		t.Fatal("write should succeed")
	}
	w2, err := NewFileWriter(dir)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	if err := w2.Process(0, false, r2); err == nil {
		t.Fatal("expected a header mismatch error, got nil")
	}
}

func TestFileWriterSkipsEmptyRing(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	r := ring.New(4, 4)
	if err := w.Process(0, false, r); err != nil {
		t.Fatalf("Process on empty ring should succeed as a no-op: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "thread_0")); !os.IsNotExist(err) {
		t.Fatal("expected no file to be created for an empty ring")
	}
}
