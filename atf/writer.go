// Package atf is the top-level facade: it wires ring/lane/registry/
// backpressure/pool/drain/metrics/report into one Tracer, and supplies
// the on-disk Writer collaborator the drain thread hands reclaimed
// rings to, laying out the session directory spec §6 describes
// (thread_<slot>/index.atf, thread_<slot>/detail.atf, manifest.json).
package atf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"

	"github.com/wezzard/atfcore/internal/alog"
	"github.com/wezzard/atfcore/internal/rawcast"
	"github.com/wezzard/atfcore/ring"
)

// fileHeader is the fixed 16-byte header written once at the start of
// every .atf file: the ring's bookkeeping shape at file-creation time,
// so an external reader can sanity-check record size without parsing
// any records. Because it's four plain uint32 fields Go lays it out
// without padding, so rawcast.Bytes can reinterpret it directly instead
// of hand-marshaling field by field.
type fileHeader struct {
	Magic      uint32
	RecordSize uint32
	Capacity   uint32
	Reserved   uint32
}

const atfMagic = 0xA7F0A7F0

func writeFileHeader(f *os.File, recordSize, capacity uint32) error {
	h := fileHeader{Magic: atfMagic, RecordSize: recordSize, Capacity: capacity}
	_, err := f.Write(rawcast.Bytes(&h, 16))
	return err
}

// readFileHeader reinterprets the first 16 bytes of an existing .atf file
// as a fileHeader, the mirror image of writeFileHeader's encode. It's used
// when a lane file already exists on disk (a session directory reused
// across a restart) to confirm the file being appended to was laid out
// with the same record shape before any new batch is appended to it.
func readFileHeader(b []byte) (fileHeader, error) {
	if len(b) < 16 {
		return fileHeader{}, fmt.Errorf("atf: header too short: %d bytes", len(b))
	}
	return *rawcast.Cast[fileHeader](b), nil
}

type laneFile struct {
	f        *os.File
	compress bool
}

// FileWriter implements drain.Writer, appending every reclaimed ring's
// records to a per-thread, per-lane file under a session directory.
// Detail-lane batches are snappy-compressed before being appended,
// mirroring the teacher's own "compress an opaque byte blob before
// persisting it" use of snappy for cached texture bytes
// (cmd/gotraceui/textures.go).
type FileWriter struct {
	sessionDir string
	log        *alog.Logger

	mu    sync.Mutex
	files map[laneKey]*laneFile
}

type laneKey struct {
	slot   uint32
	detail bool
}

// NewFileWriter creates a FileWriter rooted at sessionDir, creating the
// directory if it doesn't already exist.
func NewFileWriter(sessionDir string) (*FileWriter, error) {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, err
	}
	return &FileWriter{
		sessionDir: sessionDir,
		log:        alog.New("atf"),
		files:      make(map[laneKey]*laneFile),
	}, nil
}

func (w *FileWriter) fileFor(slotIndex uint32, detail bool, recordSize, capacity uint32) (*laneFile, error) {
	key := laneKey{slot: slotIndex, detail: detail}
	if lf, ok := w.files[key]; ok {
		return lf, nil
	}

	threadDir := filepath.Join(w.sessionDir, fmt.Sprintf("thread_%d", slotIndex))
	if err := os.MkdirAll(threadDir, 0o755); err != nil {
		return nil, err
	}
	name := "index.atf"
	if detail {
		name = "detail.atf"
	}
	path := filepath.Join(threadDir, name)

	existing, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	if statErr == nil && existing.Size() >= 16 {
		raw, err := os.ReadFile(path)
		if err != nil {
			f.Close()
			return nil, err
		}
		h, err := readFileHeader(raw)
		if err != nil {
			f.Close()
			return nil, err
		}
		if h.Magic != atfMagic || h.RecordSize != recordSize || h.Capacity != capacity {
			f.Close()
			return nil, fmt.Errorf("atf: %s header mismatch: got magic=%#x recordSize=%d capacity=%d, want recordSize=%d capacity=%d",
				path, h.Magic, h.RecordSize, h.Capacity, recordSize, capacity)
		}
	} else if err := writeFileHeader(f, recordSize, capacity); err != nil {
		f.Close()
		return nil, err
	}

	lf := &laneFile{f: f, compress: detail}
	w.files[key] = lf
	return lf, nil
}

// Process reads every unread record out of r, appends the index lane's
// records verbatim and the detail lane's records as one snappy-compressed
// block, and returns any I/O error. It is called by the drain goroutine
// immediately before r is reset and returned to its producer, so it must
// not retain r past the call.
func (w *FileWriter) Process(slotIndex uint32, detail bool, r *ring.Ring) error {
	recordSize := r.RecordSize()
	buf := make([]byte, recordSize)
	var batch []byte
	for r.ReadOldest(buf) {
		batch = append(batch, buf...)
	}
	if len(batch) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	lf, err := w.fileFor(slotIndex, detail, recordSize, r.Capacity())
	if err != nil {
		w.log.Warn("failed to open lane file for slot %d detail=%v: %v", slotIndex, detail, err)
		return err
	}

	if lf.compress {
		compressed := snappy.Encode(nil, batch)
		var lenPrefix [4]byte
		lenPrefix[0] = byte(len(compressed))
		lenPrefix[1] = byte(len(compressed) >> 8)
		lenPrefix[2] = byte(len(compressed) >> 16)
		lenPrefix[3] = byte(len(compressed) >> 24)
		if _, err := lf.f.Write(lenPrefix[:]); err != nil {
			return err
		}
		_, err = lf.f.Write(compressed)
		return err
	}

	_, err = lf.f.Write(batch)
	return err
}

// Close closes every open lane file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for _, lf := range w.files {
		if err := lf.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
