// Package record defines the fixed-size wire records carried by the two
// lanes described in spec §3: the index lane's small function
// entry/exit/sample records, and the detail lane's larger stack-snapshot
// records. Encoding follows the teacher's own habit
// (trace/parser.go: encoding/binary + explicit little-endian fields)
// rather than a raw unsafe struct cast, since these records cross the
// ring boundary as bytes and must have a stable, padding-free layout.
package record

import "encoding/binary"

// Kind distinguishes the three event shapes the index lane carries.
type Kind uint8

const (
	KindEnter Kind = iota
	KindExit
	KindSample
)

// IndexRecordSize is the fixed size, in bytes, of every index lane
// record: 8 (timestamp) + 8 (function_id) + 8 (thread_id) + 1 (kind) + 2
// (call depth) + 5 bytes reserved for future fields, rounded to a
// cache-friendly 32.
const IndexRecordSize = 32

// IndexRecord is one function-entry/exit/sample event.
type IndexRecord struct {
	TimestampNs int64
	FunctionID  uint64
	ThreadID    uint64
	Kind        Kind
	Depth       uint16
}

// Encode renders r into a fixed IndexRecordSize-byte array.
func (r IndexRecord) Encode() [IndexRecordSize]byte {
	var b [IndexRecordSize]byte
	binary.LittleEndian.PutUint64(b[0:8], uint64(r.TimestampNs))
	binary.LittleEndian.PutUint64(b[8:16], r.FunctionID)
	binary.LittleEndian.PutUint64(b[16:24], r.ThreadID)
	b[24] = byte(r.Kind)
	binary.LittleEndian.PutUint16(b[25:27], r.Depth)
	return b
}

// DecodeIndexRecord parses an IndexRecordSize-byte slice produced by Encode.
func DecodeIndexRecord(b []byte) IndexRecord {
	return IndexRecord{
		TimestampNs: int64(binary.LittleEndian.Uint64(b[0:8])),
		FunctionID:  binary.LittleEndian.Uint64(b[8:16]),
		ThreadID:    binary.LittleEndian.Uint64(b[16:24]),
		Kind:        Kind(b[24]),
		Depth:       binary.LittleEndian.Uint16(b[25:27]),
	}
}

// DetailRecordSize is the fixed size, in bytes, of every detail lane
// record: a DetailHeaderSize header followed by up to
// DetailMaxStackBytes of raw stack-snapshot bytes.
const (
	DetailHeaderSize    = 24
	DetailRecordSize    = 512
	DetailMaxStackBytes = DetailRecordSize - DetailHeaderSize
)

// DetailRecord is one stack-snapshot event.
type DetailRecord struct {
	TimestampNs int64
	ThreadID    uint64
	Kind        Kind
	Stack       []byte // must be <= DetailMaxStackBytes
}

// Encode renders r into a fixed DetailRecordSize-byte array. It returns
// false without modifying out if r.Stack exceeds DetailMaxStackBytes.
func (r DetailRecord) Encode() (out [DetailRecordSize]byte, ok bool) {
	if len(r.Stack) > DetailMaxStackBytes {
		return out, false
	}
	binary.LittleEndian.PutUint64(out[0:8], uint64(r.TimestampNs))
	binary.LittleEndian.PutUint64(out[8:16], r.ThreadID)
	out[16] = byte(r.Kind)
	binary.LittleEndian.PutUint16(out[17:19], uint16(len(r.Stack)))
	copy(out[DetailHeaderSize:], r.Stack)
	return out, true
}

// DecodeDetailRecord parses a DetailRecordSize-byte slice produced by
// Encode. The returned Stack aliases b and must be copied by the caller
// if it needs to outlive b.
func DecodeDetailRecord(b []byte) DetailRecord {
	n := binary.LittleEndian.Uint16(b[17:19])
	return DetailRecord{
		TimestampNs: int64(binary.LittleEndian.Uint64(b[0:8])),
		ThreadID:    binary.LittleEndian.Uint64(b[8:16]),
		Kind:        Kind(b[16]),
		Stack:       b[DetailHeaderSize : DetailHeaderSize+int(n)],
	}
}
