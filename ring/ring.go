// Package ring implements the single-producer/single-consumer byte ring
// buffer described as component A of the tracing data path: a fixed
// capacity of fixed-size records, with a one-slot reserve so that an
// equal write/read position unambiguously means "empty".
package ring

import "sync/atomic"

// Header is a read-only snapshot of a Ring's bookkeeping fields.
type Header struct {
	Capacity   uint32
	RecordSize uint32
	WritePos   uint32
	ReadPos    uint32
}

// Ring is a fixed-capacity SPSC byte ring holding fixed-size records.
// Capacity is a power of two greater than one; the usable slot count is
// Capacity-1. Only the owning producer goroutine calls Write; only the
// drain goroutine calls ReadOldest/DropOldest.
type Ring struct {
	capacity   uint32
	mask       uint32
	recordSize uint32
	buf        []byte

	// writePos is advanced only by the producer, published with a
	// release-ordered store; readPos is advanced only by the consumer.
	// Go's atomic package provides sequentially consistent ordering,
	// which is at least as strong as the acquire/release pairing spec
	// §4.A requires.
	writePos atomic.Uint32
	readPos  atomic.Uint32
}

// New creates a Ring with the given power-of-two capacity and fixed
// record size. It panics if capacity is not a power of two greater than
// one, or if recordSize is zero — both are programmer errors, not
// runtime conditions, and the constructor is the only place they can be
// caught before any producer starts writing.
func New(capacity, recordSize uint32) *Ring {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two greater than one")
	}
	if recordSize == 0 {
		panic("ring: recordSize must be non-zero")
	}
	return &Ring{
		capacity:   capacity,
		mask:       capacity - 1,
		recordSize: recordSize,
		buf:        make([]byte, uint64(capacity)*uint64(recordSize)),
	}
}

// RecordSize returns the fixed per-record size this ring was created with.
func (r *Ring) RecordSize() uint32 { return r.recordSize }

// Capacity returns the ring's slot count, including the one-slot reserve.
func (r *Ring) Capacity() uint32 { return r.capacity }

// IsEmpty reports whether the ring currently holds no unread records.
func (r *Ring) IsEmpty() bool {
	return r.writePos.Load() == r.readPos.Load()
}

// IsFull reports whether the ring has no room for another record.
func (r *Ring) IsFull() bool {
	w := r.writePos.Load()
	r_ := r.readPos.Load()
	return (w+1)&r.mask == r_&r.mask
}

// Header returns a snapshot of the ring's bookkeeping fields.
func (r *Ring) Header() Header {
	return Header{
		Capacity:   r.capacity,
		RecordSize: r.recordSize,
		WritePos:   r.writePos.Load(),
		ReadPos:    r.readPos.Load(),
	}
}

// Write copies payload (which must be exactly RecordSize bytes) into the
// slot at the current write position and advances it. It returns false
// without copying anything if the ring is full. Write must only be
// called by the ring's single producer.
func (r *Ring) Write(payload []byte) bool {
	if uint32(len(payload)) != r.recordSize {
		return false
	}
	w := r.writePos.Load()
	rd := r.readPos.Load()
	if (w+1)&r.mask == rd&r.mask {
		return false
	}
	slot := (w & r.mask) * r.recordSize
	copy(r.buf[slot:slot+r.recordSize], payload)
	r.writePos.Store(w + 1)
	return true
}

// ReadOldest copies the oldest unread record into out (which must be at
// least RecordSize bytes) and advances the read position. It returns
// false without copying anything if the ring is empty. ReadOldest must
// only be called by the ring's single consumer (the drain goroutine).
func (r *Ring) ReadOldest(out []byte) bool {
	rd := r.readPos.Load()
	w := r.writePos.Load()
	if rd == w {
		return false
	}
	if uint32(len(out)) < r.recordSize {
		return false
	}
	slot := (rd & r.mask) * r.recordSize
	copy(out[:r.recordSize], r.buf[slot:slot+r.recordSize])
	r.readPos.Store(rd + 1)
	return true
}

// DropOldest advances the read position by one slot without copying the
// record out. It returns false if the ring is empty.
func (r *Ring) DropOldest() bool {
	rd := r.readPos.Load()
	w := r.writePos.Load()
	if rd == w {
		return false
	}
	r.readPos.Store(rd + 1)
	return true
}

// Reset restores both positions to zero. Callers must ensure no producer
// or consumer is concurrently using the ring.
func (r *Ring) Reset() {
	r.writePos.Store(0)
	r.readPos.Store(0)
}
