// Package rawcast adapts the teacher's unsafe/unsafe.go helper
// (honnef.co/go/gotraceui/unsafe: Cast[Dst, Src]) to reinterpret a
// fixed-size struct as raw bytes and back without a copy. The atf
// package uses it for the 16-byte .atf file header; lane records are
// encoded with encoding/binary (see package record).
package rawcast

import "unsafe"

// Bytes reinterprets a pointer to a fixed-size value of type T as a byte
// slice of length size (T's size), without copying. The returned slice
// aliases v's memory; the caller must not retain it past v's lifetime.
func Bytes[T any](v *T, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), size)
}

// Cast reinterprets a byte slice as a pointer to T. len(b) must be >= the
// size of T; the caller is responsible for that invariant, mirroring the
// teacher's Cast[Dst, Src], which performs no bounds checking either.
func Cast[T any](b []byte) *T {
	return (*T)(unsafe.Pointer(&b[0]))
}
