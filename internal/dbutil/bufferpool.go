// Package dbutil provides low-level helpers shared by the storage engine:
// pooled scratch buffers, endian decoding, overflow-checked arithmetic and
// a structured error type.
package dbutil

import "sync"

var bufferPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 4096)
	},
}

// GetBuffer returns a byte slice of the requested size from the pool.
func GetBuffer(size int) []byte {
	buf := bufferPool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, size, size*2) // Increase capacity.
	}
	return buf[:size]
}

// ReleaseBuffer returns a buffer to the pool.
func ReleaseBuffer(buf []byte) {
	//nolint:staticcheck // SA6002: slice descriptor copy is acceptable for sync.Pool
	bufferPool.Put(buf[:0])
}

// AlignedBuffer returns a zeroed buffer whose length is rounded up to the
// next multiple of 8, matching the arena's 8-byte word alignment rule.
func AlignedBuffer(size int) []byte {
	aligned := (size + 7) &^ 7
	buf := GetBuffer(aligned)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Align8 rounds n up to the next multiple of 8.
func Align8(n uint64) uint64 {
	return (n + 7) &^ 7
}
