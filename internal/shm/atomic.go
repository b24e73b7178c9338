package shm

import (
	"sync/atomic"
	"unsafe"
)

// Atomic accessors over words living inside a mapped region. The region
// is page-aligned, so any 4- or 8-byte-aligned offset within it yields a
// correctly aligned word on every supported architecture.

// AtomicLoadUint32 loads a uint32 from shared memory atomically.
func AtomicLoadUint32(addr unsafe.Pointer) uint32 {
	return atomic.LoadUint32((*uint32)(addr))
}

// AtomicStoreUint32 stores a uint32 to shared memory with release ordering.
func AtomicStoreUint32(addr unsafe.Pointer, val uint32) {
	atomic.StoreUint32((*uint32)(addr), val)
}

// AtomicCompareAndSwapUint32 atomically compares and swaps a uint32 in
// shared memory, with acquire ordering on success.
func AtomicCompareAndSwapUint32(addr unsafe.Pointer, old, new uint32) bool {
	return atomic.CompareAndSwapUint32((*uint32)(addr), old, new)
}

// AtomicLoadInt64 loads an int64 from shared memory atomically.
func AtomicLoadInt64(addr unsafe.Pointer) int64 {
	return atomic.LoadInt64((*int64)(addr))
}

// AtomicStoreInt64 stores an int64 to shared memory atomically.
func AtomicStoreInt64(addr unsafe.Pointer, val int64) {
	atomic.StoreInt64((*int64)(addr), val)
}
