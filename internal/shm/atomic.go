package shm

import (
	"sync/atomic"
	"unsafe"
)

// The helpers below operate on words inside a mapping and require addr to be
// 8-byte aligned. Mappings start on a page boundary, so any offset that is a
// multiple of 8 qualifies.

// AtomicLoadUint64 loads a uint64 from shared memory atomically.
func AtomicLoadUint64(addr unsafe.Pointer) uint64 {
	return atomic.LoadUint64((*uint64)(addr))
}

// AtomicStoreUint64 stores a uint64 to shared memory atomically.
func AtomicStoreUint64(addr unsafe.Pointer, val uint64) {
	atomic.StoreUint64((*uint64)(addr), val)
}

// AtomicCompareAndSwapUint64 atomically compares and swaps a uint64 in shared memory.
func AtomicCompareAndSwapUint64(addr unsafe.Pointer, old, new uint64) bool {
	return atomic.CompareAndSwapUint64((*uint64)(addr), old, new)
}

// WordAt returns the address of the uint64 at off in mem.
func WordAt(mem []byte, off int) unsafe.Pointer {
	_ = mem[off+7]
	return unsafe.Pointer(&mem[off])
}
