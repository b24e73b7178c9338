package shm

import (
	"fmt"
	"unsafe"

	internalshm "github.com/srediag/shm-lock/internal/shm"
)

// Header layout. Every field sits at a fixed byte offset so that two
// processes compiled for different pointer widths observe the same bytes.
//
//	| magic 4 byte | version 4 byte | lock word 4 byte | lock kind 4 byte |
//	| lock state 48 byte | payload 8 byte |
//
// The lock state span is reserved for the lock variant's own bookkeeping;
// no platform-defined native object is ever placed there, only a
// fixed-size configuration stamp validated on open.
const (
	headerMagic   uint32 = 0x4B4C4853 // "SHLK"
	headerVersion uint32 = 1

	magicOffset     = 0
	versionOffset   = magicOffset + 4
	lockWordOffset  = versionOffset + 4
	lockKindOffset  = lockWordOffset + 4
	lockStateOffset = lockKindOffset + 4
	payloadOffset   = lockStateOffset + LockStateSize

	// LockStateSize is the reserved span available to a lock variant.
	LockStateSize = 48
	// HeaderSize is the number of bytes the header occupies at the start
	// of every region.
	HeaderSize = payloadOffset + 8
)

// Lock word values.
const (
	LockWordUnlocked uint32 = 0
	LockWordLocked   uint32 = 1
)

// LockKind identifies which lock variant a region was initialized for.
type LockKind uint32

const (
	LockKindUnset  LockKind = 0
	LockKindFutex  LockKind = 1
	LockKindPolled LockKind = 2
)

func (k LockKind) String() string {
	switch k {
	case LockKindFutex:
		return "futex"
	case LockKindPolled:
		return "polled"
	default:
		return "unset"
	}
}

// Header is the owning view over a region's header bytes. All field
// access is offset-validated here; callers never touch raw offsets.
type Header struct {
	mem []byte
}

// initHeader stamps a freshly created (zeroed) region.
func initHeader(mem []byte) (*Header, error) {
	if len(mem) < HeaderSize {
		return nil, fmt.Errorf("%w: region of %d bytes cannot hold %d byte header", ErrMapping, len(mem), HeaderSize)
	}
	h := &Header{mem: mem}
	internalshm.AtomicStoreUint32(h.ptr(versionOffset), headerVersion)
	internalshm.AtomicStoreUint32(h.ptr(magicOffset), headerMagic)
	return h, nil
}

// attachHeader validates an opened region's header.
func attachHeader(mem []byte) (*Header, error) {
	if len(mem) < HeaderSize {
		return nil, fmt.Errorf("%w: region of %d bytes cannot hold %d byte header", ErrMapping, len(mem), HeaderSize)
	}
	h := &Header{mem: mem}
	if magic := internalshm.AtomicLoadUint32(h.ptr(magicOffset)); magic != headerMagic {
		return nil, fmt.Errorf("%w: bad header magic 0x%08x", ErrMapping, magic)
	}
	if v := internalshm.AtomicLoadUint32(h.ptr(versionOffset)); v != headerVersion {
		return nil, fmt.Errorf("%w: header version %d, want %d", ErrMapping, v, headerVersion)
	}
	return h, nil
}

func (h *Header) ptr(off int) unsafe.Pointer {
	return unsafe.Pointer(&h.mem[off])
}

// LockWordPtr exposes the lock word for kernel wait primitives that need
// its address. The pointer stays valid for the lifetime of the mapping.
func (h *Header) LockWordPtr() *uint32 {
	return (*uint32)(h.ptr(lockWordOffset))
}

// LockWord returns the current lock word value.
func (h *Header) LockWord() uint32 {
	return internalshm.AtomicLoadUint32(h.ptr(lockWordOffset))
}

// SetLockWord stores val into the lock word with release ordering.
func (h *Header) SetLockWord(val uint32) {
	internalshm.AtomicStoreUint32(h.ptr(lockWordOffset), val)
}

// CasLockWord compares and swaps the lock word, acquire ordering on
// success.
func (h *Header) CasLockWord(old, new uint32) bool {
	return internalshm.AtomicCompareAndSwapUint32(h.ptr(lockWordOffset), old, new)
}

// LockKind returns the lock variant the region was initialized for.
func (h *Header) LockKind() LockKind {
	return LockKind(internalshm.AtomicLoadUint32(h.ptr(lockKindOffset)))
}

// SetLockKind records the lock variant. Only the creator calls this,
// exactly once, before any peer attempts an acquire.
func (h *Header) SetLockKind(k LockKind) {
	internalshm.AtomicStoreUint32(h.ptr(lockKindOffset), uint32(k))
}

// StampLockState writes a lock variant's configuration stamp into the
// reserved span. Stamps longer than LockStateSize are rejected rather
// than truncated.
func (h *Header) StampLockState(stamp []byte) error {
	if len(stamp) > LockStateSize {
		return fmt.Errorf("%w: lock state stamp of %d bytes exceeds reserved %d bytes", ErrMapping, len(stamp), LockStateSize)
	}
	copy(h.mem[lockStateOffset:lockStateOffset+LockStateSize], stamp)
	return nil
}

// LockState returns a copy of the first n bytes of the reserved span.
func (h *Header) LockState(n int) []byte {
	if n > LockStateSize {
		n = LockStateSize
	}
	out := make([]byte, n)
	copy(out, h.mem[lockStateOffset:lockStateOffset+n])
	return out
}

// Payload returns the protected 64-bit value. Callers must hold the lock
// for the value to be meaningful; see PayloadRelaxed for the advisory
// variant.
func (h *Header) Payload() int64 {
	return internalshm.AtomicLoadInt64(h.ptr(payloadOffset))
}

// SetPayload stores the protected value. Must only be called while
// holding the region's lock.
func (h *Header) SetPayload(val int64) {
	internalshm.AtomicStoreInt64(h.ptr(payloadOffset), val)
}

// PayloadRelaxed reads the payload without holding the lock. The value
// is a diagnostic snapshot only: it may be overwritten by the holder at
// any moment and carries no ordering guarantee relative to other fields.
func (h *Header) PayloadRelaxed() int64 {
	return internalshm.AtomicLoadInt64(h.ptr(payloadOffset))
}
