//go:build linux

package shm

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Futex operation codes from <linux/futex.h>; x/sys/unix does not
// export them. No FUTEX_PRIVATE_FLAG: waits must be cross-process.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// FutexWait blocks until the word at addr no longer holds val, the caller
// is woken, or the timeout expires. A negative timeout waits forever.
// The wait is cross-process (no FUTEX_PRIVATE_FLAG). Errors are the raw
// errnos: unix.EAGAIN when the word already differed from val,
// unix.ETIMEDOUT on expiry, unix.EINTR on signal delivery. All three are
// hints to re-check the word, not statements about lock ownership.
func FutexWait(addr *uint32, val uint32, timeout time.Duration) error {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWaitOp),
		uintptr(val),
		uintptr(unsafe.Pointer(ts)),
		0, 0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

// FutexWake wakes at most n waiters blocked on the word at addr and
// returns how many were woken. Waking with no waiters is a no-op.
func FutexWake(addr *uint32, n int) (int, error) {
	woken, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWakeOp),
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(woken), nil
}
