//go:build linux

package lock

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	internalshm "github.com/srediag/shm-lock/internal/shm"
	"github.com/srediag/shm-lock/pkg/shm"
)

// FutexLock is the futex-backed lock variant. The lock state is the
// region's single lock word; an uncontended acquire is one CAS with no
// kernel call, a contended one blocks in FUTEX_WAIT until the holder's
// release wakes it or the remaining timeout expires. The wake is a hint:
// a woken waiter re-checks via CAS before claiming ownership.
type FutexLock struct {
	hdr *shm.Header
	ins instrumentation
}

var _ Locker = (*FutexLock)(nil)

// futex is the preferred variant where its ABI is available.
var defaultKind = shm.LockKindFutex

// NewFutexLock attaches the futex variant to a region. The creator's call
// records the variant in the header; peers validate it and fail with
// ErrKindMismatch when the region was initialized for something else.
func NewFutexLock(region *shm.Region, opts Options) (*FutexLock, error) {
	hdr := region.Header()
	kind := hdr.LockKind()
	if region.Owner() && kind == shm.LockKindUnset {
		hdr.SetLockKind(shm.LockKindFutex)
	} else if kind != shm.LockKindFutex {
		return nil, fmt.Errorf("%w: region %s has kind %s", ErrKindMismatch, region.Name(), kind)
	}
	return &FutexLock{hdr: hdr, ins: newInstrumentation(opts, "futex")}, nil
}

// TryAcquire attempts the fast path only.
func (l *FutexLock) TryAcquire() bool {
	return l.hdr.CasLockWord(shm.LockWordUnlocked, shm.LockWordLocked)
}

// Acquire takes the lock within timeout. Timeout accounting is wall-clock
// across the whole loop, so the total blocked time never exceeds the
// caller's bound even across spurious wake-ups.
func (l *FutexLock) Acquire(timeout time.Duration) error {
	start := time.Now()
	span := l.ins.startSpan("FutexLock.Acquire")
	contended := false
	for {
		if l.hdr.CasLockWord(shm.LockWordUnlocked, shm.LockWordLocked) {
			l.ins.observeAcquire(start, contended, span, nil)
			return nil
		}
		contended = true
		remaining := timeout - time.Since(start)
		if remaining <= 0 {
			l.ins.observeAcquire(start, contended, span, ErrTimeout)
			return ErrTimeout
		}
		err := internalshm.FutexWait(l.hdr.LockWordPtr(), shm.LockWordLocked, remaining)
		switch {
		case err == nil, errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ETIMEDOUT):
			// Woken, word already changed, or wait expired: loop back to
			// the CAS. A final CAS after ETIMEDOUT costs nothing and the
			// elapsed check above still bounds the attempt.
		case errors.Is(err, unix.EINTR):
			l.ins.observeAcquire(start, contended, span, ErrInterrupted)
			return ErrInterrupted
		default:
			werr := fmt.Errorf("%w: futex wait: %v", ErrState, err)
			l.ins.observeAcquire(start, contended, span, werr)
			return werr
		}
	}
}

// Release stores unlocked and wakes at most one blocked waiter. Must be
// called only by the current holder.
func (l *FutexLock) Release() error {
	span := l.ins.startSpan("FutexLock.Release")
	l.hdr.SetLockWord(shm.LockWordUnlocked)
	if _, err := internalshm.FutexWake(l.hdr.LockWordPtr(), 1); err != nil {
		werr := fmt.Errorf("%w: futex wake: %v", ErrState, err)
		l.ins.observeRelease(span, werr)
		return werr
	}
	l.ins.observeRelease(span, nil)
	return nil
}
