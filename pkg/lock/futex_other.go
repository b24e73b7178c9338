//go:build !linux

package lock

import (
	"time"

	"github.com/srediag/shm-lock/pkg/shm"
)

// FutexLock requires the Linux futex ABI. On other platforms its
// constructor fails with ErrUnsupported; use PolledLock there.
type FutexLock struct{}

var _ Locker = (*FutexLock)(nil)

var defaultKind = shm.LockKindPolled

// NewFutexLock always fails off Linux.
func NewFutexLock(region *shm.Region, opts Options) (*FutexLock, error) {
	return nil, ErrUnsupported
}

func (l *FutexLock) Acquire(timeout time.Duration) error { return ErrUnsupported }

func (l *FutexLock) TryAcquire() bool { return false }

func (l *FutexLock) Release() error { return ErrUnsupported }
