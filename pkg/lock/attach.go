package lock

import (
	"fmt"

	"github.com/srediag/shm-lock/pkg/shm"
)

// New constructs the requested lock variant on a region the caller
// created. shm.LockKindUnset picks the platform default: futex where the
// futex ABI exists, polled elsewhere.
func New(region *shm.Region, kind shm.LockKind, opts Options) (Locker, error) {
	if kind == shm.LockKindUnset {
		kind = defaultKind
	}
	switch kind {
	case shm.LockKindFutex:
		l, err := NewFutexLock(region, opts)
		if err != nil {
			return nil, err
		}
		return l, nil
	case shm.LockKindPolled:
		l, err := NewPolledLock(region, opts)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrKindMismatch, kind)
	}
}

// Attach constructs the lock variant an opened region was initialized
// for, read from its header.
func Attach(region *shm.Region, opts Options) (Locker, error) {
	kind := region.Header().LockKind()
	if kind == shm.LockKindUnset {
		return nil, fmt.Errorf("%w: region %s has no lock configured", ErrKindMismatch, region.Name())
	}
	return New(region, kind, opts)
}
