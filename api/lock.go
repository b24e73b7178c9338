// Package api defines public API contracts for shm-lock.
package api

import "time"

// Locker is the external contract both lock variants satisfy: mutual
// exclusion, bounded wait, wake-on-release. Implementations live in
// pkg/lock.
type Locker interface {
	// Acquire blocks the calling process until the lock is held by the
	// caller or timeout elapses.
	Acquire(timeout time.Duration) error
	// TryAcquire returns false immediately on contention.
	TryAcquire() bool
	// Release transitions to unlocked and signals at most one blocked
	// waiter. Holder-only.
	Release() error
}
