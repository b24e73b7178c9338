//go:build !windows

package shm

import (
	"os"

	"golang.org/x/sys/unix"
)

// TryLockFile attempts a non-blocking exclusive kernel lock on the file.
// Returns false (with nil error) when another process holds the lock.
func TryLockFile(f *os.File) (bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if err == unix.EWOULDBLOCK {
		return false, nil
	}
	return false, err
}

// UnlockFile releases the kernel lock on the file.
func UnlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
