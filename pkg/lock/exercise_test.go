package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mutexLocker adapts an in-process sync.Mutex to the Locker contract so the
// harness itself can be tested without a shared region.
type mutexLocker struct {
	mu sync.Mutex
}

func (c *mutexLocker) Acquire(timeout time.Duration) error {
	c.mu.Lock()
	return nil
}

func (c *mutexLocker) TryAcquire() bool {
	return c.mu.TryLock()
}

func (c *mutexLocker) Release() error {
	c.mu.Unlock()
	return nil
}

func TestExerciseRunsAllIterations(t *testing.T) {
	l := &mutexLocker{}
	var counter int
	err := Exercise(l, 4, 50, time.Second, func() { counter++ })
	require.NoError(t, err)
	assert.Equal(t, 200, counter)
}

func TestExerciseReportsAcquireFailure(t *testing.T) {
	err := Exercise(timeoutLocker{}, 2, 3, 10*time.Millisecond, func() {})
	assert.ErrorIs(t, err, ErrTimeout)
}

type timeoutLocker struct{}

func (timeoutLocker) Acquire(timeout time.Duration) error { return ErrTimeout }
func (timeoutLocker) TryAcquire() bool                    { return false }
func (timeoutLocker) Release() error                      { return nil }
