package lock

import (
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Exercise pushes workers×iterations critical sections through the lock
// from a goroutine pool and returns the first failure, if any. Each
// worker behaves like a well-behaved holder: acquire within timeout, run
// the critical section, release. Used by the contention tests and the
// demo's self-check; the critical section must be short enough that no
// acquire starves past its bound.
func Exercise(l Locker, workers, iterations int, timeout time.Duration, critical func()) error {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("exercise pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if err := l.Acquire(timeout); err != nil {
					fail(fmt.Errorf("exercise acquire: %w", err))
					return
				}
				critical()
				if err := l.Release(); err != nil {
					fail(fmt.Errorf("exercise release: %w", err))
					return
				}
			}
		}); err != nil {
			wg.Done()
			fail(fmt.Errorf("exercise submit: %w", err))
		}
	}
	wg.Wait()
	return firstErr
}
