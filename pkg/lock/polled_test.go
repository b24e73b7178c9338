package lock

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-lock/pkg/shm"
)

func testPolledRegion(t *testing.T) *shm.Region {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("needs /dev/shm")
	}
	name := fmt.Sprintf("shmlock_polledtest_%d_%d", os.Getpid(), time.Now().UnixNano())
	region, err := shm.Create(shm.Options{Name: name})
	require.NoError(t, err)
	t.Cleanup(func() { _ = region.Destroy() })
	return region
}

// openerLock attaches a second PolledLock instance the way a second
// process would: through its own mapping and its own lock file handle.
func openerLock(t *testing.T, region *shm.Region) *PolledLock {
	t.Helper()
	opened, err := shm.Open(region.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = opened.Close() })
	l, err := NewPolledLock(opened, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestPolledLockUncontended(t *testing.T) {
	region := testPolledRegion(t)
	l, err := NewPolledLock(region, Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close()) }()

	assert.Equal(t, shm.LockKindPolled, region.Header().LockKind())
	require.NoError(t, l.Acquire(time.Second))
	assert.Equal(t, shm.LockWordLocked, region.Header().LockWord())
	require.NoError(t, l.Release())
	assert.Equal(t, shm.LockWordUnlocked, region.Header().LockWord())
}

func TestPolledLockContentionAndTimeout(t *testing.T) {
	region := testPolledRegion(t)
	creator, err := NewPolledLock(region, Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, creator.Close()) }()
	opener := openerLock(t, region)

	require.NoError(t, creator.Acquire(time.Second))

	assert.False(t, opener.TryAcquire())
	start := time.Now()
	err = opener.Acquire(350 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)

	require.NoError(t, creator.Release())
	require.NoError(t, opener.Acquire(2*time.Second))
	require.NoError(t, opener.Release())
}

// Exclusion holds between instances, not within one: flock is held per
// open file description, so each worker gets its own attachment the way
// separate processes would.
func TestPolledLockMutualExclusionAcrossInstances(t *testing.T) {
	region := testPolledRegion(t)
	creator, err := NewPolledLock(region, Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, creator.Close()) }()

	const workers, iterations = 3, 8
	locks := make([]*PolledLock, workers)
	locks[0] = creator
	for i := 1; i < workers; i++ {
		locks[i] = openerLock(t, region)
	}

	var (
		wg         sync.WaitGroup
		inCritical int32
		overlaps   int32
		counter    int64 // deliberately not atomic: the lock must serialize it
	)
	for _, l := range locks {
		wg.Add(1)
		go func(l *PolledLock) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if err := l.Acquire(30 * time.Second); err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				if atomic.AddInt32(&inCritical, 1) != 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				counter++
				atomic.AddInt32(&inCritical, -1)
				if err := l.Release(); err != nil {
					t.Errorf("release: %v", err)
					return
				}
			}
		}(l)
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlaps))
	assert.Equal(t, int64(workers*iterations), counter)
}

func TestPolledLockReadAfterAcquire(t *testing.T) {
	region := testPolledRegion(t)
	creator, err := NewPolledLock(region, Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, creator.Close()) }()
	opener := openerLock(t, region)

	require.NoError(t, creator.Acquire(time.Second))
	region.Header().SetPayload(250)
	require.NoError(t, creator.Release())

	require.NoError(t, opener.Acquire(2*time.Second))
	assert.Equal(t, int64(250), region.Header().PayloadRelaxed())
	require.NoError(t, opener.Release())
}

func TestPolledLockStampAdoption(t *testing.T) {
	region := testPolledRegion(t)
	creator, err := NewPolledLock(region, Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, creator.Close()) }()

	opener := openerLock(t, region)
	assert.Equal(t, DefaultPollInterval, opener.Interval())
}

func TestPolledLockRejectsCorruptStamp(t *testing.T) {
	region := testPolledRegion(t)
	region.Header().SetLockKind(shm.LockKindPolled)
	// kind says polled but the reserved span was never stamped

	opened, err := shm.Open(region.Name())
	require.NoError(t, err)
	defer func() { _ = opened.Close() }()
	_, err = NewPolledLock(opened, Options{})
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestPolledLockKindMismatch(t *testing.T) {
	region := testPolledRegion(t)
	region.Header().SetLockKind(shm.LockKindFutex)

	_, err := NewPolledLock(region, Options{})
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestPolledStampRoundTrip(t *testing.T) {
	stamp := polledStamp(250*time.Millisecond, "some_region")
	interval, err := parsePolledStamp(stamp, "some_region")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, interval)

	_, err = parsePolledStamp(stamp, "another_region")
	assert.ErrorIs(t, err, ErrKindMismatch)
	_, err = parsePolledStamp(stamp[:8], "some_region")
	assert.ErrorIs(t, err, ErrKindMismatch)
}
