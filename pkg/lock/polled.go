package lock

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	internalshm "github.com/srediag/shm-lock/internal/shm"
	"github.com/srediag/shm-lock/pkg/shm"
)

// DefaultPollInterval is how long PolledLock sleeps between trylock
// attempts. Blocked waiters wake periodically even while the lock is
// held; that cost buys independence from any platform timed-wait ABI.
const DefaultPollInterval = 100 * time.Millisecond

const (
	polledStampMagic uint32 = 0x4B434C50 // "PLCK"
	polledStampSize         = 16
)

var errLockBusy = errors.New("lock busy")

// PolledLock is the portable lock variant. The kernel object is an
// exclusive file lock on a lock file derived from the region name — it
// deliberately lives outside the shared region, so no platform-defined
// object layout ever crosses the pointer-width boundary. The header's
// reserved span carries only the variant's configuration stamp, written
// once by the creator and validated by every opener. The region's lock
// word is still maintained around the native lock so payload visibility
// rests on explicit atomics rather than on the kernel object's own
// ordering guarantees.
//
// The kernel holds the file lock per open file description, so exclusion
// is between PolledLock instances (and therefore processes), never
// between goroutines sharing one instance. Do not share an instance
// across concurrent goroutines.
type PolledLock struct {
	hdr      *shm.Header
	file     *os.File
	path     string
	interval time.Duration
	owner    bool
	ins      instrumentation
}

var _ Locker = (*PolledLock)(nil)

// NewPolledLock attaches the polled variant to a region. The creator
// stamps the poll interval and region-name hash into the header's
// reserved span; openers adopt the stamped interval so both sides agree
// on the bound the interval implies.
func NewPolledLock(region *shm.Region, opts Options) (*PolledLock, error) {
	hdr := region.Header()
	kind := hdr.LockKind()
	path := polledLockPath(region.Name())
	l := &PolledLock{
		hdr:      hdr,
		path:     path,
		interval: DefaultPollInterval,
		owner:    region.Owner(),
		ins:      newInstrumentation(opts, "polled"),
	}
	if region.Owner() && kind == shm.LockKindUnset {
		hdr.SetLockKind(shm.LockKindPolled)
		if err := hdr.StampLockState(polledStamp(l.interval, region.Name())); err != nil {
			return nil, err
		}
	} else {
		if kind != shm.LockKindPolled {
			return nil, fmt.Errorf("%w: region %s has kind %s", ErrKindMismatch, region.Name(), kind)
		}
		interval, err := parsePolledStamp(hdr.LockState(polledStampSize), region.Name())
		if err != nil {
			return nil, err
		}
		l.interval = interval
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock file: %v", ErrState, err)
	}
	l.file = f
	return l, nil
}

// TryAcquire attempts the native trylock once, without waiting.
func (l *PolledLock) TryAcquire() bool {
	ok, err := internalshm.TryLockFile(l.file)
	if err != nil {
		internalLogger.Warnf("polled lock %s: trylock: %v", l.path, err)
		return false
	}
	if ok {
		l.hdr.SetLockWord(shm.LockWordLocked)
	}
	return ok
}

// Acquire polls the native trylock on a constant interval until it
// succeeds or timeout elapses. The bound is enforced by a deadline
// context driving the retry loop; elapsed attempts times the interval
// never exceed it by more than one interval.
func (l *PolledLock) Acquire(timeout time.Duration) error {
	start := time.Now()
	span := l.ins.startSpan("PolledLock.Acquire")
	contended := false

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	op := func() error {
		ok, err := internalshm.TryLockFile(l.file)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: trylock: %v", ErrState, err))
		}
		if !ok {
			contended = true
			return errLockBusy
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(l.interval), ctx))
	switch {
	case err == nil:
		l.hdr.SetLockWord(shm.LockWordLocked)
		l.ins.observeAcquire(start, contended, span, nil)
		return nil
	case errors.Is(err, errLockBusy), errors.Is(err, context.DeadlineExceeded):
		l.ins.observeAcquire(start, contended, span, ErrTimeout)
		return ErrTimeout
	default:
		l.ins.observeAcquire(start, contended, span, err)
		return err
	}
}

// Release clears the lock word, then performs the native unlock. A
// non-zero native return is reportable but non-fatal: the error is
// returned for logging and the lock word stays cleared.
func (l *PolledLock) Release() error {
	span := l.ins.startSpan("PolledLock.Release")
	l.hdr.SetLockWord(shm.LockWordUnlocked)
	if err := internalshm.UnlockFile(l.file); err != nil {
		werr := fmt.Errorf("%w: unlock: %v", ErrState, err)
		l.ins.observeRelease(span, werr)
		return werr
	}
	l.ins.observeRelease(span, nil)
	return nil
}

// Close releases the lock file handle. The creator also removes the lock
// file; removal failures are logged, not returned.
func (l *PolledLock) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if l.owner {
		if rerr := os.Remove(l.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			internalLogger.Warnf("polled lock remove file:%s failed, error=%s", l.path, rerr.Error())
		}
	}
	return err
}

// Interval returns the effective poll interval (the creator's stamp).
func (l *PolledLock) Interval() time.Duration {
	return l.interval
}

func polledLockPath(regionName string) string {
	return filepath.Join(os.TempDir(), regionName+".lock")
}

// polledStamp layout: magic 4 byte | interval ms 4 byte | region name
// hash 4 byte | reserved 4 byte. Little-endian on every build.
func polledStamp(interval time.Duration, regionName string) []byte {
	stamp := make([]byte, polledStampSize)
	binary.LittleEndian.PutUint32(stamp[0:4], polledStampMagic)
	binary.LittleEndian.PutUint32(stamp[4:8], uint32(interval/time.Millisecond))
	binary.LittleEndian.PutUint32(stamp[8:12], nameHash(regionName))
	return stamp
}

func parsePolledStamp(stamp []byte, regionName string) (time.Duration, error) {
	if len(stamp) < polledStampSize {
		return 0, fmt.Errorf("%w: truncated lock state stamp", ErrKindMismatch)
	}
	if magic := binary.LittleEndian.Uint32(stamp[0:4]); magic != polledStampMagic {
		return 0, fmt.Errorf("%w: bad lock state magic 0x%08x", ErrKindMismatch, magic)
	}
	if h := binary.LittleEndian.Uint32(stamp[8:12]); h != nameHash(regionName) {
		return 0, fmt.Errorf("%w: lock state stamped for a different region", ErrKindMismatch)
	}
	intervalMs := binary.LittleEndian.Uint32(stamp[4:8])
	if intervalMs == 0 {
		return 0, fmt.Errorf("%w: zero poll interval in lock state", ErrKindMismatch)
	}
	return time.Duration(intervalMs) * time.Millisecond, nil
}

func nameHash(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}
