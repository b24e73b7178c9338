// Package protocol implements the two-phase usage pattern for a shared
// region guarded by a cross-process lock: the creator initializes the
// payload and holds the lock, a second participant waits, mutates, and
// releases, then the creator re-acquires, mutates again and tears the
// region down.
//
// The sequencing here, not the lock primitive itself, is what keeps each
// participant from observing the payload mid-mutation: every mutator
// holds the lock for its entire read-modify-write. Pre-lock peeks are
// advisory diagnostics with no ordering guarantee.
package protocol

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/srediag/shm-lock/internal/logging"
	"github.com/srediag/shm-lock/pkg/lock"
	"github.com/srediag/shm-lock/pkg/shm"
)

// ErrProtocol reports a payload observed in an unexpected state. The
// sequence treats it as a warning, never as fatal.
var ErrProtocol = errors.New("protocol: payload in unexpected state")

var internalLogger = logging.Default()

const (
	defaultCreatorTimeout     = 5 * time.Second
	defaultParticipantTimeout = 10 * time.Second
)

// CreatorConfig configures the region-owning side of the sequence.
type CreatorConfig struct {
	// RegionName identifies the region; handed to the participant
	// out-of-band. Required.
	RegionName string
	// RegionSize in bytes; shm.DefaultRegionSize when zero.
	RegionSize int
	// InitialPayload is written before the lock is first acquired.
	InitialPayload int64
	// Kind selects the lock variant; platform default when unset.
	Kind shm.LockKind
	// AcquireTimeout bounds every acquire; 5s when zero.
	AcquireTimeout time.Duration
	// LockOptions passes instrumentation through to the lock.
	LockOptions lock.Options
	// Journal receives protocol events when non-nil.
	Journal *Journal
}

// Creator drives phases 1 and 3 of the sequence and owns the region's
// lifecycle.
type Creator struct {
	region  *shm.Region
	locker  lock.Locker
	journal *Journal
	timeout time.Duration
}

// NewCreator allocates the region, configures the lock variant, writes
// the initial payload, and acquires the lock so the participant cannot
// run until Handoff. The region name can be published to the participant
// as soon as NewCreator returns.
func NewCreator(cfg CreatorConfig) (*Creator, error) {
	region, err := shm.Create(shm.Options{Name: cfg.RegionName, Size: cfg.RegionSize})
	if err != nil {
		return nil, err
	}
	locker, err := lock.New(region, cfg.Kind, cfg.LockOptions)
	if err != nil {
		_ = region.Destroy()
		return nil, err
	}
	timeout := cfg.AcquireTimeout
	if timeout == 0 {
		timeout = defaultCreatorTimeout
	}
	c := &Creator{region: region, locker: locker, journal: cfg.Journal, timeout: timeout}
	region.Header().SetPayload(cfg.InitialPayload)
	c.journal.record(EventRegionCreated, "creator", cfg.InitialPayload, "")
	if err := locker.Acquire(timeout); err != nil {
		_ = c.Teardown()
		return nil, fmt.Errorf("creator initial acquire: %w", err)
	}
	c.journal.record(EventAcquired, "creator", cfg.InitialPayload, "initial hold")
	return c, nil
}

// RegionName is the identifier the participant opens.
func (c *Creator) RegionName() string {
	return c.region.Name()
}

// Region exposes the underlying region, e.g. for diagnostics.
func (c *Creator) Region() *shm.Region {
	return c.region
}

// Handoff releases the initial hold so the participant's acquire can
// succeed.
func (c *Creator) Handoff() error {
	if err := c.locker.Release(); err != nil {
		return err
	}
	c.journal.record(EventReleased, "creator", c.region.Header().PayloadRelaxed(), "handoff")
	return nil
}

// Finish re-acquires the lock, applies op to the payload under it, and
// releases. Returns the value written.
func (c *Creator) Finish(op func(int64) int64) (int64, error) {
	if err := c.locker.Acquire(c.timeout); err != nil {
		return 0, fmt.Errorf("creator final acquire: %w", err)
	}
	hdr := c.region.Header()
	cur := hdr.Payload()
	c.journal.record(EventAcquired, "creator", cur, "final hold")
	next := op(cur)
	hdr.SetPayload(next)
	c.journal.record(EventPayloadWritten, "creator", next, "")
	if err := c.locker.Release(); err != nil {
		return next, err
	}
	c.journal.record(EventReleased, "creator", next, "")
	return next, nil
}

// Teardown closes the lock and destroys the region. Call only after all
// participants have exited; the primitive has no reference counting.
func (c *Creator) Teardown() error {
	if closer, ok := c.locker.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			internalLogger.Warnf("creator lock close: %v", err)
		}
	}
	err := c.region.Destroy()
	c.journal.record(EventRegionDestroyed, "creator", 0, "")
	return err
}

// ParticipantConfig configures the second process's side.
type ParticipantConfig struct {
	// RegionName received out-of-band from the creator. Required.
	RegionName string
	// ExpectInitial, when non-nil, is checked against an advisory
	// pre-lock peek; a mismatch logs ErrProtocol as a warning.
	ExpectInitial *int64
	// AcquireTimeout bounds the wait for the creator's handoff; 10s
	// when zero.
	AcquireTimeout time.Duration
	// HoldFor keeps the lock held after mutating, simulating work.
	HoldFor time.Duration
	// LockOptions passes instrumentation through to the lock.
	LockOptions lock.Options
	// Journal receives protocol events when non-nil.
	Journal *Journal
}

// RunParticipant executes phase 2: open, wait for the lock, apply op to
// the payload under it, release, close. Returns the value written.
func RunParticipant(cfg ParticipantConfig, op func(int64) int64) (int64, error) {
	region, err := shm.Open(cfg.RegionName)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := region.Close(); cerr != nil {
			internalLogger.Warnf("participant region close: %v", cerr)
		}
	}()
	locker, err := lock.Attach(region, cfg.LockOptions)
	if err != nil {
		return 0, err
	}
	if closer, ok := locker.(io.Closer); ok {
		defer func() {
			if cerr := closer.Close(); cerr != nil {
				internalLogger.Warnf("participant lock close: %v", cerr)
			}
		}()
	}
	journal := cfg.Journal
	hdr := region.Header()

	peek := hdr.PayloadRelaxed()
	journal.record(EventRegionOpened, "participant", peek, "pre-lock peek")
	if cfg.ExpectInitial != nil && peek != *cfg.ExpectInitial {
		internalLogger.Warnf("%v: expected initial payload %d, got %d",
			ErrProtocol, *cfg.ExpectInitial, peek)
		journal.record(EventWarning, "participant", peek,
			fmt.Sprintf("expected initial payload %d", *cfg.ExpectInitial))
	}

	timeout := cfg.AcquireTimeout
	if timeout == 0 {
		timeout = defaultParticipantTimeout
	}
	if err := locker.Acquire(timeout); err != nil {
		return 0, fmt.Errorf("participant acquire: %w", err)
	}
	cur := hdr.Payload()
	journal.record(EventAcquired, "participant", cur, "")
	next := op(cur)
	hdr.SetPayload(next)
	journal.record(EventPayloadWritten, "participant", next, "")
	if cfg.HoldFor > 0 {
		time.Sleep(cfg.HoldFor)
	}
	if err := locker.Release(); err != nil {
		return next, err
	}
	journal.record(EventReleased, "participant", next, "")
	return next, nil
}
