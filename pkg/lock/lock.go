// Package lock implements cross-process mutual exclusion over the lock
// word of a shared memory region.
//
// Two interchangeable variants satisfy the same contract: FutexLock
// blocks in the kernel and is woken by the holder's release (Linux only),
// PolledLock trades wake-up latency for portability by retrying a native
// non-blocking kernel lock on a fixed interval. Whichever variant the
// creator initializes a region with, every participant must attach the
// same variant; the region header records the choice.
//
// Neither variant recovers a lock whose holder died while holding it: a
// crashed holder leaves the lock held until the region is destroyed.
package lock

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/shm-lock/api"
	"github.com/srediag/shm-lock/internal/logging"
)

// Errors returned by Acquire and Release. Match with errors.Is.
var (
	// ErrTimeout reports that the caller-supplied bound elapsed without
	// acquiring. The lock state is left untouched.
	ErrTimeout = errors.New("lock: acquire timed out")
	// ErrInterrupted reports a kernel wait aborted by signal delivery,
	// distinct from timeout. Only the futex variant can observe it.
	ErrInterrupted = errors.New("lock: wait interrupted")
	// ErrState wraps a platform lock call that returned an error code.
	ErrState = errors.New("lock: native lock call failed")
	// ErrKindMismatch reports a region initialized for a different lock
	// variant than the one being attached.
	ErrKindMismatch = errors.New("lock: region initialized for a different lock variant")
	// ErrUnsupported is returned by a variant's constructor on platforms
	// that cannot host it.
	ErrUnsupported = errors.New("lock: variant not supported on this platform")
)

var internalLogger = logging.Default()

// Locker is the contract both variants satisfy.
//
// Acquire blocks the calling process (one controlling thread per process
// is assumed) until the lock is held by the caller or timeout elapses.
// The bound is wall-clock across the whole attempt, never reset by
// wake-ups. Release must be called only by the current holder; releasing
// without holding is a contract violation with unspecified effect.
type Locker interface {
	Acquire(timeout time.Duration) error
	TryAcquire() bool
	Release() error
}

// Both variants also satisfy the api contract.
var _ api.Locker = (Locker)(nil)

// Options carries optional instrumentation, mirroring the region API's
// configuration style. Zero value disables everything.
type Options struct {
	// Tracer, when set, wraps every Acquire/Release in a span.
	Tracer trace.Tracer
	// Meter, when set, records acquisition counts and wait durations.
	Meter metric.Meter
	// Metrics, when set, feeds the Prometheus collectors.
	Metrics *Metrics
}

type instrumentation struct {
	tracer       trace.Tracer
	metrics      *Metrics
	otelAcquires metric.Int64Counter
	otelWait     metric.Float64Histogram
	otelAttrs    metric.MeasurementOption
}

func newInstrumentation(opts Options, variant string) instrumentation {
	ins := instrumentation{tracer: opts.Tracer, metrics: opts.Metrics}
	if opts.Meter != nil {
		ins.otelAcquires, _ = opts.Meter.Int64Counter("shmlock.acquisitions")
		ins.otelWait, _ = opts.Meter.Float64Histogram("shmlock.wait.seconds")
		ins.otelAttrs = metric.WithAttributes(attribute.String("variant", variant))
	}
	return ins
}

func (ins *instrumentation) startSpan(name string) trace.Span {
	if ins.tracer == nil {
		return nil
	}
	_, span := ins.tracer.Start(context.Background(), name)
	return span
}

func (ins *instrumentation) observeAcquire(start time.Time, contended bool, span trace.Span, err error) {
	waited := time.Since(start)
	if span != nil {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
	if ins.otelWait != nil {
		ins.otelWait.Record(context.Background(), waited.Seconds(), ins.otelAttrs)
	}
	if err == nil && ins.otelAcquires != nil {
		ins.otelAcquires.Add(context.Background(), 1, ins.otelAttrs)
	}
	if ins.metrics != nil {
		ins.metrics.observeAcquire(waited, contended, err)
	}
}

func (ins *instrumentation) observeRelease(span trace.Span, err error) {
	if span != nil {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
	if ins.metrics != nil && err == nil {
		ins.metrics.Releases.Inc()
	}
}
