package protocol

import (
	"fmt"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
)

// EventKind labels a protocol state transition.
type EventKind int

const (
	EventRegionCreated EventKind = iota
	EventRegionOpened
	EventAcquired
	EventReleased
	EventPayloadWritten
	EventWarning
	EventRegionDestroyed
)

func (k EventKind) String() string {
	switch k {
	case EventRegionCreated:
		return "region-created"
	case EventRegionOpened:
		return "region-opened"
	case EventAcquired:
		return "acquired"
	case EventReleased:
		return "released"
	case EventPayloadWritten:
		return "payload-written"
	case EventWarning:
		return "warning"
	case EventRegionDestroyed:
		return "region-destroyed"
	default:
		return "unknown"
	}
}

// Event records one transition of the protocol state machine.
type Event struct {
	Kind    EventKind
	Actor   string
	Payload int64
	At      time.Time
	Note    string
}

func (e Event) String() string {
	if e.Note != "" {
		return fmt.Sprintf("%s %s payload=%d (%s)", e.Actor, e.Kind, e.Payload, e.Note)
	}
	return fmt.Sprintf("%s %s payload=%d", e.Actor, e.Kind, e.Payload)
}

// Journal accumulates events in order. Safe for concurrent producers;
// Drain is meant for a single consumer once the sequence has finished.
type Journal struct {
	q *queuepkg.Queue
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{q: queuepkg.New(16)}
}

func (j *Journal) record(kind EventKind, actor string, payload int64, note string) {
	if j == nil {
		return
	}
	e := Event{Kind: kind, Actor: actor, Payload: payload, At: time.Now(), Note: note}
	if err := j.q.Put(e); err != nil {
		internalLogger.Warnf("journal put: %v", err)
	}
}

// Drain returns the recorded events in order and empties the journal.
func (j *Journal) Drain() []Event {
	if j == nil {
		return nil
	}
	n := j.q.Len()
	if n == 0 {
		return nil
	}
	items, err := j.q.Get(n)
	if err != nil {
		internalLogger.Warnf("journal drain: %v", err)
		return nil
	}
	events := make([]Event, 0, len(items))
	for _, it := range items {
		if e, ok := it.(Event); ok {
			events = append(events, e)
		}
	}
	return events
}
