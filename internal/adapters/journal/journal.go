// Package journal defines the contract for publishing and draining
// audit events.
//
// The audit trail is best-effort: publishing never blocks an engine
// operation, and a full journal drops the event rather than stalling a
// submission or a payroll run.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/metrics"
)

// Default journal configuration constants.
const (
	defaultCapacity = 1024
)

// Event kinds recorded by the engine.
const (
	KindTaskAdded        = "task_added"
	KindUserAdded        = "user_added"
	KindTaskReserved     = "task_reserved"
	KindAnnotation       = "annotation_submitted"
	KindAutoResolved     = "task_auto_resolved"
	KindConflictFlagged  = "conflict_flagged"
	KindConflictResolved = "conflict_resolved"
	KindReservationSwept = "reservation_swept"
	KindPayrollRun       = "payroll_run"
)

// Event is one audit record.
type Event struct {
	Kind   string
	TaskID string
	UserID string
	Label  string
	Amount float64
	At     time.Time
}

// Journal provides non-blocking publish and channel-based drain semantics.
type Journal interface {
	// Publish adds an event to the journal.
	// Returns false if the journal is full and the event was dropped.
	Publish(ctx context.Context, e Event) bool

	// Drain returns a channel that receives events as they become
	// available. The channel is closed when the journal is closed.
	Drain(ctx context.Context) <-chan Event

	// Len returns the current number of pending events.
	Len(ctx context.Context) int

	// Close shuts the journal down; no further publishes are accepted.
	Close() error
}

// InMemoryJournal implements Journal using a buffered channel.
type InMemoryJournal struct {
	events   chan Event
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryJournal creates a new in-memory journal with configuration options.
func NewInMemoryJournal(opts ...Option) *InMemoryJournal {
	j := &InMemoryJournal{
		capacity: defaultCapacity,
	}

	for _, opt := range opts {
		opt(j)
	}

	j.events = make(chan Event, j.capacity)

	metrics.UpdateJournalSize(0)

	return j
}

// Publish adds an event to the journal without blocking.
func (j *InMemoryJournal) Publish(ctx context.Context, e Event) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		metrics.RecordJournalDropped()
		return false
	}

	select {
	case j.events <- e:
		metrics.UpdateJournalSize(len(j.events))
		return true
	case <-ctx.Done():
		metrics.RecordJournalDropped()
		return false
	default:
		metrics.RecordJournalDropped()
		return false
	}
}

// Drain returns a channel that receives events as they become available.
func (j *InMemoryJournal) Drain(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for event := range j.events {
			select {
			case out <- event:
				metrics.UpdateJournalSize(len(j.events))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of pending events.
func (j *InMemoryJournal) Len(ctx context.Context) int {
	return len(j.events)
}

// Close shuts down the journal.
func (j *InMemoryJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	close(j.events)
	j.closed = true

	return nil
}
