// Package journal defines the contract for publishing and draining
// audit events.
package journal

// Option applies a configuration option to the InMemoryJournal.
type Option func(*InMemoryJournal)

// WithCapacity sets the maximum number of buffered events.
func WithCapacity(capacity int) Option {
	return func(j *InMemoryJournal) {
		if capacity > 0 {
			j.capacity = capacity
		}
	}
}
