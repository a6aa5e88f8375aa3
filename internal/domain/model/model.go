// Package model contains domain entities passed between layers.
package model

import (
	"strings"
	"time"
)

// Role identifies what a caller is allowed to do.
type Role string

// User roles.
const (
	RoleAdmin     Role = "admin"
	RoleAnnotator Role = "annotator"
)

// UserStatus tracks moderation state. Mutated by an out-of-scope
// moderation process; the engine only reads it.
type UserStatus string

// User statuses.
const (
	UserActive  UserStatus = "active"
	UserWarning UserStatus = "warning"
	UserBanned  UserStatus = "banned"
)

// TaskStatus tracks task lifecycle. Tasks are never deleted; they only
// transition from active to completed.
type TaskStatus string

// Task lifecycle statuses.
const (
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
)

// ReviewStatus tracks where a task sits in the adjudication flow.
type ReviewStatus string

// Review statuses.
const (
	ReviewNone     ReviewStatus = "none"
	ReviewPending  ReviewStatus = "pending"
	ReviewReviewed ReviewStatus = "reviewed"
)

// User is a platform account: an admin or an annotator.
// WalletBalance holds settled earnings only; it is mutated exclusively
// by payroll settlement.
type User struct {
	ID            string
	Username      string
	Role          Role
	Status        UserStatus
	WalletBalance float64
	CreatedAt     time.Time
}

// Task is a unit of labeling work over one image.
// AssignedCount covers both live reservations and recorded annotations
// and never exceeds the configured redundancy cap.
type Task struct {
	ID            string
	ImageRef      string
	Options       []string
	FinalLabel    *string
	ReviewStatus  ReviewStatus
	Bounty        float64
	AssignedCount int
	Status        TaskStatus
	CreatedAt     time.Time
}

// HasOption reports whether label is one of the task's allowed categories.
func (t *Task) HasOption(label string) bool {
	for _, opt := range t.Options {
		if opt == label {
			return true
		}
	}
	return false
}

// Annotation is one annotator's submitted label for one task.
// IsCorrect is nil until the owning task's final label is set; Payment
// mirrors it (nil, bounty, or 0). PaymentID is set once a payroll run
// has covered the annotation, and is the settlement boundary.
type Annotation struct {
	ID        string
	UserID    string
	TaskID    string
	Label     string
	IsCorrect *bool
	Payment   *float64
	PaymentID *string
	CreatedAt time.Time
}

// Payment is one settled payroll transfer for one annotator. Immutable.
type Payment struct {
	ID        string
	UserID    string
	Amount    float64
	CreatedAt time.Time
}

// Reservation is an annotator's exclusive claim on a task between
// allocation and submission. Consumed on submit, or expired by the
// sweeper after the configured TTL.
type Reservation struct {
	TaskID    string
	UserID    string
	CreatedAt time.Time
}

// ParseOptions splits a comma-separated category list into the ordered
// option set, trimming whitespace and dropping empties and duplicates.
// Returns nil if no options remain.
func ParseOptions(categories string) []string {
	parts := strings.Split(categories, ",")
	seen := make(map[string]struct{}, len(parts))
	opts := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		opts = append(opts, p)
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}
