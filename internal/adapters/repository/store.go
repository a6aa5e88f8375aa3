// Package repository defines the durable entity store contract and errors.
package repository

import (
	"context"
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
)

// Store provides transactional read-modify-write access to entity state.
// Every engine operation runs inside exactly one Atomically block; the
// implementation guarantees that concurrent blocks are serialized and
// that a block either fully applies or leaves no trace.
type Store interface {
	// Atomically runs fn inside one transaction. If fn returns an error
	// the transaction rolls back and the error is returned unchanged.
	Atomically(ctx context.Context, fn func(tx Tx) error) error

	// Close releases underlying resources.
	Close() error
}

// Tx exposes the entity operations available inside a transaction.
// Reads observe the transaction's own writes.
type Tx interface {
	// Users.
	CreateUser(u model.User) error
	GetUser(id string) (model.User, error)
	ListUsers() ([]model.User, error)
	// CreditWallet adds amount to the user's settled wallet balance.
	CreditWallet(userID string, amount float64) error

	// Tasks.
	CreateTask(t model.Task) error
	GetTask(id string) (model.Task, error)
	UpdateTask(t model.Task) error
	TasksByStatus(status model.TaskStatus) ([]model.Task, error)
	TasksByReview(status model.ReviewStatus) ([]model.Task, error)
	// EligibleTask returns the oldest active task with assigned count
	// below cap on which userID holds neither an annotation nor a
	// reservation. ok is false when no task qualifies.
	EligibleTask(userID string, cap int) (task model.Task, ok bool, err error)

	// Annotations.
	CreateAnnotation(a model.Annotation) error
	UpdateAnnotation(a model.Annotation) error
	HasAnnotation(userID, taskID string) (bool, error)
	AnnotationsByTask(taskID string) ([]model.Annotation, error)
	// AnnotationsByUser returns the user's annotations newest first.
	AnnotationsByUser(userID string) ([]model.Annotation, error)
	// UnpaidAnnotations returns every annotation that is correct and not
	// yet covered by a payment, across all users.
	UnpaidAnnotations() ([]model.Annotation, error)

	// Payments.
	CreatePayment(p model.Payment) error
	GetPayment(id string) (model.Payment, error)

	// Reservations.
	CreateReservation(r model.Reservation) error
	HasReservation(userID, taskID string) (bool, error)
	DeleteReservation(userID, taskID string) error
	// ExpiredReservations returns reservations created before cutoff.
	ExpiredReservations(cutoff time.Time) ([]model.Reservation, error)
}
