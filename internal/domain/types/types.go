// Package types contains common read shapes used across the application
package types

import "time"

// TaskView mirrors the task shape returned by queries.
type TaskView struct {
	ID            string   `json:"id"`
	ImageRef      string   `json:"image_ref"`
	Options       []string `json:"options"`
	FinalLabel    *string  `json:"final_label"`
	ReviewStatus  string   `json:"review_status"`
	Bounty        float64  `json:"bounty"`
	AssignedCount int      `json:"assigned_count"`
	Status        string   `json:"status"`
	CreatedAt     string   `json:"created_at"`
}

// Stats summarizes one annotator's track record.
// Accuracy is correct/decided and reported as 0 when nothing has been
// decided yet.
type Stats struct {
	Accuracy       float64 `json:"accuracy"`
	PendingBalance float64 `json:"pending_balance"`
	TotalAnnotated int     `json:"total_annotated"`
	CorrectCount   int     `json:"correct_count"`
}

// Display states for an annotation in the history view.
const (
	HistoryPending  = "pending"
	HistoryAccepted = "accepted"
	HistoryRejected = "rejected"
)

// HistoryEntry is one row of an annotator's history, ordered by creation.
// State reflects acceptance only; SettledAt is set once a payroll run
// has covered the annotation.
type HistoryEntry struct {
	AnnotationID string     `json:"annotation_id"`
	TaskID       string     `json:"task_id"`
	Label        string     `json:"label"`
	State        string     `json:"state"`
	Payment      *float64   `json:"payment"`
	SettledAt    *time.Time `json:"settled_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// UnpaidUser is one row of the payroll preview: the sum an annotator is
// owed for accepted-but-unsettled annotations.
type UnpaidUser struct {
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
}
