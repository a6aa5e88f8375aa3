package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/journal"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/repository"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/types"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/metrics"
)

// ReviewQueue lists tasks whose submissions disagree and are waiting
// for admin adjudication, oldest first.
func (e *Engine) ReviewQueue(ctx context.Context, caller Caller) ([]types.TaskView, error) {
	if err := requireRole(caller, model.RoleAdmin); err != nil {
		return nil, err
	}

	var tasks []model.Task
	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		var err error
		tasks, err = tx.TasksByReview(model.ReviewPending)
		return err
	})
	if err != nil {
		return nil, err
	}
	return taskViews(tasks), nil
}

// ResolveConflict sets the authoritative label for a disputed task and
// retroactively recomputes correctness and payment for every prior
// submission. The bulk rewrite is one transaction: a reader never
// observes a partially updated annotation set.
//
// Only tasks flagged for review can be resolved; auto-resolved tasks
// are rejected with ErrNotInConflict rather than silently overwritten.
func (e *Engine) ResolveConflict(ctx context.Context, caller Caller, taskID, truthLabel string) error {
	if err := requireRole(caller, model.RoleAdmin); err != nil {
		return err
	}

	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
			}
			return err
		}
		if task.ReviewStatus != model.ReviewPending {
			return ErrNotInConflict
		}
		if !task.HasOption(truthLabel) {
			return fmt.Errorf("%w: %q", ErrInvalidLabel, truthLabel)
		}

		task.FinalLabel = &truthLabel
		task.ReviewStatus = model.ReviewReviewed
		task.Status = model.TaskCompleted
		if err := tx.UpdateTask(task); err != nil {
			return err
		}

		anns, err := tx.AnnotationsByTask(taskID)
		if err != nil {
			return err
		}
		for _, a := range anns {
			correct := a.Label == truthLabel
			payment := 0.0
			if correct {
				payment = task.Bounty
			}
			a.IsCorrect = &correct
			a.Payment = &payment
			if err := tx.UpdateAnnotation(a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.RecordConflictResolved()
	e.record(ctx, journal.Event{Kind: journal.KindConflictResolved, TaskID: taskID, UserID: caller.ID, Label: truthLabel})
	e.logger.Info(ctx, "conflict resolved",
		logger.String("taskID", taskID),
		logger.String("label", truthLabel),
	)

	return nil
}
