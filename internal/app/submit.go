package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/journal"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/repository"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/consensus"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/metrics"
)

// SubmitAnnotation records the caller's label for a task and evaluates
// consensus in the same transaction, so the "count reached N" decision
// is serialized against concurrent submissions on the same task.
func (e *Engine) SubmitAnnotation(ctx context.Context, caller Caller, taskID, label string) (model.Annotation, error) {
	if err := requireRole(caller, model.RoleAnnotator); err != nil {
		return model.Annotation{}, err
	}

	ann := model.Annotation{
		ID:        uuid.NewString(),
		UserID:    caller.ID,
		TaskID:    taskID,
		Label:     label,
		CreatedAt: e.now(),
	}
	var outcome consensus.Outcome

	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
			}
			return err
		}
		if task.Status != model.TaskActive {
			return ErrTaskClosed
		}
		if !task.HasOption(label) {
			return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
		}
		if dup, err := tx.HasAnnotation(caller.ID, taskID); err != nil {
			return err
		} else if dup {
			return ErrDuplicateSubmission
		}
		if reserved, err := tx.HasReservation(caller.ID, taskID); err != nil {
			return err
		} else if !reserved {
			return ErrNotAssigned
		}

		// The reservation is consumed; the annotation now holds the slot.
		if err := tx.DeleteReservation(caller.ID, taskID); err != nil {
			return err
		}
		if err := tx.CreateAnnotation(ann); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateSubmission
			}
			return err
		}

		anns, err := tx.AnnotationsByTask(taskID)
		if err != nil {
			return err
		}
		labels := make([]string, len(anns))
		for i, a := range anns {
			labels[i] = a.Label
		}

		outcome = e.resolver.Evaluate(labels)
		switch outcome.Verdict {
		case consensus.Resolved:
			return finalizeTask(tx, task, anns, outcome.Label)
		case consensus.Conflict:
			task.ReviewStatus = model.ReviewPending
			return tx.UpdateTask(task)
		default:
			return nil
		}
	})
	if err != nil {
		return model.Annotation{}, err
	}

	metrics.RecordAnnotationSubmitted()
	e.record(ctx, journal.Event{Kind: journal.KindAnnotation, TaskID: taskID, UserID: caller.ID, Label: label})

	switch outcome.Verdict {
	case consensus.Resolved:
		metrics.RecordTaskAutoResolved()
		e.record(ctx, journal.Event{Kind: journal.KindAutoResolved, TaskID: taskID, Label: outcome.Label})
		e.logger.Info(ctx, "task auto-resolved",
			logger.String("taskID", taskID),
			logger.String("label", outcome.Label),
		)
	case consensus.Conflict:
		metrics.RecordConflictFlagged()
		e.record(ctx, journal.Event{Kind: journal.KindConflictFlagged, TaskID: taskID})
		e.logger.Info(ctx, "task requires manual review", logger.String("taskID", taskID))
	}

	return ann, nil
}

// finalizeTask closes a unanimously-labeled task: the final label is
// set, every annotation is accepted and owed the bounty. Runs inside
// the submission transaction so readers never observe a partial update.
func finalizeTask(tx repository.Tx, task model.Task, anns []model.Annotation, label string) error {
	task.FinalLabel = &label
	task.ReviewStatus = model.ReviewReviewed
	task.Status = model.TaskCompleted
	if err := tx.UpdateTask(task); err != nil {
		return err
	}
	for _, a := range anns {
		correct := true
		payment := task.Bounty
		a.IsCorrect = &correct
		a.Payment = &payment
		if err := tx.UpdateAnnotation(a); err != nil {
			return err
		}
	}
	return nil
}
