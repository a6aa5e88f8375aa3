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

// RequestTask hands the caller an available task, reserving a slot on
// it until submission or expiry. Eligibility check, count increment and
// reservation happen in one transaction, so concurrent requests can
// never push a task past the redundancy cap.
//
// ok is false when no eligible task exists; that is a normal outcome,
// not an error.
func (e *Engine) RequestTask(ctx context.Context, caller Caller) (types.TaskView, bool, error) {
	if err := requireRole(caller, model.RoleAnnotator); err != nil {
		return types.TaskView{}, false, err
	}

	var task model.Task
	found := false
	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUser(caller.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: user %s", ErrNotFound, caller.ID)
			}
			return err
		}

		var err error
		task, found, err = tx.EligibleTask(caller.ID, e.redundancy)
		if err != nil || !found {
			return err
		}

		// The increment is a reservation, not a submission: it counts
		// toward the cap immediately so the slot cannot be double-issued.
		task.AssignedCount++
		if err := tx.UpdateTask(task); err != nil {
			return err
		}
		return tx.CreateReservation(model.Reservation{
			TaskID:    task.ID,
			UserID:    caller.ID,
			CreatedAt: e.now(),
		})
	})
	if err != nil {
		return types.TaskView{}, false, err
	}
	if !found {
		return types.TaskView{}, false, nil
	}

	metrics.RecordReservationIssued()
	e.record(ctx, journal.Event{Kind: journal.KindTaskReserved, TaskID: task.ID, UserID: caller.ID})
	e.logger.Debug(ctx, "task reserved",
		logger.String("taskID", task.ID),
		logger.String("userID", caller.ID),
		logger.Int("assignedCount", task.AssignedCount),
	)

	return taskView(task), true, nil
}
