package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/repository"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/types"
)

// Stats summarizes the caller's track record. Accuracy counts only
// decided annotations and is 0 when nothing has been decided yet.
func (e *Engine) Stats(ctx context.Context, caller Caller) (types.Stats, error) {
	if err := requireRole(caller, model.RoleAnnotator); err != nil {
		return types.Stats{}, err
	}

	var stats types.Stats
	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUser(caller.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: user %s", ErrNotFound, caller.ID)
			}
			return err
		}
		anns, err := tx.AnnotationsByUser(caller.ID)
		if err != nil {
			return err
		}

		decided := 0
		for _, a := range anns {
			if a.IsCorrect == nil {
				continue
			}
			decided++
			if *a.IsCorrect {
				stats.CorrectCount++
				if a.PaymentID == nil && a.Payment != nil {
					stats.PendingBalance += *a.Payment
				}
			}
		}
		stats.TotalAnnotated = len(anns)
		if decided > 0 {
			stats.Accuracy = float64(stats.CorrectCount) / float64(decided)
		}
		return nil
	})
	if err != nil {
		return types.Stats{}, err
	}
	return stats, nil
}

// History returns the caller's annotations newest first, with the
// derived display state and, where settled, the payment timestamp.
func (e *Engine) History(ctx context.Context, caller Caller) ([]types.HistoryEntry, error) {
	if err := requireRole(caller, model.RoleAnnotator); err != nil {
		return nil, err
	}

	var entries []types.HistoryEntry
	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUser(caller.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: user %s", ErrNotFound, caller.ID)
			}
			return err
		}
		anns, err := tx.AnnotationsByUser(caller.ID)
		if err != nil {
			return err
		}

		entries = make([]types.HistoryEntry, 0, len(anns))
		for _, a := range anns {
			settledAt, err := paymentCreatedAt(tx, a.PaymentID)
			if err != nil {
				return err
			}
			entries = append(entries, types.HistoryEntry{
				AnnotationID: a.ID,
				TaskID:       a.TaskID,
				Label:        a.Label,
				State:        historyState(a),
				Payment:      a.Payment,
				SettledAt:    settledAt,
				CreatedAt:    a.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
