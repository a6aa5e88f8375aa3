package engine

import (
	"context"
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/journal"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/repository"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/metrics"
)

// sweepLoop periodically reclaims reservations whose annotator never
// submitted, freeing their slots so abandoned allocations cannot starve
// a task forever.
func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if n, err := e.SweepReservations(ctx); err != nil {
				e.logger.Error(ctx, "reservation sweep failed", logger.Error(err))
			} else if n > 0 {
				e.logger.Info(ctx, "reservations expired", logger.Int("count", n))
			}
		}
	}
}

// SweepReservations deletes every reservation older than the TTL and
// decrements the owning task's assigned count. One transaction covers
// the whole sweep so a concurrent allocation sees either the old slot
// or the freed one, never an in-between state.
func (e *Engine) SweepReservations(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.reservationTTL)
	swept := 0
	var sweptRes []model.Reservation

	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		expired, err := tx.ExpiredReservations(cutoff)
		if err != nil {
			return err
		}
		for _, r := range expired {
			if err := tx.DeleteReservation(r.UserID, r.TaskID); err != nil {
				return err
			}
			task, err := tx.GetTask(r.TaskID)
			if err != nil {
				return err
			}
			if task.AssignedCount > 0 {
				task.AssignedCount--
			}
			if err := tx.UpdateTask(task); err != nil {
				return err
			}
		}
		swept = len(expired)
		sweptRes = expired
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, r := range sweptRes {
		metrics.RecordReservationExpired()
		e.record(ctx, journal.Event{Kind: journal.KindReservationSwept, TaskID: r.TaskID, UserID: r.UserID})
	}
	return swept, nil
}

// drainLoop consumes the audit journal and logs each event. The trail
// is best-effort observability, not durable state.
func (e *Engine) drainLoop(ctx context.Context) {
	events := e.journal.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.logger.Debug(ctx, "audit event",
				logger.String("kind", ev.Kind),
				logger.String("taskID", ev.TaskID),
				logger.String("userID", ev.UserID),
				logger.String("label", ev.Label),
				logger.Float64("amount", ev.Amount),
			)
		}
	}
}
