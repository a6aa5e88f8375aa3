package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/journal"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/repository"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/types"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/metrics"
)

// UnpaidUsers previews payroll: the sum each annotator is owed for
// accepted annotations not yet covered by a payment. Users owed nothing
// are omitted.
func (e *Engine) UnpaidUsers(ctx context.Context, caller Caller) ([]types.UnpaidUser, error) {
	if err := requireRole(caller, model.RoleAdmin); err != nil {
		return nil, err
	}

	var unpaid []types.UnpaidUser
	total := 0.0
	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		anns, err := tx.UnpaidAnnotations()
		if err != nil {
			return err
		}
		sums := make(map[string]float64)
		for _, a := range anns {
			if a.Payment == nil {
				continue
			}
			sums[a.UserID] += *a.Payment
		}
		unpaid = make([]types.UnpaidUser, 0, len(sums))
		for userID, amount := range sums {
			if amount <= 0 {
				continue
			}
			user, err := tx.GetUser(userID)
			if err != nil {
				return err
			}
			unpaid = append(unpaid, types.UnpaidUser{UserID: userID, Username: user.Username, Amount: amount})
			total += amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(unpaid, func(i, j int) bool { return unpaid[i].Username < unpaid[j].Username })
	metrics.UpdateUnpaidTotal(total)
	return unpaid, nil
}

// RunPayroll settles every outstanding balance in one transaction: for
// each user owed a nonzero sum it creates a payment record, credits the
// wallet, and stamps the covered annotations with the payment id. The
// run is all-or-nothing; annotations finalized by concurrent
// submissions land entirely after this run's snapshot.
func (e *Engine) RunPayroll(ctx context.Context, caller Caller) (float64, error) {
	if err := requireRole(caller, model.RoleAdmin); err != nil {
		return 0, err
	}

	total := 0.0
	users := 0
	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		anns, err := tx.UnpaidAnnotations()
		if err != nil {
			return err
		}

		byUser := make(map[string][]model.Annotation)
		for _, a := range anns {
			byUser[a.UserID] = append(byUser[a.UserID], a)
		}
		userIDs := make([]string, 0, len(byUser))
		for userID := range byUser {
			userIDs = append(userIDs, userID)
		}
		sort.Strings(userIDs)

		now := e.now()
		for _, userID := range userIDs {
			owed := byUser[userID]
			amount := 0.0
			for _, a := range owed {
				if a.Payment != nil {
					amount += *a.Payment
				}
			}
			if amount <= 0 {
				continue
			}

			payment := model.Payment{
				ID:        uuid.NewString(),
				UserID:    userID,
				Amount:    amount,
				CreatedAt: now,
			}
			if err := tx.CreatePayment(payment); err != nil {
				return err
			}
			if err := tx.CreditWallet(userID, amount); err != nil {
				return err
			}
			for _, a := range owed {
				a.PaymentID = &payment.ID
				if err := tx.UpdateAnnotation(a); err != nil {
					return err
				}
			}
			total += amount
			users++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordPayrollRun(total)
	metrics.UpdateUnpaidTotal(0)
	e.record(ctx, journal.Event{Kind: journal.KindPayrollRun, UserID: caller.ID, Amount: total})
	e.logger.Info(ctx, "payroll settled",
		logger.Float64("total", total),
		logger.Int("users", users),
	)

	return total, nil
}

// paymentCreatedAt looks up when the covering payment for an annotation
// was settled.
func paymentCreatedAt(tx repository.Tx, paymentID *string) (*time.Time, error) {
	if paymentID == nil {
		return nil, nil
	}
	p, err := tx.GetPayment(*paymentID)
	if err != nil {
		return nil, err
	}
	at := p.CreatedAt
	return &at, nil
}
