package loadgen

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
)

// Tolerance for comparing settled money totals.
const moneyEpsilon = 1e-6

// verifyResults checks that the engine's books balance after the run:
// the review queue is drained, nothing is owed after payroll, a repeat
// payroll settles zero, and the per-annotator stats add up to what the
// workers actually submitted.
func verifyResults(ctx context.Context, config *Config, admin *HTTPClient, annotators []*HTTPClient, stats *Stats) error {
	log.Println("Verifying results...")

	// Review queue must be empty after resolution
	resp, err := admin.Get(ctx, config.BaseURL+"/api/admin/reviews")
	if err != nil {
		return fmt.Errorf("failed to fetch review queue: %w", err)
	}
	var queue []Task
	if err := decodeResponse(resp, &queue); err != nil {
		return err
	}
	if len(queue) != 0 {
		return fmt.Errorf("review queue still holds %d tasks after resolution", len(queue))
	}

	// Nothing may be owed after payroll
	resp, err = admin.Get(ctx, config.BaseURL+"/api/admin/unpaid")
	if err != nil {
		return fmt.Errorf("failed to fetch unpaid report: %w", err)
	}
	var unpaid []UnpaidEntry
	if err := decodeResponse(resp, &unpaid); err != nil {
		return err
	}
	if len(unpaid) != 0 {
		return fmt.Errorf("%d annotators still carry unpaid balances after payroll", len(unpaid))
	}

	// A repeat payroll must settle nothing
	if math.Abs(stats.SecondPayrollTotal) > moneyEpsilon {
		return fmt.Errorf("second payroll run settled %.2f; expected 0", stats.SecondPayrollTotal)
	}

	// Per-annotator stats must add up to the submitted labels
	totalAnnotated := 0
	pendingBalance := 0.0
	for i, client := range annotators {
		resp, err := client.Get(ctx, config.BaseURL+"/api/stats")
		if err != nil {
			return fmt.Errorf("failed to fetch stats for annotator %d: %w", i, err)
		}
		var s UserStats
		if err := decodeResponse(resp, &s); err != nil {
			return err
		}
		totalAnnotated += s.TotalAnnotated
		pendingBalance += s.PendingBalance

		if s.Accuracy < 0 || s.Accuracy > 1 {
			return fmt.Errorf("annotator %d reports accuracy %.3f outside [0,1]", i, s.Accuracy)
		}
		if s.CorrectCount > s.TotalAnnotated {
			return fmt.Errorf("annotator %d reports %d correct out of %d annotated", i, s.CorrectCount, s.TotalAnnotated)
		}
	}
	if totalAnnotated != stats.LabelsSubmitted {
		return fmt.Errorf("annotator stats total %d does not match %d submitted labels", totalAnnotated, stats.LabelsSubmitted)
	}
	if math.Abs(pendingBalance) > moneyEpsilon {
		return fmt.Errorf("annotators still report %.2f pending after payroll", pendingBalance)
	}

	// Remaining active tasks are only legitimate when the annotator pool
	// is too small to fill the redundancy cap
	resp, err = admin.Get(ctx, config.BaseURL+"/api/tasks/active")
	if err != nil {
		return fmt.Errorf("failed to fetch active tasks: %w", err)
	}
	var active []Task
	if err := decodeResponse(resp, &active); err != nil {
		return err
	}
	for _, task := range active {
		if task.AssignedCount > len(annotators) {
			return fmt.Errorf("task %s assigned %d times with only %d annotators", task.ID, task.AssignedCount, len(annotators))
		}
	}
	if len(active) > 0 {
		logger.Get().Info(ctx, "tasks left active; annotator pool smaller than redundancy cap",
			logger.Int("activeTasks", len(active)))
	}

	log.Println("Result verification completed")
	return nil
}
