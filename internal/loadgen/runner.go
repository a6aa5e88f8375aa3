package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
)

// HTTP status constants.
const (
	statusOK        = http.StatusOK
	statusCreated   = http.StatusCreated
	statusNoContent = http.StatusNoContent
	statusConflict  = http.StatusConflict
)

// Run executes the complete labeling load test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting labeling load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("tasks", config.NumTasks),
		logger.Int("annotators", config.Annotators),
		logger.String("categories", config.Categories),
		logger.String("timeout", config.Timeout.String()),
		logger.Any("verbose", config.Verbose))

	admin := newHTTPClient(config.Timeout, "loadgen-admin", "admin")

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config, admin); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Onboard synthetic annotators
	annotators, err := seedAnnotators(ctx, config, admin, stats)
	if err != nil {
		return fmt.Errorf("annotator onboarding failed: %w", err)
	}

	// Step 3: Seed tasks
	if err := seedTasks(ctx, config, admin, stats); err != nil {
		return fmt.Errorf("task seeding failed: %w", err)
	}

	// Step 4: Run annotators until no work remains
	if err := runAnnotators(ctx, config, annotators, stats); err != nil {
		return fmt.Errorf("annotation run failed: %w", err)
	}

	// Step 5: Resolve flagged conflicts
	if err := resolveConflicts(ctx, config, admin, stats); err != nil {
		return fmt.Errorf("conflict resolution failed: %w", err)
	}

	// Step 6: Settle payroll twice; the second run must be a no-op
	if err := settlePayroll(ctx, config, admin, stats); err != nil {
		return fmt.Errorf("payroll settlement failed: %w", err)
	}

	// Step 7: Verify the books balance
	if err := verifyResults(ctx, config, admin, annotators, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "load test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config, admin *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")

	resp, err := admin.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != statusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// seedAnnotators onboards the synthetic annotator accounts.
func seedAnnotators(ctx context.Context, config *Config, admin *HTTPClient, stats *Stats) ([]*HTTPClient, error) {
	logger.Get().Info(ctx, "onboarding annotators", logger.Int("count", config.Annotators))

	run := uuid.NewString()[:8]
	annotators := make([]*HTTPClient, 0, config.Annotators)
	for i := 0; i < config.Annotators; i++ {
		username := "loadgen_" + run + "_" + strconv.Itoa(i)
		resp, err := admin.Post(ctx, config.BaseURL+"/api/admin/users", map[string]string{
			"username": username,
			"role":     "annotator",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create annotator %s: %w", username, err)
		}
		if resp.StatusCode != statusCreated {
			body, _ := readResponseBody(resp)
			return nil, fmt.Errorf("annotator %s rejected with status %d: %s", username, resp.StatusCode, string(body))
		}
		var user User
		if err := decodeResponse(resp, &user); err != nil {
			return nil, err
		}
		annotators = append(annotators, newHTTPClient(config.Timeout, user.ID, "annotator"))
	}

	stats.AnnotatorsCreated = len(annotators)
	logger.Get().Info(ctx, "annotators onboarded", logger.Int("count", len(annotators)))
	return annotators, nil
}

// seedTasks creates the labeling tasks for this run.
func seedTasks(ctx context.Context, config *Config, admin *HTTPClient, stats *Stats) error {
	logger.Get().Info(ctx, "seeding tasks", logger.Int("count", config.NumTasks))

	for i := 0; i < config.NumTasks; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during task seeding: %w", ctx.Err())
		default:
		}

		imageRef := "https://images.example.com/loadgen/" + uuid.NewString() + ".jpg"
		resp, err := admin.Post(ctx, config.BaseURL+"/api/tasks", map[string]interface{}{
			"image_ref":  imageRef,
			"categories": config.Categories,
			"bounty":     config.Bounty,
		})
		if err != nil {
			return fmt.Errorf("failed to create task %d: %w", i, err)
		}
		if _, err := readResponseBody(resp); err != nil {
			return fmt.Errorf("failed to read task response: %w", err)
		}
		if resp.StatusCode != statusCreated {
			return fmt.Errorf("task %d rejected with status: %d", i, resp.StatusCode)
		}
		stats.TasksSeeded++
	}

	logger.Get().Info(ctx, "tasks seeded", logger.Int("count", stats.TasksSeeded))
	return nil
}

// resolveConflicts drains the admin review queue, always siding with the
// first category option as ground truth.
func resolveConflicts(ctx context.Context, config *Config, admin *HTTPClient, stats *Stats) error {
	logger.Get().Info(ctx, "resolving flagged conflicts")

	resp, err := admin.Get(ctx, config.BaseURL+"/api/admin/reviews")
	if err != nil {
		return fmt.Errorf("failed to fetch review queue: %w", err)
	}
	var queue []Task
	if err := decodeResponse(resp, &queue); err != nil {
		return err
	}

	for _, task := range queue {
		if len(task.Options) == 0 {
			return fmt.Errorf("task %s in review queue has no options", task.ID)
		}
		resp, err := admin.Post(ctx, config.BaseURL+"/api/admin/resolve", map[string]string{
			"task_id":     task.ID,
			"truth_label": task.Options[0],
		})
		if err != nil {
			return fmt.Errorf("failed to resolve task %s: %w", task.ID, err)
		}
		if _, err := readResponseBody(resp); err != nil {
			return fmt.Errorf("failed to read resolve response: %w", err)
		}
		if resp.StatusCode != statusOK {
			return fmt.Errorf("resolving task %s failed with status: %d", task.ID, resp.StatusCode)
		}
		stats.ConflictsResolved++
	}

	logger.Get().Info(ctx, "conflicts resolved", logger.Int("count", stats.ConflictsResolved))
	return nil
}

// settlePayroll runs payroll twice and records both totals. The second
// run settles nothing because the first cleared every balance.
func settlePayroll(ctx context.Context, config *Config, admin *HTTPClient, stats *Stats) error {
	logger.Get().Info(ctx, "running payroll")

	for i := 0; i < 2; i++ {
		resp, err := admin.Post(ctx, config.BaseURL+"/api/admin/payroll", struct{}{})
		if err != nil {
			return fmt.Errorf("payroll run %d failed: %w", i+1, err)
		}
		if resp.StatusCode != statusOK {
			body, _ := readResponseBody(resp)
			return fmt.Errorf("payroll run %d failed with status %d: %s", i+1, resp.StatusCode, string(body))
		}
		var result PayrollResult
		if err := decodeResponse(resp, &result); err != nil {
			return err
		}
		if i == 0 {
			stats.FirstPayrollTotal = result.TotalPaid
		} else {
			stats.SecondPayrollTotal = result.TotalPaid
		}
	}

	logger.Get().Info(ctx, "payroll settled",
		logger.Float64("firstRunTotal", stats.FirstPayrollTotal),
		logger.Float64("secondRunTotal", stats.SecondPayrollTotal))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var labelsPerSecond float64
	if stats.Duration > 0 {
		labelsPerSecond = float64(stats.LabelsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("tasksSeeded", stats.TasksSeeded),
		logger.Int("annotatorsCreated", stats.AnnotatorsCreated),
		logger.Int("tasksPulled", stats.TasksPulled),
		logger.Int("labelsSubmitted", stats.LabelsSubmitted),
		logger.Int("submitConflicts", stats.SubmitConflicts),
		logger.Int("submitFailed", stats.SubmitFailed),
		logger.Int("conflictsResolved", stats.ConflictsResolved),
		logger.Float64("firstPayrollTotal", stats.FirstPayrollTotal),
		logger.Float64("secondPayrollTotal", stats.SecondPayrollTotal),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("labelsPerSecond", labelsPerSecond))
}
