package loadgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
)

// Label choice constants. Most submissions agree on the first option so
// a healthy share of tasks reaches unanimity; the rest spread across
// the remaining options to force conflicts into the review queue.
const (
	agreementDivisor = 10
	agreementCutoff  = 7
)

// runAnnotators drives every synthetic annotator concurrently. Each one
// keeps pulling its next task and submitting a label until the service
// answers 204, meaning no eligible work remains for that account.
func runAnnotators(ctx context.Context, config *Config, annotators []*HTTPClient, stats *Stats) error {
	logger.Get().Info(ctx, "running annotators", logger.Int("count", len(annotators)))

	var (
		pulled    int64
		submitted int64
		conflicts int64
		failed    int64
	)

	var wg sync.WaitGroup
	errCh := make(chan error, len(annotators))

	for i, annotator := range annotators {
		wg.Add(1)
		go func(workerID int, client *HTTPClient) {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				task, ok, err := pullNextTask(ctx, config, client)
				if err != nil {
					errCh <- fmt.Errorf("annotator %d: %w", workerID, err)
					return
				}
				if !ok {
					return
				}
				atomic.AddInt64(&pulled, 1)

				label := chooseLabel(task.Options)
				switch submitLabel(ctx, config, client, task.ID, label) {
				case "success":
					atomic.AddInt64(&submitted, 1)
				case "conflict":
					atomic.AddInt64(&conflicts, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}(i, annotator)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		return err
	}

	stats.TasksPulled = int(atomic.LoadInt64(&pulled))
	stats.LabelsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.SubmitConflicts = int(atomic.LoadInt64(&conflicts))
	stats.SubmitFailed = int(atomic.LoadInt64(&failed))

	logger.Get().Info(ctx, "annotation run completed",
		logger.Int("tasksPulled", stats.TasksPulled),
		logger.Int("labelsSubmitted", stats.LabelsSubmitted),
		logger.Int("submitConflicts", stats.SubmitConflicts),
		logger.Int("submitFailed", stats.SubmitFailed))
	return nil
}

// pullNextTask reserves the caller's next task. ok is false when the
// service has no eligible work left for this annotator.
func pullNextTask(ctx context.Context, config *Config, client *HTTPClient) (Task, bool, error) {
	resp, err := client.Get(ctx, config.BaseURL+"/api/tasks/next")
	if err != nil {
		return Task{}, false, fmt.Errorf("failed to pull task: %w", err)
	}
	if resp.StatusCode == statusNoContent {
		_, _ = readResponseBody(resp)
		return Task{}, false, nil
	}
	if resp.StatusCode != statusOK {
		body, _ := readResponseBody(resp)
		return Task{}, false, fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, string(body))
	}
	var task Task
	if err := decodeResponse(resp, &task); err != nil {
		return Task{}, false, err
	}
	return task, true, nil
}

// submitLabel posts one annotation and classifies the outcome.
func submitLabel(ctx context.Context, config *Config, client *HTTPClient, taskID, label string) string {
	resp, err := client.Post(ctx, config.BaseURL+"/api/annotations", map[string]string{
		"task_id": taskID,
		"label":   label,
	})
	if err != nil {
		return "failed"
	}
	if _, err := readResponseBody(resp); err != nil {
		return "failed"
	}

	switch resp.StatusCode {
	case statusCreated:
		return "success"
	case statusConflict:
		// Reservation swept or task finalized between pull and submit
		return "conflict"
	default:
		return "failed"
	}
}

// chooseLabel picks a label with a bias toward the first option.
func chooseLabel(options []string) string {
	if len(options) == 0 {
		return ""
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(agreementDivisor))
	if n.Int64() < agreementCutoff || len(options) == 1 {
		return options[0]
	}
	m, _ := rand.Int(rand.Reader, big.NewInt(int64(len(options)-1)))
	return options[1+m.Int64()]
}
