package engine

import (
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/types"
)

// taskView converts a task entity to its API read shape.
func taskView(t model.Task) types.TaskView {
	return types.TaskView{
		ID:            t.ID,
		ImageRef:      t.ImageRef,
		Options:       t.Options,
		FinalLabel:    t.FinalLabel,
		ReviewStatus:  string(t.ReviewStatus),
		Bounty:        t.Bounty,
		AssignedCount: t.AssignedCount,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
	}
}

func taskViews(tasks []model.Task) []types.TaskView {
	views := make([]types.TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = taskView(t)
	}
	return views
}

// historyState derives the display state from an annotation's
// correctness flag. "accepted" reflects the consensus or admin
// decision, not settlement.
func historyState(a model.Annotation) string {
	switch {
	case a.IsCorrect == nil:
		return types.HistoryPending
	case *a.IsCorrect:
		return types.HistoryAccepted
	default:
		return types.HistoryRejected
	}
}
