package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/journal"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/repository"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/types"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/metrics"
)

// AddTask creates a new labeling task from an image reference, a
// comma-separated category list and a bounty. A zero bounty falls back
// to the configured default; negative or oversized bounties are
// rejected.
func (e *Engine) AddTask(ctx context.Context, caller Caller, imageRef, categories string, bounty float64) (types.TaskView, error) {
	if err := requireRole(caller, model.RoleAdmin); err != nil {
		return types.TaskView{}, err
	}
	if strings.TrimSpace(imageRef) == "" {
		return types.TaskView{}, fmt.Errorf("%w: image reference required", ErrInvalidArgument)
	}
	options := model.ParseOptions(categories)
	if options == nil {
		return types.TaskView{}, fmt.Errorf("%w: category list is empty", ErrInvalidArgument)
	}
	switch {
	case bounty == 0:
		bounty = e.defaultBounty
	case bounty < 0:
		return types.TaskView{}, fmt.Errorf("%w: bounty must be positive", ErrInvalidArgument)
	case bounty > e.maxBounty:
		return types.TaskView{}, fmt.Errorf("%w: bounty above maximum %.2f", ErrInvalidArgument, e.maxBounty)
	}

	task := model.Task{
		ID:           uuid.NewString(),
		ImageRef:     strings.TrimSpace(imageRef),
		Options:      options,
		ReviewStatus: model.ReviewNone,
		Bounty:       bounty,
		Status:       model.TaskActive,
		CreatedAt:    e.now(),
	}

	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		return tx.CreateTask(task)
	})
	if err != nil {
		return types.TaskView{}, err
	}

	metrics.RecordTaskAdded()
	e.record(ctx, journal.Event{Kind: journal.KindTaskAdded, TaskID: task.ID, Amount: bounty})
	e.logger.Info(ctx, "task added",
		logger.String("taskID", task.ID),
		logger.Float64("bounty", bounty),
		logger.Int("options", len(options)),
	)

	return taskView(task), nil
}

// AddUser onboards a platform account with the given role.
func (e *Engine) AddUser(ctx context.Context, caller Caller, username string, role model.Role) (model.User, error) {
	if err := requireRole(caller, model.RoleAdmin); err != nil {
		return model.User{}, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return model.User{}, fmt.Errorf("%w: username required", ErrInvalidArgument)
	}
	if role != model.RoleAdmin && role != model.RoleAnnotator {
		return model.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}

	user := model.User{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		Status:    model.UserActive,
		CreatedAt: e.now(),
	}

	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		return tx.CreateUser(user)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return model.User{}, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	}
	if err != nil {
		return model.User{}, err
	}

	e.record(ctx, journal.Event{Kind: journal.KindUserAdded, UserID: user.ID})
	e.logger.Info(ctx, "user added",
		logger.String("userID", user.ID),
		logger.String("role", string(role)),
	)

	return user, nil
}

// ActiveTasks lists tasks still open for annotation, oldest first.
func (e *Engine) ActiveTasks(ctx context.Context, caller Caller) ([]types.TaskView, error) {
	if err := requireRole(caller, model.RoleAdmin); err != nil {
		return nil, err
	}

	var tasks []model.Task
	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		var err error
		tasks, err = tx.TasksByStatus(model.TaskActive)
		return err
	})
	if err != nil {
		return nil, err
	}
	return taskViews(tasks), nil
}
