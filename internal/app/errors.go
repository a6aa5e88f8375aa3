package engine

import (
	"errors"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
)

// Sentinel kinds for engine errors. Callers distinguish outcomes with
// errors.Is; none of these leak storage-layer detail.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidLabel        = errors.New("label not in task options")
	ErrDuplicateSubmission = errors.New("already annotated")
	ErrNotAssigned         = errors.New("no reservation for task")
	ErrTaskClosed          = errors.New("task not active")
	ErrNotInConflict       = errors.New("task not pending review")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUsernameTaken       = errors.New("username taken")
	ErrNotStarted          = errors.New("engine not started")
)

// requireRole gates an operation on the caller's role.
func requireRole(caller Caller, role model.Role) error {
	if caller.ID == "" || caller.Role != role {
		return ErrForbidden
	}
	return nil
}
