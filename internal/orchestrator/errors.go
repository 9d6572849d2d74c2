package orchestrator

import (
	"errors"
	"fmt"
)

// ErrAborted is returned when the policy, or the round limit, gave up on
// starting the runtime.
var ErrAborted = errors.New("start aborted")

// InconsistentStateError: the pid is alive but the admin API does not answer.
// This usually means a wrong admin port or a runtime in a broken state.
type InconsistentStateError struct {
	Pid int
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("process %d is alive but not accessible for administrative requests", e.Pid)
}

// UnexpectedStatusError is returned when the runtime reports a status from
// which startup cannot continue.
type UnexpectedStatusError struct {
	Status string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("cannot start runtime when it has status %q", e.Status)
}
