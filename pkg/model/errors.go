package model

import "fmt"

// ErrorCode identifies a desipipe error class, per the taxonomy in spec §7.
type ErrorCode string

const (
	ErrUserCode         ErrorCode = "USER_CODE_ERROR"
	ErrDependencyFailed ErrorCode = "DEPENDENCY_FAILED"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrLost             ErrorCode = "LOST"
	ErrQueueCorruption  ErrorCode = "QUEUE_CORRUPTION"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrInvalidGraph     ErrorCode = "INVALID_GRAPH"
	ErrNotFound         ErrorCode = "NOT_FOUND"
)

// Errno values are stable, small integers stored on the Task row so that
// `err.Error()`-equivalent information survives a process restart even
// though the Go error value itself does not.
const (
	ErrnoOK               = 0
	ErrnoDependencyFailed = -1
	ErrnoKilled           = -2
	ErrnoLost             = -3
	ErrnoUserCode         = -4 // stable default for an app-returned error; bash apps use the exit code instead
)

// Error is a structured error carrying a stable code, used for errors
// returned from queue and scheduler operations.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFoundError creates a NOT_FOUND Error.
func NewNotFoundError(resource, id string) *Error {
	return &Error{Code: ErrNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// NewInvalidGraphError creates an INVALID_GRAPH Error for cyclic dependency graphs.
func NewInvalidGraphError(taskID string) *Error {
	return &Error{Code: ErrInvalidGraph, Message: fmt.Sprintf("task %s introduces a dependency cycle", taskID)}
}

// InvalidTransitionError is returned when a state transition violates the
// state lattice in spec §4.1.
type InvalidTransitionError struct {
	ID   string
	From TaskState
	To   TaskState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid task state transition: %s -> %s (task %s)", e.From, e.To, e.ID)
}

// DependencyFailedError is the propagated error a cascade-failed task carries.
type DependencyFailedError struct {
	TaskID string
	DepID  string
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("task %s failed: dependency %s did not succeed", e.TaskID, e.DepID)
}

// TaskError is returned by Future.Result() when the underlying task ended
// in a non-SUCCEEDED terminal state. It carries the errno and captured
// stderr/traceback recorded on the row.
type TaskError struct {
	TaskID string
	State  TaskState
	Errno  int
	Stderr string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s ended in state %s (errno=%d): %s", e.TaskID, e.State, e.Errno, e.Stderr)
}
