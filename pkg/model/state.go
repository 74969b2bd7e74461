package model

// TaskState represents the lifecycle state of a Task.
type TaskState string

const (
	TaskWaiting   TaskState = "WAITING"
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskSucceeded TaskState = "SUCCEEDED"
	TaskFailed    TaskState = "FAILED"
	TaskKilled    TaskState = "KILLED"
	TaskUnknown   TaskState = "UNKNOWN"
)

// String returns the string representation of the task state.
func (s TaskState) String() string {
	return string(s)
}

// IsTerminal returns true if the task is in a final state. UNKNOWN is
// deliberately excluded: a lost worker's task stays UNKNOWN until an
// explicit retry moves it back to PENDING.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskKilled:
		return true
	}
	return false
}

// ValidTaskTransitions defines the allowed state transitions for Tasks, per
// the state lattice in spec §4.1. Every terminal state and UNKNOWN list
// PENDING as valid: that edge is only taken by an explicit retry, never by
// the scheduler on its own.
var ValidTaskTransitions = map[TaskState][]TaskState{
	TaskWaiting:   {TaskPending, TaskKilled},
	TaskPending:   {TaskRunning, TaskKilled},
	TaskRunning:   {TaskSucceeded, TaskFailed, TaskKilled, TaskUnknown},
	TaskSucceeded: {TaskPending},
	TaskFailed:    {TaskPending},
	TaskKilled:    {TaskPending},
	TaskUnknown:   {TaskPending, TaskKilled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	for _, allowed := range ValidTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// QueueState represents the lifecycle state of a Queue container.
type QueueState string

const (
	QueueActive QueueState = "ACTIVE"
	QueuePaused QueueState = "PAUSED"
)

// ProviderKind identifies which provider backend runs a Task's worker.
type ProviderKind string

const (
	ProviderLocal ProviderKind = "local"
	ProviderBatch ProviderKind = "batch"
)
