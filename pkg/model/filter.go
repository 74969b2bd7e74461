package model

// TaskFilter selects a subset of tasks in a queue, used by the CLI's
// `tasks` command, the scheduler's dispatch and Store.ListTasks.
type TaskFilter struct {
	State   TaskState // empty matches any state
	AppName string    // empty matches any app
	Limit   int
	Offset  int
}

// DefaultTaskFilter returns sensible defaults.
func DefaultTaskFilter() TaskFilter {
	return TaskFilter{Limit: 100, Offset: 0}
}

// Clamp enforces sane pagination bounds: a non-positive Limit becomes
// 100, a Limit above 1000 becomes 1000, and a negative Offset becomes 0.
func (f *TaskFilter) Clamp() {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
