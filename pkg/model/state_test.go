package model

import "testing"

func TestTaskState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    TaskState
		terminal bool
	}{
		{TaskWaiting, false},
		{TaskPending, false},
		{TaskRunning, false},
		{TaskSucceeded, true},
		{TaskFailed, true},
		{TaskKilled, true},
		{TaskUnknown, false},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("TaskState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestTaskState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  TaskState
		to    TaskState
		valid bool
	}{
		// Valid transitions
		{TaskWaiting, TaskPending, true},
		{TaskPending, TaskRunning, true},
		{TaskRunning, TaskSucceeded, true},
		{TaskRunning, TaskFailed, true},
		{TaskRunning, TaskKilled, true},
		{TaskRunning, TaskUnknown, true},
		{TaskSucceeded, TaskPending, true}, // explicit retry
		{TaskFailed, TaskPending, true},
		{TaskKilled, TaskPending, true},
		{TaskUnknown, TaskPending, true},
		{TaskUnknown, TaskKilled, true},

		// Invalid transitions
		{TaskWaiting, TaskRunning, false},
		{TaskPending, TaskSucceeded, false},
		{TaskSucceeded, TaskFailed, false},
		{TaskSucceeded, TaskRunning, false},
		{TaskRunning, TaskPending, false},
		{TaskKilled, TaskRunning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("TaskState(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}
