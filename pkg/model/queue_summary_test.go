package model

import "testing"

func TestComputeQueueSummary(t *testing.T) {
	tasks := []Task{
		{State: TaskWaiting},
		{State: TaskPending},
		{State: TaskPending},
		{State: TaskRunning},
		{State: TaskSucceeded},
		{State: TaskFailed},
		{State: TaskKilled},
		{State: TaskUnknown},
	}

	got := ComputeQueueSummary(tasks)

	if got.Total != 8 {
		t.Errorf("Total = %d, want 8", got.Total)
	}
	if got.Waiting != 1 {
		t.Errorf("Waiting = %d, want 1", got.Waiting)
	}
	if got.Pending != 2 {
		t.Errorf("Pending = %d, want 2", got.Pending)
	}
	if got.Running != 1 {
		t.Errorf("Running = %d, want 1", got.Running)
	}
	if got.Succeeded != 1 || got.Failed != 1 || got.Killed != 1 || got.Unknown != 1 {
		t.Errorf("terminal/unknown counts wrong: %+v", got)
	}
}

func TestQueueSummary_Runnable(t *testing.T) {
	if (QueueSummary{}).Runnable() {
		t.Error("empty summary should not be runnable")
	}
	if !(QueueSummary{Pending: 1}).Runnable() {
		t.Error("pending tasks should be runnable")
	}
	if !(QueueSummary{Running: 1}).Runnable() {
		t.Error("running tasks should be runnable")
	}
	if (QueueSummary{Succeeded: 3, Failed: 1}).Runnable() {
		t.Error("all-terminal summary should not be runnable")
	}
}
