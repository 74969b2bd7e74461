package model

import "time"

// Worker is the scheduler's bookkeeping record for one process a Provider
// has launched to pull tasks from a queue. It is not itself persisted;
// the scheduler rebuilds its view of live workers from Provider.LiveWorkers
// each tick and only writes claims/heartbeats through the Task rows those
// workers touch.
type Worker struct {
	JobID     string       `json:"jobid"` // provider-assigned handle, e.g. pid or Slurm job id
	Provider  ProviderKind `json:"provider"`
	State     WorkerState  `json:"state"`
	StartedAt time.Time    `json:"started_at"`
	LastSeen  time.Time    `json:"last_seen,omitempty"`
}

// WorkerState represents the lifecycle state of a launched worker process,
// as distinct from the Task lattice: a worker can be alive with no task
// claimed, or have exited between heartbeats.
type WorkerState string

const (
	WorkerStarting WorkerState = "starting"
	WorkerActive   WorkerState = "active"
	WorkerExited   WorkerState = "exited"
)

// ValidWorkerTransitions defines the allowed state transitions for Workers.
var ValidWorkerTransitions = map[WorkerState][]WorkerState{
	WorkerStarting: {WorkerActive, WorkerExited},
	WorkerActive:   {WorkerExited},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s WorkerState) CanTransitionTo(next WorkerState) bool {
	for _, allowed := range ValidWorkerTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsLive reports whether the scheduler should still count this worker
// against a TMConfig's max_workers budget.
func (w Worker) IsLive() bool {
	return w.State == WorkerStarting || w.State == WorkerActive
}
