package model

import "time"

// Task is a single row in the queue: one concrete invocation of an App
// with specific arguments, persisted so it survives process death and so
// a later, identical submission can reuse its result.
//
// ArgsBlob, KwargsBlob, ResultBlob and TMConfigBlob are opaque byte blobs
// produced by internal/codec; this package never decodes them, matching
// the queue's role as a dumb, durable store.
type Task struct {
	ID      string  `json:"id"` // content hash, see internal/identity
	AppName string  `json:"app_name"`
	AppHash string  `json:"app_hash"`
	Kind    AppKind `json:"kind"`

	ArgsBlob   []byte   `json:"args_blob"`
	KwargsBlob []byte   `json:"kwargs_blob"`
	Deps       []string `json:"deps"` // task ids this task's arguments depend on

	State TaskState `json:"state"`

	ResultBlob []byte `json:"result_blob,omitempty"`
	Errno      int    `json:"errno"`
	Out        string `json:"out"`
	Err        string `json:"err"`

	JobID string `json:"jobid,omitempty"` // opaque provider-assigned id, set while claimed

	TMConfigBlob []byte `json:"tm_config"`

	CreatedAt  time.Time  `json:"t_created"`
	StartedAt  *time.Time `json:"t_started,omitempty"`
	FinishedAt *time.Time `json:"t_finished,omitempty"`
	Heartbeat  *time.Time `json:"t_heartbeat,omitempty"`
}

// AppKind distinguishes the two app variants from spec §4.3.
type AppKind string

const (
	AppPython AppKind = "python"
	AppBash   AppKind = "bash"
)

// IsClaimable reports whether the task is eligible for Store.Claim: it
// must be PENDING (all deps satisfied) before a worker may take it.
func (t *Task) IsClaimable() bool {
	return t.State == TaskPending
}

// HasLiveHeartbeat reports whether a RUNNING task's last heartbeat is
// within timeout of now. (The scheduler's stale sweep does the same
// check in SQL through Store.SweepStale.)
func (t *Task) HasLiveHeartbeat(now time.Time, timeout time.Duration) bool {
	if t.State != TaskRunning || t.Heartbeat == nil {
		return false
	}
	return now.Sub(*t.Heartbeat) < timeout
}
