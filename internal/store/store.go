package store

import (
	"context"

	"github.com/me/desipipe/pkg/model"
)

// ClaimFilter restricts which PENDING tasks a worker may claim.
type ClaimFilter struct {
	AppName      string // empty matches any app
	TMConfigHash string // empty matches any TaskManager config
}

// RetryFilter selects the rows a bulk retry applies to.
type RetryFilter struct {
	State model.TaskState
}

// Store is the persistence layer for a single queue. Implementations must
// serialize writers through their own transaction layer; callers may hold
// several Store handles open on the same file concurrently.
type Store interface {
	// Upsert inserts a new task row, or replaces an existing row's mutable
	// fields when a caller explicitly re-runs an id (retry). It rejects a
	// transition that violates the state lattice and returns the row's
	// prior state when one existed.
	Upsert(ctx context.Context, task *model.Task) (prior model.TaskState, existed bool, err error)

	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error)

	// Claim atomically selects one PENDING task matching filter, sets its
	// state to RUNNING and stamps jobid/t_started. Returns nil, nil when
	// nothing is eligible.
	Claim(ctx context.Context, workerJobID string, filter ClaimFilter) (*model.Task, error)

	// Heartbeat advances t_heartbeat on a RUNNING task. It fails if the
	// task is not RUNNING or is held by a different jobid.
	Heartbeat(ctx context.Context, id, workerJobID string) error

	// FlushOutput appends to the out/err buffers of a RUNNING task without
	// disturbing its state, used for periodic stdout/stderr flushes.
	FlushOutput(ctx context.Context, id, workerJobID string, outAppend, errAppend string) error

	// Finish transitions a RUNNING task to SUCCEEDED or FAILED, writing
	// resultBlob/errno/out/err. errno == 0 implies SUCCEEDED.
	Finish(ctx context.Context, id, workerJobID string, resultBlob []byte, errno int, out, errStr string) error

	// CascadeFailure marks every transitive dependent of id as
	// FAILED(DEPENDENCY_FAILED).
	CascadeFailure(ctx context.Context, id string) ([]string, error)

	// ScanReady promotes WAITING tasks whose deps are all SUCCEEDED to
	// PENDING, and propagates failure to dependents of failed/killed deps.
	// Returns the ids it promoted.
	ScanReady(ctx context.Context) (promoted []string, err error)

	// SweepStale demotes any RUNNING task whose heartbeat is older than
	// timeout to UNKNOWN. Returns the ids it swept.
	SweepStale(ctx context.Context, timeout float64) (swept []string, err error)

	// Retry bulk-transitions tasks matching filter to PENDING, clearing
	// result_blob/errno/out/err/jobid. A RUNNING row is skipped with a
	// logged warning rather than an error.
	Retry(ctx context.Context, filter RetryFilter) (retried []string, err error)

	// Kill marks every non-terminal task as KILLED. Idempotent.
	Kill(ctx context.Context) (killed []string, err error)

	// Delete removes a task row outright. (`desipipe delete` removes whole
	// queue files through queue.Delete instead.)
	Delete(ctx context.Context, id string) error

	// State returns the queue's ACTIVE/PAUSED flag.
	State(ctx context.Context) (model.QueueState, error)
	SetState(ctx context.Context, s model.QueueState) error

	Summary(ctx context.Context) (model.QueueSummary, error)

	Close() error
	Migrate(ctx context.Context) error
}
