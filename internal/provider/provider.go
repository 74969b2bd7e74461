// Package provider abstracts over where worker processes run: a bounded
// pool of local subprocesses, or jobs submitted to an external batch
// system. The scheduler only ever talks to the Provider interface (spec
// 4.6); it never execute user code directly.
package provider

import (
	"context"

	"github.com/me/desipipe/internal/config"
	"github.com/me/desipipe/pkg/model"
)

// Provider is a tagged-variant contract: a concrete implementation picks
// one of model.ProviderLocal or model.ProviderBatch and is looked up
// from a Registry by that kind, rather than through subclassing.
type Provider interface {
	Kind() model.ProviderKind

	// Launch starts n additional worker processes bound to queuePath,
	// each entering its claim/execute/finish/heartbeat loop. How much of
	// cfg's environment spec reaches the worker depends on the provider:
	// LocalProvider passes Vars, BatchProvider passes none of it, and
	// neither runs PrepCommands. Returns the workers it
	// started; a partial failure returns as many successes as it
	// managed alongside the error.
	Launch(ctx context.Context, queuePath string, n int, cfg config.TMConfig) ([]model.Worker, error)

	// LiveWorkers reports how many workers launched by this provider for
	// queuePath are still counted against a TMConfig's max_workers budget.
	LiveWorkers(ctx context.Context, queuePath string) (int, error)

	// KilledAtTimeout reports whether a worker whose slot expires mid-task
	// should be treated as KILLED (true) or leave the task to be swept to
	// UNKNOWN and retried (false, idempotent workloads).
	KilledAtTimeout() bool
}
