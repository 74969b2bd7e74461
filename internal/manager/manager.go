// Package manager implements the resolution logic behind pkg/app's public
// TaskManager: given an app's identity inputs and call arguments, decide
// whether an existing task can be reused or a new one must be inserted,
// grounded on the teacher's configuration-bundle style for its
// server-side task construction (internal/executor/local.go's task
// assembly) generalized to desipipe's identity/reuse-policy semantics.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/me/desipipe/internal/codec"
	"github.com/me/desipipe/internal/config"
	"github.com/me/desipipe/internal/identity"
	"github.com/me/desipipe/internal/store"
	"github.com/me/desipipe/pkg/model"
)

// ReusePolicy selects how an invocation's identity is matched against
// existing tasks, per spec 4.2.
type ReusePolicy string

const (
	ReuseFresh ReusePolicy = "fresh" // hash includes source; any source change reruns
	ReuseName  ReusePolicy = "name"  // match by app_name+args regardless of source
	ReuseSkip  ReusePolicy = "skip"  // never execute; reuse an existing task by name+args, or no-op
)

// AppSpec is the explicit registration contract spec 9 calls for: since
// Go cannot introspect a function's source at runtime, the caller
// supplies sourceText and freeVars explicitly instead of it being
// derived by magic.
type AppSpec struct {
	Name       string
	Kind       model.AppKind
	SourceText string
	FreeVars   []byte // caller-serialized free variables, folded into the hash
}

// Invocation is one call of an App with concrete arguments.
type Invocation struct {
	App    AppSpec
	Args   []any
	Kwargs map[string]any
	Policy ReusePolicy

	// MatchState restricts ReuseName to only match an existing row in
	// this state (e.g. name=True, state=SUCCEEDED skips redoing work
	// that already finished but reruns anything FAILED/KILLED under the
	// same name+args). Zero value matches any state.
	MatchState model.TaskState
}

// Manager resolves invocations against one queue's store.
type Manager struct {
	store store.Store
	cfg   config.TMConfig
}

func New(st store.Store, cfg config.TMConfig) *Manager {
	return &Manager{store: st, cfg: cfg}
}

// Resolve implements spec 4.3's four-step resolution: encode args,
// compute identity, check for a reusable task, insert if none exists.
// It returns the resolved task's id, ready for a Future to watch.
func (m *Manager) Resolve(ctx context.Context, inv Invocation) (string, error) {
	argsBlob, argDeps, err := codec.EncodeArgs(inv.Args)
	if err != nil {
		return "", fmt.Errorf("manager: encode args: %w", err)
	}
	kwargsBlob, kwargDeps, err := codec.EncodeKwargs(inv.Kwargs)
	if err != nil {
		return "", fmt.Errorf("manager: encode kwargs: %w", err)
	}
	deps := mergeDeps(argDeps, kwargDeps)

	appHash := identity.AppHash(inv.App.Name, inv.App.SourceText, inv.App.FreeVars)

	var taskID string
	switch inv.Policy {
	case ReuseName, ReuseSkip:
		taskID = identity.NameKey(inv.App.Name, argsBlob, kwargsBlob)
	default:
		taskID = identity.Hash(identity.Spec{
			AppHash:    appHash,
			ArgsBlob:   argsBlob,
			KwargsBlob: kwargsBlob,
			Deps:       deps,
		})
	}

	existing, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("manager: lookup existing task: %w", err)
	}
	if existing != nil {
		switch inv.Policy {
		case ReuseSkip:
			// skip never executes, whether or not a prior row exists.
			return existing.ID, nil
		case ReuseName:
			if inv.MatchState == "" || existing.State == inv.MatchState {
				return existing.ID, nil
			}
			// Existing row doesn't match the required state (e.g.
			// name=True, state=SUCCEEDED against a FAILED row): fall
			// through and re-run under the same name+args identity.
		default:
			return existing.ID, nil
		}
	} else if inv.Policy == ReuseSkip {
		// skip with nothing to reuse is a no-op, not an error: persist a
		// terminal task whose result is null so the returned Future
		// resolves immediately instead of blocking forever.
		return m.insertSkipNoop(ctx, taskID, inv, appHash, argsBlob, kwargsBlob, deps)
	}

	if err := m.detectCycle(ctx, taskID, deps); err != nil {
		return "", err
	}

	tmBlob, err := m.cfg.Encode()
	if err != nil {
		return "", fmt.Errorf("manager: encode tm_config: %w", err)
	}

	state := model.TaskPending
	if len(deps) > 0 {
		state = model.TaskWaiting
	}

	task := &model.Task{
		ID:           taskID,
		AppName:      inv.App.Name,
		AppHash:      appHash,
		Kind:         inv.App.Kind,
		ArgsBlob:     argsBlob,
		KwargsBlob:   kwargsBlob,
		Deps:         deps,
		State:        state,
		TMConfigBlob: tmBlob,
		CreatedAt:    time.Now(),
	}

	if _, _, err := m.store.Upsert(ctx, task); err != nil {
		return "", fmt.Errorf("manager: insert task: %w", err)
	}
	return task.ID, nil
}

// insertSkipNoop materializes a skip=True invocation that had no prior
// task to reuse: a terminal SUCCEEDED row with a null result_blob, so
// Future.Result() returns nil immediately rather than the caller
// blocking on a task that will never be claimed or executed.
func (m *Manager) insertSkipNoop(ctx context.Context, taskID string, inv Invocation, appHash string, argsBlob, kwargsBlob []byte, deps []string) (string, error) {
	if err := m.detectCycle(ctx, taskID, deps); err != nil {
		return "", err
	}

	resultBlob, err := codec.EncodeResult(nil)
	if err != nil {
		return "", fmt.Errorf("manager: encode skip result: %w", err)
	}
	tmBlob, err := m.cfg.Encode()
	if err != nil {
		return "", fmt.Errorf("manager: encode tm_config: %w", err)
	}

	now := time.Now()
	task := &model.Task{
		ID:           taskID,
		AppName:      inv.App.Name,
		AppHash:      appHash,
		Kind:         inv.App.Kind,
		ArgsBlob:     argsBlob,
		KwargsBlob:   kwargsBlob,
		Deps:         deps,
		State:        model.TaskSucceeded,
		ResultBlob:   resultBlob,
		Errno:        model.ErrnoOK,
		TMConfigBlob: tmBlob,
		CreatedAt:    now,
		StartedAt:    &now,
		FinishedAt:   &now,
	}
	if _, _, err := m.store.Upsert(ctx, task); err != nil {
		return "", fmt.Errorf("manager: insert skip no-op: %w", err)
	}
	return task.ID, nil
}

// detectCycle walks the dependency closure of each id in deps looking
// for taskID itself, refusing to insert an edge that would make taskID
// its own (possibly transitive) dependency. This is only reachable
// when a reused/retried id reappears under a new set of args whose
// deps descend from it — ordinary fresh submissions can't name a task
// that doesn't exist yet, so they can't cycle by construction.
func (m *Manager) detectCycle(ctx context.Context, taskID string, deps []string) error {
	visited := make(map[string]bool)
	var walk func(id string) (bool, error)
	walk = func(id string) (bool, error) {
		if id == taskID {
			return true, nil
		}
		if visited[id] {
			return false, nil
		}
		visited[id] = true

		t, err := m.store.GetTask(ctx, id)
		if err != nil {
			return false, fmt.Errorf("manager: cycle check: load %s: %w", id, err)
		}
		if t == nil {
			return false, nil
		}
		for _, d := range t.Deps {
			found, err := walk(d)
			if err != nil || found {
				return found, err
			}
		}
		return false, nil
	}

	for _, d := range deps {
		found, err := walk(d)
		if err != nil {
			return err
		}
		if found {
			return model.NewInvalidGraphError(taskID)
		}
	}
	return nil
}

func mergeDeps(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, d := range append(append([]string{}, a...), b...) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
