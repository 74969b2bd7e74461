// Package app is desipipe's public API: decorate a Go function as a
// python_app or bash_app, call it to get a Future, and manage the
// underlying queue through a TaskManager, grounded on the teacher's
// configuration-bundle style (config.ServerConfig generalized here into
// config.TMConfig) for how a single long-lived object carries
// environment/scheduler/provider defaults for everything spawned from it.
package app

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/me/desipipe/internal/config"
	"github.com/me/desipipe/internal/manager"
	"github.com/me/desipipe/internal/queue"
	"github.com/me/desipipe/internal/workerrt"
	"github.com/me/desipipe/pkg/model"
)

// TaskManager decorates callables and tracks the TMConfig they're
// spawned with; Clone returns an independent manager sharing the same
// queue so a pipeline can run different apps under different resource
// budgets without opening a second queue file.
type TaskManager struct {
	q        *queue.Queue
	resolver *manager.Manager
	cfg      config.TMConfig
	registry *workerrt.Registry
}

// NewTaskManager creates a TaskManager bound to q, using cfg as the
// default TMConfig for every app it decorates.
func NewTaskManager(q *queue.Queue, cfg config.TMConfig) *TaskManager {
	return &TaskManager{
		q:        q,
		resolver: manager.New(q.Store(), cfg),
		cfg:      cfg,
		registry: DefaultRegistry,
	}
}

// Option mutates a clone's TMConfig; WithMaxWorkers/WithProvider/
// WithEnvVar are the common cases spec §4.3's Clone(opts...) supports.
type Option func(*config.TMConfig)

func WithMaxWorkers(n int) Option {
	return func(c *config.TMConfig) { c.Scheduler.MaxWorkers = n }
}

func WithProvider(kind string) Option {
	return func(c *config.TMConfig) { c.Provider.Kind = kind }
}

func WithEnvVar(key, value string) Option {
	return func(c *config.TMConfig) {
		if c.Environment.Vars == nil {
			c.Environment.Vars = make(map[string]string)
		}
		c.Environment.Vars[key] = value
	}
}

// Clone returns a new TaskManager sharing this one's queue but carrying
// an independently mutable TMConfig.
func (tm *TaskManager) Clone(opts ...Option) *TaskManager {
	cfg := tm.cfg
	cfg.Environment.Vars = maps.Clone(tm.cfg.Environment.Vars)
	cfg.Environment.PrepCommands = slices.Clone(tm.cfg.Environment.PrepCommands)
	cfg.Provider.Extra = maps.Clone(tm.cfg.Provider.Extra)
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TaskManager{
		q:        tm.q,
		resolver: manager.New(tm.q.Store(), cfg),
		cfg:      cfg,
		registry: tm.registry,
	}
}

// AppFunc is the constructor returned by PythonApp/BashApp: calling it
// submits (or reuses) one invocation and returns its Future immediately.
type AppFunc func(args ...any) *Future

// AppOption configures one decorated app's identity/reuse behavior.
type AppOption func(*manager.Invocation)

func WithKwargs(kwargs map[string]any) AppOption {
	return func(inv *manager.Invocation) { inv.Kwargs = kwargs }
}

func WithReusePolicy(p manager.ReusePolicy) AppOption {
	return func(inv *manager.Invocation) { inv.Policy = p }
}

// WithMatchState restricts a name=True reuse to rows already in state
// st (e.g. SUCCEEDED), so a FAILED/KILLED row under the same name+args
// reruns instead of being silently returned as-is.
func WithMatchState(st model.TaskState) AppOption {
	return func(inv *manager.Invocation) { inv.MatchState = st }
}

// PythonApp registers fn under name (for workers sharing this process's
// registry) and returns a constructor that submits a python_app
// invocation per spec §4.3. sourceText and freeVars are the explicit
// identity inputs Go substitutes for runtime source introspection (see
// spec §9's design note).
func (tm *TaskManager) PythonApp(name, sourceText string, freeVars []byte, fn workerrt.PythonFunc, appOpts ...AppOption) AppFunc {
	tm.registry.Register(name, fn)
	return tm.makeAppFunc(name, model.AppPython, sourceText, freeVars, appOpts)
}

// BashApp registers fn under name; fn must return the argv token list
// (spec §4.3/§160) to run as a subprocess, not a generic result.
func (tm *TaskManager) BashApp(name, sourceText string, freeVars []byte, fn workerrt.PythonFunc, appOpts ...AppOption) AppFunc {
	tm.registry.Register(name, fn)
	return tm.makeAppFunc(name, model.AppBash, sourceText, freeVars, appOpts)
}

func (tm *TaskManager) makeAppFunc(name string, kind model.AppKind, sourceText string, freeVars []byte, appOpts []AppOption) AppFunc {
	return func(args ...any) *Future {
		inv := manager.Invocation{
			App:    manager.AppSpec{Name: name, Kind: kind, SourceText: sourceText, FreeVars: freeVars},
			Args:   args,
			Policy: manager.ReuseFresh,
		}
		for _, opt := range appOpts {
			opt(&inv)
		}

		taskID, err := tm.resolver.Resolve(context.Background(), inv)
		if err != nil {
			return &Future{err: fmt.Errorf("resolve %s: %w", name, err)}
		}
		return &Future{taskID: taskID, store: tm.q.Store()}
	}
}
