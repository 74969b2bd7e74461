package workerrt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/me/desipipe/internal/codec"
	"github.com/me/desipipe/internal/config"
	"github.com/me/desipipe/internal/store"
	"github.com/me/desipipe/pkg/model"
)

// Worker runs the claim/execute/finish/heartbeat loop for one process
// slot, grounded on the teacher's internal/worker/runtime.go Runtime
// shape generalized from "run one CWL tool" to "loop claiming tasks
// until idle or told to stop".
type Worker struct {
	JobID             string
	store             store.Store
	registry          *Registry
	runner            CommandRunner
	logger            *slog.Logger
	claimFilter       store.ClaimFilter
	heartbeatEvery    time.Duration
	idleTimeout       time.Duration
	claimPollInterval time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

func WithClaimFilter(f store.ClaimFilter) Option {
	return func(w *Worker) { w.claimFilter = f }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(w *Worker) { w.idleTimeout = d }
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(w *Worker) { w.heartbeatEvery = d }
}

func WithClaimPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.claimPollInterval = d }
}

func New(jobID string, st store.Store, registry *Registry, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		JobID:             jobID,
		store:             st,
		registry:          registry,
		runner:            osCommandRunner{},
		logger:            logger.With("component", "worker", "jobid", jobID),
		heartbeatEvery:    10 * time.Second,
		idleTimeout:       60 * time.Second,
		claimPollInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run loops claim->execute->finish until ctx is cancelled or no task is
// claimable for longer than idleTimeout, matching spec 4.7 and the
// teacher's run-until-signalled worker main loop shape.
func (w *Worker) Run(ctx context.Context) error {
	idleSince := time.Now()
	ticker := time.NewTicker(w.claimPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		task, err := w.store.Claim(ctx, w.JobID, w.claimFilter)
		if err != nil {
			w.logger.Error("claim", "error", err)
			continue
		}
		if task == nil {
			if time.Since(idleSince) > w.idleTimeout {
				w.logger.Info("idle timeout reached, exiting")
				return nil
			}
			continue
		}
		idleSince = time.Now()

		if err := w.runOne(ctx, task); err != nil {
			w.logger.Error("run task", "task_id", task.ID, "error", err)
		}
	}
}

// runOne executes a single claimed task, running a heartbeat ticker
// alongside the app call via errgroup so a long-running app call never
// starves the heartbeat, per spec 5's concurrency model.
func (w *Worker) runOne(ctx context.Context, task *model.Task) error {
	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(execCtx)
	g.Go(func() error {
		return w.heartbeatLoop(gctx, task.ID)
	})

	var result any
	var execErr error
	g.Go(func() error {
		defer cancel() // stop the heartbeat loop once execute returns
		result, execErr = w.execute(execCtx, task)
		return nil
	})

	_ = g.Wait()

	return w.finish(ctx, task, result, execErr)
}

func (w *Worker) heartbeatLoop(ctx context.Context, taskID string) error {
	ticker := time.NewTicker(w.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, taskID, w.JobID); err != nil {
				w.logger.Warn("heartbeat", "task_id", taskID, "error", err)
			}
		}
	}
}

type execResult struct {
	resultBlob []byte
	errno      int
	out        string
	err        string
}

func (w *Worker) execute(ctx context.Context, task *model.Task) (any, error) {
	args, err := codec.DecodeArgs(task.ArgsBlob)
	if err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	kwargs, err := codec.DecodeKwargs(task.KwargsBlob)
	if err != nil {
		return nil, fmt.Errorf("decode kwargs: %w", err)
	}

	args, err = w.resolveDeps(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("resolve dependency results: %w", err)
	}
	for k, v := range kwargs {
		kwargs[k], err = w.resolveOneDep(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("resolve dependency result for %s: %w", k, err)
		}
	}

	fn, ok := w.registry.Lookup(task.AppName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownApp, task.AppName)
	}

	switch task.Kind {
	case model.AppBash:
		return w.executeBash(ctx, fn, args, kwargs)
	default:
		v, err := fn(args, kwargs)
		return execResult{resultBlob: mustEncode(v)}, err
	}
}

func (w *Worker) executeBash(ctx context.Context, fn PythonFunc, args []any, kwargs map[string]any) (any, error) {
	tokens, err := fn(args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("build command: %w", err)
	}
	argv, ok := tokens.([]string)
	if !ok {
		return nil, fmt.Errorf("bash app %T did not return a []string argv", tokens)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("bash app returned an empty argv")
	}

	stdout, stderr, exitCode, err := w.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	return execResult{errno: exitCode, out: stdout, err: stderr}, nil
}

func mustEncode(v any) []byte {
	blob, err := codec.EncodeResult(v)
	if err != nil {
		return nil
	}
	return blob
}

func (w *Worker) resolveDeps(ctx context.Context, args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		r, err := w.resolveOneDep(ctx, a)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (w *Worker) resolveOneDep(ctx context.Context, v any) (any, error) {
	ref, ok := v.(codec.DepRef)
	if !ok {
		return v, nil
	}
	dep, err := w.store.GetTask(ctx, ref.TaskID)
	if err != nil {
		return nil, err
	}
	if dep == nil {
		return nil, fmt.Errorf("dependency task %s not found", ref.TaskID)
	}
	var value any
	if err := codec.DecodeResult(dep.ResultBlob, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// finish persists the outcome of a claimed task, deriving errno/out/err
// either from a python app's returned execResult, a bash app's captured
// subprocess output, or an app-level error (spec 4.7's "UserCodeError").
func (w *Worker) finish(ctx context.Context, task *model.Task, result any, execErr error) error {
	if execErr != nil {
		w.logger.Warn("task failed", "task_id", task.ID, "error", execErr)
		return w.store.Finish(ctx, task.ID, w.JobID, nil, model.ErrnoUserCode, "", execErr.Error())
	}

	er, ok := result.(execResult)
	if !ok {
		return w.store.Finish(ctx, task.ID, w.JobID, mustEncode(result), model.ErrnoOK, "", "")
	}
	return w.store.Finish(ctx, task.ID, w.JobID, er.resultBlob, er.errno, er.out, er.err)
}

// FromTMConfig derives heartbeat/idle settings from a task's own
// tm_config so a worker launched for one queue's tasks inherits that
// queue's timing rather than a process-wide default.
func FromTMConfig(cfg config.TMConfig) []Option {
	return []Option{
		WithHeartbeatInterval(cfg.Scheduler.HeartbeatTimeout / 3),
		WithIdleTimeout(cfg.Scheduler.WorkerIdleTimeout),
	}
}
