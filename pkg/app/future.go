package app

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/me/desipipe/internal/codec"
	"github.com/me/desipipe/internal/store"
	"github.com/me/desipipe/pkg/model"
)

// Future is a handle to a task's eventual outcome, grounded on the
// teacher's poll-based SSE handler generalized from a push notification
// to a blocking poll: there is no HTTP layer here, only the same
// "wait for a state change, back off between checks" idea.
type Future struct {
	taskID string
	store  store.Store
	err    error // set if the invocation could not even be resolved
}

// TaskID implements codec.Futurer so a Future can be passed directly as
// an argument to another decorated app.
func (f *Future) TaskID() string { return f.taskID }

var _ codec.Futurer = (*Future)(nil)

const (
	minPollInterval = 100 * time.Millisecond
	maxPollInterval = 5 * time.Second
)

// Result blocks until the task reaches a terminal state, polling at an
// interval that backs off from minPollInterval to maxPollInterval via
// golang.org/x/time/rate so a long-running task doesn't get hammered
// with tight polling once it's clear the result won't be ready soon.
func (f *Future) Result(ctx context.Context) (any, error) {
	task, err := f.awaitTerminal(ctx)
	if err != nil {
		return nil, err
	}
	if task.State != model.TaskSucceeded {
		return nil, &model.TaskError{TaskID: task.ID, State: task.State, Errno: task.Errno, Stderr: task.Err}
	}
	var value any
	if err := codec.DecodeResult(task.ResultBlob, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// Out returns the captured stdout of a bash_app once it has finished
// (or the partial output captured so far if it's still running).
func (f *Future) Out(ctx context.Context) (string, error) {
	task, err := f.currentTask(ctx)
	if err != nil {
		return "", err
	}
	return task.Out, nil
}

// Err returns the captured stderr, mirroring Out.
func (f *Future) Err(ctx context.Context) (string, error) {
	task, err := f.currentTask(ctx)
	if err != nil {
		return "", err
	}
	return task.Err, nil
}

// State reports the task's current lifecycle state without blocking.
func (f *Future) State(ctx context.Context) (model.TaskState, error) {
	task, err := f.currentTask(ctx)
	if err != nil {
		return "", err
	}
	return task.State, nil
}

func (f *Future) currentTask(ctx context.Context) (*model.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	task, err := f.store.GetTask(ctx, f.taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, model.NewNotFoundError("task", f.taskID)
	}
	return task, nil
}

func (f *Future) awaitTerminal(ctx context.Context) (*model.Task, error) {
	if f.err != nil {
		return nil, f.err
	}

	limiter := rate.NewLimiter(rate.Every(minPollInterval), 1)
	interval := minPollInterval

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		task, err := f.currentTask(ctx)
		if err != nil {
			return nil, err
		}
		if task.State.IsTerminal() {
			return task, nil
		}

		interval *= 2
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
		limiter.SetLimit(rate.Every(interval))
	}
}
