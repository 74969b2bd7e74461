package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/me/desipipe/internal/codec"
	"github.com/me/desipipe/internal/store"
	"github.com/me/desipipe/pkg/model"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", testLogger())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestFuture_ResultReturnsDecodedValueOnSuccess(t *testing.T) {
	st := newTestStore(t)
	resultBlob, err := codec.EncodeResult(9.0)
	require.NoError(t, err)

	task := &model.Task{ID: "t1", AppName: "square", AppHash: "h", Kind: model.AppPython,
		State: model.TaskSucceeded, ResultBlob: resultBlob, CreatedAt: time.Now()}
	_, _, err = st.Upsert(context.Background(), task)
	require.NoError(t, err)

	f := &Future{taskID: "t1", store: st}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := f.Result(ctx)
	require.NoError(t, err)
	require.Equal(t, 9.0, result)
}

func TestFuture_ResultReturnsTaskErrorOnFailure(t *testing.T) {
	st := newTestStore(t)
	task := &model.Task{ID: "t1", AppName: "boom", AppHash: "h", Kind: model.AppPython,
		State: model.TaskFailed, Errno: model.ErrnoUserCode, Err: "kaboom", CreatedAt: time.Now()}
	_, _, err := st.Upsert(context.Background(), task)
	require.NoError(t, err)

	f := &Future{taskID: "t1", store: st}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = f.Result(ctx)
	require.Error(t, err)
	var taskErr *model.TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Equal(t, model.TaskFailed, taskErr.State)
}

func TestFuture_OutReturnsCapturedStdout(t *testing.T) {
	st := newTestStore(t)
	task := &model.Task{ID: "t1", AppName: "echo", AppHash: "h", Kind: model.AppBash,
		State: model.TaskSucceeded, Out: "pi is ~ 3.1400\n", CreatedAt: time.Now()}
	_, _, err := st.Upsert(context.Background(), task)
	require.NoError(t, err)

	f := &Future{taskID: "t1", store: st}
	out, err := f.Out(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pi is ~ 3.1400\n", out)
}

func TestFuture_ResultRespectsContextCancellation(t *testing.T) {
	st := newTestStore(t)
	task := &model.Task{ID: "t1", AppName: "slow", AppHash: "h", Kind: model.AppPython,
		State: model.TaskRunning, CreatedAt: time.Now()}
	_, _, err := st.Upsert(context.Background(), task)
	require.NoError(t, err)

	f := &Future{taskID: "t1", store: st}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = f.Result(ctx)
	require.Error(t, err)
}

func TestFuture_ResolveErrorSurfacesImmediately(t *testing.T) {
	f := &Future{err: model.NewNotFoundError("task", "missing")}
	_, err := f.Result(context.Background())
	require.Error(t, err)
}
