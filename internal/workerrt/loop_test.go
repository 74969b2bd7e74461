package workerrt

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/me/desipipe/internal/codec"
	"github.com/me/desipipe/internal/store"
	"github.com/me/desipipe/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", testLogger())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func insertPending(t *testing.T, st store.Store, id, appName string, kind model.AppKind, args []any) *model.Task {
	t.Helper()
	blob, _, err := codec.EncodeArgs(args)
	require.NoError(t, err)
	task := &model.Task{
		ID: id, AppName: appName, AppHash: "h", Kind: kind,
		ArgsBlob: blob, State: model.TaskPending, CreatedAt: time.Now(),
	}
	_, _, err = st.Upsert(context.Background(), task)
	require.NoError(t, err)
	return task
}

type fakeRunner struct {
	stdout   string
	stderr   string
	exitCode int
}

func (f fakeRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	return f.stdout, f.stderr, f.exitCode, nil
}

func TestWorker_ExecutesPythonAppAndFinishesSucceeded(t *testing.T) {
	st := newTestStore(t)
	insertPending(t, st, "t1", "square", model.AppPython, []any{float64(3)})

	reg := NewRegistry()
	reg.Register("square", func(args []any, kwargs map[string]any) (any, error) {
		n := args[0].(float64)
		return n * n, nil
	})

	w := New("job1", st, reg, testLogger(), WithClaimPollInterval(5*time.Millisecond))
	task, err := st.Claim(context.Background(), "job1", store.ClaimFilter{})
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, w.runOne(context.Background(), task))

	got, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, model.TaskSucceeded, got.State)

	var result float64
	require.NoError(t, codec.DecodeResult(got.ResultBlob, &result))
	require.Equal(t, float64(9), result)
}

func TestWorker_PythonAppErrorFinishesFailed(t *testing.T) {
	st := newTestStore(t)
	insertPending(t, st, "t1", "boom", model.AppPython, nil)

	reg := NewRegistry()
	reg.Register("boom", func(args []any, kwargs map[string]any) (any, error) {
		return nil, errBoom
	})

	w := New("job1", st, reg, testLogger())
	task, err := st.Claim(context.Background(), "job1", store.ClaimFilter{})
	require.NoError(t, err)

	require.NoError(t, w.runOne(context.Background(), task))

	got, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, model.TaskFailed, got.State)
	require.Equal(t, model.ErrnoUserCode, got.Errno)
}

func TestWorker_BashAppCapturesExitCodeAndOutput(t *testing.T) {
	st := newTestStore(t)
	insertPending(t, st, "t1", "echo_pi", model.AppBash, nil)

	reg := NewRegistry()
	reg.Register("echo_pi", func(args []any, kwargs map[string]any) (any, error) {
		return []string{"echo", "pi is ~ 3.14"}, nil
	})

	w := New("job1", st, reg, testLogger())
	w.runner = fakeRunner{stdout: "pi is ~ 3.14\n", exitCode: 0}

	task, err := st.Claim(context.Background(), "job1", store.ClaimFilter{})
	require.NoError(t, err)
	require.NoError(t, w.runOne(context.Background(), task))

	got, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, model.TaskSucceeded, got.State)
	require.Equal(t, "pi is ~ 3.14\n", got.Out)
}

func TestWorker_BashAppNonZeroExitFailsWithErrno(t *testing.T) {
	st := newTestStore(t)
	insertPending(t, st, "t1", "fails", model.AppBash, nil)

	reg := NewRegistry()
	reg.Register("fails", func(args []any, kwargs map[string]any) (any, error) {
		return []string{"false"}, nil
	})

	w := New("job1", st, reg, testLogger())
	w.runner = fakeRunner{stdout: "partial output", exitCode: 7}

	task, err := st.Claim(context.Background(), "job1", store.ClaimFilter{})
	require.NoError(t, err)
	require.NoError(t, w.runOne(context.Background(), task))

	got, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, model.TaskFailed, got.State)
	require.Equal(t, 7, got.Errno)
	require.Equal(t, "partial output", got.Out)
}

func TestWorker_ResolvesDependencyResultBeforeCalling(t *testing.T) {
	st := newTestStore(t)

	upBlob, err := codec.EncodeResult(21.0)
	require.NoError(t, err)
	up := &model.Task{ID: "up", AppName: "gen", AppHash: "h", Kind: model.AppPython,
		State: model.TaskSucceeded, ResultBlob: upBlob, CreatedAt: time.Now()}
	_, _, err = st.Upsert(context.Background(), up)
	require.NoError(t, err)

	depArgs := []any{codec.DepRef{TaskID: "up"}}
	blob, deps, err := codec.EncodeArgs(depArgs)
	require.NoError(t, err)
	require.Empty(t, deps, "DepRef literal isn't a Futurer so EncodeArgs won't collect it, matching how the worker path decodes an already-encoded blob")

	down := &model.Task{ID: "down", AppName: "double", AppHash: "h", Kind: model.AppPython,
		ArgsBlob: blob, State: model.TaskPending, CreatedAt: time.Now()}
	_, _, err = st.Upsert(context.Background(), down)
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Register("double", func(args []any, kwargs map[string]any) (any, error) {
		n := args[0].(float64)
		return n * 2, nil
	})

	w := New("job1", st, reg, testLogger())
	task, err := st.Claim(context.Background(), "job1", store.ClaimFilter{})
	require.NoError(t, err)
	require.NoError(t, w.runOne(context.Background(), task))

	got, err := st.GetTask(context.Background(), "down")
	require.NoError(t, err)
	require.Equal(t, model.TaskSucceeded, got.State)

	var result float64
	require.NoError(t, codec.DecodeResult(got.ResultBlob, &result))
	require.Equal(t, float64(42), result)
}

var errBoom = &model.Error{Code: model.ErrUserCode, Message: "boom"}
