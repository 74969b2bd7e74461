package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/me/desipipe/internal/config"
	"github.com/me/desipipe/internal/provider"
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

type fakeProvider struct {
	kind      model.ProviderKind
	live      int
	launched  int
	launchErr error
}

func (f *fakeProvider) Kind() model.ProviderKind { return f.kind }
func (f *fakeProvider) KilledAtTimeout() bool     { return false }
func (f *fakeProvider) Launch(ctx context.Context, queuePath string, n int, cfg config.TMConfig) ([]model.Worker, error) {
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	f.launched += n
	var out []model.Worker
	for i := 0; i < n; i++ {
		out = append(out, model.Worker{Provider: f.kind, State: model.WorkerActive})
	}
	return out, nil
}
func (f *fakeProvider) LiveWorkers(ctx context.Context, queuePath string) (int, error) {
	return f.live, nil
}

func taskWithTMConfig(t *testing.T, id, appName string, state model.TaskState, maxWorkers int) *model.Task {
	cfg := config.DefaultTMConfig()
	cfg.Scheduler.MaxWorkers = maxWorkers
	blob, err := cfg.Encode()
	require.NoError(t, err)
	return &model.Task{
		ID: id, AppName: appName, AppHash: "h", Kind: model.AppBash,
		State: state, TMConfigBlob: blob, CreatedAt: time.Now(),
	}
}

func TestTick_DispatchLaunchesUpToBudget(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		task := taskWithTMConfig(t, "t"+string(rune('1'+i)), "app", model.TaskPending, 2)
		_, _, err := st.Upsert(ctx, task)
		require.NoError(t, err)
	}

	fp := &fakeProvider{kind: model.ProviderLocal, live: 0}
	reg := provider.NewRegistry(testLogger())
	reg.Register(fp)

	loop := NewLoop("/tmp/q.sqlite", st, reg, DefaultConfig(), testLogger())
	require.NoError(t, loop.Tick(ctx))

	require.Equal(t, 2, fp.launched, "should launch at most max_workers(2) even though 3 tasks are pending")
}

func TestTick_PausedQueueSkipsDispatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task := taskWithTMConfig(t, "t1", "app", model.TaskPending, 4)
	_, _, err := st.Upsert(ctx, task)
	require.NoError(t, err)
	require.NoError(t, st.SetState(ctx, model.QueuePaused))

	fp := &fakeProvider{kind: model.ProviderLocal}
	reg := provider.NewRegistry(testLogger())
	reg.Register(fp)

	loop := NewLoop("/tmp/q.sqlite", st, reg, DefaultConfig(), testLogger())
	require.NoError(t, loop.Tick(ctx))
	require.Equal(t, 0, fp.launched)
}

func TestTick_ScanReadyPromotesWaitingTasks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	upstream := taskWithTMConfig(t, "up", "app", model.TaskSucceeded, 1)
	_, _, err := st.Upsert(ctx, upstream)
	require.NoError(t, err)

	downstream := taskWithTMConfig(t, "down", "app", model.TaskWaiting, 1)
	downstream.Deps = []string{"up"}
	_, _, err = st.Upsert(ctx, downstream)
	require.NoError(t, err)

	fp := &fakeProvider{kind: model.ProviderLocal}
	reg := provider.NewRegistry(testLogger())
	reg.Register(fp)

	loop := NewLoop("/tmp/q.sqlite", st, reg, DefaultConfig(), testLogger())
	require.NoError(t, loop.Tick(ctx))

	got, err := st.GetTask(ctx, "down")
	require.NoError(t, err)
	require.Equal(t, model.TaskPending, got.State)
}

func TestTick_SweepsStaleRunningTasks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task := taskWithTMConfig(t, "r1", "app", model.TaskRunning, 1)
	_, _, err := st.Upsert(ctx, task)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.HeartbeatTimeout = 0 // everything is immediately stale

	fp := &fakeProvider{kind: model.ProviderLocal}
	reg := provider.NewRegistry(testLogger())
	reg.Register(fp)

	loop := NewLoop("/tmp/q.sqlite", st, reg, cfg, testLogger())
	require.NoError(t, loop.Tick(ctx))

	got, err := st.GetTask(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, model.TaskUnknown, got.State)
}
