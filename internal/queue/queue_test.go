package queue

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/me/desipipe/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestOpen_CreatesFileAndDefaultsActive(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	q, err := Open(ctx, dir, "pi-estimate", testLogger())
	require.NoError(t, err)
	defer q.Close()

	require.FileExists(t, filepath.Join(dir, "pi-estimate.sqlite"))

	state, err := q.State(ctx)
	require.NoError(t, err)
	require.Equal(t, model.QueueActive, state)
}

func TestPauseResume(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	q, err := Open(ctx, dir, "q1", testLogger())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Pause(ctx))
	state, err := q.State(ctx)
	require.NoError(t, err)
	require.Equal(t, model.QueuePaused, state)

	require.NoError(t, q.Resume(ctx))
	state, err = q.State(ctx)
	require.NoError(t, err)
	require.Equal(t, model.QueueActive, state)
}

func TestList_MatchesGlob(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	for _, name := range []string{"pi-estimate", "pi-refine", "genome-assembly"} {
		q, err := Open(ctx, dir, name, testLogger())
		require.NoError(t, err)
		q.Close()
	}

	names, err := List(dir, "pi-*")
	require.NoError(t, err)
	require.Equal(t, []string{"pi-estimate", "pi-refine"}, names)

	all, err := List(dir, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestDelete_RemovesFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	q, err := Open(ctx, dir, "q1", testLogger())
	require.NoError(t, err)
	q.Close()

	require.NoError(t, Delete(dir, "q1"))
	require.NoFileExists(t, filepath.Join(dir, "q1.sqlite"))
}
