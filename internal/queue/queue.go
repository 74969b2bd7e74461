// Package queue resolves named queues to on-disk SQLite files under a
// base directory and opens store.Store handles over them. It owns no
// scheduling logic; it is the thin "container" concept from spec section
// 3 layered on top of internal/store.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/me/desipipe/internal/store"
	"github.com/me/desipipe/pkg/model"
)

const defaultQueueDirEnv = "DESIPIPE_QUEUE_DIR"

// DefaultBaseDir resolves the queue base directory: DESIPIPE_QUEUE_DIR if
// set, else $HOME/.desipipe/queues/$USER.
func DefaultBaseDir() (string, error) {
	if dir := os.Getenv(defaultQueueDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "default"
	}
	return filepath.Join(home, ".desipipe", "queues", user), nil
}

// Queue is a handle over one named queue file; it carries no
// process-wide mutable state, per spec section 9's "global queue
// handle" design note. Two Queue values opened on the same file
// coordinate only through the underlying Store's transactions.
type Queue struct {
	Name    string
	Path    string
	BaseDir string
	store   store.Store
}

// Open opens (creating if necessary) the queue named name under baseDir.
func Open(ctx context.Context, baseDir, name string, logger *slog.Logger) (*Queue, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir %s: %w", baseDir, err)
	}
	path := filepath.Join(baseDir, name+".sqlite")

	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open queue %s: %w", name, err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate queue %s: %w", name, err)
	}

	return &Queue{Name: name, Path: path, BaseDir: baseDir, store: st}, nil
}

func (q *Queue) Store() store.Store { return q.store }
func (q *Queue) Close() error       { return q.store.Close() }

// State returns whether the queue is gating new claims.
func (q *Queue) State(ctx context.Context) (model.QueueState, error) {
	return q.store.State(ctx)
}

// Pause gates the queue from handing out new PENDING tasks; in-flight
// RUNNING tasks continue undisturbed, per spec section 3.
func (q *Queue) Pause(ctx context.Context) error {
	return q.store.SetState(ctx, model.QueuePaused)
}

// Resume clears the pause flag.
func (q *Queue) Resume(ctx context.Context) error {
	return q.store.SetState(ctx, model.QueueActive)
}

// Summary returns the task-state breakdown used by `desipipe queues`
// and `desipipe delete`.
func (q *Queue) Summary(ctx context.Context) (model.QueueSummary, error) {
	return q.store.Summary(ctx)
}

// List returns the names of queues under baseDir matching glob (a
// filepath.Match pattern against the queue name, not the full path).
// Uses filepath.Glob directly since queue files are a flat directory
// of <name>.sqlite files; no pack example reaches for a dedicated
// globbing library for this shape of listing.
func List(baseDir, glob string) ([]string, error) {
	if glob == "" {
		glob = "*"
	}
	pattern := filepath.Join(baseDir, glob+".sqlite")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		names = append(names, strings.TrimSuffix(base, ".sqlite"))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a queue's sqlite file (and its WAL/SHM siblings), used
// by `desipipe delete`. force is required by the caller before invoking
// this for any queue with non-terminal tasks; Delete itself does not
// re-check state, matching the CLI-level `--force` contract in spec
// section 6.
func Delete(baseDir, name string) error {
	base := filepath.Join(baseDir, name+".sqlite")
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(base + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s%s: %w", base, suffix, err)
		}
	}
	return nil
}
