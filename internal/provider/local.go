package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/me/desipipe/internal/config"
	"github.com/me/desipipe/pkg/model"
)

// ProcessStarter abstracts starting a detached worker process, mirroring
// the teacher's CommandRunner test seam in internal/worker/runtime.go but
// for fire-and-forget processes rather than run-to-completion ones.
type ProcessStarter interface {
	Start(ctx context.Context, name string, args []string, env []string) (pid int, wait func() error, err error)
}

type osProcessStarter struct{}

func (osProcessStarter) Start(ctx context.Context, name string, args []string, env []string) (int, func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// Append to the ambient environment rather than replacing it: the
	// worker still needs PATH (to resolve a bash app's argv[0]), HOME, and
	// DESIPIPE_QUEUE_DIR, none of which cfg.Environment.Vars carries.
	cmd.Env = append(os.Environ(), env...)
	if err := cmd.Start(); err != nil {
		return 0, nil, err
	}
	return cmd.Process.Pid, cmd.Wait, nil
}

// LocalProvider runs workers as subprocesses of the calling process,
// bounded by a process-wide semaphore so a host isn't overrun by
// multiple queues' max_workers settings simultaneously.
type LocalProvider struct {
	workerBinary string
	starter      ProcessStarter
	sem          *semaphore.Weighted
	logger       *slog.Logger

	mu      sync.Mutex
	workers map[string][]*trackedWorker // keyed by queuePath
}

type trackedWorker struct {
	worker model.Worker
	done   chan struct{}
}

// NewLocalProvider creates a LocalProvider that forks workerBinary and
// never runs more than maxConcurrent of them at once across all queues.
func NewLocalProvider(workerBinary string, maxConcurrent int64, logger *slog.Logger) *LocalProvider {
	return &LocalProvider{
		workerBinary: workerBinary,
		starter:      osProcessStarter{},
		sem:          semaphore.NewWeighted(maxConcurrent),
		logger:       logger.With("component", "local-provider"),
		workers:      make(map[string][]*trackedWorker),
	}
}

func (p *LocalProvider) Kind() model.ProviderKind { return model.ProviderLocal }

func (p *LocalProvider) KilledAtTimeout() bool { return false }

// Launch starts n worker processes, each invoked as:
//
//	<workerBinary> -queue <name> -queue-dir <baseDir>
//
// queuePath is the queue's full sqlite file path (as tracked by
// internal/queue.Queue.Path); cmd/desipipe-worker resolves its own
// on-disk file from -queue-dir/-queue rather than taking a path
// directly, matching how the CLI resolves queues.
//
// A worker that cannot acquire a semaphore slot immediately is skipped
// for this call; the scheduler's next tick will try again, so Launch
// never blocks the spawn loop waiting for a busy host to free up.
func (p *LocalProvider) Launch(ctx context.Context, queuePath string, n int, cfg config.TMConfig) ([]model.Worker, error) {
	baseDir := filepath.Dir(queuePath)
	name := strings.TrimSuffix(filepath.Base(queuePath), ".sqlite")

	var started []model.Worker
	for i := 0; i < n; i++ {
		if !p.sem.TryAcquire(1) {
			p.logger.Debug("local provider at capacity, deferring launch", "queue", queuePath)
			break
		}

		args := []string{"-queue", name, "-queue-dir", baseDir}
		env := envFromSpec(cfg.Environment)

		pid, wait, err := p.starter.Start(ctx, p.workerBinary, args, env)
		if err != nil {
			p.sem.Release(1)
			return started, fmt.Errorf("local provider: start worker: %w", err)
		}

		w := model.Worker{
			JobID:    fmt.Sprintf("%d", pid),
			Provider: model.ProviderLocal,
			State:    model.WorkerActive,
		}
		tracked := &trackedWorker{worker: w, done: make(chan struct{})}

		p.mu.Lock()
		p.workers[queuePath] = append(p.workers[queuePath], tracked)
		p.mu.Unlock()

		go func() {
			defer p.sem.Release(1)
			defer close(tracked.done)
			if err := wait(); err != nil {
				p.logger.Debug("worker process exited", "pid", pid, "error", err)
			}
			tracked.worker.State = model.WorkerExited
		}()

		started = append(started, w)
	}
	return started, nil
}

func (p *LocalProvider) LiveWorkers(ctx context.Context, queuePath string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := 0
	remaining := p.workers[queuePath][:0]
	for _, tw := range p.workers[queuePath] {
		select {
		case <-tw.done:
			// exited, drop from tracking
		default:
			live++
			remaining = append(remaining, tw)
		}
	}
	p.workers[queuePath] = remaining
	return live, nil
}

func envFromSpec(spec config.EnvironmentSpec) []string {
	env := make([]string, 0, len(spec.Vars))
	for k, v := range spec.Vars {
		env = append(env, k+"="+v)
	}
	return env
}
