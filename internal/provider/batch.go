package provider

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/me/desipipe/internal/config"
	"github.com/me/desipipe/pkg/model"
)

// CommandRunner runs a command to completion and captures its output,
// the same seam the teacher uses in internal/worker/runtime.go so batch
// submission/status/cancel calls can be faked in tests without forking.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

type osCommandRunner struct{}

func (osCommandRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			err = nil
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}

// BatchProvider submits worker jobs to an external batch system (Slurm
// and similar) via shell templates configured on ProviderSpec, rather
// than hardcoding a specific scheduler's client library.
type BatchProvider struct {
	runner               CommandRunner
	logger               *slog.Logger
	defaultStatusCommand string

	mu  sync.Mutex
	ids map[string][]string // queuePath -> batch job ids submitted
}

func NewBatchProvider(logger *slog.Logger) *BatchProvider {
	return &BatchProvider{
		runner: osCommandRunner{},
		logger: logger.With("component", "batch-provider"),
		ids:    make(map[string][]string),
	}
}

func (p *BatchProvider) Kind() model.ProviderKind { return model.ProviderBatch }

func (p *BatchProvider) KilledAtTimeout() bool { return true }

// Launch invokes cfg.Provider.SubmitCommand once per requested worker,
// passing queuePath as its sole argument. The command's first line of
// stdout, trimmed, is taken whole as the batch job id, which fits
// `sbatch --parsable` printing just the id.
func (p *BatchProvider) Launch(ctx context.Context, queuePath string, n int, cfg config.TMConfig) ([]model.Worker, error) {
	if cfg.Provider.SubmitCommand == "" {
		return nil, fmt.Errorf("batch provider: tm_config has no submit_command")
	}

	var started []model.Worker
	for i := 0; i < n; i++ {
		stdout, stderr, exitCode, err := p.runner.Run(ctx, "sh", "-c", cfg.Provider.SubmitCommand+" "+queuePath)
		if err != nil {
			return started, fmt.Errorf("batch provider: submit: %w", err)
		}
		if exitCode != 0 {
			return started, fmt.Errorf("batch provider: submit exited %d: %s", exitCode, strings.TrimSpace(stderr))
		}

		jobID := strings.TrimSpace(firstLine(stdout))
		if jobID == "" {
			return started, fmt.Errorf("batch provider: submit produced no job id")
		}

		p.mu.Lock()
		p.ids[queuePath] = append(p.ids[queuePath], jobID)
		p.mu.Unlock()

		started = append(started, model.Worker{
			JobID:    jobID,
			Provider: model.ProviderBatch,
			State:    model.WorkerStarting,
		})
	}
	return started, nil
}

// LiveWorkers shells out to the status command set by SetStatusCommand
// once per tracked job id and counts how many report a non-empty
// status line, following squeue -h -j <id> -o %T's convention of
// printing nothing once a job has left the queue.
func (p *BatchProvider) LiveWorkers(ctx context.Context, queuePath string) (int, error) {
	p.mu.Lock()
	ids := append([]string(nil), p.ids[queuePath]...)
	p.mu.Unlock()

	if len(ids) == 0 {
		return 0, nil
	}

	statusCmd := p.statusCommandFor(queuePath)
	if statusCmd == "" {
		return len(ids), nil
	}

	live := 0
	var stillTracked []string
	for _, id := range ids {
		stdout, _, exitCode, err := p.runner.Run(ctx, "sh", "-c", statusCmd+" "+id)
		if err != nil {
			return live, fmt.Errorf("batch provider: status: %w", err)
		}
		if exitCode == 0 && strings.TrimSpace(stdout) != "" {
			live++
			stillTracked = append(stillTracked, id)
		}
	}

	p.mu.Lock()
	p.ids[queuePath] = stillTracked
	p.mu.Unlock()

	return live, nil
}

// statusCommandFor is a seam point; BatchProvider doesn't retain the
// TMConfig a job was launched under, so callers relying on per-queue
// status commands should configure one status_command per provider
// instance instead of per launch.
func (p *BatchProvider) statusCommandFor(queuePath string) string {
	return p.defaultStatusCommand
}

// SetStatusCommand configures the shell command used to poll job
// liveness; left unset, LiveWorkers trusts its own bookkeeping.
func (p *BatchProvider) SetStatusCommand(cmd string) {
	p.defaultStatusCommand = cmd
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
