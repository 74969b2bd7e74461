package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/desipipe/internal/provider"
	"github.com/me/desipipe/internal/queue"
	"github.com/me/desipipe/internal/scheduler"
)

func newSpawnCmd() *cobra.Command {
	var queueName string
	var daemonize, foreground bool
	var timestep time.Duration
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Run the scheduler loop for a queue",
		Long: "Without --spawn, runs a single scheduling tick and exits (suitable for cron). " +
			"With --spawn, detaches a background process that loops until the queue or process is killed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueName == "" {
				return NewUserError("spawn: -q/--queue is required")
			}
			baseDir, err := resolveQueueDir()
			if err != nil {
				return err
			}

			if daemonize {
				return spawnDetached(baseDir, queueName, timestep)
			}
			return runScheduler(baseDir, queueName, timestep, foreground)
		},
	}
	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "Queue name (required)")
	cmd.Flags().BoolVar(&daemonize, "spawn", false, "Detach a long-running background scheduler instead of one tick")
	cmd.Flags().DurationVar(&timestep, "timestep", 2*time.Second, "Scan interval for the scheduler loop")
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run the scheduler loop in this process until interrupted")
	_ = cmd.Flags().MarkHidden("foreground")
	return cmd
}

// spawnDetached forks the current binary as `desipipe spawn -q <name>
// --timestep <d> --foreground` running the scheduler loop, detached from this
// process's controlling terminal, following the same self-exec idiom
// internal/provider.LocalProvider uses to launch worker subprocesses.
func spawnDetached(baseDir, queueName string, timestep time.Duration) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	logPath := filepath.Join(baseDir, queueName+".scheduler.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open scheduler log %s: %w", logPath, err)
	}

	cmd := exec.Command(self, "spawn", "-q", queueName, "--queue-dir", baseDir, "--timestep", timestep.String(), "--foreground")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("start detached scheduler: %w", err)
	}
	fmt.Printf("scheduler for %s running detached as pid %d (log: %s)\n", queueName, cmd.Process.Pid, logPath)
	return nil
}

// runScheduler opens the queue, builds the default provider registry,
// and either ticks once or runs the loop until interrupted.
func runScheduler(baseDir, queueName string, timestep time.Duration, blocking bool) error {
	ctx := context.Background()
	q, err := queue.Open(ctx, baseDir, queueName, logger)
	if err != nil {
		return fmt.Errorf("open queue %s: %w", queueName, err)
	}
	defer q.Close()

	reg := provider.NewRegistry(logger)
	reg.Register(provider.NewLocalProvider(workerBinaryPath(), 4, logger))
	reg.Register(provider.NewBatchProvider(logger))

	cfg := scheduler.DefaultConfig()
	cfg.PollInterval = timestep
	loop := scheduler.NewLoop(q.Path, q.Store(), reg, cfg, logger)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !blocking {
		return loop.Tick(ctx)
	}
	return loop.Start(sigCtx)
}

// workerBinaryPath resolves the desipipe-worker binary LocalProvider
// forks: DESIPIPE_WORKER_BIN if set, else a sibling of this executable
// named "desipipe-worker" (the two are built and installed together),
// else fall back to a bare PATH lookup by name.
func workerBinaryPath() string {
	if bin := os.Getenv("DESIPIPE_WORKER_BIN"); bin != "" {
		return bin
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "desipipe-worker")
		if _, err := os.Stat(sibling); err == nil {
			return sibling
		}
	}
	return "desipipe-worker"
}
