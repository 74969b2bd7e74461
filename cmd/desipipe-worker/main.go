// Command desipipe-worker claims and executes tasks from a single queue
// until it runs out of work or is signaled to stop. Every task, python
// or bash, is looked up by app name in pkg/app.DefaultRegistry, and this
// binary registers no apps itself; serving apps requires a custom worker
// binary that imports the package registering those apps before
// calling workerrt.New (see pkg/app.DefaultRegistry's doc comment).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/me/desipipe/internal/config"
	"github.com/me/desipipe/internal/logging"
	"github.com/me/desipipe/internal/queue"
	"github.com/me/desipipe/internal/store"
	"github.com/me/desipipe/internal/workerrt"
	"github.com/me/desipipe/pkg/app"
)

func main() {
	var queueDir, queueName, appFilter, tmConfigHash string
	var idleTimeout time.Duration
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.StringVar(&queueDir, "queue-dir", os.Getenv("DESIPIPE_QUEUE_DIR"), "Base directory the target queue resolves under")
	flag.StringVar(&queueName, "queue", "", "Queue name to claim tasks from (required)")
	flag.StringVar(&appFilter, "app", "", "Only claim tasks for this app name (default: any)")
	flag.StringVar(&tmConfigHash, "tm-config-hash", "", "Only claim tasks whose tm_config matches this hash (default: any)")
	flag.DurationVar(&idleTimeout, "idle-timeout", 60*time.Second, "Exit after this long with nothing to claim")
	flag.Parse()

	if *debug {
		*logLevel = "debug"
	}
	logger := logging.NewLogger(logging.ParseLevel(*logLevel), *logFormat)

	if queueName == "" {
		fmt.Fprintln(os.Stderr, "desipipe-worker: -queue is required")
		os.Exit(1)
	}
	if queueDir == "" {
		dir, err := queue.DefaultBaseDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve queue dir: %v\n", err)
			os.Exit(1)
		}
		queueDir = dir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q, err := queue.Open(ctx, queueDir, queueName, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open queue %s: %v\n", queueName, err)
		os.Exit(1)
	}
	defer q.Close()

	jobID := "wkr_" + uuid.NewString()

	// Heartbeat and idle timing start from the default TMConfig; the
	// tm_config carried on each task is not consulted. The -idle-timeout
	// flag and the claim filter are applied afterwards, so they win.
	opts := workerrt.FromTMConfig(config.DefaultTMConfig())
	opts = append(opts,
		workerrt.WithIdleTimeout(idleTimeout),
		workerrt.WithClaimFilter(store.ClaimFilter{AppName: appFilter, TMConfigHash: tmConfigHash}),
	)

	w := workerrt.New(jobID, q.Store(), app.DefaultRegistry, logger, opts...)

	logger.Info("starting worker", "job_id", jobID, "queue", queueName, "app_filter", appFilter)

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("worker stopped", "job_id", jobID)
}
