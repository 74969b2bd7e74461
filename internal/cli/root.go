// Package cli implements the desipipe command-line surface (spec §6):
// queues, tasks, pause, resume, retry, spawn, kill, delete. Grounded on
// the teacher's cobra root/PersistentPreRun shape, but talking directly
// to internal/queue and internal/store instead of an HTTP client, since
// desipipe has no server process — the CLI and any submitting program
// share the same on-disk queue files.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/desipipe/internal/logging"
	"github.com/me/desipipe/internal/queue"
)

var (
	flagQueueDir  string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// Exit codes per spec §6: 0 success, 1 user error, 2 internal error.
const (
	ExitOK        = 0
	ExitUserError = 1
	ExitInternal  = 2
)

func resolveQueueDir() (string, error) {
	if flagQueueDir != "" {
		return flagQueueDir, nil
	}
	return queue.DefaultBaseDir()
}

// NewRootCmd creates the root cobra command for the desipipe CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "desipipe",
		Short: "desipipe — a persistent, DAG-aware task scheduler",
		Long:  "desipipe manages durable task queues for batch pipelines of python and bash apps.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagQueueDir, "queue-dir", os.Getenv("DESIPIPE_QUEUE_DIR"), "Base directory queues resolve under (or DESIPIPE_QUEUE_DIR)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newQueuesCmd(),
		newTasksCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newRetryCmd(),
		newSpawnCmd(),
		newKillCmd(),
		newDeleteCmd(),
	)

	return root
}
