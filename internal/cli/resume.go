package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/desipipe/internal/queue"
)

func newResumeCmd() *cobra.Command {
	var queueName string
	var daemonize bool
	var timestep time.Duration
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Clear a queue's pause flag, optionally spawning a scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueName == "" {
				return NewUserError("resume: -q/--queue is required")
			}
			baseDir, err := resolveQueueDir()
			if err != nil {
				return err
			}

			q, err := queue.Open(context.Background(), baseDir, queueName, logger)
			if err != nil {
				return fmt.Errorf("open queue %s: %w", queueName, err)
			}
			if err := q.Resume(context.Background()); err != nil {
				q.Close()
				return fmt.Errorf("resume queue %s: %w", queueName, err)
			}
			q.Close()
			fmt.Printf("queue %s resumed\n", queueName)

			if !daemonize {
				return nil
			}
			return spawnDetached(baseDir, queueName, timestep)
		},
	}
	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "Queue name (required)")
	cmd.Flags().BoolVar(&daemonize, "spawn", false, "Also detach a background scheduler for this queue")
	cmd.Flags().DurationVar(&timestep, "timestep", 2*time.Second, "Scan interval for the detached scheduler, if --spawn is set")
	return cmd
}
