package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/desipipe/internal/queue"
)

func newPauseCmd() *cobra.Command {
	var queueName string
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Gate a queue from handing out new PENDING tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueName == "" {
				return NewUserError("pause: -q/--queue is required")
			}
			baseDir, err := resolveQueueDir()
			if err != nil {
				return err
			}

			q, err := queue.Open(context.Background(), baseDir, queueName, logger)
			if err != nil {
				return fmt.Errorf("open queue %s: %w", queueName, err)
			}
			defer q.Close()

			if err := q.Pause(context.Background()); err != nil {
				return fmt.Errorf("pause queue %s: %w", queueName, err)
			}
			fmt.Printf("queue %s paused\n", queueName)
			return nil
		},
	}
	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "Queue name (required)")
	return cmd
}
