package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/desipipe/internal/queue"
)

func newKillCmd() *cobra.Command {
	var queueName string
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Mark every non-terminal task in a queue as KILLED",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueName == "" {
				return NewUserError("kill: -q/--queue is required")
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

			killed, err := q.Store().Kill(context.Background())
			if err != nil {
				return fmt.Errorf("kill tasks: %w", err)
			}
			fmt.Printf("killed %d task(s)\n", len(killed))
			return nil
		},
	}
	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "Queue name (required)")
	return cmd
}
