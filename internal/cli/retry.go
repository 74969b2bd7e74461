package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/desipipe/internal/queue"
	"github.com/me/desipipe/internal/store"
	"github.com/me/desipipe/pkg/model"
)

func newRetryCmd() *cobra.Command {
	var queueName, stateFlag string
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Bulk-transition tasks in a given state back to PENDING",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueName == "" {
				return NewUserError("retry: -q/--queue is required")
			}
			if stateFlag == "" {
				return NewUserError("retry: --state is required")
			}
			state := model.TaskState(stateFlag)
			if !validTaskState(state) {
				return NewUserError("retry: invalid --state %q", stateFlag)
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

			retried, err := q.Store().Retry(context.Background(), store.RetryFilter{State: state})
			if err != nil {
				return fmt.Errorf("retry tasks: %w", err)
			}
			fmt.Printf("retried %d task(s) from %s to PENDING\n", len(retried), state)
			return nil
		},
	}
	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "Queue name (required)")
	cmd.Flags().StringVar(&stateFlag, "state", "", "Task state to retry (required)")
	return cmd
}
