package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/desipipe/internal/queue"
)

func newDeleteCmd() *cobra.Command {
	var glob string
	var force bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete queues matching a glob",
		Long:  "Refuses to delete a queue with WAITING, PENDING, or RUNNING tasks unless --force is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if glob == "" {
				return NewUserError("delete: -q/--queue is required")
			}
			baseDir, err := resolveQueueDir()
			if err != nil {
				return err
			}

			names, err := queue.List(baseDir, glob)
			if err != nil {
				return WrapUserError(fmt.Errorf("invalid glob %q: %w", glob, err))
			}
			if len(names) == 0 {
				fmt.Println("no queues match")
				return nil
			}

			ctx := context.Background()
			for _, name := range names {
				if !force {
					q, err := queue.Open(ctx, baseDir, name, logger)
					if err != nil {
						return fmt.Errorf("open queue %s: %w", name, err)
					}
					summary, err := q.Summary(ctx)
					q.Close()
					if err != nil {
						return fmt.Errorf("summarize queue %s: %w", name, err)
					}
					if inFlight := summary.Waiting + summary.Pending + summary.Running; inFlight > 0 {
						return NewUserError("delete: queue %s has %d in-flight task(s); pass --force to delete anyway", name, inFlight)
					}
				}

				if err := queue.Delete(baseDir, name); err != nil {
					return fmt.Errorf("delete queue %s: %w", name, err)
				}
				fmt.Printf("deleted queue %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&glob, "queue", "q", "", "Glob pattern matching queue names (required)")
	cmd.Flags().BoolVar(&force, "force", false, "Delete even if the queue has in-flight tasks")
	return cmd
}
