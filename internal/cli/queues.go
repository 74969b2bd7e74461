package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/desipipe/internal/queue"
)

func newQueuesCmd() *cobra.Command {
	var glob string
	cmd := &cobra.Command{
		Use:   "queues",
		Short: "List matching queues with their task state counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := resolveQueueDir()
			if err != nil {
				return err
			}

			names, err := queue.List(baseDir, glob)
			if err != nil {
				return WrapUserError(fmt.Errorf("invalid glob %q: %w", glob, err))
			}
			if len(names) == 0 {
				fmt.Println("no queues found")
				return nil
			}

			ctx := context.Background()
			for _, name := range names {
				q, err := queue.Open(ctx, baseDir, name, logger)
				if err != nil {
					logger.Error("open queue", "queue", name, "error", err)
					continue
				}
				state, err := q.State(ctx)
				if err != nil {
					logger.Error("read state", "queue", name, "error", err)
					q.Close()
					continue
				}
				summary, err := q.Summary(ctx)
				if err != nil {
					logger.Error("read summary", "queue", name, "error", err)
					q.Close()
					continue
				}
				q.Close()

				fmt.Printf("%-24s %-8s total=%d waiting=%d pending=%d running=%d succeeded=%d failed=%d killed=%d unknown=%d\n",
					name, state, summary.Total, summary.Waiting, summary.Pending, summary.Running,
					summary.Succeeded, summary.Failed, summary.Killed, summary.Unknown)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&glob, "queue", "q", "*", "Glob pattern matching queue names")
	return cmd
}
