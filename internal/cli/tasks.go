package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/desipipe/internal/queue"
	"github.com/me/desipipe/pkg/model"
)

func newTasksCmd() *cobra.Command {
	var queueName, stateFlag string
	var limit int
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Dump a queue's tasks, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueName == "" {
				return NewUserError("tasks: -q/--queue is required")
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

			filter := model.DefaultTaskFilter()
			filter.Limit = limit
			if stateFlag != "" {
				state := model.TaskState(stateFlag)
				if !validTaskState(state) {
					return NewUserError("tasks: invalid --state %q", stateFlag)
				}
				filter.State = state
			}

			tasks, err := q.Store().ListTasks(context.Background(), filter)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			if len(tasks) == 0 {
				fmt.Println("no tasks match")
				return nil
			}

			for _, t := range tasks {
				fmt.Printf("%-40s %-10s %-16s errno=%-4d deps=%v\n", t.ID, t.State, t.AppName, t.Errno, t.Deps)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "Queue name (required)")
	cmd.Flags().StringVar(&stateFlag, "state", "", "Filter by task state (WAITING, PENDING, RUNNING, SUCCEEDED, FAILED, KILLED, UNKNOWN)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum rows to print")
	return cmd
}

func validTaskState(s model.TaskState) bool {
	switch s {
	case model.TaskWaiting, model.TaskPending, model.TaskRunning,
		model.TaskSucceeded, model.TaskFailed, model.TaskKilled, model.TaskUnknown:
		return true
	}
	return false
}
