// Command desipipe is the operator-facing CLI: list queues, inspect and
// retry tasks, pause/resume/kill a queue, and spawn the scheduler loop.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/me/desipipe/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	err := cli.NewRootCmd().Execute()
	if err == nil {
		return cli.ExitOK
	}

	var userErr *cli.UserError
	if errors.As(err, &userErr) {
		fmt.Fprintln(os.Stderr, userErr)
		return cli.ExitUserError
	}

	fmt.Fprintln(os.Stderr, err)
	return cli.ExitInternal
}
