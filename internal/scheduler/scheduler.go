package scheduler

import "context"

// Scheduler evaluates task readiness and launches workers through
// providers for runnable tasks.
type Scheduler interface {
	// Start begins the scheduling loop. Blocks until ctx is cancelled or
	// Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler.
	Stop() error

	// Tick runs a single scheduling iteration. Used by tests and by
	// `desipipe spawn` without --spawn.
	Tick(ctx context.Context) error
}
