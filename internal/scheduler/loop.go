package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/desipipe/internal/config"
	"github.com/me/desipipe/internal/provider"
	"github.com/me/desipipe/internal/store"
	"github.com/me/desipipe/pkg/model"
)

// Config holds scheduler configuration independent of any one queue's
// TMConfig (that bundle travels per-task and is decoded inside Tick).
type Config struct {
	PollInterval     time.Duration
	HeartbeatTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{PollInterval: 2 * time.Second, HeartbeatTimeout: 30 * time.Second}
}

// Loop implements the Scheduler interface with a polling-based scheduling
// loop, grounded on the teacher's phase-per-tick shape: each phase scans
// one state slice, mutates it, and the next phase picks up where it left
// off. Unlike the teacher's submission-keyed "affected" accumulator,
// desipipe's phases operate directly on the flat task table since a
// queue has no submission layer above tasks.
type Loop struct {
	queuePath string
	store     store.Store
	providers *provider.Registry
	config    Config
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewLoop(queuePath string, st store.Store, providers *provider.Registry, cfg Config, logger *slog.Logger) *Loop {
	return &Loop{
		queuePath: queuePath,
		store:     st,
		providers: providers,
		config:    cfg,
		logger:    logger.With("component", "scheduler", "queue", queuePath),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("scheduler started", "poll_interval", l.config.PollInterval)
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			close(l.doneCh)
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick runs sweep_stale, scan_ready and per-TMConfig dispatch. There is
// no separate reap phase: providers drop exited workers from their
// counts when dispatch calls LiveWorkers. A paused queue still sweeps stale
// workers (a crashed worker shouldn't hold a task RUNNING forever just
// because the operator paused the queue) but never dispatches new ones.
func (l *Loop) Tick(ctx context.Context) error {
	state, err := l.store.State(ctx)
	if err != nil {
		return fmt.Errorf("read queue state: %w", err)
	}

	swept, err := l.store.SweepStale(ctx, l.config.HeartbeatTimeout.Seconds())
	if err != nil {
		return fmt.Errorf("phase sweep_stale: %w", err)
	}
	if len(swept) > 0 {
		l.logger.Warn("swept stale tasks to UNKNOWN", "count", len(swept))
	}

	promoted, err := l.store.ScanReady(ctx)
	if err != nil {
		return fmt.Errorf("phase scan_ready: %w", err)
	}
	if len(promoted) > 0 {
		l.logger.Debug("promoted tasks to PENDING", "count", len(promoted))
	}

	if state == model.QueuePaused {
		return nil
	}

	if err := l.dispatch(ctx); err != nil {
		return fmt.Errorf("phase dispatch: %w", err)
	}

	return nil
}

// dispatch computes, per distinct (provider kind, TMConfig digest) group
// of PENDING tasks, how many more workers to launch so that
// live_workers + in_flight never exceeds that group's max_workers, then
// asks the matching Provider to launch the shortfall.
func (l *Loop) dispatch(ctx context.Context) error {
	pending, err := l.store.ListTasks(ctx, model.TaskFilter{State: model.TaskPending})
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	type group struct {
		cfg   config.TMConfig
		count int
	}
	groups := make(map[string]*group)
	for _, t := range pending {
		cfg, err := config.DecodeTMConfig(t.TMConfigBlob)
		if err != nil {
			l.logger.Error("decode tm_config", "task_id", t.ID, "error", err)
			continue
		}
		key := cfg.Provider.Kind + "\x00" + string(t.TMConfigBlob)
		g, ok := groups[key]
		if !ok {
			g = &group{cfg: cfg}
			groups[key] = g
		}
		g.count++
	}

	for _, g := range groups {
		kind := g.cfg.Provider.Kind
		p, err := l.providers.Get(model.ProviderKind(kind))
		if err != nil {
			l.logger.Error("no provider for pending tasks", "provider_kind", kind, "error", err)
			continue
		}

		live, err := p.LiveWorkers(ctx, l.queuePath)
		if err != nil {
			l.logger.Error("live workers", "provider_kind", kind, "error", err)
			continue
		}

		budget := g.cfg.Scheduler.MaxWorkers - live
		if budget <= 0 {
			continue
		}
		want := g.count
		if want > budget {
			want = budget
		}

		started, err := p.Launch(ctx, l.queuePath, want, g.cfg)
		if err != nil {
			l.logger.Error("launch workers", "provider_kind", kind, "error", err)
			continue
		}
		if len(started) > 0 {
			l.logger.Info("launched workers", "provider_kind", kind, "count", len(started))
		}
	}

	return nil
}
