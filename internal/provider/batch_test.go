package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/me/desipipe/internal/config"
	"github.com/me/desipipe/pkg/model"
)

type fakeCommandRunner struct {
	calls []string
	// resultFor maps a command substring to a canned response
	resultFor func(cmd string) (stdout, stderr string, exitCode int, err error)
}

func (f *fakeCommandRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := strings.Join(args, " ")
	f.calls = append(f.calls, cmd)
	return f.resultFor(cmd)
}

func TestBatchProvider_Launch_ParsesJobID(t *testing.T) {
	runner := &fakeCommandRunner{
		resultFor: func(cmd string) (string, string, int, error) {
			return "4242\n", "", 0, nil
		},
	}
	p := NewBatchProvider(testLogger())
	p.runner = runner

	cfg := config.DefaultTMConfig()
	cfg.Provider.SubmitCommand = "sbatch --parsable worker.sh"

	started, err := p.Launch(context.Background(), "/tmp/q.sqlite", 2, cfg)
	require.NoError(t, err)
	require.Len(t, started, 2)
	require.Equal(t, "4242", started[0].JobID)
	require.Equal(t, model.ProviderBatch, started[0].Provider)
	require.Equal(t, model.WorkerStarting, started[0].State)
}

func TestBatchProvider_Launch_NoSubmitCommand(t *testing.T) {
	p := NewBatchProvider(testLogger())
	_, err := p.Launch(context.Background(), "/tmp/q.sqlite", 1, config.DefaultTMConfig())
	require.Error(t, err)
}

func TestBatchProvider_Launch_NonZeroExit(t *testing.T) {
	runner := &fakeCommandRunner{
		resultFor: func(cmd string) (string, string, int, error) {
			return "", "partition is down", 1, nil
		},
	}
	p := NewBatchProvider(testLogger())
	p.runner = runner

	cfg := config.DefaultTMConfig()
	cfg.Provider.SubmitCommand = "sbatch worker.sh"

	_, err := p.Launch(context.Background(), "/tmp/q.sqlite", 1, cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "partition is down")
}

func TestBatchProvider_LiveWorkers_TracksUntilDrained(t *testing.T) {
	submitted := 0
	runner := &fakeCommandRunner{
		resultFor: func(cmd string) (string, string, int, error) {
			if strings.Contains(cmd, "sbatch") {
				submitted++
				return "100" + string(rune('0'+submitted)) + "\n", "", 0, nil
			}
			// status command: job 1001 still running, 1002 has finished
			if strings.Contains(cmd, "1001") {
				return "RUNNING\n", "", 0, nil
			}
			return "", "", 0, nil
		},
	}
	p := NewBatchProvider(testLogger())
	p.runner = runner
	p.SetStatusCommand("squeue -h -j")

	cfg := config.DefaultTMConfig()
	cfg.Provider.SubmitCommand = "sbatch worker.sh"
	_, err := p.Launch(context.Background(), "/tmp/q.sqlite", 2, cfg)
	require.NoError(t, err)

	live, err := p.LiveWorkers(context.Background(), "/tmp/q.sqlite")
	require.NoError(t, err)
	require.Equal(t, 1, live)

	live, err = p.LiveWorkers(context.Background(), "/tmp/q.sqlite")
	require.NoError(t, err)
	require.Equal(t, 1, live, "second poll should only re-check the still-tracked job")
}

func TestBatchProvider_KilledAtTimeout(t *testing.T) {
	p := NewBatchProvider(testLogger())
	require.True(t, p.KilledAtTimeout())
	require.Equal(t, model.ProviderBatch, p.Kind())
}
