package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTMConfig_RoundTrip(t *testing.T) {
	c := DefaultTMConfig()
	c.Scheduler.MaxWorkers = 8
	c.Environment.Vars = map[string]string{"OMP_NUM_THREADS": "4"}

	blob, err := c.Encode()
	require.NoError(t, err)

	got, err := DecodeTMConfig(blob)
	require.NoError(t, err)
	require.Equal(t, 8, got.Scheduler.MaxWorkers)
	require.Equal(t, "4", got.Environment.Vars["OMP_NUM_THREADS"])
}

func TestDecodeTMConfig_EmptyIsDefault(t *testing.T) {
	got, err := DecodeTMConfig(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultTMConfig(), got)
}

func TestLoadTMConfigYAML_OverridesOnTopOfDefaults(t *testing.T) {
	yamlDoc := []byte(`
scheduler:
  max_workers: 16
provider:
  kind: batch
  submit_command: sbatch
`)
	c, err := LoadTMConfigYAML(yamlDoc)
	require.NoError(t, err)
	require.Equal(t, 16, c.Scheduler.MaxWorkers)
	require.Equal(t, "batch", c.Provider.Kind)
	require.Equal(t, "sbatch", c.Provider.SubmitCommand)
	require.Equal(t, DefaultSchedulerSpec().HeartbeatTimeout, c.Scheduler.HeartbeatTimeout)
}

func TestDefaultSchedulerSpec(t *testing.T) {
	s := DefaultSchedulerSpec()
	require.Equal(t, 4, s.MaxWorkers)
	require.Equal(t, 2*time.Second, s.Timestep)
}
