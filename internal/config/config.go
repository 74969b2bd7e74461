// Package config defines desipipe's ambient process configuration
// (logging, queue directory) and the TaskManager-owned configuration
// bundle (environment/scheduler/provider spec) that gets serialized onto
// every task row as tm_config.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// CLIConfig holds the ambient configuration shared by every desipipe
// subcommand, grounded on the teacher's ServerConfig shape.
type CLIConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json
	QueueDir  string // base directory queues are resolved under
}

// DefaultCLIConfig returns sensible defaults, overridden by flags and by
// DESIPIPE_QUEUE_DIR (resolved separately in internal/queue).
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// EnvironmentSpec enumerates environment variables and shell prep
// commands for a TaskManager's workers. LocalProvider adds Vars to the
// worker's environment; PrepCommands travel in each task's tm_config
// blob but are not run by any provider or by the worker.
type EnvironmentSpec struct {
	Vars         map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
	PrepCommands []string          `json:"prep_commands,omitempty" yaml:"prep_commands,omitempty"`
}

// SchedulerSpec bounds how aggressively the spawn loop launches workers
// for tasks that share this config (spec 4.5).
type SchedulerSpec struct {
	MaxWorkers        int           `json:"max_workers" yaml:"max_workers"`
	Timestep          time.Duration `json:"timestep" yaml:"timestep"`
	HeartbeatTimeout  time.Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	WorkerIdleTimeout time.Duration `json:"worker_idle_timeout" yaml:"worker_idle_timeout"`
	IdleGrace         time.Duration `json:"idle_grace" yaml:"idle_grace"`
}

// DefaultSchedulerSpec matches the S1 end-to-end scenario's defaults.
func DefaultSchedulerSpec() SchedulerSpec {
	return SchedulerSpec{
		MaxWorkers:        4,
		Timestep:          2 * time.Second,
		HeartbeatTimeout:  30 * time.Second,
		WorkerIdleTimeout: 60 * time.Second,
		IdleGrace:         10 * time.Second,
	}
}

// ProviderSpec selects and configures a Provider (spec 4.6).
type ProviderSpec struct {
	Kind            string            `json:"kind" yaml:"kind"` // "local" or "batch"
	KilledAtTimeout bool              `json:"killed_at_timeout" yaml:"killed_at_timeout"`
	SubmitCommand   string            `json:"submit_command,omitempty" yaml:"submit_command,omitempty"`
	StatusCommand   string            `json:"status_command,omitempty" yaml:"status_command,omitempty"`
	CancelCommand   string            `json:"cancel_command,omitempty" yaml:"cancel_command,omitempty"`
	Extra           map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// DefaultProviderSpec runs workers as local subprocesses.
func DefaultProviderSpec() ProviderSpec {
	return ProviderSpec{Kind: "local", KilledAtTimeout: false}
}

// TMConfig is the serialized bundle a TaskManager attaches to every task
// it creates; it is opaque to the store and decoded only by the
// scheduler and worker runtime.
type TMConfig struct {
	Environment EnvironmentSpec `json:"environment" yaml:"environment"`
	Scheduler   SchedulerSpec   `json:"scheduler" yaml:"scheduler"`
	Provider    ProviderSpec    `json:"provider" yaml:"provider"`
}

func DefaultTMConfig() TMConfig {
	return TMConfig{
		Environment: EnvironmentSpec{},
		Scheduler:   DefaultSchedulerSpec(),
		Provider:    DefaultProviderSpec(),
	}
}

// Encode serializes a TMConfig to the blob stored on a task row.
func (c TMConfig) Encode() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: encode tm_config: %w", err)
	}
	return b, nil
}

// DecodeTMConfig deserializes a task row's tm_config blob.
func DecodeTMConfig(blob []byte) (TMConfig, error) {
	var c TMConfig
	if len(blob) == 0 {
		return DefaultTMConfig(), nil
	}
	if err := json.Unmarshal(blob, &c); err != nil {
		return TMConfig{}, fmt.Errorf("config: decode tm_config: %w", err)
	}
	return c, nil
}

// LoadTMConfigYAML parses a TMConfig from YAML bytes, layered on top of
// DefaultTMConfig so a file only needs to override what it cares about.
func LoadTMConfigYAML(data []byte) (TMConfig, error) {
	c := DefaultTMConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return TMConfig{}, fmt.Errorf("config: parse tm_config yaml: %w", err)
	}
	return c, nil
}
