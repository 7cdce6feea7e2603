package config

import "time"

// Config is the complete taskwarden configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Worker  WorkerConfig  `yaml:"worker"`
	History HistoryConfig `yaml:"history"`
	API     APIConfig     `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogDir    string `yaml:"log_dir"`
	LockPath  string `yaml:"lock_path"`
}

// WorkerConfig defines how the worker process is spawned and supervised.
type WorkerConfig struct {
	// Command overrides the worker command line. Empty means re-exec the
	// current binary with the "worker" argument.
	Command []string `yaml:"command,omitempty"`

	// DefaultTimeout is the supervisor-side wait for tasks without a
	// catalog override.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	Restart RestartConfig `yaml:"restart"`

	// CommandTimeout and MaxOutputBytes bound individual shell commands
	// inside the worker. Independent of DefaultTimeout; the two can
	// disagree and both knobs are kept on purpose.
	CommandTimeout time.Duration `yaml:"command_timeout"`
	MaxOutputBytes int64         `yaml:"max_output_bytes"`
}

// RestartConfig defines the crash-recovery policy.
type RestartConfig struct {
	// MaxAttempts is the consecutive failed-attempt budget before cooldown.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffStep scales the delay: attempt N waits N×BackoffStep,
	// capped at BackoffCap.
	BackoffStep time.Duration `yaml:"backoff_step"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
}

// HistoryConfig defines task-run persistence.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// APIKey is the bearer token required on every request when set.
	APIKey string `yaml:"api_key"`
}

// Defaults returns a Config with workable defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "taskwarden",
			LogLevel:  "info",
			LogFormat: "text",
			LogDir:    "./data/logs",
			LockPath:  "./data/taskwarden.pid",
		},
		Worker: WorkerConfig{
			DefaultTimeout: 30 * time.Second,
			Restart: RestartConfig{
				MaxAttempts: 5,
				BackoffStep: 1 * time.Second,
				BackoffCap:  10 * time.Second,
			},
			CommandTimeout: 30 * time.Second,
			MaxOutputBytes: 10 << 20,
		},
		History: HistoryConfig{
			Path: "./data/history.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8787",
		},
	}
}
