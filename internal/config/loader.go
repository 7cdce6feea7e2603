package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses configuration from a YAML file, layering it over
// Defaults and validating the result.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", absPath, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyDefaults backfills zero values left by partial YAML documents.
func applyDefaults(cfg *Config) {
	def := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = def.Service.LogFormat
	}
	if cfg.Service.LogDir == "" {
		cfg.Service.LogDir = def.Service.LogDir
	}
	if cfg.Service.LockPath == "" {
		cfg.Service.LockPath = def.Service.LockPath
	}
	if cfg.Worker.DefaultTimeout <= 0 {
		cfg.Worker.DefaultTimeout = def.Worker.DefaultTimeout
	}
	if cfg.Worker.Restart.MaxAttempts <= 0 {
		cfg.Worker.Restart.MaxAttempts = def.Worker.Restart.MaxAttempts
	}
	if cfg.Worker.Restart.BackoffStep <= 0 {
		cfg.Worker.Restart.BackoffStep = def.Worker.Restart.BackoffStep
	}
	if cfg.Worker.Restart.BackoffCap <= 0 {
		cfg.Worker.Restart.BackoffCap = def.Worker.Restart.BackoffCap
	}
	if cfg.Worker.CommandTimeout <= 0 {
		cfg.Worker.CommandTimeout = def.Worker.CommandTimeout
	}
	if cfg.Worker.MaxOutputBytes <= 0 {
		cfg.Worker.MaxOutputBytes = def.Worker.MaxOutputBytes
	}
	if cfg.History.Path == "" {
		cfg.History.Path = def.History.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = def.API.Listen
	}
}

func validate(cfg *Config) error {
	if cfg.Worker.Restart.BackoffCap < cfg.Worker.Restart.BackoffStep {
		return fmt.Errorf("worker.restart.backoff_cap (%v) is below backoff_step (%v)",
			cfg.Worker.Restart.BackoffCap, cfg.Worker.Restart.BackoffStep)
	}
	if len(cfg.Worker.Command) == 1 && cfg.Worker.Command[0] == "" {
		return fmt.Errorf("worker.command has an empty executable")
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.enabled requires api.listen")
	}
	return nil
}
