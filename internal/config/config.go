// Package config loads nanoserve's YAML configuration file and
// applies defaults the way the teacher's internal/cli.loadConfig and
// wal.NewWAL did for their own zero-valued fields.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the core HTTP listener.
type ServerConfig struct {
	Port        int `yaml:"port"`
	WorkerCount int `yaml:"worker_count"`
}

// HTTP404Config controls whether a custom 404 endpoint replaces the
// server's built-in one.
type HTTP404Config struct {
	Enabled bool `yaml:"enabled"`
}

// TasksConfig controls the durable background task queue.
type TasksConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	WorkerCount             int    `yaml:"worker_count"`
	WALDir                  string `yaml:"wal_dir"`
	SnapshotDir             string `yaml:"snapshot_dir"`
	SnapshotIntervalSeconds int    `yaml:"snapshot_interval_seconds"`
	FlushIntervalMs         int    `yaml:"flush_interval_ms"`
	BufferSize              int    `yaml:"buffer_size"`
	TaskTimeoutSeconds      int    `yaml:"task_timeout_seconds"`
	MaxRetry                int    `yaml:"max_retry"`
}

// MetricsConfig controls the Prometheus metrics listener.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Config is nanoserve's full configuration, loaded from a single YAML
// file.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP404 HTTP404Config `yaml:"http_404"`
	Tasks   TasksConfig   `yaml:"tasks"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Load reads and unmarshals the YAML file at path, then fills in
// defaults for any zero-valued field that needs a nonzero one to be
// usable.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.WorkerCount <= 0 {
		cfg.Server.WorkerCount = 8
	}

	if cfg.Tasks.WorkerCount <= 0 {
		cfg.Tasks.WorkerCount = 4
	}
	if cfg.Tasks.WALDir == "" {
		cfg.Tasks.WALDir = "./data/wal"
	}
	if cfg.Tasks.SnapshotDir == "" {
		cfg.Tasks.SnapshotDir = "./data/snapshot"
	}
	if cfg.Tasks.SnapshotIntervalSeconds <= 0 {
		cfg.Tasks.SnapshotIntervalSeconds = 30
	}
	if cfg.Tasks.FlushIntervalMs <= 0 {
		cfg.Tasks.FlushIntervalMs = 10
	}
	if cfg.Tasks.BufferSize <= 0 {
		cfg.Tasks.BufferSize = 100
	}
	if cfg.Tasks.TaskTimeoutSeconds <= 0 {
		cfg.Tasks.TaskTimeoutSeconds = 30
	}
	if cfg.Tasks.MaxRetry <= 0 {
		cfg.Tasks.MaxRetry = 3
	}

	if cfg.Metrics.Port <= 0 {
		cfg.Metrics.Port = 9090
	}
}
