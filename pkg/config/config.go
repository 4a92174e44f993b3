// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all TraceFlow configuration.
type Config struct {
	Version int `yaml:"version"`

	Grouping  GroupingConfig  `yaml:"grouping"`
	Export    ExportConfig    `yaml:"export"`
	Query     QueryConfig     `yaml:"query"`
	S3        S3Config        `yaml:"s3"`
	Watch     WatchConfig     `yaml:"watch"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// GroupingConfig controls the grouping pipeline.
type GroupingConfig struct {
	// RulesFile points to a YAML connect-rule file; empty uses built-ins.
	RulesFile string `yaml:"rules_file"`

	// Roots overrides the legacy root event types by name.
	Roots []string `yaml:"roots"`
}

// ExportConfig controls report and Parquet output.
type ExportConfig struct {
	Compression string `yaml:"compression"` // snappy | zstd | gzip | lz4 | none
	BatchSize   int    `yaml:"batch_size"`
	OutputDir   string `yaml:"output_dir"`
}

// QueryConfig controls the DuckDB query engine.
type QueryConfig struct {
	MemoryLimit string `yaml:"memory_limit"` // e.g., "4GB"
	Threads     int    `yaml:"threads"`      // 0 = auto
	TempDir     string `yaml:"temp_dir"`
}

// S3Config for s3:// trace sources.
type S3Config struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// WatchConfig for watch mode.
type WatchConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Checkpoint    string        `yaml:"checkpoint"` // file | redis
	CheckpointDir string        `yaml:"checkpoint_dir"`
	RedisAddress  string        `yaml:"redis_address"`
}

// TelemetryConfig for optional OTLP export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	traceflowDir := filepath.Join(homeDir, ".traceflow")

	return &Config{
		Version: 1,
		Export: ExportConfig{
			Compression: "snappy",
			BatchSize:   8192,
			OutputDir:   ".",
		},
		Query: QueryConfig{
			MemoryLimit: "4GB",
			Threads:     0, // auto
			TempDir:     filepath.Join(os.TempDir(), "traceflow"),
		},
		Watch: WatchConfig{
			Interval:      2 * time.Second,
			Checkpoint:    "file",
			CheckpointDir: filepath.Join(traceflowDir, "checkpoints"),
			RedisAddress:  "localhost:6379",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()

	// Load from paths in order (later overrides earlier)
	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but surface errors in existing ones
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	// Override with environment variables
	m.loadEnv()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/traceflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".traceflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".traceflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Grouping.RulesFile != "" {
		m.config.Grouping.RulesFile = src.Grouping.RulesFile
	}
	if len(src.Grouping.Roots) > 0 {
		m.config.Grouping.Roots = src.Grouping.Roots
	}

	if src.Export.Compression != "" {
		m.config.Export.Compression = src.Export.Compression
	}
	if src.Export.BatchSize != 0 {
		m.config.Export.BatchSize = src.Export.BatchSize
	}
	if src.Export.OutputDir != "" {
		m.config.Export.OutputDir = src.Export.OutputDir
	}

	if src.Query.MemoryLimit != "" {
		m.config.Query.MemoryLimit = src.Query.MemoryLimit
	}
	if src.Query.Threads != 0 {
		m.config.Query.Threads = src.Query.Threads
	}
	if src.Query.TempDir != "" {
		m.config.Query.TempDir = src.Query.TempDir
	}

	if src.S3.Region != "" {
		m.config.S3.Region = src.S3.Region
	}
	if src.S3.Endpoint != "" {
		m.config.S3.Endpoint = src.S3.Endpoint
	}

	if src.Watch.Interval != 0 {
		m.config.Watch.Interval = src.Watch.Interval
	}
	if src.Watch.Checkpoint != "" {
		m.config.Watch.Checkpoint = src.Watch.Checkpoint
	}
	if src.Watch.CheckpointDir != "" {
		m.config.Watch.CheckpointDir = src.Watch.CheckpointDir
	}
	if src.Watch.RedisAddress != "" {
		m.config.Watch.RedisAddress = src.Watch.RedisAddress
	}

	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("TRACEFLOW_RULES"); v != "" {
		m.config.Grouping.RulesFile = v
	}
	if v := os.Getenv("TRACEFLOW_COMPRESSION"); v != "" {
		m.config.Export.Compression = v
	}
	if v := os.Getenv("TRACEFLOW_S3_REGION"); v != "" {
		m.config.S3.Region = v
	}
	if v := os.Getenv("TRACEFLOW_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
	if v := os.Getenv("TRACEFLOW_REDIS"); v != "" {
		m.config.Watch.RedisAddress = v
	}
	if v := os.Getenv("TRACEFLOW_THREADS"); v != "" {
		var threads int
		if _, err := fmt.Sscanf(v, "%d", &threads); err == nil {
			m.config.Query.Threads = threads
		}
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".traceflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}
