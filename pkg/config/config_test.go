package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Export.Compression != "snappy" {
		t.Errorf("default compression = %q, want snappy", cfg.Export.Compression)
	}
	if cfg.Watch.Checkpoint != "file" {
		t.Errorf("default checkpoint backend = %q, want file", cfg.Watch.Checkpoint)
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry must be off by default")
	}
}

func TestMergeKeepsDefaults(t *testing.T) {
	m := NewManager()
	m.merge(&Config{
		Grouping: GroupingConfig{RulesFile: "rules.yaml"},
		Watch:    WatchConfig{Interval: 5 * time.Second},
	})

	cfg := m.Get()
	if cfg.Grouping.RulesFile != "rules.yaml" {
		t.Errorf("RulesFile = %q", cfg.Grouping.RulesFile)
	}
	if cfg.Watch.Interval != 5*time.Second {
		t.Errorf("Interval = %v", cfg.Watch.Interval)
	}
	// Untouched fields keep their defaults.
	if cfg.Export.BatchSize != 8192 {
		t.Errorf("BatchSize = %d, want 8192", cfg.Export.BatchSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRACEFLOW_COMPRESSION", "zstd")
	t.Setenv("TRACEFLOW_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("TRACEFLOW_THREADS", "8")

	m := NewManager()
	m.loadEnv()

	cfg := m.Get()
	if cfg.Export.Compression != "zstd" {
		t.Errorf("Compression = %q, want zstd", cfg.Export.Compression)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("Telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Query.Threads != 8 {
		t.Errorf("Threads = %d, want 8", cfg.Query.Threads)
	}
}
