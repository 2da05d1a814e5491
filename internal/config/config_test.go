package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

var allKeys = []string{
	envListenAddr, envDBPath, envLogLevel, envWorkers, envMaxParallelSteps,
	envRetention, envSweepInterval, envWorkflowDir, envNATSURL, envNATSSubject,
	envRedisAddr, envRedisChannel, envInferenceURL, envAdminToken,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.Workers != defaultWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Workers, defaultWorkers)
	}
	if cfg.MaxParallelSteps != 0 {
		t.Errorf("MaxParallelSteps = %d, want 0", cfg.MaxParallelSteps)
	}
	if cfg.Retention != defaultRetention {
		t.Errorf("Retention = %v, want %v", cfg.Retention, defaultRetention)
	}
	if cfg.SweepInterval != defaultSweepInterval {
		t.Errorf("SweepInterval = %v, want %v", cfg.SweepInterval, defaultSweepInterval)
	}
	if cfg.NATSSubject != defaultNATSSubject || cfg.RedisChannel != defaultRedisChannel {
		t.Errorf("sink names = %q/%q, want defaults", cfg.NATSSubject, cfg.RedisChannel)
	}
	if cfg.WorkflowDir != "" || cfg.NATSURL != "" || cfg.RedisAddr != "" || cfg.InferenceURL != "" || cfg.AdminToken != "" {
		t.Errorf("optional settings should be empty: %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envWorkers, "8")
	t.Setenv(envMaxParallelSteps, "3")
	t.Setenv(envRetention, "2h")
	t.Setenv(envSweepInterval, "30s")
	t.Setenv(envWorkflowDir, "/etc/relay/workflows")
	t.Setenv(envNATSURL, "nats://localhost:4222")
	t.Setenv(envNATSSubject, "wf.events")
	t.Setenv(envRedisAddr, "localhost:6379")
	t.Setenv(envRedisChannel, "wf:events")
	t.Setenv(envInferenceURL, "http://models:8000")
	t.Setenv(envAdminToken, "s3cret")

	cfg := Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.Workers != 8 || cfg.MaxParallelSteps != 3 {
		t.Errorf("Workers/MaxParallelSteps = %d/%d, want 8/3", cfg.Workers, cfg.MaxParallelSteps)
	}
	if cfg.Retention != 2*time.Hour || cfg.SweepInterval != 30*time.Second {
		t.Errorf("Retention/SweepInterval = %v/%v, want 2h/30s", cfg.Retention, cfg.SweepInterval)
	}
	if cfg.WorkflowDir != "/etc/relay/workflows" {
		t.Errorf("WorkflowDir = %q", cfg.WorkflowDir)
	}
	if cfg.NATSURL != "nats://localhost:4222" || cfg.NATSSubject != "wf.events" {
		t.Errorf("NATS = %q %q", cfg.NATSURL, cfg.NATSSubject)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.RedisChannel != "wf:events" {
		t.Errorf("Redis = %q %q", cfg.RedisAddr, cfg.RedisChannel)
	}
	if cfg.InferenceURL != "http://models:8000" || cfg.AdminToken != "s3cret" {
		t.Errorf("InferenceURL/AdminToken = %q/%q", cfg.InferenceURL, cfg.AdminToken)
	}
}

func TestLoadInvalidValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(envWorkers, "zero")
	t.Setenv(envMaxParallelSteps, "-1")
	t.Setenv(envRetention, "forever")
	t.Setenv(envSweepInterval, "-5s")

	cfg := Load()

	if cfg.Workers != defaultWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Workers, defaultWorkers)
	}
	if cfg.MaxParallelSteps != 0 {
		t.Errorf("MaxParallelSteps = %d, want 0", cfg.MaxParallelSteps)
	}
	if cfg.Retention != defaultRetention {
		t.Errorf("Retention = %v, want %v", cfg.Retention, defaultRetention)
	}
	if cfg.SweepInterval != defaultSweepInterval {
		t.Errorf("SweepInterval = %v, want %v", cfg.SweepInterval, defaultSweepInterval)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("execution started", "execution_id", "01J")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["execution_id"] != "01J" {
		t.Errorf("execution_id = %v, want %q", entry["execution_id"], "01J")
	}
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info entry written at warn level: %s", buf.String())
	}
}
