package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "relay.db"
	defaultWorkers       = 4
	defaultRetention     = 24 * time.Hour
	defaultSweepInterval = time.Minute
	defaultNATSSubject   = "relay.events"
	defaultRedisChannel  = "relay:events"

	envListenAddr       = "RELAY_LISTEN_ADDR"
	envDBPath           = "RELAY_DB_PATH"
	envLogLevel         = "RELAY_LOG_LEVEL"
	envWorkers          = "RELAY_WORKERS"
	envMaxParallelSteps = "RELAY_MAX_PARALLEL_STEPS"
	envRetention        = "RELAY_RETENTION"
	envSweepInterval    = "RELAY_SWEEP_INTERVAL"
	envWorkflowDir      = "RELAY_WORKFLOW_DIR"
	envNATSURL          = "RELAY_NATS_URL"
	envNATSSubject      = "RELAY_NATS_SUBJECT"
	envRedisAddr        = "RELAY_REDIS_ADDR"
	envRedisChannel     = "RELAY_REDIS_CHANNEL"
	envInferenceURL     = "RELAY_INFERENCE_URL"
	envAdminToken       = "RELAY_ADMIN_TOKEN"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	Workers          int
	MaxParallelSteps int
	Retention        time.Duration
	SweepInterval    time.Duration

	// WorkflowDir holds definition files registered at startup. Empty disables loading.
	WorkflowDir string

	// NATSURL and RedisAddr enable the matching event sinks when set.
	NATSURL      string
	NATSSubject  string
	RedisAddr    string
	RedisChannel string

	// InferenceURL is the base URL of the model service behind ai_task steps.
	InferenceURL string
	// AdminToken grants administrative cancel to callers presenting it.
	AdminToken string
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numbers and durations keep their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
		Workers:       defaultWorkers,
		Retention:     defaultRetention,
		SweepInterval: defaultSweepInterval,
		NATSSubject:   defaultNATSSubject,
		RedisChannel:  defaultRedisChannel,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.Workers = intEnv(envWorkers, cfg.Workers, 1)
	cfg.MaxParallelSteps = intEnv(envMaxParallelSteps, cfg.MaxParallelSteps, 0)
	cfg.Retention = durationEnv(envRetention, cfg.Retention)
	cfg.SweepInterval = durationEnv(envSweepInterval, cfg.SweepInterval)

	cfg.WorkflowDir = os.Getenv(envWorkflowDir)
	cfg.NATSURL = os.Getenv(envNATSURL)
	if v := os.Getenv(envNATSSubject); v != "" {
		cfg.NATSSubject = v
	}
	cfg.RedisAddr = os.Getenv(envRedisAddr)
	if v := os.Getenv(envRedisChannel); v != "" {
		cfg.RedisChannel = v
	}
	cfg.InferenceURL = os.Getenv(envInferenceURL)
	cfg.AdminToken = os.Getenv(envAdminToken)

	return cfg
}

func intEnv(key string, def, floor int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		return def
	}
	return n
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
