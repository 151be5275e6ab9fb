package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the training server.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Trainer      TrainerConfig
	Scheduler    SchedulerConfig
	Orchestrator OrchestratorConfig
	ModelCache   ModelCacheConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// TrainerConfig selects and configures the training backend.
type TrainerConfig struct {
	Backend string
	HTTPAPI HTTPAPIConfig
	Script  ScriptConfig
}

type HTTPAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type ScriptConfig struct {
	Command string
	WorkDir string
}

type SchedulerConfig struct {
	TickInterval time.Duration
}

type OrchestratorConfig struct {
	TrainingTimeout       time.Duration
	JobHistoryLimit       int
	AccuracyWarnThreshold float64
}

type ModelCacheConfig struct {
	MaxSize int
}

var validBackends = map[string]bool{
	"httpapi": true,
	"script":  true,
	"mock":    true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("MLTRAINER_PORT", 8080),
			Env:  envString("MLTRAINER_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Trainer: TrainerConfig{
			Backend: envString("TRAINER_BACKEND", "httpapi"),
			HTTPAPI: HTTPAPIConfig{
				BaseURL: os.Getenv("TRAINER_BASE_URL"),
				Timeout: envDuration("TRAINER_TIMEOUT", 25*time.Minute),
			},
			Script: ScriptConfig{
				Command: os.Getenv("TRAINER_SCRIPT_COMMAND"),
				WorkDir: envString("TRAINER_SCRIPT_WORKDIR", ""),
			},
		},
		Scheduler: SchedulerConfig{
			TickInterval: envDuration("SCHEDULER_TICK_INTERVAL", 60*time.Second),
		},
		Orchestrator: OrchestratorConfig{
			TrainingTimeout:       envDuration("TRAINING_TIMEOUT", 30*time.Minute),
			JobHistoryLimit:       envInt("JOB_HISTORY_LIMIT", 50),
			AccuracyWarnThreshold: envFloat("ACCURACY_WARN_THRESHOLD", 0.8),
		},
		ModelCache: ModelCacheConfig{
			MaxSize: envInt("MODEL_CACHE_MAX_SIZE", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validBackends[c.Trainer.Backend] {
		return fmt.Errorf("TRAINER_BACKEND must be one of httpapi, script, mock; got %q", c.Trainer.Backend)
	}
	if c.Trainer.Backend == "httpapi" {
		if c.Trainer.HTTPAPI.BaseURL == "" {
			return fmt.Errorf("TRAINER_BASE_URL is required when TRAINER_BACKEND is httpapi")
		}
		if !strings.HasPrefix(c.Trainer.HTTPAPI.BaseURL, "http://") && !strings.HasPrefix(c.Trainer.HTTPAPI.BaseURL, "https://") {
			return fmt.Errorf("TRAINER_BASE_URL must start with http:// or https://, got %q", c.Trainer.HTTPAPI.BaseURL)
		}
	}
	if c.Trainer.Backend == "script" && c.Trainer.Script.Command == "" {
		return fmt.Errorf("TRAINER_SCRIPT_COMMAND is required when TRAINER_BACKEND is script")
	}

	if c.Scheduler.TickInterval < time.Second {
		return fmt.Errorf("SCHEDULER_TICK_INTERVAL must be at least 1s, got %s", c.Scheduler.TickInterval)
	}

	if c.Orchestrator.JobHistoryLimit < 1 {
		return fmt.Errorf("JOB_HISTORY_LIMIT must be at least 1, got %d", c.Orchestrator.JobHistoryLimit)
	}

	if c.ModelCache.MaxSize < 1 {
		return fmt.Errorf("MODEL_CACHE_MAX_SIZE must be at least 1, got %d", c.ModelCache.MaxSize)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
