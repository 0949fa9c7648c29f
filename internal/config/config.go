package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		// TTL is how long completed sessions are kept in Redis.
		TTL string `yaml:"ttl" env:"REDIS_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"DATABASE_URL"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl" env:"QUIZ_TTL"`
	} `yaml:"quiz"`
	Store struct {
		Backend string `yaml:"backend" env:"STORE_BACKEND"`
	} `yaml:"store"`
	Session struct {
		CodeLength      int    `yaml:"codeLength" env:"SESSION_CODE_LENGTH"`
		CodeAttempts    int    `yaml:"codeAttempts" env:"SESSION_CODE_ATTEMPTS"`
		MinParticipants int    `yaml:"minParticipants" env:"SESSION_MIN_PARTICIPANTS"`
		SaveRetries     int    `yaml:"saveRetries" env:"SESSION_SAVE_RETRIES"`
		IdleTTL         string `yaml:"idleTTL" env:"SESSION_IDLE_TTL"`
		SweepInterval   string `yaml:"sweepInterval" env:"SESSION_SWEEP_INTERVAL"`
	} `yaml:"session"`
	Log struct {
		Level       string `yaml:"level" env:"LOG_LEVEL"`
		Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
	} `yaml:"log"`
	Telemetry struct {
		OTLPEndpoint string `yaml:"otlpEndpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
		ServiceName  string `yaml:"serviceName" env:"OTEL_SERVICE_NAME"`
	} `yaml:"telemetry"`
}

// Load reads YAML config from path and overlays environment variables.
// A missing file is not an error; the environment and defaults still apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, err
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Store.Backend == "" {
		switch {
		case c.Redis.Addr != "":
			c.Store.Backend = BackendRedis
		default:
			c.Store.Backend = BackendMemory
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "popsies-quiz-service"
	}
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("store backend %q needs redis.addr", c.Store.Backend)
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store backend %q needs postgres.url", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Session.CodeLength < 0 || c.Session.CodeAttempts < 0 {
		return fmt.Errorf("session code length and attempts must not be negative")
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
