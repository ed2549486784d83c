package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the full server configuration. Values come from an optional
// YAML file named by CONFIG_FILE, then environment variables on top; env
// always wins.
type AppConfig struct {
	HTTPListenAddr string `yaml:"httpListenAddr"`
	WSListenAddr   string `yaml:"wsListenAddr"`

	RedisURL    string `yaml:"redisURL"`
	DatabaseURL string `yaml:"databaseURL"`

	SessionTTLSec     int `yaml:"sessionTTLSec"`
	SweepIntervalSec  int `yaml:"sweepIntervalSec"`
	WaitingTimeoutSec int `yaml:"waitingTimeoutSec"`
	ActiveTimeoutSec  int `yaml:"activeTimeoutSec"`

	DefaultInitialMs   int64 `yaml:"defaultInitialMs"`
	DefaultIncrementMs int64 `yaml:"defaultIncrementMs"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPListenAddr:    ":8080",
		WSListenAddr:      ":8081",
		SessionTTLSec:     24 * 3600,
		SweepIntervalSec:  300,
		WaitingTimeoutSec: 600,
		ActiveTimeoutSec:  1800,
		DefaultInitialMs:  10 * 60 * 1000,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_LISTEN_ADDR")); v != "" {
		cfg.HTTPListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_LISTEN_ADDR")); v != "" {
		cfg.WSListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_INTERVAL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SweepIntervalSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WAITING_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WaitingTimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ACTIVE_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ActiveTimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_INITIAL_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.DefaultInitialMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_INCREMENT_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.DefaultIncrementMs = n
		}
	}

	if cfg.HTTPListenAddr == cfg.WSListenAddr {
		return nil, fmt.Errorf("HTTP_LISTEN_ADDR and WS_LISTEN_ADDR must differ")
	}
	return cfg, nil
}

func (c *AppConfig) SessionTTL() time.Duration { return time.Duration(c.SessionTTLSec) * time.Second }

func (c *AppConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c *AppConfig) WaitingTimeout() time.Duration {
	return time.Duration(c.WaitingTimeoutSec) * time.Second
}

func (c *AppConfig) ActiveTimeout() time.Duration {
	return time.Duration(c.ActiveTimeoutSec) * time.Second
}
