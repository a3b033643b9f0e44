// Package config holds the server's runtime configuration, loaded from the
// environment with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration of the server.
type Config struct {
	// HTTPPort is the listen port of the HTTP server.
	HTTPPort string

	// DataDir is the event store's base directory.
	DataDir string

	// QueueCapacity bounds each handler invocation's event queue.
	QueueCapacity int

	// CancelGraceWindow is how long a cancel waits for the handler before
	// the manager forces a CANCELED status.
	CancelGraceWindow time.Duration

	// MaxBodyBytes caps request body sizes.
	MaxBodyBytes int64

	// WSWriteTimeout bounds individual WebSocket writes.
	WSWriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// HTTP server timeouts.
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	IdleTimeout       time.Duration
}

// Default returns the configuration used when no environment overrides are
// set.
func Default() *Config {
	return &Config{
		HTTPPort:          "8080",
		DataDir:           "./data",
		QueueCapacity:     64,
		CancelGraceWindow: 5 * time.Second,
		MaxBodyBytes:      10 << 20,
		WSWriteTimeout:    10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Load builds a Config from defaults plus environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)

	var err error
	if cfg.QueueCapacity, err = getEnvInt("QUEUE_CAPACITY", cfg.QueueCapacity); err != nil {
		return nil, err
	}
	if cfg.CancelGraceWindow, err = getEnvDuration("CANCEL_GRACE_WINDOW", cfg.CancelGraceWindow); err != nil {
		return nil, err
	}
	maxBody, err := getEnvInt("MAX_BODY_BYTES", int(cfg.MaxBodyBytes))
	if err != nil {
		return nil, err
	}
	cfg.MaxBodyBytes = int64(maxBody)
	if cfg.WSWriteTimeout, err = getEnvDuration("WS_WRITE_TIMEOUT", cfg.WSWriteTimeout); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return nil, err
	}

	if cfg.QueueCapacity <= 0 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be positive")
	}
	if cfg.MaxBodyBytes <= 0 {
		return nil, fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 5s: %w", key, err)
	}
	return d, nil
}
