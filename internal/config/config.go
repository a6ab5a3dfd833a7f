// Package config loads collector and ingester configuration from
// environment variables, following the teacher's env-var-with-defaults
// pattern and its RWMutex-guarded mutable core for fields the HTTP API
// can change at runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CollectorConfig holds the per-host agent's configuration (spec §6).
type CollectorConfig struct {
	BackendURL string
	APIKey     string
	DockerSock string

	ComposeSearchPaths []string

	OverlayDetect bool

	CaptureEnabled   bool
	CaptureMode      string // "intermittent" | "active"
	CaptureDuration  time.Duration
	CaptureInterval  time.Duration
	MaxPacketsPerContainer int

	LogsEnabled    bool
	LogLines       int
	LogSinceSeconds int

	CommandServerEnabled bool
	CommandPort          int

	LogJSON  bool
	LogLevel string

	mu             sync.RWMutex
	scanInterval time.Duration
}

// LoadCollector reads collector configuration from the environment.
func LoadCollector() *CollectorConfig {
	return &CollectorConfig{
		BackendURL:             envStr("INFRAMAPPER_BACKEND_URL", "http://localhost:8090"),
		APIKey:                 envStr("INFRAMAPPER_API_KEY", ""),
		DockerSock:             envStr("INFRAMAPPER_DOCKER_SOCK", "/var/run/docker.sock"),
		ComposeSearchPaths:     envList("INFRAMAPPER_COMPOSE_PATHS", []string{"/opt", "/srv", "/home"}),
		OverlayDetect:          envBool("INFRAMAPPER_OVERLAY_DETECT", true),
		CaptureEnabled:         envBool("INFRAMAPPER_CAPTURE_ENABLED", true),
		CaptureMode:            envStr("INFRAMAPPER_CAPTURE_MODE", "intermittent"),
		CaptureDuration:        envDuration("INFRAMAPPER_CAPTURE_DURATION", 10*time.Second),
		CaptureInterval:        envDuration("INFRAMAPPER_CAPTURE_INTERVAL", 5*time.Minute),
		MaxPacketsPerContainer: envInt("INFRAMAPPER_CAPTURE_MAX_PACKETS", 200),
		LogsEnabled:            envBool("INFRAMAPPER_LOGS_ENABLED", true),
		LogLines:               envInt("INFRAMAPPER_LOG_LINES", 100),
		LogSinceSeconds:        envInt("INFRAMAPPER_LOG_SINCE_SECONDS", 300),
		CommandServerEnabled:   envBool("INFRAMAPPER_COMMAND_SERVER_ENABLED", true),
		CommandPort:            envInt("INFRAMAPPER_COMMAND_PORT", 9191),
		LogJSON:                envBool("INFRAMAPPER_LOG_JSON", true),
		LogLevel:               envStr("INFRAMAPPER_LOG_LEVEL", "info"),
		scanInterval:           envDuration("INFRAMAPPER_SCAN_INTERVAL", 30*time.Second),
	}
}

// ScanInterval returns the current report interval (thread-safe).
func (c *CollectorConfig) ScanInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scanInterval
}

// SetScanInterval updates the report interval at runtime (thread-safe).
func (c *CollectorConfig) SetScanInterval(d time.Duration) {
	c.mu.Lock()
	c.scanInterval = d
	c.mu.Unlock()
}

// Validate checks the collector configuration for invalid values.
func (c *CollectorConfig) Validate() error {
	var errs []error
	if c.BackendURL == "" {
		errs = append(errs, fmt.Errorf("INFRAMAPPER_BACKEND_URL must be set"))
	}
	if c.ScanInterval() <= 0 {
		errs = append(errs, fmt.Errorf("INFRAMAPPER_SCAN_INTERVAL must be > 0"))
	}
	switch c.CaptureMode {
	case "intermittent", "active":
	default:
		errs = append(errs, fmt.Errorf("INFRAMAPPER_CAPTURE_MODE must be intermittent or active, got %q", c.CaptureMode))
	}
	return errors.Join(errs...)
}

// IngesterConfig holds the central server's configuration.
type IngesterConfig struct {
	DBPath   string
	WebPort  string
	LogJSON  bool
	LogLevel string

	MetricsEnabled bool

	// Accepted agent API keys (hashed) are stored in the database; this
	// is a bootstrap key accepted in addition to stored keys, useful
	// for single-agent deployments and local development.
	BootstrapAPIKey string

	HealthSweepInterval time.Duration

	mu                sync.RWMutex
	offlineAfter      time.Duration // runtime-adjustable staleness threshold; internal/graph does not read it
}

// LoadIngester reads ingester configuration from the environment.
func LoadIngester() *IngesterConfig {
	return &IngesterConfig{
		DBPath:              envStr("INFRAMAPPER_DB_PATH", "/data/infra-mapper.db"),
		WebPort:             envStr("INFRAMAPPER_WEB_PORT", "8090"),
		LogJSON:             envBool("INFRAMAPPER_LOG_JSON", true),
		LogLevel:            envStr("INFRAMAPPER_LOG_LEVEL", "info"),
		MetricsEnabled:      envBool("INFRAMAPPER_METRICS", true),
		BootstrapAPIKey:     envStr("INFRAMAPPER_BOOTSTRAP_API_KEY", ""),
		HealthSweepInterval: envDuration("INFRAMAPPER_HEALTH_SWEEP_INTERVAL", 30*time.Second),
		offlineAfter:        envDuration("INFRAMAPPER_OFFLINE_AFTER", 5*time.Minute),
	}
}

// OfflineAfter returns the configured "last_seen" staleness threshold
// (thread-safe). The graph's include_offline filter does not use it; it
// applies its own fixed offlineThreshold.
func (c *IngesterConfig) OfflineAfter() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offlineAfter
}

// SetOfflineAfter updates the staleness threshold at runtime (thread-safe).
func (c *IngesterConfig) SetOfflineAfter(d time.Duration) {
	c.mu.Lock()
	c.offlineAfter = d
	c.mu.Unlock()
}

// Validate checks the ingester configuration for invalid values.
func (c *IngesterConfig) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("INFRAMAPPER_DB_PATH must be set"))
	}
	if c.WebPort == "" {
		errs = append(errs, fmt.Errorf("INFRAMAPPER_WEB_PORT must be set"))
	}
	return errors.Join(errs...)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
