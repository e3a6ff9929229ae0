package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode controls which features are enabled.
// - off: API only, no dashboard/metrics/events
// - monitor (default): API + dashboard + events + metrics
type Mode string

const (
	ModeOff     Mode = "off"
	ModeMonitor Mode = "monitor" // default
)

// StorageType controls the storage backend.
type StorageType string

const (
	StorageSQLite StorageType = "sqlite"
	StorageMemory StorageType = "memory"
)

// Features derived from MODE - centralized feature gating.
type Features struct {
	Dashboard bool `json:"dashboard"`
	Events    bool `json:"events"`
	Metrics   bool `json:"metrics"`
}

// Config contains all runtime configuration for the service.
type Config struct {
	// Core
	Mode       Mode
	ListenAddr string
	LogLevel   string

	// Storage
	Storage        StorageType
	StoragePath    string
	StorageMaxRows int
	SeedFile       string

	// Bar graph
	BarSize       float64
	BarGap        float64
	DefaultBars   int
	MaxBars       int
	DefaultWindow time.Duration
	BarsCacheTTL  time.Duration

	// Safety + performance
	RequestBodyMaxBytes int64
	EventBuffer         int
	HealthCheckInterval time.Duration

	// HTTP
	CORSAllowOrigin string
}

// Features returns the feature flags derived from the current MODE.
func (c *Config) Features() Features {
	if c.Mode == ModeOff {
		return Features{}
	}
	return Features{
		Dashboard: true,
		Events:    true,
		Metrics:   true,
	}
}

// Load parses env vars and returns a validated Config.
func Load() (Config, error) {
	cfg := Config{
		Mode:       Mode(getEnvString("MODE", string(ModeMonitor))),
		ListenAddr: getEnvString("LISTEN_ADDR", ":4300"),
		LogLevel:   getEnvString("LOG_LEVEL", "info"),

		Storage:        StorageType(getEnvString("STORAGE", string(StorageSQLite))),
		StoragePath:    getEnvString("STORAGE_PATH", "/data/flow-activity.sqlite"),
		StorageMaxRows: getEnvInt("STORAGE_MAX_ROWS", 10000),
		SeedFile:       getEnvString("SEED_FILE", ""),

		BarSize:       getEnvFloat("BAR_SIZE", 8),
		BarGap:        getEnvFloat("BAR_GAP", 4),
		DefaultBars:   getEnvInt("DEFAULT_BARS", 10),
		MaxBars:       getEnvInt("MAX_BARS", 2000),
		DefaultWindow: getEnvDuration("DEFAULT_WINDOW", 24*time.Hour),
		BarsCacheTTL:  getEnvDuration("BARS_CACHE_TTL", 2*time.Second),

		RequestBodyMaxBytes: getEnvInt64("REQUEST_BODY_MAX_BYTES", 5*1024*1024),
		EventBuffer:         getEnvInt("EVENT_BUFFER", 100),
		HealthCheckInterval: getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),

		CORSAllowOrigin: getEnvString("CORS_ALLOW_ORIGIN", "*"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration constraints.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeOff, ModeMonitor:
		// ok
	default:
		return fmt.Errorf("invalid MODE: %q (must be off|monitor)", c.Mode)
	}

	switch c.Storage {
	case StorageSQLite, StorageMemory:
		// ok
	default:
		return fmt.Errorf("invalid STORAGE: %q (must be sqlite|memory)", c.Storage)
	}

	if c.StorageMaxRows < 100 {
		return fmt.Errorf("STORAGE_MAX_ROWS must be >= 100")
	}
	if c.Storage == StorageSQLite && strings.TrimSpace(c.StoragePath) == "" {
		return fmt.Errorf("STORAGE_PATH must be set for sqlite storage")
	}

	if c.BarSize <= 0 {
		return fmt.Errorf("BAR_SIZE must be > 0")
	}
	if c.BarGap < 0 {
		return fmt.Errorf("BAR_GAP must be >= 0")
	}
	if c.DefaultBars <= 0 {
		return fmt.Errorf("DEFAULT_BARS must be > 0")
	}
	if c.MaxBars < c.DefaultBars {
		return fmt.Errorf("MAX_BARS must be >= DEFAULT_BARS")
	}
	if c.DefaultWindow <= 0 {
		return fmt.Errorf("DEFAULT_WINDOW must be > 0")
	}
	if c.BarsCacheTTL < 0 {
		return fmt.Errorf("BARS_CACHE_TTL must be >= 0")
	}

	if c.RequestBodyMaxBytes <= 0 {
		return fmt.Errorf("REQUEST_BODY_MAX_BYTES must be > 0")
	}
	if c.EventBuffer < 0 {
		return fmt.Errorf("EVENT_BUFFER must be >= 0")
	}
	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("HEALTH_CHECK_INTERVAL must be > 0")
	}

	return nil
}

// Helper functions for parsing environment variables

func getEnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := ParseWindow(v); err == nil {
			return d
		}
	}
	return def
}

// ParseWindow parses a Go duration, also accepting whole days ("7d").
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q: %w", s, err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
