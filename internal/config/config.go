package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	HTTP     HTTPConfig
	Auth     AuthConfig
	Tracking TrackingConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// HTTPConfig contains HTTP server settings.
type HTTPConfig struct {
	Address string // HTTP listen address (e.g., ":8080")
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string // JWT signing secret
}

// TrackingConfig contains delivery-simulation settings.
type TrackingConfig struct {
	Steps      int           // ticks per delivery run
	Tick       time.Duration // delay between ticks
	JitterTick time.Duration // delay between idle-driver position wobbles
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg, err := loadCommon()
	if err != nil {
		return nil, err
	}
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	cfg, err := loadCommon()
	if err != nil {
		return nil, err
	}
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "dev-secret-change-me")
	return cfg, nil
}

func loadCommon() (*Config, error) {
	steps, err := getEnvInt("TRACKING_STEPS", 100)
	if err != nil {
		return nil, err
	}
	tickMs, err := getEnvInt("TRACKING_TICK_MS", 1000)
	if err != nil {
		return nil, err
	}
	jitterMs, err := getEnvInt("JITTER_TICK_MS", 3000)
	if err != nil {
		return nil, err
	}
	if steps <= 0 || tickMs <= 0 || jitterMs <= 0 {
		return nil, fmt.Errorf("tracking settings must be positive (steps=%d tick=%dms jitter=%dms)", steps, tickMs, jitterMs)
	}
	return &Config{
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "delivro.db"),
		},
		HTTP: HTTPConfig{
			Address: getEnv("HTTP_ADDRESS", ":8080"),
		},
		Tracking: TrackingConfig{
			Steps:      steps,
			Tick:       time.Duration(tickMs) * time.Millisecond,
			JitterTick: time.Duration(jitterMs) * time.Millisecond,
		},
	}, nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DB: %s, HTTP: %s, Tracking: %d x %s, Auth: *** (masked) ***}",
		c.Database.Path, c.HTTP.Address, c.Tracking.Steps, c.Tracking.Tick)
}
