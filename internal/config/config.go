package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis hot-cache configuration
	Redis RedisConfig

	// NATS fan-out configuration
	NATS NATSConfig

	// Live tracking configuration
	Tracking TrackingConfig

	// CORS configuration
	CORS CORSConfig

	// Device authentication configuration
	Security SecurityConfig

	// Metrics configuration
	Metrics MetricsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// RedisConfig holds hot-cache configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig holds the cross-instance broadcast bridge configuration.
// An empty URL disables the bridge.
type NATSConfig struct {
	URL string
}

// TrackingConfig holds the live tracking engine options
type TrackingConfig struct {
	StalenessThreshold time.Duration // max age of a report before a vehicle is offline
	SpeedRingSize      int           // bounded ring of recent raw speeds
	MinSpeedFloorKmh   float64       // ETA divisor floor
	GeometryCacheTTL   time.Duration // zero means manual invalidation only
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig holds device token configuration
type SecurityConfig struct {
	DeviceAuthEnabled bool
	DeviceTokenSecret string
	DeviceTokenExpiry time.Duration
}

// MetricsConfig holds the Prometheus listener configuration. An empty Addr
// disables the metrics server.
type MetricsConfig struct {
	Addr string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},
		Tracking: TrackingConfig{
			StalenessThreshold: time.Duration(getEnvInt("STALENESS_THRESHOLD_SECONDS", 90)) * time.Second,
			SpeedRingSize:      getEnvInt("SPEED_RING_SIZE", 3),
			MinSpeedFloorKmh:   getEnvFloat("MIN_SPEED_FLOOR_KMH", 1.0),
			GeometryCacheTTL:   time.Duration(getEnvInt("GEOMETRY_CACHE_TTL_SECONDS", 0)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Security: SecurityConfig{
			DeviceAuthEnabled: getEnvBool("DEVICE_AUTH_ENABLED", false),
			DeviceTokenSecret: getEnv("DEVICE_TOKEN_SECRET", ""),
			DeviceTokenExpiry: time.Duration(getEnvInt("DEVICE_TOKEN_EXPIRY_HOURS", 24)) * time.Hour,
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
	}

	if config.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if config.Tracking.SpeedRingSize <= 0 {
		return nil, fmt.Errorf("SPEED_RING_SIZE must be positive")
	}
	if config.Tracking.StalenessThreshold <= 0 {
		return nil, fmt.Errorf("STALENESS_THRESHOLD_SECONDS must be positive")
	}
	if config.Security.DeviceAuthEnabled && config.Security.DeviceTokenSecret == "" {
		return nil, fmt.Errorf("DEVICE_TOKEN_SECRET is required when DEVICE_AUTH_ENABLED is set")
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as a float with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		log.Printf("Invalid float value for %s, using default %g", key, defaultValue)
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
		log.Printf("Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}

// getEnvSlice gets an environment variable as a comma-separated list
func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
