package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the service configuration, loaded from the environment.
// Simulation parameters are not part of it: they arrive per run, from a
// parameter file or a request body.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Warehouse  WarehouseConfig
	EventStore EventStoreConfig
	Auth       AuthConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// RateLimitPerSecond and RateLimitBurst bound the API request rate.
	RateLimitPerSecond int
	RateLimitBurst     int
}

// DatabaseConfig configures the Postgres store for finished runs.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// WarehouseConfig configures the SQL Server research warehouse that
// finished cohort tables can be published into.
type WarehouseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Schema   string
	Encrypt  bool
}

func (w WarehouseConfig) DSN() string {
	dsn := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		w.Host, w.Port, w.Database, w.User, w.Password)
	if w.Encrypt {
		dsn += ";encrypt=true;TrustServerCertificate=true"
	}
	return dsn
}

// EventStoreConfig configures the EventStoreDB bus carrying run-lifecycle
// events.
type EventStoreConfig struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:               getEnvInt("SERVER_PORT", 8080),
			Env:                getEnv("ENV", "development"),
			RateLimitPerSecond: getEnvInt("RATE_LIMIT_PER_SECOND", 50),
			RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 100),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "rwdsim"),
			Password: getEnv("DB_PASSWORD", "rwdsim"),
			Database: getEnv("DB_NAME", "rwdsim"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Warehouse: WarehouseConfig{
			Host:     getEnv("WAREHOUSE_HOST", ""),
			Port:     getEnvInt("WAREHOUSE_PORT", 1433),
			User:     getEnv("WAREHOUSE_USER", "rwdsim"),
			Password: getEnv("WAREHOUSE_PASSWORD", ""),
			Database: getEnv("WAREHOUSE_NAME", "research"),
			Schema:   getEnv("WAREHOUSE_SCHEMA", "rwd"),
			Encrypt:  getEnvBool("WAREHOUSE_ENCRYPT", false),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
