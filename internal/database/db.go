package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB is the global database instance
var DB *sql.DB

// Config holds database configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ConfigFromEnv reads DB_* variables.
func ConfigFromEnv() Config {
	return Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "rtaudio"),
		Password: getEnv("DB_PASSWORD", "rtaudio_pass"),
		DBName:   getEnv("DB_NAME", "rtaudio"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

// DSN returns the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Init opens the connection, checks it and creates missing tables.
func Init(config Config) error {
	var err error
	DB, err = sql.Open("postgres", config.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Diagnostics writes are small and infrequent.
	DB.SetMaxOpenConns(4)
	DB.SetMaxIdleConns(2)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err = Migrate(); err != nil {
		return err
	}

	log.Printf("Database connected successfully (%s:%s/%s)", config.Host, config.Port, config.DBName)
	return nil
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

// HealthCheck verifies database connectivity
func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return DB.Ping()
}

// Enabled reports whether Init has run.
func Enabled() bool {
	return DB != nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pll_samples (
		id BIGSERIAL PRIMARY KEY,
		pipeline_id INTEGER NOT NULL,
		element_id INTEGER NOT NULL,
		src_domain INTEGER NOT NULL,
		dst_domain INTEGER NOT NULL,
		state TEXT NOT NULL,
		ppb INTEGER NOT NULL,
		err_mean DOUBLE PRECISION,
		err_variance DOUBLE PRECISION,
		ppb_min BIGINT,
		ppb_max BIGINT,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS pll_samples_pipeline_idx ON pll_samples (pipeline_id, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS element_faults (
		id BIGSERIAL PRIMARY KEY,
		pipeline_id INTEGER NOT NULL,
		element_id INTEGER NOT NULL,
		element_type TEXT NOT NULL,
		message TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_archive (
		id BIGSERIAL PRIMARY KEY,
		pipeline_id INTEGER NOT NULL,
		bucket TEXT NOT NULL,
		object_key TEXT NOT NULL,
		etag TEXT,
		size_bytes BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the diagnostics tables if they do not exist.
func Migrate() error {
	for _, stmt := range schema {
		if _, err := DB.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// getEnv gets environment variable with fallback default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
