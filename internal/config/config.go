// Package config loads runtime configuration from the environment,
// with optional dotenv files layered in first.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// StorageOptions selects and parameterizes the entity store backend.
type StorageOptions struct {
	Driver      string `env:"FLORACORE_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"FLORACORE_SQLITE_PATH" envDefault:"floracore.db"`
	PostgresDSN string `env:"FLORACORE_POSTGRES_DSN"`
}

// Validate normalizes the driver name and checks driver-specific
// requirements.
func (s *StorageOptions) Validate() error {
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	switch driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid FLORACORE_STORAGE_DRIVER=%q (expected memory|sqlite|postgres)", s.Driver)
	}
	s.Driver = driver

	if driver == "sqlite" && strings.TrimSpace(s.SQLitePath) == "" {
		return fmt.Errorf("FLORACORE_SQLITE_PATH required for sqlite storage")
	}
	if driver == "postgres" && strings.TrimSpace(s.PostgresDSN) == "" {
		return fmt.Errorf("FLORACORE_POSTGRES_DSN required for postgres storage")
	}
	return nil
}

// BlobOptions selects and parameterizes the artifact store backend.
type BlobOptions struct {
	Driver string `env:"FLORACORE_BLOB_DRIVER" envDefault:"fs"`
	FSRoot string `env:"FLORACORE_BLOB_FS_ROOT" envDefault:"./blobdata"`

	S3Bucket          string `env:"FLORACORE_BLOB_S3_BUCKET"`
	S3Region          string `env:"FLORACORE_BLOB_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint        string `env:"FLORACORE_BLOB_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"FLORACORE_BLOB_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"FLORACORE_BLOB_S3_SECRET_ACCESS_KEY"`
	S3SessionToken    string `env:"FLORACORE_BLOB_S3_SESSION_TOKEN"`
	S3PathStyle       bool   `env:"FLORACORE_BLOB_S3_PATH_STYLE" envDefault:"false"`
}

// Validate normalizes the driver name and checks driver-specific
// requirements.
func (b *BlobOptions) Validate() error {
	driver := strings.ToLower(strings.TrimSpace(b.Driver))
	if driver == "" {
		driver = "fs"
	}
	switch driver {
	case "fs", "s3", "memory":
	default:
		return fmt.Errorf("invalid FLORACORE_BLOB_DRIVER=%q (expected fs|s3|memory)", b.Driver)
	}
	b.Driver = driver

	if driver == "s3" && strings.TrimSpace(b.S3Bucket) == "" {
		return fmt.Errorf("FLORACORE_BLOB_S3_BUCKET required for s3 blob storage")
	}
	return nil
}

// HTTPOptions parameterizes the API server.
type HTTPOptions struct {
	Addr            string        `env:"FLORACORE_HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"FLORACORE_HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"FLORACORE_HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"FLORACORE_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LogOptions parameterizes the process logger.
type LogOptions struct {
	Level  string `env:"FLORACORE_LOG_LEVEL" envDefault:"info"`
	Format string `env:"FLORACORE_LOG_FORMAT" envDefault:"text"`
}

// Validate normalizes the level and format names.
func (l *LogOptions) Validate() error {
	level := strings.ToLower(strings.TrimSpace(l.Level))
	if level == "" {
		level = "info"
	}
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid FLORACORE_LOG_LEVEL=%q (expected debug|info|warn|error)", l.Level)
	}
	l.Level = level

	format := strings.ToLower(strings.TrimSpace(l.Format))
	if format == "" {
		format = "text"
	}
	switch format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid FLORACORE_LOG_FORMAT=%q (expected text|json)", l.Format)
	}
	l.Format = format
	return nil
}

// Config is the full runtime configuration.
type Config struct {
	Storage StorageOptions
	Blob    BlobOptions
	HTTP    HTTPOptions
	Log     LogOptions

	// PlantDelimiter separates accession codes from plant codes in
	// fully qualified plant identifiers.
	PlantDelimiter string `env:"FLORACORE_PLANT_DELIMITER" envDefault:"."`
}

// Validate checks every section and the top-level settings.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Blob.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.PlantDelimiter == "" {
		return fmt.Errorf("FLORACORE_PLANT_DELIMITER must not be empty")
	}
	return nil
}

// LoadEnv loads the named dotenv files into the process environment,
// skipping files that do not exist. It reports how many were loaded.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load parses configuration from the process environment.
func Load() (*Config, error) {
	return LoadWithEnvFiles()
}

// LoadWithEnvFiles layers the named dotenv files into the environment
// before parsing. Variables already set in the environment win over
// file values.
func LoadWithEnvFiles(envFiles ...string) (*Config, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
